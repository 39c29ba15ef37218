package router

import "sync/atomic"

// Stats holds router counters. Every field is updated with atomics so
// an observer task can read them without locking, tolerating coarse
// eventual consistency (spec.md §5).
type Stats struct {
	packetsRouted   [NumTransports][NumTransports]atomic.Uint64
	packetsDropped  [NumTransports]atomic.Uint64
	packetsFiltered [NumTransports]atomic.Uint64
	translations1to2 atomic.Uint64
	translations2to1 atomic.Uint64
	routingErrors    atomic.Uint64
}

// Snapshot is a point-in-time copy of Stats, safe to read freely.
type Snapshot struct {
	PacketsRouted   [NumTransports][NumTransports]uint64
	PacketsDropped  [NumTransports]uint64
	PacketsFiltered [NumTransports]uint64
	Translations1to2 uint64
	Translations2to1 uint64
	RoutingErrors    uint64
}

// Snapshot copies the current counter values out.
func (s *Stats) Snapshot() Snapshot {
	var out Snapshot
	for i := 0; i < NumTransports; i++ {
		for j := 0; j < NumTransports; j++ {
			out.PacketsRouted[i][j] = s.packetsRouted[i][j].Load()
		}
		out.PacketsDropped[i] = s.packetsDropped[i].Load()
		out.PacketsFiltered[i] = s.packetsFiltered[i].Load()
	}
	out.Translations1to2 = s.translations1to2.Load()
	out.Translations2to1 = s.translations2to1.Load()
	out.RoutingErrors = s.routingErrors.Load()
	return out
}

// Reset zeroes every counter.
func (s *Stats) Reset() {
	for i := 0; i < NumTransports; i++ {
		for j := 0; j < NumTransports; j++ {
			s.packetsRouted[i][j].Store(0)
		}
		s.packetsDropped[i].Store(0)
		s.packetsFiltered[i].Store(0)
	}
	s.translations1to2.Store(0)
	s.translations2to1.Store(0)
	s.routingErrors.Store(0)
}
