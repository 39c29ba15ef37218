package router

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/w1nn3t0u-o7/midicube/internal/midi1"
	"github.com/w1nn3t0u-o7/midicube/internal/translate"
)

// DefaultQueueCapacity is the bounded FIFO's default size (spec.md
// §4.6).
const DefaultQueueCapacity = 64

// Sink is the transport-side contract for a routed destination
// (spec.md §6). A Sink must not re-enter the router for the packet it
// is handling.
type Sink interface {
	Send(ctx context.Context, p Packet) error
}

// runState is the router's lifecycle, per spec.md §4.6.
type runState int32

const (
	stateUninitialized runState = iota
	stateRunning
	stateShuttingDown
)

// Config seeds a Core's routing matrix, filters and global settings.
type Config struct {
	Matrix        Matrix
	Filters       [NumTransports]Filter
	AutoTranslate bool
	MergeInputs   bool
	DefaultGroup  uint8
	QueueCapacity int
}

// snapshot is the immutable routing configuration a Core reads once
// per packet. Administrative calls build a new snapshot and publish it
// via an atomic pointer swap rather than locking the live matrix
// (spec.md §9).
type snapshot struct {
	matrix        Matrix
	filters       [NumTransports]Filter
	autoTranslate bool
	mergeInputs   bool
	defaultGroup  uint8
}

// Core owns the routing matrix, filter table, statistics, inbound
// queue and sink registry for the router's lifetime. The contract
// requires exactly one value to exist per running router, but nothing
// about the type forces it into a global singleton (spec.md §9).
type Core struct {
	snap atomic.Pointer[snapshot]

	queue chan Packet
	sinks [NumTransports]Sink

	stats Stats
	state atomic.Int32

	mu sync.Mutex // serializes administrative calls only
}

// NewCore constructs a router Core in the Uninitialized state.
func NewCore(cfg Config) *Core {
	cap := cfg.QueueCapacity
	if cap <= 0 {
		cap = DefaultQueueCapacity
	}
	c := &Core{queue: make(chan Packet, cap)}
	c.snap.Store(&snapshot{
		matrix:        cfg.Matrix,
		filters:       cfg.Filters,
		autoTranslate: cfg.AutoTranslate,
		mergeInputs:   cfg.MergeInputs,
		defaultGroup:  cfg.DefaultGroup,
	})
	return c
}

// RegisterSink attaches the sink for a destination transport. Sinks
// must be registered before Run is called: the contract is enforced by
// construction (there is no administrative call to add a sink while
// Running), not by a runtime guard (spec.md §9).
func (c *Core) RegisterSink(id TransportID, s Sink) {
	c.sinks[id] = s
}

// Stats returns the live Stats for external read access.
func (c *Core) Stats() *Stats { return &c.stats }

// GetStats returns a point-in-time snapshot of the router counters.
func (c *Core) GetStats() Snapshot { return c.stats.Snapshot() }

// ResetStats zeroes every counter.
func (c *Core) ResetStats() { c.stats.Reset() }

// SetRoute updates one routing matrix cell and publishes the result.
func (c *Core) SetRoute(source, dest TransportID, enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.snap.Load()
	next := *old
	next.matrix = old.matrix.Set(source, dest, enabled)
	c.snap.Store(&next)
}

// SetFilter replaces the filter for one input and publishes the
// result.
func (c *Core) SetFilter(source TransportID, f Filter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.snap.Load()
	next := *old
	next.filters[source] = f
	c.snap.Store(&next)
}

// SetMergeMode toggles merge-all-inputs-to-all-outputs mode.
func (c *Core) SetMergeMode(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.snap.Load()
	next := *old
	next.mergeInputs = enabled
	c.snap.Store(&next)
}

// SetAutoTranslate toggles automatic 1.0<->UMP translation at route
// boundaries.
func (c *Core) SetAutoTranslate(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.snap.Load()
	next := *old
	next.autoTranslate = enabled
	c.snap.Store(&next)
}

// Enqueue hands a packet to the router's inbound queue. It is
// non-blocking: if the queue is full or the router is not Running, the
// packet is dropped and packets_dropped[source] is incremented
// (spec.md §4.6, §7). Enqueue never blocks the calling transport.
func (c *Core) Enqueue(p Packet) {
	if runState(c.state.Load()) != stateRunning {
		c.stats.packetsDropped[p.Source].Add(1)
		return
	}
	select {
	case c.queue <- p:
	default:
		c.stats.packetsDropped[p.Source].Add(1)
	}
}

// Run transitions the Core to Running and processes packets until ctx
// is canceled, at which point it enters ShuttingDown, drains any
// packets already queued without invoking sinks, and returns to
// Uninitialized.
func (c *Core) Run(ctx context.Context) error {
	c.state.Store(int32(stateRunning))
	defer c.state.Store(int32(stateUninitialized))

	for {
		select {
		case <-ctx.Done():
			c.state.Store(int32(stateShuttingDown))
			c.drain()
			return ctx.Err()
		case p := <-c.queue:
			c.route(ctx, p)
		}
	}
}

// drain discards any packets left in the queue without invoking a
// sink, per spec.md §5's cancellation contract.
func (c *Core) drain() {
	for {
		select {
		case <-c.queue:
		default:
			return
		}
	}
}

func (c *Core) route(ctx context.Context, p Packet) {
	snap := c.snap.Load()

	if dropped, reason := filterDrops(snap.filters[p.Source], p); dropped {
		c.stats.packetsFiltered[p.Source].Add(1)
		log.Debug("packet filtered", "source", p.Source, "reason", reason)
		return
	}

	destinations := candidateDestinations(*snap, p.Source)

	for _, dest := range destinations {
		sink := c.sinks[dest]
		if sink == nil {
			continue
		}

		out := p
		wantUMP := destinationPrefersUMP(dest, *snap)
		if snap.autoTranslate && wantUMP && p.Format == FormatMIDI1 {
			packets, err := translate.ToUMP(translate.Config{DefaultGroup: snap.defaultGroup}, p.MIDI1)
			if err != nil {
				c.stats.routingErrors.Add(1)
				log.Warn("translation 1.0->2.0 failed", "source", p.Source, "dest", dest, "err", err)
				continue
			}
			c.stats.translations1to2.Add(1)
			for _, up := range packets {
				c.dispatch(ctx, dest, Packet{Source: p.Source, Format: FormatUMP, UMP: up, TimestampUS: p.TimestampUS})
			}
			continue
		}
		if snap.autoTranslate && !wantUMP && p.Format == FormatUMP {
			m, err := translate.ToMIDI1(p.UMP)
			if err != nil {
				c.stats.routingErrors.Add(1)
				log.Warn("translation 2.0->1.0 failed", "source", p.Source, "dest", dest, "err", err)
				continue
			}
			c.stats.translations2to1.Add(1)
			out = Packet{Source: p.Source, Format: FormatMIDI1, MIDI1: m, TimestampUS: p.TimestampUS}
		}

		c.dispatch(ctx, dest, out)
	}
}

func (c *Core) dispatch(ctx context.Context, dest TransportID, p Packet) {
	sink := c.sinks[dest]
	if sink == nil {
		return
	}
	if err := sink.Send(ctx, p); err != nil {
		c.stats.packetsDropped[dest].Add(1)
		log.Warn("sink send failed", "dest", dest, "err", err)
		return
	}
	c.stats.packetsRouted[p.Source][dest].Add(1)
}

// candidateDestinations resolves the destinations a packet from source
// should be handed to: every other transport when merge_inputs is on,
// otherwise the routing matrix row for source. The source is always
// excluded (loop suppression), regardless of matrix contents.
func candidateDestinations(s snapshot, source TransportID) []TransportID {
	var out []TransportID
	for d := TransportID(0); d < transportCount; d++ {
		if d == source {
			continue
		}
		if s.mergeInputs || s.matrix.Enabled(source, d) {
			out = append(out, d)
		}
	}
	return out
}

// destinationPrefersUMP reports whether dest prefers UMP framing. UART
// is always MIDI 1.0; the other three prefer UMP when auto-translate
// is enabled (spec.md §4.6).
func destinationPrefersUMP(dest TransportID, s snapshot) bool {
	if dest == UART {
		return false
	}
	return s.autoTranslate
}

// filterDrops applies the per-input filter of spec.md §4.6 step 1.
func filterDrops(f Filter, p Packet) (bool, string) {
	if !f.Enabled {
		return false, ""
	}
	if p.Format == FormatMIDI1 {
		m := p.MIDI1
		switch {
		case m.Kind == midi1.KindChannelVoice && !f.PassesChannel(m.Channel):
			return true, "channel"
		case m.Status == 0xFE && f.BlockActiveSensing:
			return true, "active-sensing"
		case m.Status == 0xF8 && f.BlockClock:
			return true, "clock"
		}
	}
	return false, ""
}
