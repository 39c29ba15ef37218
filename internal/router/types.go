// Package router implements the MIDI router (spec.md §4.6, C6): a 4×4
// routing matrix with per-input filtering, automatic 1.0↔2.0 format
// negotiation, loop suppression and bounded-queue backpressure.
package router

import (
	"fmt"

	"github.com/w1nn3t0u-o7/midicube/internal/midi1"
	"github.com/w1nn3t0u-o7/midicube/internal/ump"
)

// TransportID identifies one of the four fixed router endpoints, in
// the index order the original firmware's midi_transport_t uses.
type TransportID int

// The four transports the router matrix is indexed over.
const (
	UART TransportID = iota
	USB
	Ethernet
	WiFi
	transportCount
)

func (t TransportID) String() string {
	switch t {
	case UART:
		return "UART"
	case USB:
		return "USB"
	case Ethernet:
		return "Ethernet"
	case WiFi:
		return "WiFi"
	default:
		return fmt.Sprintf("TransportID(%d)", int(t))
	}
}

// NumTransports is the fixed size of the routing matrix and filter
// table.
const NumTransports = int(transportCount)

// Format distinguishes which payload field of a Packet is meaningful.
type Format int

const (
	FormatMIDI1 Format = iota
	FormatUMP
)

func (f Format) String() string {
	if f == FormatUMP {
		return "UMP"
	}
	return "MIDI1"
}

// Packet is the unified value transports hand to the router and the
// router hands to sinks. Format acts as the tagged-variant
// discriminant: MIDI1 is meaningful only when Format==FormatMIDI1, UMP
// only when Format==FormatUMP. This is deliberately explicit rather
// than an overlapping union (spec.md §9): each field owns its own
// storage.
type Packet struct {
	Source      TransportID
	Format      Format
	MIDI1       midi1.Message
	UMP         ump.Packet
	TimestampUS uint64
}

// Filter is the per-input message filter of spec.md §3.
type Filter struct {
	Enabled            bool
	ChannelMask        uint16 // bit i set => channel i passes
	BlockActiveSensing bool
	BlockClock         bool
}

// PassesChannel reports whether channel ch is enabled by the mask.
func (f Filter) PassesChannel(ch uint8) bool {
	return f.ChannelMask&(1<<ch) != 0
}

// Matrix is a 4x4 boolean routing table. The zero Matrix routes
// nothing. Diagonal entries are ignored: the router enforces loop
// suppression unconditionally regardless of matrix contents.
type Matrix [NumTransports][NumTransports]bool

// Set returns a copy of m with matrix[source][dest] set to enabled.
// Matrix is a small value type so callers build a new one and publish
// it atomically rather than mutating a shared instance (spec.md §9).
func (m Matrix) Set(source, dest TransportID, enabled bool) Matrix {
	m[source][dest] = enabled
	return m
}

// Enabled reports whether source may route to dest under m, with loop
// suppression applied unconditionally.
func (m Matrix) Enabled(source, dest TransportID) bool {
	if source == dest {
		return false
	}
	return m[source][dest]
}
