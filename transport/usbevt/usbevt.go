// Package usbevt implements the two USB-MIDI class-compliant framings
// this router's USB slot can speak: the legacy USB-MIDI 1.0 Event
// Packet (spec.md §4.1, 4-byte packets tagged with a Code Index
// Number) and the USB-MIDI 2.0 "Generic MIDI 2.0" framing, which
// carries a UMP verbatim as one 4-byte USB packet per 32-bit word. The
// real USB PHY/device stack is out of scope (spec.md §1); this package
// only frames and unframes packets over a generic io.ReadWriter, so it
// can sit on top of whatever USB gadget driver a concrete build
// supplies. Which framing a given endpoint speaks is fixed at
// construction (New vs NewUMP), mirroring how a real device's USB
// descriptors fix its class-compliance level for the life of the
// connection.
package usbevt

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"github.com/w1nn3t0u-o7/midicube/internal/midi1"
	"github.com/w1nn3t0u-o7/midicube/internal/router"
	"github.com/w1nn3t0u-o7/midicube/internal/scale"
	"github.com/w1nn3t0u-o7/midicube/internal/ump"
)

const eventPacketSize = 4

// Transport frames/unframes USB-MIDI packets over rw, in whichever
// class-compliant mode it was constructed with.
type Transport struct {
	rw      io.ReadWriter
	parser  *midi1.Parser
	enqueue func(router.Packet)
	cable   uint8
	umpMode bool
	log     *log.Logger
}

// New constructs a Transport bound to a USB cable number (0-15) over
// rw, speaking the legacy USB-MIDI 1.0 Event Packet framing. It only
// ever produces and accepts MIDI 1.0 packets.
func New(rw io.ReadWriter, cable uint8, enqueue func(router.Packet)) *Transport {
	return &Transport{
		rw:      rw,
		parser:  midi1.NewParser(0),
		enqueue: enqueue,
		cable:   cable,
		log:     log.With("transport", router.USB),
	}
}

// NewUMP constructs a Transport speaking the USB-MIDI 2.0 Generic
// framing: each 32-bit UMP word is carried as one 4-byte USB packet,
// in the order ump.Serialize emits them. This is the mode the router
// expects on its USB slot when auto-translate is enabled (spec.md
// §4.6 prefers UMP on USB), since it is the only one of the two
// framings able to carry a translated MIDI 2.0 Channel Voice packet.
func NewUMP(rw io.ReadWriter, enqueue func(router.Packet)) *Transport {
	return &Transport{
		rw:      rw,
		enqueue: enqueue,
		umpMode: true,
		log:     log.With("transport", router.USB, "mode", "ump"),
	}
}

// Run reads packets from the endpoint and enqueues each assembled
// message, decoding Event Packets into MIDI 1.0 messages or
// reassembling UMP words, depending on the transport's mode.
func (t *Transport) Run(ctx context.Context) error {
	if t.umpMode {
		return t.runUMP(ctx)
	}
	return t.runEventPacket(ctx)
}

func (t *Transport) runEventPacket(ctx context.Context) error {
	buf := make([]byte, eventPacketSize)
	for {
		if ctx.Err() != nil {
			return nil
		}
		if _, err := io.ReadFull(t.rw, buf); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("usbevt: read: %w", err)
		}
		cin := scale.CIN(buf[0] & 0x0F)
		n, ok := scale.LengthForCIN(cin)
		if !ok {
			t.log.Debug("unhandled CIN", "cin", cin)
			continue
		}
		for _, b := range buf[1 : 1+n] {
			if m, ok := t.parser.Parse(b); ok {
				t.enqueue(router.Packet{Source: router.USB, Format: router.FormatMIDI1, MIDI1: m})
			}
		}
	}
}

func (t *Transport) runUMP(ctx context.Context) error {
	buf := make([]byte, eventPacketSize)
	var words []uint32
	for {
		if ctx.Err() != nil {
			return nil
		}
		if _, err := io.ReadFull(t.rw, buf); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("usbevt: read: %w", err)
		}
		words = append(words, binary.BigEndian.Uint32(buf))

		p, err := ump.Parse(words)
		if err != nil {
			if err == ump.ErrTruncated {
				continue // need more words before this packet completes
			}
			return fmt.Errorf("usbevt: %w", err)
		}
		t.enqueue(router.Packet{Source: router.USB, Format: router.FormatUMP, UMP: p})
		words = words[p.NumWords:]
	}
}

// Send implements router.Sink by framing the packet according to the
// transport's mode. A MIDI1 packet arriving on a UMP-mode transport
// (or vice versa) is rejected: this reference implementation models
// one fixed class-compliance level per endpoint, as a real device's
// USB descriptors would.
func (t *Transport) Send(_ context.Context, p router.Packet) error {
	if t.umpMode {
		return t.sendUMP(p)
	}
	return t.sendEventPacket(p)
}

func (t *Transport) sendEventPacket(p router.Packet) error {
	if p.Format != router.FormatMIDI1 {
		return fmt.Errorf("usbevt: cannot send non-MIDI1 packet (format=%v)", p.Format)
	}
	bytes := midi1.Serialize(p.MIDI1)
	if len(bytes) == 0 {
		return nil
	}
	cin, ok := scale.CINForStatus(bytes[0])
	if !ok {
		return fmt.Errorf("usbevt: no CIN for status %#02x", bytes[0])
	}
	pkt := make([]byte, eventPacketSize)
	pkt[0] = (t.cable << 4) | byte(cin)
	copy(pkt[1:], bytes)
	if _, err := t.rw.Write(pkt); err != nil {
		return &router.TransientError{Destination: router.USB, Cause: err}
	}
	return nil
}

func (t *Transport) sendUMP(p router.Packet) error {
	if p.Format != router.FormatUMP {
		return fmt.Errorf("usbevt: cannot send non-UMP packet (format=%v)", p.Format)
	}
	for _, w := range ump.Serialize(p.UMP) {
		pkt := make([]byte, eventPacketSize)
		binary.BigEndian.PutUint32(pkt, w)
		if _, err := t.rw.Write(pkt); err != nil {
			return &router.TransientError{Destination: router.USB, Cause: err}
		}
	}
	return nil
}
