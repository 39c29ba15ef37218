// Package uart implements the DIN-5 serial MIDI transport: a raw-mode
// termios byte stream feeding the MIDI 1.0 parser on receive, and the
// builder/serializer on send. UART is always MIDI 1.0 (spec.md §4.6);
// this package never sees a UMP packet.
//
// Hardware bring-up (pin mux, level shifting) is out of scope per
// spec.md §1; this package only opens a serial device and moves
// bytes.
package uart

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/pkg/term"

	"github.com/w1nn3t0u-o7/midicube/internal/midi1"
	"github.com/w1nn3t0u-o7/midicube/internal/router"
)

// StandardBaud is the baud rate the MIDI 1.0 spec mandates for DIN-5
// serial transports.
const StandardBaud = 31250

// Transport wraps a termios serial port as a router.Sink and, via Run,
// a packet source.
type Transport struct {
	port    *term.Term
	parser  *midi1.Parser
	enqueue func(router.Packet)
	log     *log.Logger
}

// Open opens the serial device at path in raw mode at MIDI's standard
// baud rate.
func Open(path string, enqueue func(router.Packet)) (*Transport, error) {
	port, err := term.Open(path, term.Speed(StandardBaud), term.RawMode)
	if err != nil {
		return nil, fmt.Errorf("uart: open %s: %w", path, err)
	}
	return &Transport{
		port:    port,
		parser:  midi1.NewParser(0),
		enqueue: enqueue,
		log:     log.With("transport", router.UART),
	}, nil
}

// Close releases the serial port.
func (t *Transport) Close() error {
	return t.port.Close()
}

// Run reads bytes from the serial port, feeds them through the MIDI
// 1.0 parser, and enqueues each assembled message with
// Source=router.UART. It blocks until ctx is canceled or the port
// errors.
func (t *Transport) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		t.port.Close()
	}()

	buf := make([]byte, 256)
	for {
		n, err := t.port.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("uart: read: %w", err)
		}
		for _, b := range buf[:n] {
			if m, ok := t.parser.Parse(b); ok {
				t.enqueue(router.Packet{Source: router.UART, Format: router.FormatMIDI1, MIDI1: m})
			}
		}
	}
}

// Send implements router.Sink. It serializes the MIDI 1.0 message and
// writes it to the wire; a UMP packet arriving here (which should not
// happen since UART always prefers MIDI 1.0, per spec.md §4.6) is
// reported as an error rather than silently dropped.
func (t *Transport) Send(_ context.Context, p router.Packet) error {
	if p.Format != router.FormatMIDI1 {
		return fmt.Errorf("uart: cannot send non-MIDI1 packet (format=%v)", p.Format)
	}
	bytes := midi1.Serialize(p.MIDI1)
	if _, err := t.port.Write(bytes); err != nil {
		return &router.TransientError{Destination: router.UART, Cause: err}
	}
	return nil
}
