package netmidi

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/w1nn3t0u-o7/midicube/internal/midi1"
	"github.com/w1nn3t0u-o7/midicube/internal/router"
	"github.com/w1nn3t0u-o7/midicube/internal/ump"
)

// frame tags the MIDI-Cube UDP envelope's payload format. RTP-MIDI
// (RFC 6295) has no standard UMP carriage, so this session wraps
// either representation behind one extra byte rather than restricting
// the network transports to legacy MIDI 1.0 bytes — the original
// firmware treats Ethernet/WiFi as MIDI 2.0-over-UDP transports
// (components/midi_ethernet, components/midi_wifi in original_source).
type frame uint8

const (
	frameMIDI1 frame = 0x01
	frameUMP   frame = 0x02
)

// peer is one remote participant discovered via an AppleMIDI-style
// invitation (not implemented here; spec.md §1 scopes session
// start/ack/keepalive handshakes out of the core — peers are added via
// AddPeer by the transport-specific session glue).
type peer struct {
	addr *net.UDPAddr
	ssrc uint32
}

// Session is one instance of the RTP-MIDI/AppleMIDI transport, bound
// to a single local UDP port. Two independent Sessions — one per
// physical link layer — back the router's Ethernet and WiFi
// transports; both run this identical session protocol.
type Session struct {
	source router.TransportID
	conn   *net.UDPConn

	ssrc   uint32
	seqNum atomic.Uint32

	peers sync.Map // net.UDPAddr.String() -> *peer

	parser *midi1.Parser

	enqueue func(router.Packet)

	log *log.Logger
}

// NewSession constructs a Session for the given router transport slot
// (router.Ethernet or router.WiFi). enqueue is called once per decoded
// MIDI 1.0 or UMP message with Source already set.
func NewSession(source router.TransportID, enqueue func(router.Packet)) *Session {
	return &Session{
		source:  source,
		ssrc:    rand.Uint32(),
		parser:  midi1.NewParser(0),
		enqueue: enqueue,
		log:     log.With("transport", source),
	}
}

// Listen binds the session's UDP socket and starts its receive loop.
// It blocks until ctx is canceled.
func (s *Session) Listen(ctx context.Context, port uint16) error {
	addr := &net.UDPAddr{Port: int(port)}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("netmidi: listen on port %d: %w", port, err)
	}
	s.conn = conn
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, 1500)
	for {
		n, raddr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Warn("read failed", "err", err)
			continue
		}
		s.handleDatagram(buf[:n], raddr)
	}
}

// AddPeer registers a remote participant to receive future sends. In a
// full AppleMIDI stack this follows a successful invitation handshake;
// that handshake is transport-session glue outside this core (spec.md
// §1).
func (s *Session) AddPeer(addr *net.UDPAddr, ssrc uint32) {
	s.peers.Store(addr.String(), &peer{addr: addr, ssrc: ssrc})
}

func (s *Session) handleDatagram(buf []byte, raddr *net.UDPAddr) {
	msg, err := Decode(buf)
	if err != nil {
		s.log.Debug("decode failed", "err", err, "from", raddr)
		return
	}
	if len(msg.Payload) == 0 {
		return
	}

	switch frame(msg.Payload[0]) {
	case frameMIDI1:
		for _, b := range msg.Payload[1:] {
			if m, ok := s.parser.Parse(b); ok {
				s.enqueue(router.Packet{Source: s.source, Format: router.FormatMIDI1, MIDI1: m})
			}
		}
	case frameUMP:
		words := bytesToWords(msg.Payload[1:])
		for len(words) > 0 {
			p, err := ump.Parse(words)
			if err != nil {
				s.log.Debug("truncated ump in datagram", "err", err)
				return
			}
			s.enqueue(router.Packet{Source: s.source, Format: router.FormatUMP, UMP: p})
			words = words[p.NumWords:]
		}
	default:
		s.log.Debug("unknown frame tag", "tag", msg.Payload[0])
	}
}

// Send implements router.Sink: it serializes p and broadcasts it to
// every registered peer. A per-peer write failure is logged and
// skipped; Send itself fails only for an unknown packet format or when
// no peer write succeeded (including when no peers are registered).
func (s *Session) Send(_ context.Context, p router.Packet) error {
	var payload []byte
	switch p.Format {
	case router.FormatMIDI1:
		payload = append([]byte{byte(frameMIDI1)}, midi1.Serialize(p.MIDI1)...)
	case router.FormatUMP:
		payload = append([]byte{byte(frameUMP)}, wordsToBytes(ump.Serialize(p.UMP))...)
	default:
		return fmt.Errorf("netmidi: unknown packet format %v", p.Format)
	}

	seq := uint16(s.seqNum.Add(1))
	wire := Encode(Message{
		Header: Header{Marker: true, PayloadType: payloadType, SequenceNumber: seq, Timestamp: nowMillis(), SSRC: s.ssrc},
		Payload: payload,
	})

	sent := 0
	s.peers.Range(func(_, v interface{}) bool {
		pr := v.(*peer)
		if _, err := s.conn.WriteToUDP(wire, pr.addr); err != nil {
			s.log.Warn("write failed", "peer", pr.addr, "err", err)
			return true
		}
		sent++
		return true
	})
	if sent == 0 {
		return &router.TransientError{Destination: s.source, Cause: fmt.Errorf("no peers registered")}
	}
	return nil
}

func bytesToWords(b []byte) []uint32 {
	n := len(b) / 4
	out := make([]uint32, n)
	for i := 0; i < n; i++ {
		out[i] = binary.BigEndian.Uint32(b[i*4:])
	}
	return out
}

func wordsToBytes(words []uint32) []byte {
	out := make([]byte, len(words)*4)
	for i, w := range words {
		binary.BigEndian.PutUint32(out[i*4:], w)
	}
	return out
}
