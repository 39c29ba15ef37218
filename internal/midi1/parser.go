package midi1

import (
	"errors"
	"time"
)

// Errors counted by the parser. None of these are fatal: per spec.md §7
// every malformed or undefined byte is discarded and parsing continues.
var (
	ErrOverflow        = errors.New("midi1: sysex buffer overflow")
	ErrUndefinedStatus = errors.New("midi1: undefined status byte")
)

// DefaultSysexBufferSize is the capacity used when NewParser is given 0.
const DefaultSysexBufferSize = 512

// ActiveSensingTimeout is the idle window after which a parser that has
// observed at least one Active Sensing byte signals a timeout, per
// spec.md §5.
const ActiveSensingTimeout = 300 * time.Millisecond

// state tags the three parser states of spec.md §4.2 as a single
// exhaustive variant, rather than a struct of loosely-related booleans.
type state uint8

const (
	stateIdle state = iota
	stateCollecting
	stateInSysex
)

// Parser is a stateful MIDI 1.0 byte-stream decoder. It is not safe for
// concurrent use; each transport owns exactly one Parser instance.
type Parser struct {
	st state

	// currentKind/currentStatus identify the message being (or last)
	// collected in the Collecting state — either a Channel Voice
	// running status or a System Common status awaiting its data
	// bytes. Both reuse the status across consecutive emissions the
	// same way Running Status does, per spec.md §4.2.
	currentKind   Kind
	currentStatus uint8
	channel       uint8

	expected  uint8
	have      uint8
	collected [2]uint8

	sysexBuf []byte
	sysexLen int

	sawActiveSensing bool
	lastByteAt       time.Time

	ParseErrors     uint64
	SysexOverflows  uint64
	MessagesEmitted uint64
}

// NewParser constructs a parser with the given SysEx buffer capacity.
// A capacity of 0 uses DefaultSysexBufferSize.
func NewParser(sysexBufferSize int) *Parser {
	if sysexBufferSize <= 0 {
		sysexBufferSize = DefaultSysexBufferSize
	}
	return &Parser{sysexBuf: make([]byte, sysexBufferSize)}
}

// Reset returns the parser to its initial Idle state, discarding any
// in-flight message or SysEx buffer contents, without reallocating the
// SysEx buffer.
func (p *Parser) Reset() {
	p.st = stateIdle
	p.currentStatus = 0
	p.expected = 0
	p.have = 0
	p.sysexLen = 0
	p.sawActiveSensing = false
}

// Parse feeds one byte into the parser. It returns the assembled
// message and true when a message completed as a result of this byte;
// otherwise ok is false and msg is the zero value. A Real-Time byte
// (0xF8-0xFF) always completes immediately without disturbing any
// message already in progress; the undefined 0xF9 and 0xFD are instead
// discarded and counted in ParseErrors, also without disturbing it.
func (p *Parser) Parse(b byte) (msg Message, ok bool) {
	p.lastByteAt = time.Now()

	if IsRealTime(b) {
		if IsUndefinedStatus(b) {
			p.ParseErrors++
			return Message{}, false
		}
		if b == StatusActiveSensing {
			p.sawActiveSensing = true
		}
		p.MessagesEmitted++
		return Message{Kind: KindSystemRealTime, Status: b}, true
	}

	if IsStatusByte(b) {
		return p.handleStatus(b)
	}
	return p.handleData(b)
}

func (p *Parser) handleStatus(b byte) (Message, bool) {
	switch {
	case b == StatusSysExStart:
		// Enter SysEx. If SysEx was already in progress, it is
		// terminated without emission (spec.md §4.2, §9 Open
		// Question: the reference resolves this silently).
		p.st = stateInSysex
		p.sysexLen = 0
		p.currentStatus = 0
		return Message{}, false

	case b == StatusSysExEnd:
		if p.st == stateInSysex {
			p.st = stateIdle
			payload := make([]byte, p.sysexLen)
			copy(payload, p.sysexBuf[:p.sysexLen])
			p.MessagesEmitted++
			return Message{Kind: KindSystemExclusive, Status: StatusSysExStart, Payload: payload}, true
		}
		return Message{}, false

	case IsUndefinedStatus(b):
		// Undefined statuses are discarded, not collected into a
		// message, and clear whatever running status was in effect
		// (spec.md §4.2).
		p.st = stateIdle
		p.currentStatus = 0
		p.ParseErrors++
		return Message{}, false

	case IsSystemCommon(b):
		// System Common clears running status (spec.md §4.2).
		p.st = stateCollecting
		p.currentKind = KindSystemCommon
		p.currentStatus = b
		p.expected = DataByteCount(b)
		p.have = 0
		msg := Message{Kind: KindSystemCommon, Status: b}
		if p.expected == 0 {
			p.st = stateIdle
			p.MessagesEmitted++
			return msg, true
		}
		return Message{}, false

	case IsChannelVoice(b):
		p.st = stateCollecting
		p.currentKind = KindChannelVoice
		p.currentStatus = b
		p.channel = b & 0x0F
		p.expected = DataByteCount(b)
		p.have = 0
		return Message{}, false

	default:
		p.ParseErrors++
		return Message{}, false
	}
}

func (p *Parser) handleData(b byte) (Message, bool) {
	if p.st == stateInSysex {
		if p.sysexLen < len(p.sysexBuf) {
			p.sysexBuf[p.sysexLen] = b
			p.sysexLen++
		} else {
			p.SysexOverflows++
		}
		return Message{}, false
	}

	if p.st != stateCollecting || p.currentStatus == 0 {
		return Message{}, false // data byte with no status in effect: ignored
	}

	if p.have < 2 {
		p.collected[p.have] = b
		p.have++
	}

	if p.have < p.expected {
		return Message{}, false
	}

	msg := Message{Kind: p.currentKind, Status: p.currentStatus, NData: p.expected}
	if p.currentKind == KindChannelVoice {
		msg.Channel = p.channel
	}
	if p.expected >= 1 {
		msg.D1 = p.collected[0]
	}
	if p.expected >= 2 {
		msg.D2 = p.collected[1]
	}

	p.have = 0 // status reuse: stay in Collecting for the next message
	p.MessagesEmitted++
	return msg, true
}

// CheckActiveSensingTimeout reports whether the parser has seen an
// Active Sensing byte and then gone silent for at least
// ActiveSensingTimeout. Routing is unaffected; the caller (transport
// layer) decides whether to react (e.g. emit All Notes Off).
func (p *Parser) CheckActiveSensingTimeout(now time.Time) bool {
	if !p.sawActiveSensing {
		return false
	}
	return now.Sub(p.lastByteAt) >= ActiveSensingTimeout
}
