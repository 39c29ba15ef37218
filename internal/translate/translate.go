// Package translate implements the bit-exact bidirectional mapping
// between MIDI 1.0 byte-stream messages and MIDI 2.0 Universal MIDI
// Packets, per spec.md §4.5.
package translate

import (
	"errors"
	"fmt"

	"github.com/w1nn3t0u-o7/midicube/internal/midi1"
	"github.com/w1nn3t0u-o7/midicube/internal/scale"
	"github.com/w1nn3t0u-o7/midicube/internal/ump"
)

// Errors the translator returns. Neither is fatal to the caller: the
// router counts these and drops the packet for the failing
// destination only (spec.md §7).
var (
	// ErrNotSupported means the input status has no defined mapping
	// in the requested direction.
	ErrNotSupported = errors.New("translate: not supported")
	// ErrNotRepresentable means a MIDI 2.0 feature cannot be expressed
	// in MIDI 1.0 (per-note controllers, relative controllers, etc.).
	ErrNotRepresentable = errors.New("translate: not representable in MIDI 1.0")
)

// Config holds translator-wide parameters. DefaultGroup is used for
// every UMP packet produced by ToUMP, since a MIDI 1.0 message carries
// no group of its own.
type Config struct {
	DefaultGroup uint8
}

// ToUMP translates a MIDI 1.0 message into one or more UMP packets.
// SysEx translates into a sequence of Data64 packets (see
// ump.SplitSysEx7); every other message translates to exactly one
// packet.
func ToUMP(cfg Config, m midi1.Message) ([]ump.Packet, error) {
	g := cfg.DefaultGroup

	switch m.Kind {
	case midi1.KindChannelVoice:
		p, err := channelVoiceToUMP(g, m)
		if err != nil {
			return nil, err
		}
		return []ump.Packet{p}, nil

	case midi1.KindSystemCommon, midi1.KindSystemRealTime:
		return []ump.Packet{ump.SystemOrRealTime(g, m.Status, m.D1, m.D2)}, nil

	case midi1.KindSystemExclusive:
		return ump.SplitSysEx7(g, m.Payload), nil

	default:
		return nil, fmt.Errorf("%w: midi1 kind %v", ErrNotSupported, m.Kind)
	}
}

func channelVoiceToUMP(group uint8, m midi1.Message) (ump.Packet, error) {
	switch m.Status & 0xF0 {
	case midi1.StatusNoteOn:
		v16 := scale.To16(m.D2)
		if v16 == 0 {
			return ump.NoteOff2(group, m.Channel, m.D1, v16, 0, 0)
		}
		return ump.NoteOn2(group, m.Channel, m.D1, v16, 0, 0)

	case midi1.StatusNoteOff:
		v16 := scale.To16(m.D2)
		return ump.NoteOff2(group, m.Channel, m.D1, v16, 0, 0)

	case midi1.StatusPolyPressure:
		return ump.PolyPressure2(group, m.Channel, m.D1, scale.To32From7(m.D2))

	case midi1.StatusControlChange:
		return ump.ControlChange2(group, m.Channel, m.D1, scale.To32From7(m.D2))

	case midi1.StatusProgramChange:
		return ump.ProgramChange2(group, m.Channel, m.D1, false, 0, 0)

	case midi1.StatusChannelPressure:
		return ump.ChannelPressure2(group, m.Channel, scale.To32From7(m.D1))

	case midi1.StatusPitchBend:
		v14 := midi1.PitchBend14(m)
		return ump.PitchBend2(group, m.Channel, scale.To32(v14))

	default:
		return ump.Packet{}, fmt.Errorf("%w: status %#02x", ErrNotSupported, m.Status)
	}
}

// ToMIDI1 translates a MIDI 2.0 Channel Voice UMP packet (or an MT=0x1
// System packet) back into a MIDI 1.0 message. A reserved Message Type
// fails with ump.ErrReserved; other messages with no MIDI 1.0
// equivalent fail with ErrNotRepresentable.
func ToMIDI1(p ump.Packet) (midi1.Message, error) {
	if err := ump.RequireSemantic(p); err != nil {
		return midi1.Message{}, err
	}
	switch p.MessageType {
	case ump.MTSystem:
		w0 := p.Words[0]
		status := uint8((w0 >> 16) & 0xFF)
		d1 := uint8((w0 >> 8) & 0xFF)
		d2 := uint8(w0 & 0xFF)
		if midi1.IsRealTime(status) {
			return midi1.Message{Kind: midi1.KindSystemRealTime, Status: status}, nil
		}
		return midi1.Message{Kind: midi1.KindSystemCommon, Status: status, D1: d1, D2: d2, NData: midi1.DataByteCount(status)}, nil

	case ump.MTMIDI1ChannelVoice:
		w0 := p.Words[0]
		status := uint8((w0 >> 16) & 0xFF)
		d1 := uint8((w0 >> 8) & 0xFF)
		d2 := uint8(w0 & 0xFF)
		return midi1.Message{Kind: midi1.KindChannelVoice, Status: status, Channel: status & 0x0F, D1: d1, D2: d2, NData: midi1.DataByteCount(status)}, nil

	case ump.MTMIDI2ChannelVoice:
		return midi2ChannelVoiceToMIDI1(p)

	case ump.MTData64:
		payload, err := ump.JoinSysEx7([]ump.Packet{p})
		if err != nil {
			return midi1.Message{}, err
		}
		return midi1.Message{Kind: midi1.KindSystemExclusive, Status: midi1.StatusSysExStart, Payload: payload}, nil

	default:
		return midi1.Message{}, fmt.Errorf("%w: ump mt %#x", ErrNotRepresentable, p.MessageType)
	}
}

func midi2ChannelVoiceToMIDI1(p ump.Packet) (midi1.Message, error) {
	w0 := p.Words[0]
	w1 := p.Words[1]
	statusNibble := uint8((w0 >> 20) & 0xF)
	channel := uint8((w0 >> 16) & 0xF)

	switch statusNibble {
	case ump.CVNoteOn, ump.CVNoteOff:
		note := uint8((w0 >> 8) & 0xFF)
		velocity16 := uint16(w1 >> 16)
		velocity7 := scale.From16(velocity16)
		status := uint8(midi1.StatusNoteOn)
		if statusNibble == ump.CVNoteOff {
			status = midi1.StatusNoteOff
		}
		return midi1.Message{Kind: midi1.KindChannelVoice, Status: status | channel, Channel: channel, D1: note, D2: velocity7, NData: 2}, nil

	case ump.CVPolyPressure:
		note := uint8((w0 >> 8) & 0xFF)
		pressure7 := scale.From16(uint16(w1 >> 16))
		return midi1.Message{Kind: midi1.KindChannelVoice, Status: midi1.StatusPolyPressure | channel, Channel: channel, D1: note, D2: pressure7, NData: 2}, nil

	case ump.CVControlChange:
		controller := uint8((w0 >> 8) & 0xFF)
		value7 := scale.From16(uint16(w1 >> 16))
		return midi1.Message{Kind: midi1.KindChannelVoice, Status: midi1.StatusControlChange | channel, Channel: channel, D1: controller, D2: value7, NData: 2}, nil

	case ump.CVProgramChange:
		program := uint8((w1 >> 24) & 0xFF)
		return midi1.Message{Kind: midi1.KindChannelVoice, Status: midi1.StatusProgramChange | channel, Channel: channel, D1: program, NData: 1}, nil

	case ump.CVChannelPressure:
		pressure7 := scale.From16(uint16(w1 >> 16))
		return midi1.Message{Kind: midi1.KindChannelVoice, Status: midi1.StatusChannelPressure | channel, Channel: channel, D1: pressure7, NData: 1}, nil

	case ump.CVPitchBend:
		v14 := scale.From32(w1)
		lsb := uint8(v14 & 0x7F)
		msb := uint8((v14 >> 7) & 0x7F)
		return midi1.Message{Kind: midi1.KindChannelVoice, Status: midi1.StatusPitchBend | channel, Channel: channel, D1: lsb, D2: msb, NData: 2}, nil

	default:
		return midi1.Message{}, fmt.Errorf("%w: MIDI 2.0 status nibble %#x", ErrNotRepresentable, statusNibble)
	}
}
