package midi1

import "fmt"

// BuildError reports an invalid builder parameter. Building never has
// side effects; an error is returned synchronously with no state
// mutation, per spec.md §7.
type BuildError struct {
	Field string
	Value int
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("midi1: invalid %s: %d", e.Field, e.Value)
}

func checkRange(field string, v, max int) error {
	if v < 0 || v > max {
		return &BuildError{Field: field, Value: v}
	}
	return nil
}

// NoteOn builds a Note On Channel Voice message. Velocity 0 is valid
// and yields a Note On message with velocity 0 (semantically a Note
// Off via IsNoteOff).
func NoteOn(channel, note, velocity uint8) (Message, error) {
	if err := checkRange("channel", int(channel), 15); err != nil {
		return Message{}, err
	}
	if err := checkRange("note", int(note), 127); err != nil {
		return Message{}, err
	}
	if err := checkRange("velocity", int(velocity), 127); err != nil {
		return Message{}, err
	}
	return Message{Kind: KindChannelVoice, Status: StatusNoteOn | channel, Channel: channel, D1: note, D2: velocity, NData: 2}, nil
}

// NoteOff builds a Note Off Channel Voice message.
func NoteOff(channel, note, velocity uint8) (Message, error) {
	if err := checkRange("channel", int(channel), 15); err != nil {
		return Message{}, err
	}
	if err := checkRange("note", int(note), 127); err != nil {
		return Message{}, err
	}
	if err := checkRange("velocity", int(velocity), 127); err != nil {
		return Message{}, err
	}
	return Message{Kind: KindChannelVoice, Status: StatusNoteOff | channel, Channel: channel, D1: note, D2: velocity, NData: 2}, nil
}

// ControlChange builds a Control Change message.
func ControlChange(channel, controller, value uint8) (Message, error) {
	if err := checkRange("channel", int(channel), 15); err != nil {
		return Message{}, err
	}
	if err := checkRange("controller", int(controller), 127); err != nil {
		return Message{}, err
	}
	if err := checkRange("value", int(value), 127); err != nil {
		return Message{}, err
	}
	return Message{Kind: KindChannelVoice, Status: StatusControlChange | channel, Channel: channel, D1: controller, D2: value, NData: 2}, nil
}

// ProgramChange builds a Program Change message.
func ProgramChange(channel, program uint8) (Message, error) {
	if err := checkRange("channel", int(channel), 15); err != nil {
		return Message{}, err
	}
	if err := checkRange("program", int(program), 127); err != nil {
		return Message{}, err
	}
	return Message{Kind: KindChannelVoice, Status: StatusProgramChange | channel, Channel: channel, D1: program, NData: 1}, nil
}

// ChannelPressure builds a Channel Pressure (Aftertouch) message.
func ChannelPressure(channel, pressure uint8) (Message, error) {
	if err := checkRange("channel", int(channel), 15); err != nil {
		return Message{}, err
	}
	if err := checkRange("pressure", int(pressure), 127); err != nil {
		return Message{}, err
	}
	return Message{Kind: KindChannelVoice, Status: StatusChannelPressure | channel, Channel: channel, D1: pressure, NData: 1}, nil
}

// PolyPressure builds a Polyphonic Key Pressure message.
func PolyPressure(channel, note, pressure uint8) (Message, error) {
	if err := checkRange("channel", int(channel), 15); err != nil {
		return Message{}, err
	}
	if err := checkRange("note", int(note), 127); err != nil {
		return Message{}, err
	}
	if err := checkRange("pressure", int(pressure), 127); err != nil {
		return Message{}, err
	}
	return Message{Kind: KindChannelVoice, Status: StatusPolyPressure | channel, Channel: channel, D1: note, D2: pressure, NData: 2}, nil
}

// PitchBend builds a Pitch Bend message from a 14-bit value, splitting
// it into LSB = value & 0x7F and MSB = (value >> 7) & 0x7F.
func PitchBend(channel uint8, value14 uint16) (Message, error) {
	if err := checkRange("channel", int(channel), 15); err != nil {
		return Message{}, err
	}
	if err := checkRange("value14", int(value14), 16383); err != nil {
		return Message{}, err
	}
	lsb := uint8(value14 & 0x7F)
	msb := uint8((value14 >> 7) & 0x7F)
	return Message{Kind: KindChannelVoice, Status: StatusPitchBend | channel, Channel: channel, D1: lsb, D2: msb, NData: 2}, nil
}

// SysEx builds a System Exclusive message. Every byte of payload must
// have its top bit clear.
func SysEx(payload []byte) (Message, error) {
	for i, b := range payload {
		if b&0x80 != 0 {
			return Message{}, &BuildError{Field: fmt.Sprintf("payload[%d]", i), Value: int(b)}
		}
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	return Message{Kind: KindSystemExclusive, Status: StatusSysExStart, Payload: buf}, nil
}

// PitchBend14 reconstructs the 14-bit value from a Pitch Bend message's
// LSB/MSB data bytes.
func PitchBend14(m Message) uint16 {
	return uint16(m.D1) | (uint16(m.D2) << 7)
}

// Serialize renders m as the wire bytes a MIDI 1.0 byte stream would
// carry, with the status byte always present (no running status —
// that optimization belongs to the transport, not the message
// contract, per spec.md §4.4).
func Serialize(m Message) []byte {
	switch m.Kind {
	case KindChannelVoice:
		out := make([]byte, 1+int(m.NData))
		out[0] = m.Status
		if m.NData >= 1 {
			out[1] = m.D1
		}
		if m.NData >= 2 {
			out[2] = m.D2
		}
		return out
	case KindSystemCommon:
		out := make([]byte, 1+int(m.NData))
		out[0] = m.Status
		if m.NData >= 1 {
			out[1] = m.D1
		}
		if m.NData >= 2 {
			out[2] = m.D2
		}
		return out
	case KindSystemRealTime:
		return []byte{m.Status}
	case KindSystemExclusive:
		out := make([]byte, 0, len(m.Payload)+2)
		out = append(out, StatusSysExStart)
		out = append(out, m.Payload...)
		out = append(out, StatusSysExEnd)
		return out
	default:
		return nil
	}
}
