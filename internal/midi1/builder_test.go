package midi1

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoteOnVelocityZeroIsNoteOff(t *testing.T) {
	m, err := NoteOn(0, 60, 0)
	require.NoError(t, err)
	assert.False(t, IsNoteOn(m))
	assert.True(t, IsNoteOff(m))
}

func TestNoteOnRangeChecks(t *testing.T) {
	_, err := NoteOn(16, 60, 100)
	assert.Error(t, err)
	_, err = NoteOn(0, 128, 100)
	assert.Error(t, err)
	_, err = NoteOn(0, 60, 128)
	assert.Error(t, err)
}

func TestPitchBendSplit(t *testing.T) {
	m, err := PitchBend(0, 0x1234)
	require.NoError(t, err)
	assert.Equal(t, uint8(0x34), m.D1)
	assert.Equal(t, uint8(0x24), m.D2)
	assert.Equal(t, uint16(0x1234), PitchBend14(m))
}

func TestSysExRejectsHighBit(t *testing.T) {
	_, err := SysEx([]byte{0x01, 0x80})
	assert.Error(t, err)
}

func TestSerializeRoundTripsThroughParser(t *testing.T) {
	m, err := NoteOn(3, 64, 100)
	require.NoError(t, err)
	bytes := Serialize(m)
	assert.Equal(t, []byte{0x93, 0x40, 0x64}, bytes)

	p := NewParser(0)
	var got Message
	for _, b := range bytes {
		if msg, ok := p.Parse(b); ok {
			got = msg
		}
	}
	assert.Equal(t, m, got)
}

func TestSerializeProgramChangeTwoBytes(t *testing.T) {
	m, err := ProgramChange(0, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xC0, 0x05}, Serialize(m))
}
