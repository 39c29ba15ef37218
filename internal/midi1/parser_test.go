package midi1

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseAll(p *Parser, bytes []byte) []Message {
	var out []Message
	for _, b := range bytes {
		if msg, ok := p.Parse(b); ok {
			out = append(out, msg)
		}
	}
	return out
}

func TestRunningStatus(t *testing.T) {
	p := NewParser(0)
	msgs := parseAll(p, []byte{0x90, 0x3C, 0x64, 0x40, 0x70})
	require.Len(t, msgs, 2)
	assert.Equal(t, Message{Kind: KindChannelVoice, Status: 0x90, Channel: 0, D1: 0x3C, D2: 0x64, NData: 2}, msgs[0])
	assert.Equal(t, Message{Kind: KindChannelVoice, Status: 0x90, Channel: 0, D1: 0x40, D2: 0x70, NData: 2}, msgs[1])
}

func TestRealTimeInterleave(t *testing.T) {
	p := NewParser(0)
	msgs := parseAll(p, []byte{0x90, 0x3C, 0xF8, 0x64})
	require.Len(t, msgs, 2)
	assert.Equal(t, KindSystemRealTime, msgs[0].Kind)
	assert.Equal(t, uint8(0xF8), msgs[0].Status)
	assert.Equal(t, Message{Kind: KindChannelVoice, Status: 0x90, Channel: 0, D1: 0x3C, D2: 0x64, NData: 2}, msgs[1])
}

func TestSysExFraming(t *testing.T) {
	p := NewParser(0)
	msgs := parseAll(p, []byte{0xF0, 0x01, 0x02, 0x03, 0xF7})
	require.Len(t, msgs, 1)
	assert.Equal(t, KindSystemExclusive, msgs[0].Kind)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, msgs[0].Payload)
}

func TestSysExRestartWhileInSysex(t *testing.T) {
	p := NewParser(0)
	// A second 0xF0 while already in SysEx silently restarts the
	// buffer without emitting the first (truncated) payload — the
	// reference behavior spec.md §9 adopts.
	msgs := parseAll(p, []byte{0xF0, 0x01, 0x02, 0xF0, 0x09, 0xF7})
	require.Len(t, msgs, 1)
	assert.Equal(t, []byte{0x09}, msgs[0].Payload)
}

func TestChannelStatusTerminatesSysexWithoutEmission(t *testing.T) {
	p := NewParser(0)
	msgs := parseAll(p, []byte{0xF0, 0x01, 0x02, 0x90, 0x3C, 0x64})
	require.Len(t, msgs, 1)
	assert.Equal(t, KindChannelVoice, msgs[0].Kind)
}

func TestSysExOverflowDropsExcessWithoutTerminating(t *testing.T) {
	p := NewParser(2)
	bytes := []byte{0xF0, 0x01, 0x02, 0x03, 0x04, 0xF7}
	msgs := parseAll(p, bytes)
	require.Len(t, msgs, 1)
	assert.Equal(t, []byte{0x01, 0x02}, msgs[0].Payload)
	assert.Equal(t, uint64(2), p.SysexOverflows)
}

func TestUndefinedStatusCountedAndIgnored(t *testing.T) {
	p := NewParser(0)
	msgs := parseAll(p, []byte{0xF4, 0xF5, 0xF9, 0xFD})
	assert.Len(t, msgs, 0)
	assert.Equal(t, uint64(4), p.ParseErrors)
}

func TestSystemCommonSingleByte(t *testing.T) {
	p := NewParser(0)
	msgs := parseAll(p, []byte{0xF6})
	require.Len(t, msgs, 1)
	assert.Equal(t, Message{Kind: KindSystemCommon, Status: 0xF6}, msgs[0])
}

func TestSongPositionTwoBytes(t *testing.T) {
	p := NewParser(0)
	msgs := parseAll(p, []byte{0xF2, 0x10, 0x20})
	require.Len(t, msgs, 1)
	assert.Equal(t, uint8(0x10), msgs[0].D1)
	assert.Equal(t, uint8(0x20), msgs[0].D2)
}

func TestDataByteInIdleIgnored(t *testing.T) {
	p := NewParser(0)
	msgs := parseAll(p, []byte{0x3C, 0x64})
	assert.Len(t, msgs, 0)
}

func TestProgramChangeSingleDataByte(t *testing.T) {
	p := NewParser(0)
	msgs := parseAll(p, []byte{0xC5, 0x0A})
	require.Len(t, msgs, 1)
	assert.Equal(t, uint8(0x0A), msgs[0].D1)
	assert.Equal(t, uint8(1), msgs[0].NData)
}

func TestRoundTripSerializeNoRunningStatus(t *testing.T) {
	in := []byte{0x90, 0x3C, 0x64, 0x80, 0x3C, 0x00}
	p := NewParser(0)
	var out []byte
	for _, b := range in {
		if msg, ok := p.Parse(b); ok {
			out = append(out, Serialize(msg)...)
		}
	}
	assert.Equal(t, in, out)
}
