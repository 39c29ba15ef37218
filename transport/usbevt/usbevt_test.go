package usbevt

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/w1nn3t0u-o7/midicube/internal/midi1"
	"github.com/w1nn3t0u-o7/midicube/internal/router"
	"github.com/w1nn3t0u-o7/midicube/internal/ump"
)

// loopback is an io.ReadWriter splitting reads and writes into distinct
// buffers, so a test can feed Run() input independently of inspecting
// what Send() wrote.
type loopback struct {
	in  *bytes.Buffer
	out *bytes.Buffer
}

func (l *loopback) Read(p []byte) (int, error)  { return l.in.Read(p) }
func (l *loopback) Write(p []byte) (int, error) { return l.out.Write(p) }

func TestSendFramesNoteOnAsEventPacket(t *testing.T) {
	lb := &loopback{in: &bytes.Buffer{}, out: &bytes.Buffer{}}
	tr := New(lb, 0, func(router.Packet) {})

	m, err := midi1.NoteOn(2, 0x3C, 0x64)
	require.NoError(t, err)

	err = tr.Send(context.Background(), router.Packet{Format: router.FormatMIDI1, MIDI1: m})
	require.NoError(t, err)

	got := lb.out.Bytes()
	require.Len(t, got, 4)
	assert.Equal(t, byte(0x09), got[0]) // cable 0 | CINNoteOn
	assert.Equal(t, byte(0x92), got[1]) // NoteOn | channel 2
	assert.Equal(t, byte(0x3C), got[2])
	assert.Equal(t, byte(0x64), got[3])
}

func TestSendRejectsUMP(t *testing.T) {
	lb := &loopback{in: &bytes.Buffer{}, out: &bytes.Buffer{}}
	tr := New(lb, 0, func(router.Packet) {})
	err := tr.Send(context.Background(), router.Packet{Format: router.FormatUMP})
	assert.Error(t, err)
}

func TestRunParsesEventPacketsIntoPackets(t *testing.T) {
	lb := &loopback{in: &bytes.Buffer{}, out: &bytes.Buffer{}}
	// cable 0, CINNoteOn (0x9), Note On ch0 60 100
	lb.in.Write([]byte{0x09, 0x90, 0x3C, 0x64})

	var got []router.Packet
	tr := New(lb, 0, func(p router.Packet) { got = append(got, p) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx) }()

	require.Eventually(t, func() bool { return len(got) == 1 }, time.Second, time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, router.USB, got[0].Source)
	assert.Equal(t, router.FormatMIDI1, got[0].Format)
	assert.True(t, midi1.IsNoteOn(got[0].MIDI1))
}

func TestUMPModeSendWritesOneWordPerPacket(t *testing.T) {
	lb := &loopback{in: &bytes.Buffer{}, out: &bytes.Buffer{}}
	tr := NewUMP(lb, func(router.Packet) {})

	p, err := ump.NoteOn2(0, 0, 60, 32768, 0, 0)
	require.NoError(t, err)

	err = tr.Send(context.Background(), router.Packet{Format: router.FormatUMP, UMP: p})
	require.NoError(t, err)

	got := lb.out.Bytes()
	require.Len(t, got, 8)
	assert.Equal(t, uint32(0x40903C00), binary.BigEndian.Uint32(got[0:4]))
	assert.Equal(t, uint32(0x80000000), binary.BigEndian.Uint32(got[4:8]))
}

func TestUMPModeSendRejectsMIDI1(t *testing.T) {
	lb := &loopback{in: &bytes.Buffer{}, out: &bytes.Buffer{}}
	tr := NewUMP(lb, func(router.Packet) {})
	err := tr.Send(context.Background(), router.Packet{Format: router.FormatMIDI1})
	assert.Error(t, err)
}

func TestUMPModeRunReassemblesMultiWordPacket(t *testing.T) {
	lb := &loopback{in: &bytes.Buffer{}, out: &bytes.Buffer{}}
	var wire [8]byte
	binary.BigEndian.PutUint32(wire[0:4], 0x40903C00)
	binary.BigEndian.PutUint32(wire[4:8], 0x80000000)
	lb.in.Write(wire[:])

	var got []router.Packet
	tr := NewUMP(lb, func(p router.Packet) { got = append(got, p) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx) }()

	require.Eventually(t, func() bool { return len(got) == 1 }, time.Second, time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, router.USB, got[0].Source)
	assert.Equal(t, router.FormatUMP, got[0].Format)
	assert.Equal(t, ump.MTMIDI2ChannelVoice, got[0].UMP.MessageType)
	assert.Equal(t, uint8(2), got[0].UMP.NumWords)
}

func TestRunSkipsUnhandledCIN(t *testing.T) {
	lb := &loopback{in: &bytes.Buffer{}, out: &bytes.Buffer{}}
	// CINCableEvent (0x1) has no length table entry and must be skipped,
	// not misinterpreted as MIDI bytes.
	lb.in.Write([]byte{0x01, 0xFF, 0xFF, 0xFF})
	lb.in.Write([]byte{0x09, 0x90, 0x3C, 0x64})

	var got []router.Packet
	tr := New(lb, 0, func(p router.Packet) { got = append(got, p) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx) }()

	require.Eventually(t, func() bool { return len(got) == 1 }, time.Second, time.Millisecond)
	cancel()
	<-done
}
