package tcp

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	cases := []Event{
		NewTextEvent(0, "hello"),
		NewTextEvent(1, "ping"),
		{Opcode: 255, Payload: []byte{0x00, 0xff, 0x10}},
		{Opcode: 7, Payload: []byte{}},
		{Opcode: 9, Payload: bytes.Repeat([]byte("x"), 70000)},
	}

	for _, ev := range cases {
		frame := Encode(ev)
		assert.Len(t, frame, HeaderSize+1+len(ev.Payload))

		got, n, err := Decode(frame, 0)
		require.NoError(t, err)
		assert.Equal(t, len(frame), n)
		assert.Equal(t, ev.Opcode, got.Opcode)
		assert.True(t, bytes.Equal(ev.Payload, got.Payload), "payload for opcode %d", ev.Opcode)
	}
}

func TestEncode_HeaderLayout(t *testing.T) {
	frame := Encode(NewTextEvent(3, "abc"))

	assert.Equal(t, uint32(4), binary.BigEndian.Uint32(frame[:HeaderSize]))
	assert.Equal(t, byte(3), frame[HeaderSize])
	assert.Equal(t, []byte("abc"), frame[HeaderSize+1:])
}

func TestDecode_SplitAtEveryBoundary(t *testing.T) {
	ev := NewTextEvent(1, "partial read robustness")
	frame := Encode(ev)

	for split := 0; split < len(frame); split++ {
		_, _, err := Decode(frame[:split], 0)
		require.ErrorIs(t, err, ErrNeedMoreData, "split at %d", split)

		buf := append([]byte(nil), frame[:split]...)
		buf = append(buf, frame[split:]...)
		got, n, err := Decode(buf, 0)
		require.NoError(t, err, "split at %d", split)
		assert.Equal(t, len(frame), n)
		assert.Equal(t, ev.Opcode, got.Opcode)
		assert.Equal(t, ev.Payload, got.Payload)
	}
}

func TestDecode_ByteAtATime(t *testing.T) {
	ev := NewTextEvent(2, "trickle")
	frame := Encode(ev)

	var buf []byte
	decoded := 0
	for _, b := range frame {
		buf = append(buf, b)
		got, n, err := Decode(buf, 0)
		if err != nil {
			require.ErrorIs(t, err, ErrNeedMoreData)
			continue
		}
		decoded++
		assert.Equal(t, ev.Payload, got.Payload)
		buf = buf[n:]
	}
	assert.Equal(t, 1, decoded)
	assert.Empty(t, buf)
}

func TestDecode_MultiFrameBuffer(t *testing.T) {
	e1 := NewTextEvent(0, "first")
	e2 := NewTextEvent(1, "second")
	buf := append(Encode(e1), Encode(e2)...)

	got1, n1, err := Decode(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, e1.Payload, got1.Payload)

	got2, n2, err := Decode(buf[n1:], 0)
	require.NoError(t, err)
	assert.Equal(t, e2.Opcode, got2.Opcode)
	assert.Equal(t, e2.Payload, got2.Payload)

	assert.Equal(t, len(buf), n1+n2, "no leftover bytes")
}

func TestDecode_PayloadDoesNotAliasBuffer(t *testing.T) {
	buf := Encode(NewTextEvent(1, "stable"))
	got, _, err := Decode(buf, 0)
	require.NoError(t, err)

	buf[HeaderSize+1] = 'X'
	assert.Equal(t, "stable", string(got.Payload))
}

func TestDecode_CorruptHeader(t *testing.T) {
	t.Run("ZeroLength", func(t *testing.T) {
		_, _, err := Decode([]byte{0, 0, 0, 0, 1, 2, 3}, 0)
		assert.ErrorIs(t, err, ErrCorruptFrame)
	})

	t.Run("LengthAboveMax", func(t *testing.T) {
		header := make([]byte, HeaderSize)
		binary.BigEndian.PutUint32(header, 65)
		// only the header is present: must not wait for the impossible body
		_, _, err := Decode(header, 64)
		assert.ErrorIs(t, err, ErrCorruptFrame)
	})

	t.Run("MaxUint32", func(t *testing.T) {
		_, _, err := Decode([]byte{0xff, 0xff, 0xff, 0xff}, 0)
		assert.ErrorIs(t, err, ErrCorruptFrame)
	})

	t.Run("LengthAtMaxIsAccepted", func(t *testing.T) {
		frame := Encode(Event{Opcode: 1, Payload: make([]byte, 63)})
		_, n, err := Decode(frame, 64)
		require.NoError(t, err)
		assert.Equal(t, len(frame), n)
	})
}

func TestCheckFrameSize(t *testing.T) {
	assert.NoError(t, checkFrameSize(NewEvent(1, make([]byte, 63)), 64))
	assert.ErrorIs(t, checkFrameSize(NewEvent(1, make([]byte, 64)), 64), ErrFrameTooLarge)

	// default limit matches what Decode accepts
	assert.NoError(t, checkFrameSize(NewEvent(1, make([]byte, MaxFrameSize-1)), 0))
	assert.ErrorIs(t, checkFrameSize(NewEvent(1, make([]byte, MaxFrameSize)), 0), ErrFrameTooLarge)
}
