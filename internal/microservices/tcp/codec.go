package tcp

import (
	"encoding/binary"
	"fmt"
	"math"
)

// frame layout: [4-byte big-endian length][opcode: 1 byte][payload: length-1 bytes]
// length counts the opcode byte plus the payload, so a valid frame has length >= 1.

const (
	HeaderSize   = 4
	MaxFrameSize = 1024 * 1024 // 1MB, same ceiling the line protocol used
)

// Encode serializes ev into a single frame. The caller keeps the payload within
// the frame limit; see checkFrameSize.
func Encode(ev Event) []byte {
	frame := make([]byte, HeaderSize+1+len(ev.Payload))
	binary.BigEndian.PutUint32(frame, uint32(1+len(ev.Payload)))
	frame[HeaderSize] = ev.Opcode
	copy(frame[HeaderSize+1:], ev.Payload)
	return frame
}

// checkFrameSize returns ErrFrameTooLarge when ev encodes to a length above
// maxFrame or above what the 4-byte header can carry. A maxFrame <= 0 selects
// MaxFrameSize.
func checkFrameSize(ev Event, maxFrame int) error {
	if maxFrame <= 0 {
		maxFrame = MaxFrameSize
	}
	length := uint64(1 + len(ev.Payload))
	if length > uint64(maxFrame) || length > math.MaxUint32 {
		return fmt.Errorf("%w: length %d exceeds max %d", ErrFrameTooLarge, length, maxFrame)
	}
	return nil
}

// Decode extracts the first frame of buf.
//
// On success it returns the event and the number of bytes consumed. It returns
// ErrNeedMoreData when buf does not yet hold a full frame and ErrCorruptFrame
// when the declared length is zero or larger than maxFrame. A maxFrame <= 0
// selects MaxFrameSize. The returned payload never aliases buf.
func Decode(buf []byte, maxFrame int) (Event, int, error) {
	if maxFrame <= 0 {
		maxFrame = MaxFrameSize
	}
	if len(buf) < HeaderSize {
		return Event{}, 0, ErrNeedMoreData
	}

	length := binary.BigEndian.Uint32(buf)
	if length == 0 {
		return Event{}, 0, fmt.Errorf("%w: zero length", ErrCorruptFrame)
	}
	if uint64(length) > uint64(maxFrame) {
		return Event{}, 0, fmt.Errorf("%w: length %d exceeds max %d", ErrCorruptFrame, length, maxFrame)
	}

	total := HeaderSize + int(length)
	if len(buf) < total {
		return Event{}, 0, ErrNeedMoreData
	}

	ev := NewEvent(buf[HeaderSize], buf[HeaderSize+1:total])
	return ev, total, nil
}
