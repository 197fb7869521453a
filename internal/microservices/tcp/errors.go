package tcp

import (
	"errors"
	"fmt"
)

var (
	// ErrNeedMoreData means the buffer holds less than one full frame.
	ErrNeedMoreData = errors.New("tcp: need more data")
	// ErrCorruptFrame means the frame header is structurally invalid.
	// A length-prefixed stream cannot be resynchronised after this, so the
	// connection is dropped.
	ErrCorruptFrame = errors.New("tcp: corrupt frame")
	// ErrFrameTooLarge means an outgoing event does not fit the frame limit.
	// Nothing is written when it is returned.
	ErrFrameTooLarge = errors.New("tcp: frame too large")

	ErrConnectionClosed = errors.New("tcp: connection closed")
	ErrBusFull          = errors.New("tcp: event bus full")
	ErrBusClosed        = errors.New("tcp: event bus closed")
	ErrServerStopped    = errors.New("tcp: server stopped")
)

// BindError is returned by NewServer when the listening endpoint cannot be bound.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("failed to bind TCP server on %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// SendError reports a failed delivery to one connection during a broadcast.
type SendError struct {
	ConnID string
	Err    error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send to client %s: %v", e.ConnID, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }
