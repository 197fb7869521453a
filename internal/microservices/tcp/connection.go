package tcp

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	MaxDeadlineDuration = 5 * time.Minute  // default idle read timeout
	WriteWait           = 10 * time.Second // default max time to write one frame
	readChunkSize       = 4096
)

// ClientConnection is one peer's framed stream. The read side (Listen) and
// the write side (Send) are synchronised independently, so a Send can proceed
// while Listen is blocked waiting for bytes.
type ClientConnection struct {
	ID   string // unique identifier = key in the manager's map
	conn net.Conn

	writeMu sync.Mutex // serialises whole frames on the write side

	buf []byte // accumulation buffer, touched only by Listen

	alive     atomic.Bool
	closeOnce sync.Once

	limiter      *rate.Limiter // nil when inbound limiting is off
	readTimeout  time.Duration
	writeTimeout time.Duration
	maxFrameSize int
	logger       *slog.Logger
	metrics      *Metrics

	sent     atomic.Uint64
	received atomic.Uint64
}

// NewClientConnection wraps conn. The connection is live until its read side
// ends or a write fails; either closes it.
func NewClientConnection(conn net.Conn, opts ...Option) *ClientConnection {
	return newClientConnection(conn, buildOptions(opts))
}

func newClientConnection(conn net.Conn, o *options) *ClientConnection {
	c := &ClientConnection{
		ID:           uuid.NewString(),
		conn:         conn,
		readTimeout:  o.readTimeout,
		writeTimeout: o.writeTimeout,
		maxFrameSize: o.maxFrameSize,
		logger:       o.logger,
		metrics:      o.metrics,
	}
	if o.rateLimit > 0 {
		// the limiter auto depletes tokens when Allow is called and refills over time
		c.limiter = rate.NewLimiter(o.rateLimit, o.rateBurst)
	}
	c.alive.Store(true)
	return c
}

// Listen runs the receive loop until the stream ends, invoking onEvent once per
// decoded frame in arrival order. A clean end of stream returns nil; a corrupt
// frame or read failure returns the error. The connection is closed on return.
func (c *ClientConnection) Listen(onEvent func(Event)) error {
	defer c.Close()

	c.logger.Info("client_started_listening",
		"client_id", c.ID,
		"remote_addr", c.RemoteAddr(),
	)

	chunk := make([]byte, readChunkSize)
	for {
		if c.readTimeout > 0 {
			if err := c.conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
				if isClosedConnError(err) {
					return nil
				}
				return fmt.Errorf("failed to set read deadline: %w", err)
			}
		}

		n, err := c.conn.Read(chunk)
		if n > 0 {
			c.buf = append(c.buf, chunk[:n]...)
			if derr := c.drain(onEvent); derr != nil {
				c.metrics.frameCorrupt()
				c.logger.Warn("frame_corrupt",
					"client_id", c.ID,
					"error", derr.Error(),
				)
				return derr
			}
		}
		if err == nil {
			continue
		}

		if errors.Is(err, io.EOF) {
			c.logger.Info("client_disconnected",
				"client_id", c.ID,
			)
			return nil
		}
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			c.logger.Warn("client_read_timeout",
				"client_id", c.ID,
			)
			return fmt.Errorf("read timeout: %w", err)
		}
		if isClosedConnError(err) {
			return nil // closed locally, expected during shutdown
		}
		c.logger.Error("client_read_error",
			"client_id", c.ID,
			"error", err,
		)
		return fmt.Errorf("failed to read from %s: %w", c.ID, err)
	}
}

// drain extracts every complete frame from the buffer and drops the consumed prefix.
func (c *ClientConnection) drain(onEvent func(Event)) error {
	off := 0
	for {
		ev, n, err := Decode(c.buf[off:], c.maxFrameSize)
		if errors.Is(err, ErrNeedMoreData) {
			break
		}
		if err != nil {
			return err
		}
		off += n
		c.received.Add(1)
		c.metrics.eventReceived(ev.Opcode)

		if c.limiter != nil && !c.limiter.Allow() {
			c.metrics.eventDropped("rate_limited")
			c.logger.Warn("rate_limit_exceeded",
				"client_id", c.ID,
				"opcode", ev.Opcode,
			)
			continue
		}
		onEvent(ev)
	}

	if off > 0 {
		rest := copy(c.buf, c.buf[off:])
		c.buf = c.buf[:rest]
	}
	return nil
}

// Send writes ev as one frame. Concurrent calls never interleave bytes.
// An event too large for the frame limit is rejected with ErrFrameTooLarge
// before anything is written. A failed write closes the connection, since the
// peer cannot resynchronise after a partial frame.
func (c *ClientConnection) Send(ev Event) error {
	if err := checkFrameSize(ev, c.maxFrameSize); err != nil {
		return err
	}
	return c.writeFrame(Encode(ev))
}

func (c *ClientConnection) writeFrame(frame []byte) error {
	if !c.alive.Load() {
		return ErrConnectionClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	// a writer queued behind a failed one must not follow a torn frame
	if !c.alive.Load() {
		return ErrConnectionClosed
	}

	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			c.Close()
			return fmt.Errorf("failed to set write deadline: %w", err)
		}
	}
	for len(frame) > 0 {
		n, err := c.conn.Write(frame)
		if err != nil {
			c.Close()
			c.logger.Warn("client_write_failed",
				"client_id", c.ID,
				"error", err.Error(),
			)
			return fmt.Errorf("failed to write frame: %w", err)
		}
		frame = frame[n:]
	}
	c.sent.Add(1)
	return nil
}

// IsConnected reports whether no read or write on this connection has failed yet.
func (c *ClientConnection) IsConnected() bool {
	return c.alive.Load()
}

// Close marks the connection dead and closes the stream, which also ends a
// blocked Listen. Safe to call more than once.
func (c *ClientConnection) Close() {
	c.closeOnce.Do(func() {
		c.alive.Store(false)
		c.conn.Close()
	})
}

func (c *ClientConnection) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// Sent and Received count frames written and decoded on this connection.
func (c *ClientConnection) Sent() uint64     { return c.sent.Load() }
func (c *ClientConnection) Received() uint64 { return c.received.Load() }

// isClosedConnError matches errors returned after the local side closed the socket.
// On Windows: "wsarecv: An established connection was aborted by the software in your host machine."
// On Linux: "use of closed network connection"
func isClosedConnError(err error) bool {
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "closed network connection") ||
		strings.Contains(msg, "connection was aborted") ||
		strings.Contains(msg, "forcibly closed")
}
