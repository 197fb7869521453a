package tcp

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"
)

// TCPClient is the single-connection peer of TCPServer.
type TCPClient struct {
	conn *ClientConnection

	mu            sync.RWMutex
	connectedAt   time.Time
	lastHeartbeat time.Time
}

// ConnectionStats is a point-in-time view of a client's counters.
type ConnectionStats struct {
	ConnectedAt      time.Time
	Uptime           time.Duration
	LastHeartbeat    time.Time
	MessagesSent     uint64
	MessagesReceived uint64
}

// NewClient wraps an already-connected stream.
func NewClient(conn net.Conn, opts ...Option) *TCPClient {
	o := buildOptions(opts)
	o.readTimeout = 0 // a client waits on the server indefinitely
	return &TCPClient{
		conn:        newClientConnection(conn, o),
		connectedAt: time.Now(),
	}
}

// Dial connects to a TCPServer at addr.
func Dial(ctx context.Context, addr string, opts ...Option) (*TCPClient, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connection failed: %w", err)
	}
	return NewClient(conn, opts...), nil
}

// SendEvent writes ev to the server.
func (c *TCPClient) SendEvent(ev Event) error {
	return c.conn.Send(ev)
}

// Listen blocks, calling onEvent for each event from the server, until the
// connection ends. It returns nil on a clean close.
func (c *TCPClient) Listen(onEvent func(Event)) error {
	return c.conn.Listen(onEvent)
}

// StartHeartbeat sends a heartbeat event every interval until ctx ends or a
// send fails.
func (c *TCPClient) StartHeartbeat(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			ev, err := NewHeartbeatEvent(now)
			if err != nil {
				return
			}
			if err := c.SendEvent(ev); err != nil {
				c.conn.logger.Warn("heartbeat_failed",
					"client_id", c.conn.ID,
					"error", err.Error(),
				)
				return
			}
			c.mu.Lock()
			c.lastHeartbeat = now
			c.mu.Unlock()
		}
	}
}

func (c *TCPClient) IsConnected() bool {
	return c.conn.IsConnected()
}

// ID is the local identifier of the underlying connection.
func (c *TCPClient) ID() string {
	return c.conn.ID
}

func (c *TCPClient) Stats() ConnectionStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ConnectionStats{
		ConnectedAt:      c.connectedAt,
		Uptime:           time.Since(c.connectedAt),
		LastHeartbeat:    c.lastHeartbeat,
		MessagesSent:     c.conn.Sent(),
		MessagesReceived: c.conn.Received(),
	}
}

// Close closes the connection, ending any running Listen.
func (c *TCPClient) Close() {
	c.conn.Close()
}
