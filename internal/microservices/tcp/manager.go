package tcp

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

const presenceTimeout = 2 * time.Second

// ConnectionManager is the registry of live connections.
// Membership is guarded by mu; each connection guards its own writes, so a
// broadcast sends to all members in parallel without holding mu.
type ConnectionManager struct {
	clients  map[string]*ClientConnection // key: client ID
	mu       sync.RWMutex
	logger   *slog.Logger
	metrics  *Metrics
	presence PresenceStore // optional

	maxFrameSize int
}

func NewConnectionManager(opts ...Option) *ConnectionManager {
	return newConnectionManager(buildOptions(opts))
}

func newConnectionManager(o *options) *ConnectionManager {
	return &ConnectionManager{
		clients:  make(map[string]*ClientConnection),
		logger:   o.logger,
		metrics:  o.metrics,
		presence: o.presence,

		maxFrameSize: o.maxFrameSize,
	}
}

// AddConnection registers client. Registering the same connection twice is a no-op.
func (m *ConnectionManager) AddConnection(client *ClientConnection) {
	m.mu.Lock()
	if _, exists := m.clients[client.ID]; exists {
		m.mu.Unlock()
		return
	}
	m.clients[client.ID] = client
	m.mu.Unlock()

	m.metrics.connectionAdded()
	m.logger.Info("client_added",
		"client_id", client.ID,
	)

	if m.presence != nil {
		ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
		defer cancel()
		if err := m.presence.Join(ctx, client.ID, client.RemoteAddr()); err != nil {
			m.logger.Warn("presence_join_failed",
				"client_id", client.ID,
				"error", err.Error(),
			)
		}
	}
}

// RemoveConnection unregisters client. Removing an unknown connection is a no-op.
func (m *ConnectionManager) RemoveConnection(client *ClientConnection) {
	m.mu.Lock()
	if _, exists := m.clients[client.ID]; !exists {
		m.mu.Unlock()
		return
	}
	delete(m.clients, client.ID)
	m.mu.Unlock()

	m.metrics.connectionRemoved()
	m.logger.Info("client_removed",
		"client_id", client.ID,
	)

	if m.presence != nil {
		ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
		defer cancel()
		if err := m.presence.Leave(ctx, client.ID); err != nil {
			m.logger.Warn("presence_leave_failed",
				"client_id", client.ID,
				"error", err.Error(),
			)
		}
	}
}

// snapshot copies the current membership so callers can do I/O without holding mu.
func (m *ConnectionManager) snapshot() []*ClientConnection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	clients := make([]*ClientConnection, 0, len(m.clients))
	for _, c := range m.clients {
		clients = append(clients, c)
	}
	return clients
}

// Broadcast sends ev to every registered connection concurrently and returns
// once every send has been attempted. It reports how many sends were attempted
// and joins one *SendError per failed connection. Failed connections are
// removed from the registry. An event over the frame limit fails with
// ErrFrameTooLarge before any connection is touched.
func (m *ConnectionManager) Broadcast(ev Event) (int, error) {
	if err := checkFrameSize(ev, m.maxFrameSize); err != nil {
		m.logger.Warn("broadcast_rejected",
			"opcode", ev.Opcode,
			"error", err.Error(),
		)
		return 0, err
	}

	clients := m.snapshot()
	if len(clients) == 0 {
		return 0, nil
	}

	frame := Encode(ev) // encoded once, shared read-only by every sender
	errs := make([]error, len(clients))

	var wg sync.WaitGroup
	for i, c := range clients {
		wg.Add(1)
		go func(i int, c *ClientConnection) {
			defer wg.Done()
			if err := c.writeFrame(frame); err != nil {
				errs[i] = &SendError{ConnID: c.ID, Err: err}
			}
		}(i, c)
	}
	wg.Wait()

	for i, c := range clients {
		m.metrics.broadcastSend(errs[i])
		if errs[i] != nil {
			m.logger.Warn("failed_to_send_broadcast",
				"client_id", c.ID,
				"error", errs[i].Error(),
			)
			m.RemoveConnection(c)
		}
	}
	return len(clients), errors.Join(errs...)
}

// Prune removes connections that report disconnected and returns how many it removed.
func (m *ConnectionManager) Prune() int {
	removed := 0
	for _, c := range m.snapshot() {
		if !c.IsConnected() {
			m.RemoveConnection(c)
			removed++
		}
	}
	if removed > 0 {
		m.logger.Info("clients_pruned",
			"count", removed,
		)
	}
	return removed
}

// StartPruneRoutine sweeps dead connections every interval until done is closed.
func (m *ConnectionManager) StartPruneRoutine(interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Prune()
		case <-done:
			return
		}
	}
}

func (m *ConnectionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// ConnectionIDs returns the IDs of all registered connections, in no particular order.
func (m *ConnectionManager) ConnectionIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.clients))
	for id := range m.clients {
		ids = append(ids, id)
	}
	return ids
}

// CloseAllConnections closes and unregisters every connection.
func (m *ConnectionManager) CloseAllConnections() {
	for _, c := range m.snapshot() {
		c.Close()
		m.RemoveConnection(c)
		m.logger.Info("client_connection_closed",
			"client_id", c.ID,
		)
	}
}
