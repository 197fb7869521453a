package tcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

const maxAcceptBackoff = time.Second

type TCPServer struct {
	Addr string
	// resolved listening address, so ":0" binds report the real port

	Manager *ConnectionManager
	// registry of live connections, shared by the accept loop,
	// every receive goroutine and BroadcastEvent

	Bus *EventBus
	// inbound events from all connections, drained by ListenEvents

	listener net.Listener
	opts     *options
	logger   *slog.Logger

	ctx    context.Context // cancelled by Stop, unblocks publishers waiting on a full bus
	cancel context.CancelFunc

	quitChan chan struct{}
	// shutdown signal channel
	// when closed, all goroutines listening for this channel will initiate shutdown

	mu       sync.Mutex // guards stopped and wg.Add
	stopped  bool
	stopOnce sync.Once
	wg       sync.WaitGroup
	// wait group for connection handlers and the prune routine
}

// NewServer binds addr and returns a server ready to Start. No goroutines run
// until Start. A bind failure is returned as *BindError.
func NewServer(addr string, opts ...Option) (*TCPServer, error) {
	o := buildOptions(opts)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, &BindError{Addr: addr, Err: err}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &TCPServer{
		Addr:     listener.Addr().String(),
		Manager:  newConnectionManager(o),
		Bus:      newEventBus(o),
		listener: listener,
		opts:     o,
		logger:   o.logger,
		ctx:      ctx,
		cancel:   cancel,
		quitChan: make(chan struct{}),
	}, nil
}

// Start runs the accept loop. It returns nil once Stop is called, or an error
// if the listener fails for any other reason. Individual accept errors are
// logged and retried with backoff.
func (s *TCPServer) Start() error {
	s.logger.Info("tcp_server_started",
		"addr", s.Addr,
	)

	if s.opts.pruneInterval > 0 {
		s.spawn(func() {
			s.Manager.StartPruneRoutine(s.opts.pruneInterval, s.quitChan)
		})
	}

	var backoff time.Duration
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.quitChan:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("listener closed: %w", err)
			}

			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else {
				backoff = min(backoff*2, maxAcceptBackoff)
			}
			s.logger.Warn("accept_failed",
				"error", err.Error(),
				"retry_in", backoff.String(),
			)
			select {
			case <-time.After(backoff):
			case <-s.quitChan:
				return nil
			}
			continue
		}
		backoff = 0

		if !s.spawn(func() { s.handleConnection(conn) }) {
			conn.Close()
			return nil
		}
	}
}

// spawn runs fn on a tracked goroutine unless the server is stopping.
func (s *TCPServer) spawn(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
	return true
}

// handleConnection owns one peer from registration until its stream ends.
func (s *TCPServer) handleConnection(conn net.Conn) {
	client := newClientConnection(conn, s.opts)
	s.Manager.AddConnection(client)
	defer s.Manager.RemoveConnection(client)

	// Stop may have swept the registry before we registered
	if s.ctx.Err() != nil {
		client.Close()
		return
	}

	err := client.Listen(func(ev Event) {
		if err := s.Bus.Publish(s.ctx, ev); err != nil {
			s.logger.Debug("event_publish_aborted",
				"client_id", client.ID,
				"error", err.Error(),
			)
		}
	})
	if err != nil {
		s.logger.Warn("client_connection_failed",
			"client_id", client.ID,
			"error", err.Error(),
		)
	}
}

// BroadcastEvent sends ev to every registered connection and returns once all
// sends were attempted. See ConnectionManager.Broadcast. After Stop it
// returns ErrServerStopped.
func (s *TCPServer) BroadcastEvent(ev Event) (int, error) {
	select {
	case <-s.quitChan:
		return 0, ErrServerStopped
	default:
	}
	return s.Manager.Broadcast(ev)
}

// ListenEvents runs a bus dispatcher calling handler for each inbound event.
// It blocks until ctx ends (returning ctx.Err()) or the server stops (returning nil).
func (s *TCPServer) ListenEvents(ctx context.Context, handler func(Event)) error {
	err := s.Bus.Dispatch(ctx, func(ev Event) {
		if s.logger.Enabled(ctx, slog.LevelDebug) {
			s.logger.Debug("event_dispatched",
				"opcode", ev.Opcode,
				"variant", VariantName(Classify(ev)),
				"size", len(ev.Payload),
			)
		}
		handler(ev)
	})
	if errors.Is(err, ErrBusClosed) {
		return nil
	}
	return err
}

// ConnectionIDs lists the currently registered connections.
func (s *TCPServer) ConnectionIDs() []string {
	return s.Manager.ConnectionIDs()
}

// Stop stops accepting, closes every connection, stops the bus and waits for
// all connection goroutines to finish. Safe to call more than once.
func (s *TCPServer) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()

		close(s.quitChan) // signal all goroutines to shutdown
		s.cancel()
		s.listener.Close()
		s.Bus.Close()
		s.Manager.CloseAllConnections()
		s.wg.Wait()

		s.logger.Info("tcp_server_stopped",
			"addr", s.Addr,
		)
	})
}
