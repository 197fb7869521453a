package tcp

import (
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultBusCapacity   = 100
	DefaultPruneInterval = 30 * time.Second
)

type options struct {
	logger        *slog.Logger
	metrics       *Metrics
	presence      PresenceStore
	busCapacity   int
	maxFrameSize  int
	readTimeout   time.Duration // idle read deadline, 0 disables
	writeTimeout  time.Duration // per-frame write deadline, 0 disables
	rateLimit     rate.Limit    // inbound events/sec per connection, 0 disables
	rateBurst     int
	pruneInterval time.Duration
}

func defaultOptions() *options {
	return &options{
		logger:        slog.Default(),
		busCapacity:   DefaultBusCapacity,
		maxFrameSize:  MaxFrameSize,
		readTimeout:   MaxDeadlineDuration,
		writeTimeout:  WriteWait,
		pruneInterval: DefaultPruneInterval,
	}
}

func buildOptions(opts []Option) *options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Option configures a server, client or single connection. Options that do
// not apply to the value being built are ignored.
type Option func(*options)

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics records server activity into m.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithPresence mirrors registry membership into store.
func WithPresence(store PresenceStore) Option {
	return func(o *options) { o.presence = store }
}

// WithBusCapacity sets how many inbound events may wait for the dispatcher
// before publishers block.
func WithBusCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.busCapacity = n
		}
	}
}

func WithMaxFrameSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxFrameSize = n
		}
	}
}

// WithReadTimeout drops a connection that sends nothing for d. Zero disables it.
func WithReadTimeout(d time.Duration) Option {
	return func(o *options) { o.readTimeout = d }
}

// WithWriteTimeout bounds how long one frame write may block. Zero disables it.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) { o.writeTimeout = d }
}

// WithRateLimit caps inbound events per connection; events over the limit are dropped.
// A non-positive limit disables limiting.
func WithRateLimit(limit float64, burst int) Option {
	return func(o *options) {
		o.rateLimit = rate.Limit(limit)
		o.rateBurst = burst
	}
}

// WithPruneInterval sets how often the server sweeps dead connections. Zero disables the sweep.
func WithPruneInterval(d time.Duration) Option {
	return func(o *options) { o.pruneInterval = d }
}
