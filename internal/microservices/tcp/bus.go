package tcp

import (
	"context"
	"log/slog"
	"sync"
)

// EventBus merges inbound events from every connection into one bounded queue.
//
// Full-queue policy: Publish blocks until space frees up, its context ends or
// the bus closes, so a slow dispatcher throttles all producers. TryPublish is
// the non-blocking alternative and reports ErrBusFull instead.
//
// Each event goes to exactly one dispatcher; running several Dispatch loops
// gives competing consumers, not fan-out.
type EventBus struct {
	queue     chan Event
	done      chan struct{}
	closeOnce sync.Once
	logger    *slog.Logger
	metrics   *Metrics
}

func NewEventBus(capacity int, opts ...Option) *EventBus {
	o := buildOptions(opts)
	if capacity <= 0 {
		capacity = DefaultBusCapacity
	}
	o.busCapacity = capacity
	return newEventBus(o)
}

func newEventBus(o *options) *EventBus {
	return &EventBus{
		queue:   make(chan Event, o.busCapacity),
		done:    make(chan struct{}),
		logger:  o.logger,
		metrics: o.metrics,
	}
}

// Publish enqueues ev, blocking while the queue is full.
func (b *EventBus) Publish(ctx context.Context, ev Event) error {
	select {
	case <-b.done:
		return ErrBusClosed
	default:
	}

	select {
	case b.queue <- ev:
		b.metrics.setBusDepth(len(b.queue))
		return nil
	case <-b.done:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPublish enqueues ev without blocking.
func (b *EventBus) TryPublish(ev Event) error {
	select {
	case <-b.done:
		return ErrBusClosed
	default:
	}

	select {
	case b.queue <- ev:
		b.metrics.setBusDepth(len(b.queue))
		return nil
	default:
		return ErrBusFull
	}
}

// Dispatch drains the queue in enqueue order, calling handler once per event,
// until ctx ends (returns ctx.Err()) or the bus is closed (returns ErrBusClosed).
// A panicking handler is logged and does not stop the loop.
func (b *EventBus) Dispatch(ctx context.Context, handler func(Event)) error {
	for {
		select {
		case ev := <-b.queue:
			b.metrics.setBusDepth(len(b.queue))
			b.deliver(handler, ev)
		case <-b.done:
			return ErrBusClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (b *EventBus) deliver(handler func(Event), ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event_handler_panic",
				"opcode", ev.Opcode,
				"panic", r,
			)
		}
	}()
	b.metrics.eventDispatched()
	handler(ev)
}

// Len is the number of queued events.
func (b *EventBus) Len() int { return len(b.queue) }

// Cap is the queue capacity.
func (b *EventBus) Cap() int { return cap(b.queue) }

// Close stops the bus. Events still queued may be discarded; pending and future
// Publish calls return ErrBusClosed. Safe to call more than once.
func (b *EventBus) Close() {
	b.closeOnce.Do(func() { close(b.done) })
}
