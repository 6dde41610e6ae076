package bus

import (
	"context"
	"sync/atomic"

	"main/pkg/exception"
)

// Queue is a bounded event queue feeding one consumer loop. Publishing is
// safe from multiple goroutines; consumption is single-threaded so the
// handler sees a totally ordered stream.
type Queue[T any] struct {
	ch     chan T
	closed atomic.Bool
}

// NewQueue allocates a queue with the given capacity.
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue[T]{ch: make(chan T, capacity)}
}

// TryPublish enqueues an event without blocking. Market-data ticks use
// this path: dropping a tick is recoverable, stalling the feed is not.
func (q *Queue[T]) TryPublish(e T) error {
	if q.closed.Load() {
		return exception.ErrFeedQueueClosed
	}
	select {
	case q.ch <- e:
		return nil
	default:
		return exception.ErrFeedQueueFull
	}
}

// Publish enqueues an event, blocking until there is room. Execution
// reports use this path: they must not be dropped.
func (q *Queue[T]) Publish(ctx context.Context, e T) error {
	if q.closed.Load() {
		return exception.ErrFeedQueueClosed
	}
	select {
	case q.ch <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the queue from accepting new events.
func (q *Queue[T]) Close() {
	if q.closed.CompareAndSwap(false, true) {
		close(q.ch)
	}
}

// Run consumes events until the context is done or the queue is closed.
func (q *Queue[T]) Run(ctx context.Context, handler func(T)) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-q.ch:
			if !ok {
				return
			}
			handler(e)
		}
	}
}

// Events exposes the receive side for loops that must select over the
// queue together with timers. The channel closes when the queue closes.
func (q *Queue[T]) Events() <-chan T {
	return q.ch
}

// Len returns the number of queued events.
func (q *Queue[T]) Len() int {
	return len(q.ch)
}
