// Package live provides the single event queue that every notification in the
// client is dispatched on, plus subscription handles and live values built on it.
package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrQueueClosed is returned when posting to a closed queue.
var ErrQueueClosed = errors.New("event queue closed")

// Queue runs posted callbacks one at a time in the order they were posted.
// Post never blocks the caller.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []func()
	closed bool
	done   chan struct{}
	logger *slog.Logger
}

// NewQueue starts a queue with its dispatch goroutine.
func NewQueue(logger *slog.Logger) *Queue {
	q := &Queue{
		done:   make(chan struct{}),
		logger: logger,
	}
	q.cond = sync.NewCond(&q.mu)
	go q.run()
	return q
}

// Post schedules fn. It reports false if the queue is closed.
func (q *Queue) Post(fn func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, fn)
	q.cond.Signal()
	return true
}

// Sync blocks until every callback posted before the call has run.
// It must not be called from a callback running on the queue.
func (q *Queue) Sync(ctx context.Context) error {
	reached := make(chan struct{})
	if !q.Post(func() { close(reached) }) {
		return ErrQueueClosed
	}
	select {
	case <-reached:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains pending callbacks and stops the dispatch goroutine.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
	<-q.done
}

func (q *Queue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for len(q.items) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.items) == 0 {
			q.mu.Unlock()
			return
		}
		fn := q.items[0]
		q.items[0] = nil
		q.items = q.items[1:]
		q.mu.Unlock()

		q.invoke(fn)
	}
}

func (q *Queue) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil && q.logger != nil {
			q.logger.Error("event callback panicked", "panic", fmt.Sprint(r))
		}
	}()
	fn()
}
