// Package memory provides queue implementations for local development.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jobgrid/feed-importer/internal/importer"
)

// Queue is a bounded in-memory queue with context-aware operations and
// delayed redelivery. Delivery is at-least-once: a nacked item comes
// back after its backoff delay until attempts run out.
type Queue struct {
	ch      chan importer.Delivery
	done    chan struct{}
	closeMu sync.Mutex
	closed  bool
	pending sync.WaitGroup
}

// NewQueue constructs a queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		ch:   make(chan importer.Delivery, capacity),
		done: make(chan struct{}),
	}
}

// Enqueue pushes a work item into the queue or returns if the context
// ends.
func (q *Queue) Enqueue(ctx context.Context, item importer.WorkItem, opts importer.EnqueueOptions) error {
	return q.push(ctx, importer.Delivery{Item: item, Attempt: 1, Options: opts})
}

// Dequeue pops the next delivery, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (importer.Delivery, error) {
	select {
	case <-ctx.Done():
		return importer.Delivery{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case <-q.done:
		return importer.Delivery{}, importer.ErrQueueClosed
	case d := <-q.ch:
		return d, nil
	}
}

// Nack schedules redelivery after the policy's backoff delay, or drops
// the item once attempts are exhausted.
func (q *Queue) Nack(_ context.Context, d importer.Delivery) (bool, error) {
	if d.Attempt >= d.Options.Attempts {
		return false, nil
	}

	next := d
	next.Attempt++
	delay := d.Options.Backoff.Delay(d.Attempt)

	q.pending.Add(1)
	go func() {
		defer q.pending.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-q.done:
		case <-timer.C:
			select {
			case <-q.done:
			case q.ch <- next:
			}
		}
	}()
	return true, nil
}

func (q *Queue) push(ctx context.Context, d importer.Delivery) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case <-q.done:
		return importer.ErrQueueClosed
	case q.ch <- d:
		return nil
	}
}

// Close stops delivery and releases any pending redelivery timers.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.done)
	q.closed = true
	q.pending.Wait()
}
