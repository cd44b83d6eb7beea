// Package queue hands task ids from the submitter to the workers.
//
// The queue is a bounded in-memory channel. It is a delivery hint, not the
// source of truth: every id it carries is already persisted as a PENDING
// task, so an id refused or dropped here is offered again by the watchdog.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/okian/checkin/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 10000
)

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a task id to the queue.
	// Returns false if the queue is full or closed and the id was not enqueued.
	Enqueue(ctx context.Context, id string) bool

	// Dequeue returns a channel that will receive ids as they become available.
	// The channel will be closed when the queue is closed.
	Dequeue(ctx context.Context) <-chan string

	// Len returns the current number of queued ids.
	Len(ctx context.Context) int

	// Close gracefully shuts down the queue.
	// After closing, no new ids can be enqueued and the dequeue channel will be closed.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	ids      chan string
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
	}

	for _, opt := range opts {
		opt(q)
	}

	q.ids = make(chan string, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0.0)

	return q
}

// Enqueue adds a task id to the queue without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, id string) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueRejected("closed")
		return false
	}

	select {
	case q.ids <- id:
		metrics.RecordQueueEnqueue()
		q.updateGauges()
		return true
	case <-ctx.Done():
		metrics.RecordQueueRejected("context_cancelled")
		return false
	default:
		metrics.RecordQueueRejected("queue_full")
		metrics.RecordErrorByComponent("queue", "queue_full")
		return false
	}
}

// Dequeue returns a channel that will receive ids as they become available.
// An id taken off the queue while ctx is being cancelled is dropped; its task
// stays PENDING.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case id, ok := <-q.ids:
				if !ok {
					return
				}
				select {
				case out <- id:
					metrics.RecordQueueDequeue()
					q.updateGauges()
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// Len returns the current number of queued ids.
func (q *InMemoryQueue) Len(_ context.Context) int {
	q.updateGauges()
	return len(q.ids)
}

func (q *InMemoryQueue) updateGauges() {
	size := len(q.ids)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
}

// Close gracefully shuts down the queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	close(q.ids)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

// WaitEmpty blocks until the queue drains or ctx is done.
func (q *InMemoryQueue) WaitEmpty(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for len(q.ids) > 0 {
		select {
		case <-ctx.Done():
			return ErrNotDrained
		case <-ticker.C:
		}
	}
	return nil
}
