// Package queue buffers series points between the request path and the
// series writers.
package queue

import (
	"context"
	"sync"

	"github.com/okian/arena/internal/adapters/series"
	"github.com/okian/arena/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 10000
	defaultBufferSize    = 10000
)

// Point is the payload flowing through the queue.
type Point = series.Point

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a point to the queue.
	// Returns false if the queue is full or closed and the point was dropped.
	Enqueue(ctx context.Context, p Point) bool

	// Dequeue returns a channel that will receive points as they become available.
	// The channel will be closed when the queue is closed.
	Dequeue(ctx context.Context) <-chan Point

	// Len returns the current number of queued points.
	Len(ctx context.Context) int

	// Cap returns the maximum number of queued points.
	Cap() int

	// Close gracefully shuts down the queue.
	// After closing, no new points can be enqueued and the dequeue channel will be closed.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	points     chan Point
	capacity   int
	bufferSize int
	mu         sync.RWMutex
	closed     bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity:   defaultQueueCapacity,
		bufferSize: defaultBufferSize,
	}

	for _, opt := range opts {
		opt(q)
	}
	if q.bufferSize < q.capacity {
		q.bufferSize = q.capacity
	}

	q.points = make(chan Point, q.bufferSize)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)

	return q
}

// Enqueue adds a point to the queue without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, p Point) bool { //nolint:gocritic // hugeParam: Point is passed by value for channel semantics
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError("closed")
		return false
	}

	if len(q.points) >= q.capacity {
		metrics.RecordQueueEnqueueError("capacity_exceeded")
		return false
	}

	select {
	case <-ctx.Done():
		metrics.RecordQueueEnqueueError("context_cancelled")
		return false
	default:
	}

	select {
	case q.points <- p:
		metrics.UpdateQueueSize(len(q.points))
		return true
	default:
		metrics.RecordQueueEnqueueError("queue_full")
		return false
	}
}

// Dequeue returns a channel that will receive points as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Point {
	out := make(chan Point)
	go func() {
		defer close(out)
		for p := range q.points {
			select {
			case out <- p:
				metrics.UpdateQueueSize(len(q.points))
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the current number of queued points.
func (q *InMemoryQueue) Len(ctx context.Context) int {
	size := len(q.points)
	metrics.UpdateQueueSize(size)
	return size
}

// Cap returns the configured capacity.
func (q *InMemoryQueue) Cap() int {
	return q.capacity
}

// Close gracefully shuts down the queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	close(q.points)
	q.closed = true

	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
