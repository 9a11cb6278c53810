// Package worker drains the series queue into the series store.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/okian/arena/internal/adapters/mq/queue"
	"github.com/okian/arena/internal/adapters/series"
	"github.com/okian/arena/pkg/logger"
	"github.com/okian/arena/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 2 // multiplier for runtime.NumCPU()
	defaultWriteAttempts    = 3
	defaultWriteBackoff     = 50 * time.Millisecond
	metricsUpdateInterval   = 5 * time.Second
	poolShutdownTimeout     = 30 * time.Second
)

// Point is what workers read off the queue.
type Point = queue.Point

// Writer persists a point.
type Writer interface {
	Append(ctx context.Context, p series.Point) error
}

// Queue defines how workers receive points.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Point
}

// Worker writes queued points using the provided interfaces.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue closes.
	Run(ctx context.Context)

	// Shutdown stops the worker without draining the queue.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue    Queue
	writer   Writer
	name     string
	attempts uint64
	backoff  time.Duration

	processed *atomic.Int64

	// Shutdown control
	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, w Writer, opts ...Option) *InMemoryWorker {
	wk := &InMemoryWorker{
		queue:     q,
		writer:    w,
		name:      "worker",
		attempts:  defaultWriteAttempts,
		backoff:   defaultWriteBackoff,
		processed: &atomic.Int64{},
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		logger:    logger.Get().Named("worker"),
	}

	for _, opt := range opts {
		opt(wk)
	}

	if wk.name != "worker" {
		wk.logger = wk.logger.Named(wk.name)
	}

	return wk
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	points := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case p, ok := <-points:
			if !ok {
				return
			}
			if err := w.write(ctx, p); err != nil {
				w.logger.Error(ctx, "series write failed",
					logger.Int64("model_id", p.ModelID),
					logger.Int64("benchmark_id", p.BenchmarkID),
					logger.Error(err),
				)
			}
		}
	}
}

// Shutdown stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Processed returns how many points this worker has written.
func (w *InMemoryWorker) Processed() int64 {
	return w.processed.Load()
}

// write appends one point, retrying transient failures.
func (w *InMemoryWorker) write(ctx context.Context, p Point) error { //nolint:gocritic // hugeParam: Point is passed by value for channel semantics
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = w.backoff
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, w.attempts-1), ctx)

	err := backoff.Retry(func() error {
		err := w.writer.Append(ctx, p)
		if errors.Is(err, series.ErrInvalidPoint) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
	if err != nil {
		metrics.RecordSeriesWriteError()
		return err
	}

	metrics.RecordSeriesWrite()
	w.processed.Add(1)
	return nil
}

// Pool manages multiple workers.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue

	shutdown chan struct{}

	logger logger.Logger
}

// NewPool creates a new worker pool. Worker options apply to every worker.
func NewPool(workerCount int, q Queue, w Writer, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	pool := &Pool{
		workers:  make([]*InMemoryWorker, workerCount),
		queue:    q,
		shutdown: make(chan struct{}),
		logger:   logger.Get().Named("worker-pool"),
	}

	for i := 0; i < workerCount; i++ {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		pool.workers[i] = NewInMemoryWorker(q, w, wopts...)
	}

	metrics.UpdateWorkerCount(workerCount)

	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Processed returns how many points the pool has written.
func (p *Pool) Processed() int64 {
	var n int64
	for _, w := range p.workers {
		n += w.Processed()
	}
	return n
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}

	go p.startMetricsUpdater(ctx)
}

// startMetricsUpdater refreshes the queue gauge while the pool runs.
func (p *Pool) startMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case <-ticker.C:
			if l, ok := p.queue.(interface{ Len(context.Context) int }); ok {
				metrics.UpdateQueueSize(l.Len(ctx))
			}
		}
	}
}

// Shutdown closes the queue and lets workers drain it. Workers still busy when
// ctx (or the pool timeout) expires are stopped.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	select {
	case <-p.shutdown:
	default:
		close(p.shutdown)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var err error
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			_ = w.Shutdown(context.Background())
			err = fmt.Errorf("worker %d: %w", i, shutdownCtx.Err())
		}
	}

	metrics.UpdateWorkerCount(0)
	return err
}
