// Package service composes the stores, the battle engine and the event
// publisher into the operations served by the HTTP API.
package service

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/okian/arena/internal/adapters/mq/queue"
	"github.com/okian/arena/internal/adapters/mq/worker"
	"github.com/okian/arena/internal/adapters/relay"
	"github.com/okian/arena/internal/adapters/repository"
	"github.com/okian/arena/internal/adapters/series"
	"github.com/okian/arena/internal/domain/battle"
	"github.com/okian/arena/internal/domain/dedupe"
	"github.com/okian/arena/internal/domain/event"
	"github.com/okian/arena/internal/domain/types"
	"github.com/okian/arena/pkg/logger"
)

const (
	defaultQueueSize   = 10_000
	defaultDedupeSize  = 50_000
	defaultDedupeTTL   = time.Hour
	stopTimeout        = 10 * time.Second
	anonymousOwner     = "anonymous"
	defaultSeriesLimit = 1000
)

// Publisher hands domain events to the bus.
type Publisher interface {
	PublishBenchmarkRecorded(ctx context.Context, e event.BenchmarkRecorded) error
	PublishBattleResolved(ctx context.Context, e event.BattleResolved) error
	PublishModelRegistered(ctx context.Context, e event.ModelRegistered) error
}

// Relay reports fan-out health.
type Relay interface {
	Stats() relay.Stats
}

// Service implements the API dependencies for the arena.
type Service struct {
	mu sync.RWMutex

	// Core components
	store     repository.Store
	series    series.Store
	publisher Publisher
	relay     Relay
	resolver  battle.Resolver
	deduper   dedupe.Deduper

	// Series write path, built on Start.
	queue *queue.InMemoryQueue
	pool  *worker.Pool

	// Configuration
	workerCount   int
	queueSize     int
	battleWeights map[string]float64

	started bool

	logger logger.Logger
}

// New constructs a Service. WithStore and WithSeries are required before Start.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount: runtime.NumCPU(),
		queueSize:   defaultQueueSize,
		logger:      logger.Get().Named("service"),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.resolver == nil {
		s.resolver = battle.NewEngine(battle.WithWeightsFromConfig(s.battleWeights))
	}
	if s.deduper == nil {
		s.deduper = dedupe.NewInMemoryDeduper(
			dedupe.WithMaxSize(defaultDedupeSize),
			dedupe.WithTTL(defaultDedupeTTL),
		)
	}
	if s.publisher == nil {
		s.publisher = nopPublisher{}
	}

	return s
}

// Start builds the series queue and starts its worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.store == nil || s.series == nil {
		return fmt.Errorf("%w: store and series are required", ErrNotStarted)
	}

	s.logger.Info(ctx, "starting arena service...")

	s.queue = queue.NewInMemoryQueue(
		queue.WithCapacity(s.queueSize),
		queue.WithBufferSize(s.queueSize),
	)
	s.pool = worker.NewPool(s.workerCount, s.queue, s.series)
	// The pool outlives the start request.
	s.pool.Start(context.WithoutCancel(ctx))

	s.started = true
	s.logger.Info(ctx, "arena service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.queueSize),
	)
	return nil
}

// Stop drains the series queue and stops the workers. Stores are owned by
// the caller and stay open.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	s.logger.Info(ctx, "stopping arena service...")
	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "series workers did not drain", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "arena service stopped")
}

// Started reports whether Start has run.
func (s *Service) Started() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// Degraded reports whether the relay has lost the bus.
func (s *Service) Degraded() bool {
	if s.relay == nil {
		return false
	}
	return s.relay.Stats().Degraded
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) (types.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st types.Stats
	if s.store != nil {
		c, err := s.store.Counts(ctx)
		if err != nil {
			return types.Stats{}, err
		}
		st.Models, st.Benchmarks, st.Battles = c.Models, c.Benchmarks, c.Battles
	}
	if s.relay != nil {
		rs := s.relay.Stats()
		st.Connections, st.Sessions, st.Degraded = rs.Connections, rs.Sessions, rs.Degraded
	}
	if s.started {
		st.QueueSize = s.queue.Len(ctx)
		st.QueueCap = s.queue.Cap()
		st.Workers = s.pool.Size()
	}
	return st, nil
}

// enqueue hands a point to the series workers. Points are dropped when the
// service is stopped or the queue is full.
func (s *Service) enqueue(ctx context.Context, p series.Point) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return false
	}
	return s.queue.Enqueue(ctx, p)
}

type nopPublisher struct{}

func (nopPublisher) PublishBenchmarkRecorded(context.Context, event.BenchmarkRecorded) error {
	return nil
}

func (nopPublisher) PublishBattleResolved(context.Context, event.BattleResolved) error { return nil }

func (nopPublisher) PublishModelRegistered(context.Context, event.ModelRegistered) error { return nil }
