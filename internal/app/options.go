package service

import (
	"github.com/okian/arena/internal/adapters/repository"
	"github.com/okian/arena/internal/adapters/series"
	"github.com/okian/arena/internal/domain/battle"
	"github.com/okian/arena/internal/domain/dedupe"
	"github.com/okian/arena/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the relational store.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithSeries sets the time-series store fed by the worker pool.
func WithSeries(store series.Store) Option {
	return func(s *Service) {
		s.series = store
	}
}

// WithPublisher sets the event publisher.
func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// WithRelay sets the relay reported by GetStats and Degraded.
func WithRelay(r Relay) Option {
	return func(s *Service) {
		s.relay = r
	}
}

// WithResolver replaces the battle engine.
func WithResolver(r battle.Resolver) Option {
	return func(s *Service) {
		if r != nil {
			s.resolver = r
		}
	}
}

// WithBattleWeights sets the default comprehensive-mode weights of the
// built-in engine. It has no effect together with WithResolver.
func WithBattleWeights(weights map[string]float64) Option {
	return func(s *Service) {
		s.battleWeights = weights
	}
}

// WithDeduper replaces the submission id cache.
func WithDeduper(d dedupe.Deduper) Option {
	return func(s *Service) {
		if d != nil {
			s.deduper = d
		}
	}
}

// WithWorkerCount sets the number of series writer goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the series queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}
