package worker

import (
	"time"

	"github.com/okian/arena/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(logger logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithRetry sets how many times a write is attempted and the first backoff.
func WithRetry(attempts int, initial time.Duration) Option {
	return func(w *InMemoryWorker) {
		if attempts > 0 {
			w.attempts = uint64(attempts)
		}
		if initial > 0 {
			w.backoff = initial
		}
	}
}
