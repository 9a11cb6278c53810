package relay

import (
	"time"

	"github.com/okian/arena/pkg/logger"
)

// Option applies a configuration option to the Hub.
type Option func(*Hub)

// WithLogger sets a custom logger for the hub.
func WithLogger(l logger.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithRetry configures resubscription backoff. After attempts consecutive
// failures the hub reports itself degraded and keeps retrying at maxDelay.
func WithRetry(initial, maxDelay time.Duration, attempts int) Option {
	return func(h *Hub) {
		if initial > 0 && maxDelay >= initial {
			h.retryInitial = initial
			h.retryMax = maxDelay
		}
		if attempts > 0 {
			h.retryAttempts = attempts
		}
	}
}

// WithSendTimeout bounds a single delivery to one connection.
func WithSendTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.sendTimeout = d
		}
	}
}

// WithSubscribeTimeout bounds a single subscribe attempt.
func WithSubscribeTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.subscribeTimeout = d
		}
	}
}
