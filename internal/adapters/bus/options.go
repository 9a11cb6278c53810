package bus

import "time"

const (
	defaultReadWindow   = time.Second
	defaultMemoryBuffer = 256
)

// RedisOption applies a configuration option to the RedisBus.
type RedisOption func(*RedisBus)

// WithReadWindow bounds each blocking read on a subscription. Cancellation
// of a Receive call is observed at the latest after one window.
func WithReadWindow(d time.Duration) RedisOption {
	return func(b *RedisBus) {
		if d > 0 {
			b.readWindow = d
		}
	}
}

// MemoryOption applies a configuration option to the MemoryBus.
type MemoryOption func(*MemoryBus)

// WithSubscriptionBuffer sets the per-subscription message buffer.
func WithSubscriptionBuffer(size int) MemoryOption {
	return func(b *MemoryBus) {
		if size > 0 {
			b.buffer = size
		}
	}
}
