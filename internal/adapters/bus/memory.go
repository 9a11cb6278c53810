package bus

import (
	"context"
	"fmt"
	"sync"
)

// MemoryBus is an in-process Bus. It backs single-node deployments without
// Redis and lets tests observe subscription counts and inject outages.
type MemoryBus struct {
	mu          sync.RWMutex
	subs        map[*memorySubscription]struct{}
	buffer      int
	closed      bool
	unavailable bool
	active      int
	peak        int
	opened      int
}

// NewMemory creates an in-process bus.
func NewMemory(opts ...MemoryOption) *MemoryBus {
	b := &MemoryBus{
		subs:   make(map[*memorySubscription]struct{}),
		buffer: defaultMemoryBuffer,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish delivers payload to every subscription on channel, blocking while
// a subscriber's buffer is full.
func (b *MemoryBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrClosed
	}
	if b.unavailable {
		return fmt.Errorf("%w: %s: bus unavailable", ErrPublishFailed, channel)
	}
	msg := Message{Channel: channel, Payload: append([]byte(nil), payload...)}
	for s := range b.subs {
		if _, ok := s.channels[channel]; !ok {
			continue
		}
		select {
		case s.ch <- msg:
		case <-s.done:
		case <-s.lost:
		case <-ctx.Done():
			return fmt.Errorf("%w: %s: %w", ErrPublishFailed, channel, ctx.Err())
		}
	}
	return nil
}

// Subscribe opens a subscription on channels.
func (b *MemoryBus) Subscribe(_ context.Context, channels ...string) (Subscription, error) {
	if len(channels) == 0 {
		return nil, ErrNoChannels
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}
	if b.unavailable {
		return nil, fmt.Errorf("%w: bus unavailable", ErrSubscriptionUnavailable)
	}
	s := &memorySubscription{
		bus:      b,
		channels: make(map[string]struct{}, len(channels)),
		ch:       make(chan Message, b.buffer),
		done:     make(chan struct{}),
		lost:     make(chan struct{}),
	}
	for _, c := range channels {
		s.channels[c] = struct{}{}
	}
	b.subs[s] = struct{}{}
	b.opened++
	b.active++
	if b.active > b.peak {
		b.peak = b.active
	}
	return s, nil
}

// Close closes the bus and every open subscription.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	subs := make([]*memorySubscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.closed = true
	b.mu.Unlock()

	for _, s := range subs {
		_ = s.Close(context.Background())
	}
	return nil
}

// Disconnect breaks every open subscription as a lost connection would.
func (b *MemoryBus) Disconnect() {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		s.lostOnce.Do(func() { close(s.lost) })
	}
}

// SetAvailable toggles whether Subscribe and Publish succeed.
func (b *MemoryBus) SetAvailable(available bool) {
	b.mu.Lock()
	b.unavailable = !available
	b.mu.Unlock()
}

// Active returns the number of open subscriptions.
func (b *MemoryBus) Active() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.active
}

// Peak returns the highest number of simultaneously open subscriptions.
func (b *MemoryBus) Peak() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.peak
}

// Opened returns how many subscriptions were ever opened.
func (b *MemoryBus) Opened() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.opened
}

func (b *MemoryBus) remove(s *memorySubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s]; ok {
		delete(b.subs, s)
		b.active--
	}
}

type memorySubscription struct {
	bus       *MemoryBus
	channels  map[string]struct{}
	ch        chan Message
	done      chan struct{}
	lost      chan struct{}
	closeOnce sync.Once
	lostOnce  sync.Once
}

func (s *memorySubscription) Receive(ctx context.Context) (Message, error) {
	// A closed subscription never hands out buffered messages. Buffered
	// messages are still drained before a loss is reported.
	select {
	case <-s.done:
		return Message{}, ErrSubscriptionClosed
	default:
	}
	select {
	case m := <-s.ch:
		return m, nil
	default:
	}
	select {
	case m := <-s.ch:
		return m, nil
	case <-s.done:
		return Message{}, ErrSubscriptionClosed
	case <-s.lost:
		return Message{}, fmt.Errorf("%w: connection reset", ErrSubscriptionLost)
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (s *memorySubscription) Close(_ context.Context) error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.bus.remove(s)
	})
	return nil
}
