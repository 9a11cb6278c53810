// Package publisher turns domain occurrences into envelopes on the bus.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/arena/internal/domain/event"
	"github.com/okian/arena/pkg/logger"
	"github.com/okian/arena/pkg/metrics"
)

// ErrPublish wraps every failure to hand an event to the bus.
var ErrPublish = errors.New("publish event")

// Bus is the publishing half of the event bus.
type Bus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Option applies a configuration option to the Publisher.
type Option func(*Publisher)

// WithClock overrides the time source stamped on envelopes.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		if now != nil {
			p.now = now
		}
	}
}

// WithLogger sets a custom logger for the publisher.
func WithLogger(l logger.Logger) Option {
	return func(p *Publisher) {
		if l != nil {
			p.logger = l
		}
	}
}

// Publisher publishes benchmark, battle and model events. Each call makes
// exactly one bus publish and keeps no other state.
type Publisher struct {
	bus    Bus
	now    func() time.Time
	logger logger.Logger
}

// New creates a publisher on b.
func New(b Bus, opts ...Option) *Publisher {
	p := &Publisher{
		bus:    b,
		now:    time.Now,
		logger: logger.Get().Named("publisher"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PublishBenchmarkRecorded publishes on the benchmarks channel.
func (p *Publisher) PublishBenchmarkRecorded(ctx context.Context, e event.BenchmarkRecorded) error {
	return p.publish(ctx, e)
}

// PublishBattleResolved publishes on the battles channel.
func (p *Publisher) PublishBattleResolved(ctx context.Context, e event.BattleResolved) error {
	return p.publish(ctx, e)
}

// PublishModelRegistered publishes on the models channel.
func (p *Publisher) PublishModelRegistered(ctx context.Context, e event.ModelRegistered) error {
	return p.publish(ctx, e)
}

func (p *Publisher) publish(ctx context.Context, payload event.Payload) error {
	env := event.New(payload, p.now())
	channel, err := env.Channel()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPublish, err)
	}
	raw, err := event.Encode(env)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPublish, err)
	}
	if err := p.bus.Publish(ctx, channel, raw); err != nil {
		metrics.RecordEventPublishError(channel)
		return fmt.Errorf("%w: %s on %s: %w", ErrPublish, env.Kind, channel, err)
	}
	metrics.RecordEventPublished(channel)
	p.logger.Debug(ctx, "event published",
		logger.String("kind", string(env.Kind)),
		logger.String("channel", channel),
		logger.String("event_id", env.ID),
	)
	return nil
}
