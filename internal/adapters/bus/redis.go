package bus

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBus implements Bus on Redis pub/sub.
type RedisBus struct {
	client     *redis.Client
	readWindow time.Duration
}

// NewRedis creates a bus for the given redis:// URL. The connection is
// established lazily on first use.
func NewRedis(url string, opts ...RedisOption) (*RedisBus, error) {
	ro, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisFromClient(redis.NewClient(ro), opts...), nil
}

// NewRedisFromClient wraps an existing client. The bus owns the client.
func NewRedisFromClient(client *redis.Client, opts ...RedisOption) *RedisBus {
	b := &RedisBus{client: client, readWindow: defaultReadWindow}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Ping checks that Redis is reachable.
func (b *RedisBus) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Publish sends payload to every subscriber of channel.
func (b *RedisBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		if errors.Is(err, redis.ErrClosed) {
			return ErrClosed
		}
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, channel, err)
	}
	return nil
}

// Subscribe opens a subscription and waits until Redis has confirmed every
// channel.
func (b *RedisBus) Subscribe(ctx context.Context, channels ...string) (Subscription, error) {
	if len(channels) == 0 {
		return nil, ErrNoChannels
	}
	ps := b.client.Subscribe(ctx, channels...)
	for confirmed := 0; confirmed < len(channels); {
		msg, err := ps.Receive(ctx)
		if err != nil {
			_ = ps.Close()
			if errors.Is(err, redis.ErrClosed) {
				return nil, ErrClosed
			}
			return nil, fmt.Errorf("%w: %w", ErrSubscriptionUnavailable, err)
		}
		if _, ok := msg.(*redis.Subscription); ok {
			confirmed++
		}
	}
	return &redisSubscription{ps: ps, channels: channels, readWindow: b.readWindow}, nil
}

// Close closes the underlying client.
func (b *RedisBus) Close() error {
	return b.client.Close()
}

type redisSubscription struct {
	ps         *redis.PubSub
	channels   []string
	readWindow time.Duration
}

// Receive reads in bounded windows so a cancelled ctx is noticed even while
// the connection is idle.
func (s *redisSubscription) Receive(ctx context.Context) (Message, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Message{}, err
		}
		msg, err := s.ps.ReceiveTimeout(ctx, s.readWindow)
		if err != nil {
			if ctx.Err() != nil {
				return Message{}, ctx.Err()
			}
			if isTimeout(err) {
				continue
			}
			if errors.Is(err, redis.ErrClosed) {
				return Message{}, ErrSubscriptionClosed
			}
			return Message{}, fmt.Errorf("%w: %w", ErrSubscriptionLost, err)
		}
		switch m := msg.(type) {
		case *redis.Message:
			return Message{Channel: m.Channel, Payload: []byte(m.Payload)}, nil
		default:
			// subscription confirmations and pongs
		}
	}
}

func (s *redisSubscription) Close(ctx context.Context) error {
	uerr := s.ps.Unsubscribe(ctx, s.channels...)
	cerr := s.ps.Close()
	return errors.Join(uerr, cerr)
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
