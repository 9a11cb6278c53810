package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/okian/arena/internal/adapters/bus"
	"github.com/okian/arena/pkg/logger"
	"github.com/okian/arena/pkg/metrics"
)

// subscribe opens the shared subscription, retrying with exponential
// backoff until it succeeds or ctx is cancelled.
func (h *Hub) subscribe(ctx context.Context) (bus.Subscription, error) {
	b := h.newBackOff()

	var (
		sub      bus.Subscription
		failures int
	)
	op := func() error {
		sctx, cancel := context.WithTimeout(ctx, h.subscribeTimeout)
		defer cancel()

		s, err := h.bus.Subscribe(sctx, h.channels...)
		if err == nil {
			sub = s
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if errors.Is(err, bus.ErrClosed) {
			return backoff.Permanent(err)
		}
		failures++
		metrics.RecordRelaySubscriptionError()
		h.logger.Warn(ctx, "subscribe failed",
			logger.Int("attempt", failures),
			logger.Error(err),
		)
		if failures == h.retryAttempts {
			h.logger.Error(ctx, "relay degraded: bus subscription unavailable",
				logger.Int("attempts", failures),
			)
			h.setDegraded(true)
		}
		return err
	}

	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("%w: %w", bus.ErrSubscriptionUnavailable, err)
	}
	if failures > 0 {
		h.logger.Info(ctx, "bus subscription resumed", logger.Int("failed_attempts", failures))
	}
	return sub, nil
}

// newBackOff returns an unbounded exponential schedule between retryInitial
// and retryMax.
func (h *Hub) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = h.retryInitial
	b.MaxInterval = h.retryMax
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// relay delivers every message from sub to the live set until ctx is
// cancelled or the subscription fails. It returns the number of messages
// relayed.
func (h *Hub) relay(ctx context.Context, s *session, sub bus.Subscription) (int, error) {
	n := 0
	for {
		msg, err := sub.Receive(ctx)
		if err != nil {
			return n, err
		}
		h.broadcast(ctx, s, msg)
		n++
	}
}

type target struct {
	id   Handle
	conn Conn
}

// broadcast sends msg verbatim to the connections live at this moment. A
// failed send evicts only that connection.
func (h *Hub) broadcast(ctx context.Context, s *session, msg bus.Message) {
	start := time.Now()

	h.mu.Lock()
	targets := make([]target, 0, len(h.conns))
	for id, c := range h.conns {
		targets = append(targets, target{id: id, conn: c})
	}
	h.mu.Unlock()

	metrics.RecordRelayMessage(msg.Channel)
	for _, t := range targets {
		if ctx.Err() != nil {
			return
		}
		if err := h.send(ctx, t.conn, msg.Payload); err != nil {
			metrics.RecordRelayDeliveryFailure()
			h.evict(ctx, s, t, err)
		}
	}
	metrics.RecordRelayBroadcastLatency(float64(time.Since(start).Microseconds()) / 1000)
}

func (h *Hub) send(ctx context.Context, c Conn, payload []byte) error {
	sctx, cancel := context.WithTimeout(ctx, h.sendTimeout)
	defer cancel()
	if err := c.Send(sctx, payload); err != nil {
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	return nil
}

// evict drops a connection after a failed delivery. It is a no-op when the
// connection was already unregistered.
func (h *Hub) evict(ctx context.Context, s *session, t target, cause error) {
	h.mu.Lock()
	_, ok := h.conns[t.id]
	if ok {
		delete(h.conns, t.id)
		if len(h.conns) == 0 && h.current == s {
			h.stopSessionLocked()
		}
		metrics.UpdateRelayConnections(len(h.conns))
	}
	h.mu.Unlock()
	if !ok {
		return
	}

	metrics.RecordRelayEviction()
	h.logger.Info(ctx, "evicted connection", logger.String("handle", string(t.id)), logger.Error(cause))
	if err := t.conn.Close(); err != nil {
		h.logger.Debug(ctx, "closing evicted connection", logger.Error(err))
	}
}

func (h *Hub) setSubscribed(delta int32) {
	metrics.UpdateRelaySessions(int(h.subscribed.Add(delta)))
}

func (h *Hub) setDegraded(v bool) {
	if h.degraded.Swap(v) != v {
		metrics.UpdateRelayDegraded(v)
	}
}
