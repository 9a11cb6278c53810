// Package relay fans bus messages out to live client connections over a
// single shared subscription.
package relay

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/okian/arena/internal/adapters/bus"
	"github.com/okian/arena/internal/domain/event"
	"github.com/okian/arena/pkg/logger"
	"github.com/okian/arena/pkg/metrics"
)

// Default hub configuration constants.
const (
	defaultRetryInitial     = 100 * time.Millisecond
	defaultRetryMax         = 5 * time.Second
	defaultRetryAttempts    = 8
	defaultSendTimeout      = 10 * time.Second
	defaultSubscribeTimeout = 5 * time.Second
	teardownTimeout         = 5 * time.Second
)

// Handle identifies a registered connection.
type Handle string

// Conn is one client connection. Send should queue or write quickly; a
// returned error evicts the connection.
type Conn interface {
	Send(ctx context.Context, payload []byte) error
	Close() error
}

// Stats is a point-in-time view of the hub.
type Stats struct {
	Connections int  `json:"connections"`
	Sessions    int  `json:"sessions"`
	Degraded    bool `json:"degraded"`
}

// session is one relay goroutine and the subscription it owns.
type session struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Hub keeps the live connection set and the shared subscription. The
// subscription exists only while at least one connection is registered.
type Hub struct {
	bus              bus.Bus
	channels         []string
	logger           logger.Logger
	retryInitial     time.Duration
	retryMax         time.Duration
	retryAttempts    int
	sendTimeout      time.Duration
	subscribeTimeout time.Duration

	// mu guards conns, current, lastDone and closed. The 0->1 and 1->0
	// transitions of conns happen under it together with the session change.
	mu       sync.Mutex
	conns    map[Handle]Conn
	current  *session
	lastDone chan struct{}
	closed   bool

	subscribed atomic.Int32
	degraded   atomic.Bool
}

// NewHub creates a hub relaying the event channels of b.
func NewHub(b bus.Bus, opts ...Option) *Hub {
	h := &Hub{
		bus:              b,
		channels:         event.Channels(),
		logger:           logger.Get().Named("relay"),
		retryInitial:     defaultRetryInitial,
		retryMax:         defaultRetryMax,
		retryAttempts:    defaultRetryAttempts,
		sendTimeout:      defaultSendTimeout,
		subscribeTimeout: defaultSubscribeTimeout,
		conns:            make(map[Handle]Conn),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register adds conn to the live set. The first connection starts a relay
// session. conn receives messages relayed after it was added.
func (h *Hub) Register(conn Conn) (Handle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return "", ErrHubClosed
	}
	id := Handle(uuid.NewString())
	h.conns[id] = conn
	if len(h.conns) == 1 {
		h.startSessionLocked()
	}
	metrics.UpdateRelayConnections(len(h.conns))
	return id, nil
}

// Unregister removes a connection. Unknown handles are ignored. Removing the
// last connection cancels the session; the subscription is torn down in the
// background.
func (h *Hub) Unregister(id Handle) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[id]; !ok {
		return
	}
	delete(h.conns, id)
	if len(h.conns) == 0 {
		h.stopSessionLocked()
	}
	metrics.UpdateRelayConnections(len(h.conns))
}

// Degraded reports whether the hub has failed to hold a subscription for
// longer than its retry budget.
func (h *Hub) Degraded() bool {
	return h.degraded.Load()
}

// Stats returns the current connection and subscription counts.
func (h *Hub) Stats() Stats {
	h.mu.Lock()
	n := len(h.conns)
	h.mu.Unlock()
	return Stats{
		Connections: n,
		Sessions:    int(h.subscribed.Load()),
		Degraded:    h.degraded.Load(),
	}
}

// Close stops relaying, closes every connection and waits for the
// subscription to be torn down or ctx to expire.
func (h *Hub) Close(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	conns := h.conns
	h.conns = make(map[Handle]Conn)
	h.stopSessionLocked()
	done := h.lastDone
	h.mu.Unlock()

	metrics.UpdateRelayConnections(0)
	for _, c := range conns {
		_ = c.Close()
	}
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) startSessionLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{cancel: cancel, done: make(chan struct{})}
	prev := h.lastDone
	h.current = s
	h.lastDone = s.done
	go h.run(ctx, s, prev)
}

func (h *Hub) stopSessionLocked() {
	if h.current == nil {
		return
	}
	h.current.cancel()
	h.current = nil
}

// run owns one session. It waits for the previous session to release its
// subscription, then subscribes and relays until cancelled, resubscribing
// after bus failures. Subscriptions that are lost before relaying anything
// back off exponentially and count toward the degraded budget.
func (h *Hub) run(ctx context.Context, s *session, prev <-chan struct{}) {
	defer close(s.done)
	if prev != nil {
		<-prev
	}
	h.logger.Debug(ctx, "relay session started")
	defer h.logger.Debug(context.Background(), "relay session stopped")

	wait := h.newBackOff()
	losses := 0
	for ctx.Err() == nil {
		sub, err := h.subscribe(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				h.logger.Error(ctx, "relay session ended without a subscription", logger.Error(err))
			}
			break
		}
		h.setSubscribed(1)
		if losses < h.retryAttempts {
			h.setDegraded(false)
		}

		start := time.Now()
		relayed, err := h.relay(ctx, s, sub)
		h.teardown(sub)
		if ctx.Err() != nil {
			break
		}
		if relayed > 0 || time.Since(start) >= h.retryMax {
			losses = 0
			wait.Reset()
			h.setDegraded(false)
		}
		losses++
		metrics.RecordRelaySubscriptionError()
		h.logger.Warn(ctx, "bus subscription failed, resubscribing",
			logger.Int("consecutive_losses", losses),
			logger.Error(err),
		)
		if losses == h.retryAttempts {
			h.logger.Error(ctx, "relay degraded: bus subscription keeps dropping",
				logger.Int("losses", losses),
			)
			h.setDegraded(true)
		}
		select {
		case <-ctx.Done():
		case <-time.After(wait.NextBackOff()):
		}
	}
	h.setDegraded(false)
}

// teardown closes a subscription. It runs on the session goroutine so a
// successor session never subscribes before this one is released.
func (h *Hub) teardown(sub bus.Subscription) {
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	if err := sub.Close(ctx); err != nil {
		h.logger.Debug(ctx, "closing bus subscription", logger.Error(err))
	}
	h.setSubscribed(-1)
}
