package relay_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/arena/internal/adapters/bus"
	"github.com/okian/arena/internal/adapters/relay"
	"github.com/okian/arena/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

// fakeConn records delivered payloads and can be told to fail like a
// socket the peer already closed.
type fakeConn struct {
	mu     sync.Mutex
	got    []string
	broken atomic.Bool
	closed atomic.Bool
}

func (c *fakeConn) Send(_ context.Context, payload []byte) error {
	if c.broken.Load() {
		return errors.New("broken pipe")
	}
	c.mu.Lock()
	c.got = append(c.got, string(payload))
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close() error {
	c.closed.Store(true)
	return nil
}

func (c *fakeConn) messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.got...)
}

func (c *fakeConn) count() int {
	return len(c.messages())
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

// flappingBus accepts every subscribe and drops the subscription on its
// first read.
type flappingBus struct {
	*bus.MemoryBus
	opened atomic.Int32
}

func (f *flappingBus) Subscribe(ctx context.Context, channels ...string) (bus.Subscription, error) {
	sub, err := f.MemoryBus.Subscribe(ctx, channels...)
	if err != nil {
		return nil, err
	}
	f.opened.Add(1)
	return droppedSubscription{sub}, nil
}

type droppedSubscription struct {
	bus.Subscription
}

func (droppedSubscription) Receive(context.Context) (bus.Message, error) {
	return bus.Message{}, fmt.Errorf("%w: connection reset", bus.ErrSubscriptionLost)
}

func setup() (*bus.MemoryBus, *relay.Hub) {
	_ = logger.InitWith(io.Discard, logger.FormatJSON)
	b := bus.NewMemory()
	h := relay.NewHub(b, relay.WithRetry(time.Millisecond, 5*time.Millisecond, 3))
	return b, h
}

func TestHubSubscriptionLifecycle(t *testing.T) {
	Convey("Given a hub on an in-memory bus", t, func() {
		b, h := setup()
		defer func() { _ = h.Close(context.Background()) }()

		Convey("When no connection is registered", func() {
			Convey("Then no subscription exists", func() {
				time.Sleep(20 * time.Millisecond)
				So(b.Active(), ShouldEqual, 0)
				So(h.Stats().Sessions, ShouldEqual, 0)
			})
		})

		Convey("When three connections register", func() {
			var handles []relay.Handle
			for i := 0; i < 3; i++ {
				id, err := h.Register(&fakeConn{})
				So(err, ShouldBeNil)
				handles = append(handles, id)
			}

			Convey("Then exactly one subscription is shared", func() {
				So(eventually(func() bool { return b.Active() == 1 }), ShouldBeTrue)
				So(h.Stats().Sessions, ShouldEqual, 1)
				So(h.Stats().Connections, ShouldEqual, 3)
				So(b.Opened(), ShouldEqual, 1)
			})

			Convey("Then the subscription lives until the last one leaves", func() {
				So(eventually(func() bool { return b.Active() == 1 }), ShouldBeTrue)
				h.Unregister(handles[0])
				h.Unregister(handles[1])
				time.Sleep(20 * time.Millisecond)
				So(b.Active(), ShouldEqual, 1)

				h.Unregister(handles[2])
				So(eventually(func() bool { return b.Active() == 0 }), ShouldBeTrue)
				So(eventually(func() bool { return h.Stats().Sessions == 0 }), ShouldBeTrue)
				So(h.Stats().Connections, ShouldEqual, 0)
			})

			Convey("Then unregistering twice or an unknown handle is a no-op", func() {
				h.Unregister(handles[0])
				h.Unregister(handles[0])
				h.Unregister("never-registered")
				So(h.Stats().Connections, ShouldEqual, 2)
				So(eventually(func() bool { return b.Active() == 1 }), ShouldBeTrue)
			})
		})

		Convey("When the last connection leaves and a new one arrives at once", func() {
			id, err := h.Register(&fakeConn{})
			So(err, ShouldBeNil)
			So(eventually(func() bool { return b.Active() == 1 }), ShouldBeTrue)

			h.Unregister(id)
			_, err = h.Register(&fakeConn{})
			So(err, ShouldBeNil)

			Convey("Then exactly one new subscription is created", func() {
				So(eventually(func() bool { return b.Opened() == 2 && b.Active() == 1 }), ShouldBeTrue)
				time.Sleep(20 * time.Millisecond)
				So(b.Opened(), ShouldEqual, 2)
				So(b.Peak(), ShouldEqual, 1)
			})
		})

		Convey("When connections churn concurrently", func() {
			var wg sync.WaitGroup
			for g := 0; g < 16; g++ {
				wg.Add(1)
				go func(seed int64) {
					defer wg.Done()
					r := rand.New(rand.NewSource(seed)) //nolint:gosec // test jitter
					for i := 0; i < 40; i++ {
						id, err := h.Register(&fakeConn{})
						if err != nil {
							return
						}
						time.Sleep(time.Duration(r.Intn(300)) * time.Microsecond)
						h.Unregister(id)
					}
				}(int64(g))
			}
			wg.Wait()

			Convey("Then there is never more than one subscription and none at rest", func() {
				So(eventually(func() bool { return b.Active() == 0 }), ShouldBeTrue)
				So(b.Peak(), ShouldBeLessThanOrEqualTo, 1)
				So(h.Stats().Connections, ShouldEqual, 0)
			})
		})
	})
}

func TestHubDelivery(t *testing.T) {
	Convey("Given a hub with subscribed connections", t, func() {
		b, h := setup()
		defer func() { _ = h.Close(context.Background()) }()
		ctx := context.Background()

		conns := []*fakeConn{{}, {}, {}}
		for _, c := range conns {
			_, err := h.Register(c)
			So(err, ShouldBeNil)
		}
		So(eventually(func() bool { return b.Active() == 1 }), ShouldBeTrue)

		Convey("When a message is published", func() {
			So(b.Publish(ctx, "battles", []byte(`{"type":"battle_result"}`)), ShouldBeNil)

			Convey("Then every live connection receives it exactly once, verbatim", func() {
				for _, c := range conns {
					So(eventually(func() bool { return c.count() == 1 }), ShouldBeTrue)
				}
				time.Sleep(20 * time.Millisecond)
				for _, c := range conns {
					So(c.messages(), ShouldResemble, []string{`{"type":"battle_result"}`})
				}
			})
		})

		Convey("When messages are published in order on one channel", func() {
			var want []string
			for i := 0; i < 50; i++ {
				p := fmt.Sprintf("m%d", i)
				want = append(want, p)
				So(b.Publish(ctx, "benchmarks", []byte(p)), ShouldBeNil)
			}

			Convey("Then each connection sees publish order", func() {
				for _, c := range conns {
					So(eventually(func() bool { return c.count() == 50 }), ShouldBeTrue)
					So(c.messages(), ShouldResemble, want)
				}
			})
		})

		Convey("When one connection drops without unregistering", func() {
			conns[1].broken.Store(true)
			So(b.Publish(ctx, "models", []byte("first")), ShouldBeNil)

			Convey("Then it is evicted on the failed delivery and the others still receive", func() {
				So(eventually(func() bool { return h.Stats().Connections == 2 }), ShouldBeTrue)
				So(conns[1].closed.Load(), ShouldBeTrue)
				So(eventually(func() bool { return conns[0].count() == 1 && conns[2].count() == 1 }), ShouldBeTrue)
				So(b.Active(), ShouldEqual, 1)

				So(b.Publish(ctx, "models", []byte("second")), ShouldBeNil)
				So(eventually(func() bool { return conns[2].count() == 2 }), ShouldBeTrue)
				So(conns[1].count(), ShouldEqual, 0)
			})
		})

		Convey("When every connection drops", func() {
			for _, c := range conns {
				c.broken.Store(true)
			}
			So(b.Publish(ctx, "models", []byte("lost")), ShouldBeNil)

			Convey("Then the emptied hub releases its subscription", func() {
				So(eventually(func() bool { return h.Stats().Connections == 0 }), ShouldBeTrue)
				So(eventually(func() bool { return b.Active() == 0 }), ShouldBeTrue)
			})
		})

		Convey("When a connection registers after a delivery", func() {
			So(b.Publish(ctx, "battles", []byte("early")), ShouldBeNil)
			So(eventually(func() bool { return conns[0].count() == 1 }), ShouldBeTrue)
			So(eventually(func() bool { return conns[2].count() == 1 }), ShouldBeTrue)

			late := &fakeConn{}
			_, err := h.Register(late)
			So(err, ShouldBeNil)
			So(b.Publish(ctx, "battles", []byte("late")), ShouldBeNil)

			Convey("Then it only receives later messages", func() {
				So(eventually(func() bool { return late.count() == 1 }), ShouldBeTrue)
				So(late.messages(), ShouldResemble, []string{"late"})
			})
		})
	})
}

func TestHubBusFailures(t *testing.T) {
	Convey("Given a hub whose bus fails", t, func() {
		b, h := setup()
		defer func() { _ = h.Close(context.Background()) }()
		ctx := context.Background()

		Convey("When the bus is unreachable at first connection", func() {
			b.SetAvailable(false)
			c := &fakeConn{}
			_, err := h.Register(c)
			So(err, ShouldBeNil)

			Convey("Then the hub becomes degraded after its retry budget", func() {
				So(eventually(h.Degraded), ShouldBeTrue)
				So(h.Stats().Degraded, ShouldBeTrue)
				So(b.Active(), ShouldEqual, 0)
			})

			Convey("Then it recovers once the bus is back", func() {
				So(eventually(h.Degraded), ShouldBeTrue)
				b.SetAvailable(true)
				So(eventually(func() bool { return !h.Degraded() && b.Active() == 1 }), ShouldBeTrue)

				So(b.Publish(ctx, "models", []byte("back")), ShouldBeNil)
				So(eventually(func() bool { return c.count() == 1 }), ShouldBeTrue)
			})
		})

		Convey("When an established subscription is lost", func() {
			c := &fakeConn{}
			_, err := h.Register(c)
			So(err, ShouldBeNil)
			So(eventually(func() bool { return b.Active() == 1 }), ShouldBeTrue)

			b.Disconnect()

			Convey("Then the hub resubscribes and keeps relaying", func() {
				So(eventually(func() bool { return b.Opened() == 2 && b.Active() == 1 }), ShouldBeTrue)
				So(b.Peak(), ShouldEqual, 1)
				So(b.Publish(ctx, "battles", []byte("after")), ShouldBeNil)
				So(eventually(func() bool { return c.count() == 1 }), ShouldBeTrue)
				So(h.Degraded(), ShouldBeFalse)
			})
		})
	})
}

func TestHubFlappingSubscription(t *testing.T) {
	Convey("Given a bus that drops every subscription right after it opens", t, func() {
		_ = logger.InitWith(io.Discard, logger.FormatJSON)
		fb := &flappingBus{MemoryBus: bus.NewMemory()}

		Convey("When a connection keeps the session alive", func() {
			h := relay.NewHub(fb, relay.WithRetry(time.Millisecond, 5*time.Millisecond, 3))
			defer func() { _ = h.Close(context.Background()) }()
			_, err := h.Register(&fakeConn{})
			So(err, ShouldBeNil)

			Convey("Then the hub reports degraded after its retry budget", func() {
				So(eventually(h.Degraded), ShouldBeTrue)
				So(fb.opened.Load(), ShouldBeGreaterThanOrEqualTo, 3)
			})
		})

		Convey("When resubscribing repeatedly", func() {
			h := relay.NewHub(fb, relay.WithRetry(20*time.Millisecond, time.Second, 100))
			defer func() { _ = h.Close(context.Background()) }()
			_, err := h.Register(&fakeConn{})
			So(err, ShouldBeNil)
			time.Sleep(300 * time.Millisecond)

			Convey("Then the wait grows between attempts", func() {
				// A fixed 20ms wait would reopen about 15 times in 300ms.
				So(fb.opened.Load(), ShouldBeLessThan, 10)
				So(fb.opened.Load(), ShouldBeGreaterThanOrEqualTo, 2)
			})
		})
	})
}

// stuckConn blocks every send until the delivery context ends.
type stuckConn struct {
	closed atomic.Bool
}

func (c *stuckConn) Send(ctx context.Context, _ []byte) error {
	<-ctx.Done()
	return ctx.Err()
}

func (c *stuckConn) Close() error {
	c.closed.Store(true)
	return nil
}

func TestHubSendTimeout(t *testing.T) {
	Convey("Given a hub with a short send timeout", t, func() {
		_ = logger.InitWith(io.Discard, logger.FormatJSON)
		b := bus.NewMemory()
		h := relay.NewHub(b,
			relay.WithRetry(time.Millisecond, 5*time.Millisecond, 3),
			relay.WithSubscribeTimeout(time.Second),
			relay.WithSendTimeout(20*time.Millisecond),
		)
		defer func() { _ = h.Close(context.Background()) }()
		ctx := context.Background()

		stuck, ok := &stuckConn{}, &fakeConn{}
		_, err := h.Register(stuck)
		So(err, ShouldBeNil)
		_, err = h.Register(ok)
		So(err, ShouldBeNil)
		So(eventually(func() bool { return b.Active() == 1 }), ShouldBeTrue)

		Convey("When a connection never accepts a message", func() {
			So(b.Publish(ctx, "models", []byte("m1")), ShouldBeNil)

			Convey("Then it is evicted once the send times out and the other still receives", func() {
				So(eventually(stuck.closed.Load), ShouldBeTrue)
				So(h.Stats().Connections, ShouldEqual, 1)
				So(eventually(func() bool { return ok.count() == 1 }), ShouldBeTrue)
			})
		})
	})
}

func TestHubClose(t *testing.T) {
	Convey("Given a hub with a connection", t, func() {
		b, h := setup()
		c := &fakeConn{}
		_, err := h.Register(c)
		So(err, ShouldBeNil)
		So(eventually(func() bool { return b.Active() == 1 }), ShouldBeTrue)

		Convey("When it is closed", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			So(h.Close(ctx), ShouldBeNil)

			Convey("Then connections are closed and the subscription released", func() {
				So(c.closed.Load(), ShouldBeTrue)
				So(b.Active(), ShouldEqual, 0)
				So(h.Stats().Connections, ShouldEqual, 0)
				So(h.Close(ctx), ShouldBeNil)
			})

			Convey("Then new registrations are refused", func() {
				_, err := h.Register(&fakeConn{})
				So(errors.Is(err, relay.ErrHubClosed), ShouldBeTrue)
			})
		})
	})
}
