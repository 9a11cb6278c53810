package bus_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/arena/internal/adapters/bus"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMemoryBus(t *testing.T) {
	Convey("Given an in-memory bus", t, func() {
		b := bus.NewMemory(bus.WithSubscriptionBuffer(4))
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		Convey("When two subscriptions listen on different channels", func() {
			all, err := b.Subscribe(ctx, "benchmarks", "battles")
			So(err, ShouldBeNil)
			battles, err := b.Subscribe(ctx, "battles")
			So(err, ShouldBeNil)

			So(b.Publish(ctx, "benchmarks", []byte("b1")), ShouldBeNil)
			So(b.Publish(ctx, "battles", []byte("x1")), ShouldBeNil)
			So(b.Publish(ctx, "models", []byte("ignored")), ShouldBeNil)

			Convey("Then each receives only its channels in order", func() {
				m, err := all.Receive(ctx)
				So(err, ShouldBeNil)
				So(string(m.Payload), ShouldEqual, "b1")
				m, err = all.Receive(ctx)
				So(err, ShouldBeNil)
				So(m.Channel, ShouldEqual, "battles")

				m, err = battles.Receive(ctx)
				So(err, ShouldBeNil)
				So(string(m.Payload), ShouldEqual, "x1")
			})

			Convey("Then subscription counts are tracked", func() {
				So(b.Active(), ShouldEqual, 2)
				So(b.Peak(), ShouldEqual, 2)
				So(all.Close(ctx), ShouldBeNil)
				So(all.Close(ctx), ShouldBeNil)
				So(b.Active(), ShouldEqual, 1)
				So(b.Opened(), ShouldEqual, 2)

				_, err := all.Receive(ctx)
				So(errors.Is(err, bus.ErrSubscriptionClosed), ShouldBeTrue)
			})

			Convey("Then a closed subscription drops what it had buffered", func() {
				So(battles.Close(ctx), ShouldBeNil)
				for i := 0; i < 3; i++ {
					_, err := battles.Receive(ctx)
					So(errors.Is(err, bus.ErrSubscriptionClosed), ShouldBeTrue)
				}
			})
		})

		Convey("When the bus disconnects", func() {
			sub, err := b.Subscribe(ctx, "models")
			So(err, ShouldBeNil)
			So(b.Publish(ctx, "models", []byte("before")), ShouldBeNil)
			b.Disconnect()

			Convey("Then buffered messages drain before the loss is reported", func() {
				m, err := sub.Receive(ctx)
				So(err, ShouldBeNil)
				So(string(m.Payload), ShouldEqual, "before")
				_, err = sub.Receive(ctx)
				So(errors.Is(err, bus.ErrSubscriptionLost), ShouldBeTrue)
			})
		})

		Convey("When the bus is unavailable", func() {
			b.SetAvailable(false)

			Convey("Then subscribe and publish fail", func() {
				_, err := b.Subscribe(ctx, "models")
				So(errors.Is(err, bus.ErrSubscriptionUnavailable), ShouldBeTrue)
				So(errors.Is(b.Publish(ctx, "models", nil), bus.ErrPublishFailed), ShouldBeTrue)
			})

			Convey("Then it recovers when available again", func() {
				b.SetAvailable(true)
				_, err := b.Subscribe(ctx, "models")
				So(err, ShouldBeNil)
			})
		})

		Convey("When a receive is cancelled", func() {
			sub, err := b.Subscribe(ctx, "models")
			So(err, ShouldBeNil)
			rctx, rcancel := context.WithTimeout(ctx, 10*time.Millisecond)
			defer rcancel()

			_, err = sub.Receive(rctx)
			So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
		})

		Convey("When the bus is closed", func() {
			sub, err := b.Subscribe(ctx, "models")
			So(err, ShouldBeNil)
			So(b.Close(), ShouldBeNil)

			Convey("Then subscriptions end and new calls fail", func() {
				_, err := sub.Receive(ctx)
				So(errors.Is(err, bus.ErrSubscriptionClosed), ShouldBeTrue)
				_, err = b.Subscribe(ctx, "models")
				So(errors.Is(err, bus.ErrClosed), ShouldBeTrue)
				So(errors.Is(b.Publish(ctx, "models", nil), bus.ErrClosed), ShouldBeTrue)
				So(b.Active(), ShouldEqual, 0)
			})
		})
	})
}
