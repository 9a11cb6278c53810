package worker_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/okian/arena/internal/adapters/mq/queue"
	"github.com/okian/arena/internal/adapters/mq/worker"
	"github.com/okian/arena/internal/adapters/series"
	logging "github.com/okian/arena/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

// Mock implementations for testing.
type mockQueue struct {
	points chan queue.Point
	once   sync.Once
}

func newMockQueue() *mockQueue {
	return &mockQueue{points: make(chan queue.Point, 16)}
}

func (mq *mockQueue) Dequeue(ctx context.Context) <-chan queue.Point {
	return mq.points
}

func (mq *mockQueue) Close() error {
	mq.once.Do(func() { close(mq.points) })
	return nil
}

func (mq *mockQueue) add(p queue.Point) { //nolint:gocritic // hugeParam: Point is passed by value for channel semantics
	mq.points <- p
}

type mockWriter struct {
	mu       sync.Mutex
	written  []series.Point
	failures map[int64]int
	errs     map[int64]error
	calls    map[int64]int
}

func newMockWriter() *mockWriter {
	return &mockWriter{
		failures: map[int64]int{},
		errs:     map[int64]error{},
		calls:    map[int64]int{},
	}
}

func (mw *mockWriter) Append(ctx context.Context, p series.Point) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	mw.calls[p.BenchmarkID]++
	if err, ok := mw.errs[p.BenchmarkID]; ok {
		return err
	}
	if mw.failures[p.BenchmarkID] > 0 {
		mw.failures[p.BenchmarkID]--
		return errors.New("disk busy")
	}
	mw.written = append(mw.written, p)
	return nil
}

func (mw *mockWriter) count() int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return len(mw.written)
}

func (mw *mockWriter) callsFor(id int64) int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return mw.calls[id]
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func pt(id int64) queue.Point {
	return queue.Point{ModelID: 1, BenchmarkID: id, At: time.Unix(0, id)}
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker reading from a queue", t, func() {
		_ = logging.InitWith(io.Discard, logging.FormatJSON)

		q := newMockQueue()
		w := newMockWriter()
		wk := worker.NewInMemoryWorker(q, w, worker.WithName("w0"), worker.WithRetry(3, time.Millisecond))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go wk.Run(ctx)

		convey.Convey("When points are queued", func() {
			q.add(pt(1))
			q.add(pt(2))

			convey.Convey("Then they are written", func() {
				convey.So(eventually(func() bool { return w.count() == 2 }), convey.ShouldBeTrue)
				convey.So(eventually(func() bool { return wk.Processed() == 2 }), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a write fails transiently", func() {
			w.mu.Lock()
			w.failures[7] = 2
			w.mu.Unlock()
			q.add(pt(7))

			convey.Convey("Then it is retried until it succeeds", func() {
				convey.So(eventually(func() bool { return w.count() == 1 }), convey.ShouldBeTrue)
				convey.So(w.callsFor(7), convey.ShouldEqual, 3)
			})
		})

		convey.Convey("When a point is invalid", func() {
			w.mu.Lock()
			w.errs[8] = series.ErrInvalidPoint
			w.mu.Unlock()
			q.add(pt(8))
			q.add(pt(9))

			convey.Convey("Then it is not retried and the worker moves on", func() {
				convey.So(eventually(func() bool { return w.count() == 1 }), convey.ShouldBeTrue)
				convey.So(w.callsFor(8), convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When the worker is shut down", func() {
			err := wk.Shutdown(context.Background())

			convey.Convey("Then it stops and a second shutdown is harmless", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(wk.Shutdown(context.Background()), convey.ShouldBeNil)
			})
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool over a real queue", t, func() {
		_ = logging.InitWith(io.Discard, logging.FormatJSON)

		q := queue.NewInMemoryQueue(queue.WithCapacity(100))
		w := newMockWriter()
		pool := worker.NewPool(4, q, w)
		convey.So(pool.Size(), convey.ShouldEqual, 4)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		pool.Start(ctx)

		convey.Convey("When points are enqueued and the pool shuts down", func() {
			for i := int64(1); i <= 50; i++ {
				convey.So(q.Enqueue(ctx, pt(i)), convey.ShouldBeTrue)
			}
			err := pool.Shutdown(context.Background())

			convey.Convey("Then every queued point is drained first", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(w.count(), convey.ShouldEqual, 50)
				convey.So(pool.Processed(), convey.ShouldEqual, 50)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})
		})
	})

	convey.Convey("Given a pool with no explicit size", t, func() {
		_ = logging.InitWith(io.Discard, logging.FormatJSON)
		pool := worker.NewPool(0, newMockQueue(), newMockWriter())

		convey.Convey("Then it sizes itself from the CPU count", func() {
			convey.So(pool.Size(), convey.ShouldBeGreaterThan, 0)
		})
	})
}
