package dedupe_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	dedupe "github.com/okian/arena/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	Convey("Given a new InMemoryDeduper", t, func() {
		ctx := context.Background()

		Convey("When creating a deduper with default options", func() {
			d := dedupe.NewInMemoryDeduper()

			Convey("Then it should start empty", func() {
				So(d, ShouldNotBeNil)
				So(d.Size(), ShouldEqual, 0)
			})
		})

		Convey("When recording submissions", func() {
			d := dedupe.NewInMemoryDeduper()

			Convey("And the submission is new", func() {
				seen := d.SeenAndRecord(ctx, "sub-1")

				Convey("Then it should return false and record it", func() {
					So(seen, ShouldBeFalse)
					So(d.Size(), ShouldEqual, 1)
				})
			})

			Convey("And the submission was already seen", func() {
				d.SeenAndRecord(ctx, "sub-1")
				seen := d.SeenAndRecord(ctx, "sub-1")

				Convey("Then it should return true", func() {
					So(seen, ShouldBeTrue)
					So(d.Size(), ShouldEqual, 1)
				})
			})
		})

		Convey("When unrecording submissions", func() {
			d := dedupe.NewInMemoryDeduper()
			d.SeenAndRecord(ctx, "sub-1")

			Convey("And the submission exists", func() {
				d.Unrecord(ctx, "sub-1")

				Convey("Then it can be recorded again", func() {
					So(d.Size(), ShouldEqual, 0)
					So(d.SeenAndRecord(ctx, "sub-1"), ShouldBeFalse)
				})
			})

			Convey("And the submission doesn't exist", func() {
				d.Unrecord(ctx, "nonexistent")

				Convey("Then it should not affect the size", func() {
					So(d.Size(), ShouldEqual, 1)
				})
			})
		})

		Convey("When using bounded mode with eviction", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))
			for i := 1; i <= 4; i++ {
				d.SeenAndRecord(ctx, fmt.Sprintf("sub-%d", i))
			}

			Convey("Then the oldest submission is forgotten", func() {
				So(d.Size(), ShouldEqual, 3)
				So(d.SeenAndRecord(ctx, "sub-4"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "sub-1"), ShouldBeFalse)
			})
		})

		Convey("When using unbounded mode", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(-1))
			for i := 0; i < 1000; i++ {
				d.SeenAndRecord(ctx, fmt.Sprintf("sub-%d", i))
			}

			Convey("Then nothing is evicted", func() {
				So(d.Size(), ShouldEqual, 1000)
				So(d.SeenAndRecord(ctx, "sub-0"), ShouldBeTrue)
			})
		})

		Convey("When a TTL is configured", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithTTL(50 * time.Millisecond))
			d.SeenAndRecord(ctx, "sub-1")
			time.Sleep(120 * time.Millisecond)

			Convey("Then expired submissions are accepted again", func() {
				So(d.SeenAndRecord(ctx, "sub-1"), ShouldBeFalse)
			})
		})

		Convey("When recording unusual ids", func() {
			d := dedupe.NewInMemoryDeduper()

			Convey("Then empty and very long ids are handled", func() {
				So(d.SeenAndRecord(ctx, ""), ShouldBeFalse)
				So(d.SeenAndRecord(ctx, ""), ShouldBeTrue)
				long := strings.Repeat("x", 10000)
				So(d.SeenAndRecord(ctx, long), ShouldBeFalse)
				So(d.SeenAndRecord(ctx, long), ShouldBeTrue)
			})
		})
	})
}

func TestInMemoryDeduper_Concurrency(t *testing.T) {
	Convey("Given a deduper with concurrent access", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(1000))
		ctx := context.Background()

		Convey("When many goroutines race on the same id", func() {
			var (
				wg    sync.WaitGroup
				mu    sync.Mutex
				fresh int
			)
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if !d.SeenAndRecord(ctx, "shared") {
						mu.Lock()
						fresh++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			Convey("Then exactly one of them records it", func() {
				So(fresh, ShouldEqual, 1)
				So(d.Size(), ShouldEqual, 1)
			})
		})
	})
}
