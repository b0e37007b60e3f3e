package viewcache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/tsarena/internal/adapters/viewcache"
	. "github.com/smartystreets/goconvey/convey"
)

func TestCacheLifecycle(t *testing.T) {
	Convey("Given an empty cache", t, func() {
		ctx := context.Background()
		c := viewcache.New[string]("test")

		Convey("Then unknown keys are unfetched", func() {
			So(c.State("a"), ShouldEqual, viewcache.Unfetched)
		})

		Convey("When a key is loaded", func() {
			var calls atomic.Int32
			fetch := func(context.Context) (string, error) {
				calls.Add(1)
				return "value-a", nil
			}
			v, err := c.Load(ctx, "a", fetch)

			Convey("Then the value is returned and recorded", func() {
				So(err, ShouldBeNil)
				So(v, ShouldEqual, "value-a")
				So(c.State("a"), ShouldEqual, viewcache.Loaded)
			})

			Convey("And loading it again does not fetch", func() {
				v2, err := c.Load(ctx, "a", fetch)
				So(err, ShouldBeNil)
				So(v2, ShouldEqual, "value-a")
				So(calls.Load(), ShouldEqual, 1)
			})
		})

		Convey("When a fetch fails", func() {
			boom := errors.New("boom")
			var calls atomic.Int32
			failing := func(context.Context) (string, error) {
				calls.Add(1)
				return "", boom
			}
			_, err := c.Load(ctx, "b", failing)

			Convey("Then the entry is failed", func() {
				So(errors.Is(err, boom), ShouldBeTrue)
				So(c.State("b"), ShouldEqual, viewcache.Failed)
			})

			Convey("And later loads report the failure without fetching", func() {
				_, err := c.Load(ctx, "b", failing)
				So(errors.Is(err, viewcache.ErrFetchFailed), ShouldBeTrue)
				So(errors.Is(err, boom), ShouldBeTrue)
				So(calls.Load(), ShouldEqual, 1)
			})

			Convey("And Retry allows a fresh fetch", func() {
				So(c.Retry("b"), ShouldBeTrue)
				So(c.State("b"), ShouldEqual, viewcache.Unfetched)
				v, err := c.Load(ctx, "b", func(context.Context) (string, error) { return "recovered", nil })
				So(err, ShouldBeNil)
				So(v, ShouldEqual, "recovered")
			})
		})

		Convey("When retrying a key that has not failed", func() {
			So(c.Retry("nothing"), ShouldBeFalse)
		})
	})
}

func TestCacheConcurrentLoads(t *testing.T) {
	Convey("Given many callers loading the same key at once", t, func() {
		c := viewcache.New[int]("test")
		release := make(chan struct{})
		var calls atomic.Int32
		fetch := func(context.Context) (int, error) {
			calls.Add(1)
			<-release
			return 42, nil
		}

		var wg sync.WaitGroup
		results := make([]int, 8)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				v, _ := c.Load(context.Background(), "k", fetch)
				results[i] = v
			}(i)
		}
		time.Sleep(20 * time.Millisecond)
		close(release)
		wg.Wait()

		Convey("Then the fetch runs once and every caller gets the value", func() {
			So(calls.Load(), ShouldEqual, 1)
			for _, v := range results {
				So(v, ShouldEqual, 42)
			}
		})
	})
}

func TestCacheCallerCancellation(t *testing.T) {
	Convey("Given a caller that goes away during a fetch", t, func() {
		c := viewcache.New[string]("test")
		release := make(chan struct{})
		fetchCtxErr := make(chan error, 1)
		fetch := func(ctx context.Context) (string, error) {
			<-release
			fetchCtxErr <- ctx.Err()
			return "done", nil
		}

		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() {
			_, err := c.Load(ctx, "k", fetch)
			errCh <- err
		}()
		time.Sleep(10 * time.Millisecond)
		cancel()
		err := <-errCh
		close(release)

		Convey("Then the caller sees its own cancellation", func() {
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
		})

		Convey("And the fetch completes and is recorded", func() {
			So(<-fetchCtxErr, ShouldBeNil)
			deadline := time.Now().Add(time.Second)
			for c.State("k") != viewcache.Loaded && time.Now().Before(deadline) {
				time.Sleep(time.Millisecond)
			}
			So(c.State("k"), ShouldEqual, viewcache.Loaded)
		})
	})
}

func TestCacheExpiryAndEviction(t *testing.T) {
	Convey("Given a cache with a TTL and a fake clock", t, func() {
		now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		clock := func() time.Time { return now }
		c := viewcache.New[int]("test", viewcache.WithTTL(time.Minute), viewcache.WithClock(clock), viewcache.WithSize(2))
		ctx := context.Background()

		var calls atomic.Int32
		fetch := func(context.Context) (int, error) { return int(calls.Add(1)), nil }

		Convey("When the entry outlives the TTL", func() {
			v1, _ := c.Load(ctx, "a", fetch)
			now = now.Add(2 * time.Minute)
			v2, _ := c.Load(ctx, "a", fetch)

			Convey("Then it is fetched again", func() {
				So(v1, ShouldEqual, 1)
				So(v2, ShouldEqual, 2)
			})
		})

		Convey("When more keys than the size bound are loaded", func() {
			_, _ = c.Load(ctx, "a", fetch)
			_, _ = c.Load(ctx, "b", fetch)
			_, _ = c.Load(ctx, "c", fetch)

			Convey("Then the oldest entry is evicted", func() {
				So(c.Len(), ShouldEqual, 2)
				So(c.State("a"), ShouldEqual, viewcache.Unfetched)
				So(c.State("c"), ShouldEqual, viewcache.Loaded)
			})
		})
	})
}
