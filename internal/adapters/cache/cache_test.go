package cache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/readaloud/internal/adapters/cache"
	"github.com/okian/readaloud/internal/domain/prosody"
	. "github.com/smartystreets/goconvey/convey"
)

func TestReferenceCache(t *testing.T) {
	Convey("Given a cache with a counting loader", t, func() {
		var loads atomic.Int32
		loader := func(_ context.Context, key string) (prosody.Features, error) {
			loads.Add(1)
			if key == "bad" {
				return nil, errors.New("decode failed")
			}
			time.Sleep(10 * time.Millisecond)
			return prosody.Features{{float64(len(key))}}, nil
		}
		c, err := cache.New(loader, cache.WithSize(2))
		So(err, ShouldBeNil)
		ctx := context.Background()

		Convey("When the same key is requested twice", func() {
			f1, err1 := c.Get(ctx, "a.wav")
			f2, err2 := c.Get(ctx, "a.wav")

			Convey("Then it loads once", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(f1, ShouldResemble, f2)
				So(loads.Load(), ShouldEqual, 1)
			})
		})

		Convey("When many goroutines miss together", func() {
			var wg sync.WaitGroup
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, _ = c.Get(ctx, "shared.wav")
				}()
			}
			wg.Wait()

			So(loads.Load(), ShouldEqual, 1)
		})

		Convey("When capacity is exceeded", func() {
			_, _ = c.Get(ctx, "a")
			_, _ = c.Get(ctx, "b")
			_, _ = c.Get(ctx, "c")

			So(c.Len(), ShouldEqual, 2)
			_, _ = c.Get(ctx, "a")
			So(loads.Load(), ShouldEqual, 4)
		})

		Convey("When a load fails", func() {
			_, err := c.Get(ctx, "bad")
			So(err, ShouldNotBeNil)
			_, _ = c.Get(ctx, "bad")

			Convey("Then the failure is not cached", func() {
				So(loads.Load(), ShouldEqual, 2)
				So(c.Len(), ShouldEqual, 0)
			})
		})

		Convey("When purged", func() {
			_, _ = c.Get(ctx, "a")
			c.Purge()
			So(c.Len(), ShouldEqual, 0)
		})
	})

	Convey("Given a slow load started by a caller that then leaves", t, func() {
		release := make(chan struct{})
		started := make(chan struct{}, 1)
		loadErr := make(chan error, 1)
		var loads atomic.Int32
		c, err := cache.New(func(ctx context.Context, _ string) (prosody.Features, error) {
			loads.Add(1)
			started <- struct{}{}
			<-release
			loadErr <- ctx.Err()
			return prosody.Features{{1, 2}}, nil
		})
		So(err, ShouldBeNil)

		leaving, leave := context.WithCancel(context.Background())
		first := make(chan error, 1)
		go func() {
			_, err := c.Get(leaving, "ref.mp3")
			first <- err
		}()
		<-started

		type result struct {
			f   prosody.Features
			err error
		}
		second := make(chan result, 1)
		go func() {
			f, err := c.Get(context.Background(), "ref.mp3")
			second <- result{f, err}
		}()
		time.Sleep(20 * time.Millisecond)
		leave()

		Convey("Then only the leaving caller sees its cancellation", func() {
			So(errors.Is(<-first, context.Canceled), ShouldBeTrue)

			close(release)
			r := <-second
			So(r.err, ShouldBeNil)
			So(r.f, ShouldResemble, prosody.Features{{1, 2}})
			So(<-loadErr, ShouldBeNil)
			So(loads.Load(), ShouldEqual, 1)
			So(c.Len(), ShouldEqual, 1)
		})
	})

	Convey("Given a load that outlives the load timeout", t, func() {
		c, err := cache.New(func(ctx context.Context, _ string) (prosody.Features, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}, cache.WithLoadTimeout(20*time.Millisecond))
		So(err, ShouldBeNil)

		_, err = c.Get(context.Background(), "stuck.wav")

		So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
		So(c.Len(), ShouldEqual, 0)
	})

	Convey("Given no loader", t, func() {
		_, err := cache.New(nil)
		So(errors.Is(err, cache.ErrNilLoader), ShouldBeTrue)
	})
}
