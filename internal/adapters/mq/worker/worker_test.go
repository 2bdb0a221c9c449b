package worker_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/readaloud/internal/adapters/mq/queue"
	"github.com/okian/readaloud/internal/adapters/mq/worker"
	"github.com/okian/readaloud/internal/domain/model"
	"github.com/okian/readaloud/internal/domain/scoring"
	logging "github.com/okian/readaloud/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logging.Init(); err != nil {
		panic(err)
	}
}

type mockQueue struct {
	jobs chan queue.Job
	once sync.Once
}

func newMockQueue() *mockQueue {
	return &mockQueue{jobs: make(chan queue.Job, 10)}
}

func (mq *mockQueue) Dequeue(context.Context) <-chan queue.Job { return mq.jobs }

func (mq *mockQueue) Close() error {
	mq.once.Do(func() { close(mq.jobs) })
	return nil
}

type mockScorer struct {
	breakdown model.Breakdown
	err       error
	delay     time.Duration
	panicWith any
	// delays overrides delay per request text.
	delays map[string]time.Duration
	calls  atomic.Int32
}

func (ms *mockScorer) Score(ctx context.Context, req scoring.Request) (model.Breakdown, error) {
	ms.calls.Add(1)
	if ms.panicWith != nil {
		panic(ms.panicWith)
	}
	delay := ms.delay
	if d, ok := ms.delays[req.ExpectedText]; ok {
		delay = d
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return model.Breakdown{}, ctx.Err()
		}
	}
	return ms.breakdown, ms.err
}

func submit(q *mockQueue, id string) chan queue.Result {
	reply := make(chan queue.Result, 1)
	q.jobs <- queue.Job{ID: id, Context: context.Background(), Reply: reply, EnqueuedAt: time.Now()}
	return reply
}

func await(reply chan queue.Result) queue.Result {
	select {
	case r := <-reply:
		return r
	case <-time.After(2 * time.Second):
		return queue.Result{Err: errors.New("no reply")}
	}
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a running worker", t, func() {
		q := newMockQueue()
		scorer := &mockScorer{breakdown: model.Breakdown{Final: 87.5, ProsodyMethod: "aligned"}}
		w := worker.NewInMemoryWorker(q, scorer, worker.WithName("test-worker"))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("When a job is queued", func() {
			r := await(submit(q, "job-1"))

			convey.Convey("Then the breakdown is sent back", func() {
				convey.So(r.Err, convey.ShouldBeNil)
				convey.So(r.Breakdown.Final, convey.ShouldEqual, 87.5)
				convey.So(scorer.calls.Load(), convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When scoring fails", func() {
			scorer.err = scoring.ErrTranscription
			r := await(submit(q, "job-2"))

			convey.Convey("Then the error is sent back", func() {
				convey.So(errors.Is(r.Err, scoring.ErrTranscription), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the scorer panics", func() {
			scorer.panicWith = "boom"
			r := await(submit(q, "job-3"))

			convey.Convey("Then the panic becomes a compute error", func() {
				convey.So(errors.Is(r.Err, scoring.ErrCompute), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When shut down", func() {
			sctx, scancel := context.WithTimeout(context.Background(), time.Second)
			defer scancel()

			convey.So(w.Shutdown(sctx), convey.ShouldBeNil)
			convey.So(w.Shutdown(sctx), convey.ShouldBeNil)
		})
	})

	convey.Convey("Given a job that outlives the job timeout", t, func() {
		q := newMockQueue()
		scorer := &mockScorer{delay: time.Second}
		w := worker.NewInMemoryWorker(q, scorer, worker.WithJobTimeout(20*time.Millisecond))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		r := await(submit(q, "slow"))

		convey.So(errors.Is(r.Err, context.DeadlineExceeded), convey.ShouldBeTrue)
	})

	convey.Convey("Given a job whose caller already left", t, func() {
		q := newMockQueue()
		scorer := &mockScorer{}
		w := worker.NewInMemoryWorker(q, scorer)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		jobCtx, jobCancel := context.WithCancel(context.Background())
		jobCancel()
		reply := make(chan queue.Result, 1)
		q.jobs <- queue.Job{ID: "gone", Context: jobCtx, Reply: reply}

		r := await(reply)

		convey.So(errors.Is(r.Err, context.Canceled), convey.ShouldBeTrue)
		convey.So(scorer.calls.Load(), convey.ShouldEqual, 0)
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool over a real queue", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(32))
		scorer := &mockScorer{breakdown: model.Breakdown{Final: 50}, delay: 5 * time.Millisecond}
		pool := worker.NewPool(4, q, scorer)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		pool.Start(ctx)

		convey.So(pool.Size(), convey.ShouldEqual, 4)

		convey.Convey("When many jobs are queued", func() {
			const n = 20
			replies := make([]chan queue.Result, n)
			for i := range replies {
				replies[i] = make(chan queue.Result, 1)
				ok := q.Enqueue(context.Background(), queue.Job{
					ID:      "job",
					Context: context.Background(),
					Reply:   replies[i],
				})
				convey.So(ok, convey.ShouldBeTrue)
			}

			convey.Convey("Then every job is answered", func() {
				for _, reply := range replies {
					r := await(reply)
					convey.So(r.Err, convey.ShouldBeNil)
					convey.So(r.Breakdown.Final, convey.ShouldEqual, 50.0)
				}
				convey.So(scorer.calls.Load(), convey.ShouldEqual, n)
			})

			convey.Convey("Then shutdown drains the queue", func() {
				sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer scancel()

				convey.So(pool.Shutdown(sctx), convey.ShouldBeNil)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
				convey.So(scorer.calls.Load(), convey.ShouldEqual, n)
			})
		})
	})

	convey.Convey("Given a pool whose context is cancelled with jobs still queued", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(8))
		scorer := &mockScorer{delay: 300 * time.Millisecond}
		pool := worker.NewPool(1, q, scorer)

		ctx, cancel := context.WithCancel(context.Background())
		pool.Start(ctx)

		replies := make([]chan queue.Result, 5)
		for i := range replies {
			replies[i] = make(chan queue.Result, 1)
			q.Enqueue(context.Background(), queue.Job{ID: "queued", Context: context.Background(), Reply: replies[i]})
		}
		time.Sleep(30 * time.Millisecond)
		cancel()

		convey.Convey("Then every job is answered with an error", func() {
			for _, reply := range replies {
				r := await(reply)
				convey.So(r.Err, convey.ShouldNotBeNil)
				convey.So(errors.Is(r.Err, context.Canceled) || errors.Is(r.Err, queue.ErrStopped), convey.ShouldBeTrue)
			}
			convey.So(q.IsClosed(), convey.ShouldBeTrue)
		})

		convey.Convey("Then shutdown still returns cleanly", func() {
			sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer scancel()

			convey.So(pool.Shutdown(sctx), convey.ShouldBeNil)
			for _, reply := range replies {
				convey.So(await(reply).Err, convey.ShouldNotBeNil)
			}
		})
	})

	convey.Convey("Given one worker busy with a long job", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(8))
		scorer := &mockScorer{delays: map[string]time.Duration{
			"long":  time.Second,
			"short": 50 * time.Millisecond,
			"tiny":  10 * time.Millisecond,
		}}
		pool := worker.NewPool(2, q, scorer)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		pool.Start(ctx)

		enqueue := func(text string) chan queue.Result {
			reply := make(chan queue.Result, 1)
			q.Enqueue(context.Background(), queue.Job{
				ID:      text,
				Context: context.Background(),
				Request: scoring.Request{ExpectedText: text},
				Reply:   reply,
			})
			return reply
		}

		start := time.Now()
		long := enqueue("long")
		time.Sleep(10 * time.Millisecond)
		short := enqueue("short")
		first, second := enqueue("tiny"), enqueue("tiny")

		convey.Convey("Then the idle worker takes the jobs queued behind it", func() {
			convey.So(await(short).Err, convey.ShouldBeNil)
			convey.So(await(first).Err, convey.ShouldBeNil)
			convey.So(await(second).Err, convey.ShouldBeNil)
			convey.So(time.Since(start), convey.ShouldBeLessThan, 500*time.Millisecond)
			convey.So(await(long).Err, convey.ShouldBeNil)
		})
	})

	convey.Convey("Given a non-positive worker count", t, func() {
		pool := worker.NewPool(0, newMockQueue(), &mockScorer{})
		convey.So(pool.Size(), convey.ShouldBeGreaterThan, 0)
	})
}
