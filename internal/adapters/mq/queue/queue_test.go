package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/readaloud/internal/domain/scoring"
)

func newJob(id string) (Job, chan Result) {
	reply := make(chan Result, 1)
	return Job{
		ID:      id,
		Context: context.Background(),
		Request: scoring.Request{ExpectedText: "the cat sat"},
		Reply:   reply,
	}, reply
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
	if c := q.Capacity(); c != 2 {
		t.Errorf("expected capacity 2, got %d", c)
	}

	job, _ := newJob("job1")
	if !q.Enqueue(ctx, job) {
		t.Fatal("expected enqueue to succeed")
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	got := <-q.Dequeue(ctx)
	if got.ID != "job1" {
		t.Errorf("expected job1, got %v", got.ID)
	}
	if got.EnqueuedAt.IsZero() {
		t.Error("expected enqueue time to be stamped")
	}
	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		job, _ := newJob(fmt.Sprintf("job%d", i))
		if !q.Enqueue(ctx, job) {
			t.Fatalf("expected enqueue %d to succeed", i)
		}
	}

	job, _ := newJob("overflow")
	if q.Enqueue(ctx, job) {
		t.Error("expected enqueue to fail when full")
	}
}

func TestInMemoryQueue_CancelledContext(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	job, _ := newJob("late")
	if q.Enqueue(ctx, job) {
		t.Error("expected enqueue with cancelled context to fail")
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	const producers, perProducer = 8, 25
	q := NewInMemoryQueue(WithCapacity(producers * perProducer))
	ctx := context.Background()

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				job, _ := newJob(fmt.Sprintf("p%d-%d", p, i))
				if !q.Enqueue(ctx, job) {
					t.Errorf("enqueue failed for p%d-%d", p, i)
				}
			}
		}(p)
	}
	wg.Wait()

	if l := q.Len(ctx); l != producers*perProducer {
		t.Fatalf("expected %d jobs, got %d", producers*perProducer, l)
	}
	_ = q.Close()

	seen := 0
	for range q.Dequeue(ctx) {
		seen++
	}
	if seen != producers*perProducer {
		t.Errorf("expected to drain %d jobs, got %d", producers*perProducer, seen)
	}
}

func TestInMemoryQueue_GracefulShutdown(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(4))
	ctx := context.Background()

	job, _ := newJob("queued")
	q.Enqueue(ctx, job)

	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to report closed")
	}

	rejected, _ := newJob("after-close")
	if q.Enqueue(ctx, rejected) {
		t.Error("expected enqueue after close to fail")
	}

	select {
	case got, ok := <-q.Dequeue(ctx):
		if !ok || got.ID != "queued" {
			t.Errorf("expected queued job to drain, got %v (ok=%v)", got.ID, ok)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out draining closed queue")
	}
}

func TestInMemoryQueue_Drain(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(4))
	ctx := context.Background()

	replies := make([]chan Result, 3)
	for i := range replies {
		var job Job
		job, replies[i] = newJob(fmt.Sprintf("left-%d", i))
		q.Enqueue(ctx, job)
	}

	if n := q.Drain(ErrStopped); n != 3 {
		t.Fatalf("expected 3 drained jobs, got %d", n)
	}
	for i, reply := range replies {
		select {
		case r := <-reply:
			if !errors.Is(r.Err, ErrStopped) {
				t.Errorf("job %d: expected ErrStopped, got %v", i, r.Err)
			}
		default:
			t.Errorf("job %d was not answered", i)
		}
	}
	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected empty queue, got %d", l)
	}

	_ = q.Close()
	if n := q.Drain(ErrStopped); n != 0 {
		t.Errorf("expected nothing to drain from a closed empty queue, got %d", n)
	}
}

func TestInMemoryQueue_SharedDequeue(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	// Two consumers that never read must not take jobs off the queue.
	_ = q.Dequeue(ctx)
	_ = q.Dequeue(ctx)

	job, _ := newJob("waiting")
	q.Enqueue(ctx, job)
	time.Sleep(20 * time.Millisecond)

	if l := q.Len(ctx); l != 1 {
		t.Fatalf("expected the job to stay queued, got length %d", l)
	}
	if q.Dequeue(ctx) != q.Dequeue(ctx) {
		t.Error("expected every consumer to share one channel")
	}

	overflow, _ := newJob("second")
	q.Enqueue(ctx, overflow)
	third, _ := newJob("third")
	if q.Enqueue(ctx, third) {
		t.Error("expected capacity to bound buffered jobs exactly")
	}
}

func TestJob_RespondNeverBlocks(t *testing.T) {
	job, reply := newJob("x")
	job.Respond(Result{Err: ErrFull})
	job.Respond(Result{})

	if r := <-reply; !errors.Is(r.Err, ErrFull) {
		t.Errorf("expected first result to win, got %v", r.Err)
	}
}
