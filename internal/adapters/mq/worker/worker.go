// Package worker runs scoring jobs pulled off the queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/okian/readaloud/internal/adapters/mq/queue"
	"github.com/okian/readaloud/internal/domain/model"
	"github.com/okian/readaloud/internal/domain/scoring"
	"github.com/okian/readaloud/pkg/logger"
	"github.com/okian/readaloud/pkg/metrics"
)

const (
	defaultJobTimeout   = 60 * time.Second
	poolShutdownTimeout = 30 * time.Second
)

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Job
}

// Worker processes scoring jobs.
type Worker interface {
	// Run processes jobs until ctx is canceled or the queue is closed and empty.
	Run(ctx context.Context)

	// Shutdown stops the worker after its current job.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker on top of a scoring.Scorer.
type InMemoryWorker struct {
	queue   Queue
	scorer  scoring.Scorer
	name    string
	timeout time.Duration

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a worker with configuration options.
func NewInMemoryWorker(q Queue, scorer scoring.Scorer, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		scorer:   scorer,
		name:     "worker",
		timeout:  defaultJobTimeout,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named(w.name)
	}
	return w
}

// Run takes jobs off the shared queue channel until ctx ends, Shutdown is
// called or the queue is closed and empty.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			metrics.RecordQueueDequeue()
			if l, ok := w.queue.(interface{ Len(context.Context) int }); ok {
				l.Len(ctx)
			}
			w.process(ctx, job)
		}
	}
}

// Shutdown signals the worker and waits for it to finish.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// process scores one job and always answers it.
func (w *InMemoryWorker) process(ctx context.Context, job queue.Job) { //nolint:gocritic // hugeParam: Job is passed by value for channel semantics
	start := time.Now()
	metrics.WorkerBusy(1)
	defer func() {
		metrics.WorkerBusy(-1)
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	parent := job.Context
	if parent == nil {
		parent = ctx
	}
	jobCtx, cancel := context.WithTimeout(parent, w.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := jobCtx.Err(); err != nil {
		job.Respond(queue.Result{Err: err})
		return
	}

	breakdown, err := w.score(jobCtx, job)
	if err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", errorKind(err))
		w.logger.Error(jobCtx, "scoring failed",
			logger.String("job_id", job.ID),
			logger.Duration("waited", start.Sub(job.EnqueuedAt)),
			logger.Error(err),
		)
		job.Respond(queue.Result{Err: err})
		return
	}

	w.logger.Debug(jobCtx, "job scored",
		logger.String("job_id", job.ID),
		logger.Float64("final", breakdown.Final),
		logger.String("prosody_method", breakdown.ProsodyMethod),
	)
	job.Respond(queue.Result{Breakdown: breakdown})
}

// score shields the worker goroutine from a panicking scorer.
func (w *InMemoryWorker) score(ctx context.Context, job queue.Job) (b model.Breakdown, err error) { //nolint:gocritic // hugeParam
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", scoring.ErrCompute, r)
		}
	}()
	return w.scorer.Score(ctx, job.Request)
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, scoring.ErrTranscription):
		return "transcription_error"
	case errors.Is(err, scoring.ErrCompute):
		return "compute_error"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "scoring_error"
	}
}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	stopped chan struct{}
	logger  logger.Logger
}

// NewPool creates a pool of count workers. A count below one means one
// worker per CPU.
func NewPool(count int, q Queue, scorer scoring.Scorer, opts ...Option) *Pool {
	if count < 1 {
		count = runtime.NumCPU()
	}

	p := &Pool{
		workers: make([]*InMemoryWorker, count),
		queue:   q,
		stopped: make(chan struct{}),
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := range p.workers {
		workerOpts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		p.workers[i] = NewInMemoryWorker(q, scorer, workerOpts...)
	}

	metrics.UpdateWorkerCount(count)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers. Once every worker has exited, for whatever
// reason, the queue is closed and jobs still buffered are answered with
// queue.ErrStopped.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	go func() {
		for _, w := range p.workers {
			<-w.done
		}
		p.closeQueue(ctx)
		if n := p.drain(); n > 0 {
			p.logger.Warn(ctx, "answered queued jobs after workers stopped", logger.Int("jobs", n))
		}
		close(p.stopped)
	}()
	p.logger.Info(ctx, "worker pool started", logger.Int("workers", len(p.workers)))
}

// Shutdown closes the queue, lets the workers finish what is buffered and
// waits for them. Jobs left when the wait times out are answered with
// queue.ErrStopped.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.closeQueue(ctx)

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut int
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			timedOut++
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	p.drain()
	if timedOut > 0 {
		return fmt.Errorf("%d workers did not stop: %w", timedOut, shutdownCtx.Err())
	}
	select {
	case <-p.stopped:
	case <-shutdownCtx.Done():
	}
	return nil
}

func (p *Pool) closeQueue(ctx context.Context) {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
}

func (p *Pool) drain() int {
	if d, ok := p.queue.(interface{ Drain(error) int }); ok {
		return d.Drain(queue.ErrStopped)
	}
	return 0
}
