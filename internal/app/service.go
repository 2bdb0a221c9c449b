// Package service wires prompts, audio decoding, reference features and the
// worker pool into the operations the HTTP API needs.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/readaloud/internal/adapters/cache"
	"github.com/okian/readaloud/internal/adapters/mq/queue"
	"github.com/okian/readaloud/internal/adapters/mq/worker"
	"github.com/okian/readaloud/internal/adapters/prompts"
	"github.com/okian/readaloud/internal/domain/prosody"
	"github.com/okian/readaloud/internal/domain/scoring"
	"github.com/okian/readaloud/internal/domain/types"
	"github.com/okian/readaloud/pkg/logger"
	"github.com/okian/readaloud/pkg/metrics"
)

// Errors returned by Score besides the scoring sentinels.
var (
	ErrNotStarted           = types.ErrNotStarted
	ErrBackpressure         = types.ErrBackpressure
	ErrReferenceUnavailable = types.ErrReferenceUnavailable
)

type (
	// ScoreInput is one submitted reading.
	ScoreInput = types.ScoreInput
	// ScoreResult is a scored reading.
	ScoreResult = types.ScoreResult
	// Stats reports service state for /stats.
	Stats = types.Stats
)

// Pipeline scores requests and exposes the extractor used for reference
// features. *scoring.Pipeline satisfies it.
type Pipeline interface {
	scoring.Scorer
	Extractor() *prosody.Extractor
}

// Decoder turns uploaded bytes and reference files into mono samples.
type Decoder interface {
	Decode(ctx context.Context, data []byte) ([]float32, error)
	DecodeFile(ctx context.Context, path string) ([]float32, error)
}

// Catalog resolves prompts. *prompts.Catalog satisfies it.
type Catalog interface {
	Get(id string) (prompts.Prompt, error)
	First() prompts.Prompt
	All() []prompts.Prompt
	ReferencePath(p prompts.Prompt) string
}

// Service implements the API dependencies for the scoring server.
type Service struct {
	mu sync.RWMutex

	pipeline Pipeline
	decoder  Decoder
	catalog  Catalog

	queue      *queue.InMemoryQueue
	pool       *worker.Pool
	references *cache.ReferenceCache

	workerCount    int
	queueSize      int
	cacheSize      int
	requestTimeout time.Duration

	started bool
	logger  logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of scoring workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of jobs waiting for a worker.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithReferenceCacheSize sets how many prompts keep their reference features in memory.
func WithReferenceCacheSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.cacheSize = size
		}
	}
}

// WithRequestTimeout bounds one scoring job.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.requestTimeout = d
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service. Call Start before Score.
func New(pipeline Pipeline, decoder Decoder, catalog Catalog, opts ...Option) *Service {
	s := &Service{
		pipeline:       pipeline,
		decoder:        decoder,
		catalog:        catalog,
		workerCount:    max(1, runtime.NumCPU()/2),
		queueSize:      256,
		cacheSize:      64,
		requestTimeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds the queue, the worker pool and the reference cache.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.pipeline == nil || s.decoder == nil || s.catalog == nil {
		return fmt.Errorf("%w: pipeline, decoder and catalog are required", scoring.ErrConfig)
	}

	refs, err := cache.New(s.loadReference, cache.WithSize(s.cacheSize))
	if err != nil {
		return fmt.Errorf("reference cache: %w", err)
	}
	s.references = refs
	s.queue = queue.NewInMemoryQueue(
		queue.WithCapacity(s.queueSize),
		queue.WithBufferSize(s.queueSize),
	)
	s.pool = worker.NewPool(s.workerCount, s.queue, s.pipeline, worker.WithJobTimeout(s.requestTimeout))
	// Workers outlive ctx so requests accepted before a signal still get
	// scored while the HTTP server drains. Stop ends them.
	s.pool.Start(context.WithoutCancel(ctx))

	s.started = true
	s.logger.Info(ctx, "scoring service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queue_size", s.queueSize),
		logger.Int("reference_cache_size", s.cacheSize),
	)
	return nil
}

// Stop drains the queue and waits for the workers.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.started = false

	err := s.pool.Shutdown(ctx)
	s.logger.Info(ctx, "scoring service stopped")
	return err
}

// Prompt returns the prompt with id.
func (s *Service) Prompt(id string) (prompts.Prompt, error) {
	return s.catalog.Get(id)
}

// DefaultPrompt returns the first prompt of the catalog.
func (s *Service) DefaultPrompt() prompts.Prompt {
	return s.catalog.First()
}

// Prompts returns every prompt in catalog order.
func (s *Service) Prompts() []prompts.Prompt {
	return s.catalog.All()
}

// Score decodes the reading, queues it for a worker and waits for the
// breakdown or for ctx to end.
func (s *Service) Score(ctx context.Context, in ScoreInput) (ScoreResult, error) {
	start := time.Now()
	res, err := s.score(ctx, in)
	metrics.RecordScore(outcome(err), float64(time.Since(start).Milliseconds()))
	return res, err
}

func (s *Service) score(ctx context.Context, in ScoreInput) (ScoreResult, error) {
	s.mu.RLock()
	started, q, refs := s.started, s.queue, s.references
	s.mu.RUnlock()
	if !started {
		return ScoreResult{}, ErrNotStarted
	}

	res := ScoreResult{
		RequestID:          uuid.NewString(),
		PromptID:           in.PromptID,
		FrontendDurationMS: in.EndedMS - in.StartedMS,
	}
	log := s.logger.With(logger.String("request_id", res.RequestID), logger.String("prompt_id", in.PromptID))

	prompt, err := s.catalog.Get(in.PromptID)
	if err != nil {
		return res, err
	}

	decodeStart := time.Now()
	samples, err := s.decoder.Decode(ctx, in.Audio)
	metrics.RecordDecodeLatency(float64(time.Since(decodeStart).Milliseconds()))
	if err != nil {
		log.Warn(ctx, "user audio rejected", logger.Int("bytes", len(in.Audio)), logger.Error(err))
		return res, err
	}

	ref, err := refs.Get(ctx, prompt.ID)
	if err != nil {
		log.Error(ctx, "reference features unavailable", logger.Error(err))
		return res, err
	}

	reply := make(chan queue.Result, 1)
	job := queue.Job{
		ID:      res.RequestID,
		Context: ctx,
		Request: scoring.Request{
			ExpectedText:      prompt.Text(),
			UserAudio:         samples,
			ReferenceFeatures: ref,
		},
		Reply: reply,
	}
	if !q.Enqueue(ctx, job) {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if q.IsClosed() {
			return res, ErrNotStarted
		}
		log.Warn(ctx, "scoring queue full", logger.Int("capacity", q.Capacity()))
		return res, ErrBackpressure
	}

	select {
	case r := <-reply:
		if errors.Is(r.Err, queue.ErrStopped) {
			return res, fmt.Errorf("%w: %w", ErrNotStarted, r.Err)
		}
		if r.Err != nil {
			return res, r.Err
		}
		res.Breakdown = r.Breakdown
	case <-ctx.Done():
		return res, ctx.Err()
	}

	metrics.RecordProsodyMethod(res.Breakdown.ProsodyMethod, res.Breakdown.ProsodyReason)
	if err := metrics.RecordBreakdown(
		res.Breakdown.Accuracy, res.Breakdown.Fluency, res.Breakdown.Prosody, res.Breakdown.Final,
	); err != nil {
		log.Warn(ctx, "breakdown not recorded", logger.Error(err))
	}
	log.Info(ctx, "reading scored",
		logger.Float64("final", res.Breakdown.Final),
		logger.String("prosody_method", res.Breakdown.ProsodyMethod),
		logger.Int("samples", len(samples)),
	)
	return res, nil
}

// loadReference decodes the prompt's reference recording and extracts its
// features. It backs the reference cache.
func (s *Service) loadReference(ctx context.Context, id string) (prosody.Features, error) {
	prompt, err := s.catalog.Get(id)
	if err != nil {
		return nil, err
	}
	path := s.catalog.ReferencePath(prompt)
	if path == "" {
		return nil, fmt.Errorf("%w: prompt %q has no reference_wav", ErrReferenceUnavailable, id)
	}
	samples, err := s.decoder.DecodeFile(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrReferenceUnavailable, path, err)
	}
	return s.pipeline.Extractor().Extract(samples), nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrBackpressure):
		return "backpressure"
	case errors.Is(err, ErrReferenceUnavailable):
		return "reference_unavailable"
	case errors.Is(err, prompts.ErrNotFound):
		return "unknown_prompt"
	case errors.Is(err, scoring.ErrDecode):
		return "decode_error"
	case errors.Is(err, scoring.ErrTranscription):
		return "transcription_error"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "error"
	}
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Started:            s.started,
		WorkerCount:        s.workerCount,
		QueueCapacity:      s.queueSize,
		Prompts:            len(s.catalog.All()),
		RequestTimeoutSecs: int(s.requestTimeout / time.Second),
	}
	if s.queue != nil {
		st.QueueLength = s.queue.Len(ctx)
	}
	if s.references != nil {
		st.CachedReferences = s.references.Len()
	}
	return st
}
