// Package scoring runs the reading-assessment pipeline: transcription,
// accuracy, fluency and prosody, blended into a 0..100 final score.
package scoring

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/okian/readaloud/internal/domain/accuracy"
	"github.com/okian/readaloud/internal/domain/fluency"
	"github.com/okian/readaloud/internal/domain/model"
	"github.com/okian/readaloud/internal/domain/prosody"
	"github.com/okian/readaloud/pkg/logger"
)

// Default pipeline configuration.
const (
	DefaultLanguage   = "en"
	DefaultSampleRate = prosody.DefaultSampleRate

	maxFinal        = 100
	weightTolerance = 1e-6
)

// Weights are the blend coefficients of the three sub-scores.
type Weights struct {
	Accuracy float64
	Fluency  float64
	Prosody  float64
}

// DefaultWeights returns 0.40 accuracy, 0.30 fluency, 0.30 prosody.
func DefaultWeights() Weights {
	return Weights{Accuracy: 0.40, Fluency: 0.30, Prosody: 0.30}
}

// Validate checks that weights are non-negative and sum to 1.
func (w Weights) Validate() error {
	if w.Accuracy < 0 || w.Fluency < 0 || w.Prosody < 0 {
		return fmt.Errorf("%w: negative weight", ErrConfig)
	}
	if sum := w.Accuracy + w.Fluency + w.Prosody; math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("%w: weights sum to %.4f, want 1", ErrConfig, sum)
	}
	return nil
}

// Blend returns 100 * (wa*a + wf*f + wp*p) with each sub-score clamped to [0,1].
func (w Weights) Blend(acc, flu, pro float64) float64 {
	return maxFinal * (w.Accuracy*clamp01(acc) + w.Fluency*clamp01(flu) + w.Prosody*clamp01(pro))
}

// Transcriber turns PCM into text with per-word timestamps.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32, sampleRate int, language string) (model.Transcript, error)
}

// Request is one scoring job. ReferenceFeatures, when set, is used instead
// of extracting features from ReferenceAudio.
type Request struct {
	ExpectedText      string
	UserAudio         []float32
	ReferenceAudio    []float32
	ReferenceFeatures prosody.Features
}

// Scorer computes a score breakdown for a request.
type Scorer interface {
	// Score runs the full pipeline, honoring ctx for cancellation.
	Score(ctx context.Context, req Request) (model.Breakdown, error)
}

// Pipeline implements Scorer. It holds no per-request state and is safe for
// concurrent use as long as the Transcriber is.
type Pipeline struct {
	transcriber Transcriber
	accuracy    *accuracy.Evaluator
	prosody     *prosody.Evaluator
	weights     Weights
	language    string
	sampleRate  int
	logger      logger.Logger
}

// New creates a Pipeline around an explicit transcription engine handle.
func New(tr Transcriber, opts ...Option) *Pipeline {
	p := &Pipeline{
		transcriber: tr,
		accuracy:    accuracy.New(),
		prosody:     prosody.New(),
		weights:     DefaultWeights(),
		language:    DefaultLanguage,
		sampleRate:  DefaultSampleRate,
		logger:      logger.Get().Named("scoring"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Weights returns the configured blend weights.
func (p *Pipeline) Weights() Weights { return p.weights }

// Extractor exposes the prosody feature extractor so reference features can
// be precomputed with identical framing.
func (p *Pipeline) Extractor() *prosody.Extractor { return p.prosody.Extractor() }

// Score runs transcription, then the three evaluators, then the blend.
// Only transcription failures abort; prosody failures degrade to the
// fallback branch.
func (p *Pipeline) Score(ctx context.Context, req Request) (model.Breakdown, error) {
	if p.transcriber == nil {
		return model.Breakdown{}, fmt.Errorf("%w: no transcriber", ErrConfig)
	}
	if err := ctx.Err(); err != nil {
		return model.Breakdown{}, fmt.Errorf("context cancelled: %w", err)
	}

	start := time.Now()
	tr, err := p.transcriber.Transcribe(ctx, req.UserAudio, p.sampleRate, p.language)
	if err != nil {
		return model.Breakdown{}, fmt.Errorf("%w: %w", ErrTranscription, err)
	}
	p.logger.Debug(ctx, "transcribed",
		logger.String("text", tr.Text),
		logger.Int("words", len(tr.Words)),
		logger.Any("elapsed", time.Since(start)),
	)

	if !fluency.IsMonotonic(tr.Words) {
		p.logger.Debug(ctx, "word timings out of order, normalizing", logger.Int("words", len(tr.Words)))
	}

	acc := p.accuracy.Compute(req.ExpectedText, tr.Text)
	flu := fluency.Compute(tr.Words, len(model.Words(req.ExpectedText)))
	pro := p.compareProsody(req)

	if pro.Method == prosody.MethodFallback {
		p.logger.Debug(ctx, "prosody fell back to global mean",
			logger.String("reason", pro.Reason),
			logger.Float64("similarity", pro.Similarity),
		)
	}

	timings := tr.Words
	if timings == nil {
		timings = []model.WordTiming{}
	}

	return model.Breakdown{
		Accuracy:      clamp01(acc),
		Fluency:       clamp01(flu),
		Prosody:       clamp01(pro.Similarity),
		Final:         p.weights.Blend(acc, flu, pro.Similarity),
		ProsodyMethod: pro.Method.String(),
		ProsodyReason: pro.Reason,
		Details: model.Details{
			Transcript:    tr.Text,
			WordTimings:   timings,
			SpeechRateWPM: fluency.SpeechRate(tr.Words),
		},
	}, nil
}

func (p *Pipeline) compareProsody(req Request) prosody.Result {
	ex := p.prosody.Extractor()
	user := ex.Extract(req.UserAudio)
	ref := req.ReferenceFeatures
	if ref == nil {
		ref = ex.Extract(req.ReferenceAudio)
	}
	return prosody.CompareFeatures(user, ref)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
