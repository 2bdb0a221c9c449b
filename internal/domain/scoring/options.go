package scoring

import (
	"github.com/okian/readaloud/internal/domain/accuracy"
	"github.com/okian/readaloud/internal/domain/prosody"
	"github.com/okian/readaloud/pkg/logger"
)

// Option applies a configuration option to the Pipeline.
type Option func(*Pipeline)

// WithWeights sets the blend weights. Invalid weights are ignored.
func WithWeights(w Weights) Option {
	return func(p *Pipeline) {
		if w.Validate() == nil {
			p.weights = w
		}
	}
}

// WithLanguage sets the language hint passed to the transcriber.
func WithLanguage(lang string) Option {
	return func(p *Pipeline) {
		if lang != "" {
			p.language = lang
		}
	}
}

// WithSampleRate sets the rate of the PCM handed to the pipeline.
func WithSampleRate(rate int) Option {
	return func(p *Pipeline) {
		if rate > 0 {
			p.sampleRate = rate
		}
	}
}

// WithAccuracy replaces the accuracy evaluator.
func WithAccuracy(e *accuracy.Evaluator) Option {
	return func(p *Pipeline) {
		if e != nil {
			p.accuracy = e
		}
	}
}

// WithProsody replaces the prosody evaluator.
func WithProsody(e *prosody.Evaluator) Option {
	return func(p *Pipeline) {
		if e != nil {
			p.prosody = e
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}
