// Package whisper transcribes speech in-process with whisper.cpp.
//
// The native engine is compiled only with the "whisper" build tag, which
// needs libwhisper and its headers at link time. Without the tag New returns
// ErrDisabled.
package whisper

import (
	"errors"
	"strings"

	"github.com/okian/readaloud/internal/domain/model"
	"github.com/okian/readaloud/pkg/logger"
)

// ErrDisabled is returned when the binary was built without whisper.cpp.
var ErrDisabled = errors.New("whisper: native engine disabled (build with -tags whisper)")

// ErrModelNotFound is returned when the model file does not exist.
var ErrModelNotFound = errors.New("whisper: model not found")

// Option configures a Transcriber.
type Option func(*options)

type options struct {
	threads int
	logger  logger.Logger
}

// WithThreads sets the number of inference threads; 0 keeps the engine default.
func WithThreads(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.threads = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func newOptions(opts []Option) options {
	o := options{logger: logger.Get().Named("asr.whisper")}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// segment is one decoded piece of speech with offsets in seconds.
type segment struct {
	text       string
	start, end float64
}

// toTranscript joins segments into text and word timings. Segments that hold
// several words share their span evenly.
func toTranscript(segs []segment) model.Transcript {
	var (
		parts []string
		words []model.WordTiming
	)
	for _, s := range segs {
		fields := strings.Fields(s.text)
		if len(fields) == 0 {
			continue
		}
		parts = append(parts, fields...)
		step := (s.end - s.start) / float64(len(fields))
		for i, f := range fields {
			ws := s.start + step*float64(i)
			words = append(words, model.WordTiming{Word: f, Start: ws, End: ws + step})
		}
	}
	return model.Transcript{Text: strings.Join(parts, " "), Words: words}
}
