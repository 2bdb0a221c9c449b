// Package openai transcribes speech through an OpenAI-compatible
// /audio/transcriptions endpoint, requesting word-level timestamps.
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/okian/readaloud/internal/adapters/audio"
	"github.com/okian/readaloud/internal/domain/model"
	"github.com/okian/readaloud/pkg/logger"
)

// Defaults.
const (
	DefaultModel   = openai.Whisper1
	defaultTimeout = 60 * time.Second
	uploadName     = "speech.wav"
)

// ErrNoAPIKey is returned by New when no key is configured.
var ErrNoAPIKey = errors.New("openai: api key is required")

// client is the subset of *openai.Client used here.
type client interface {
	CreateTranscription(ctx context.Context, req openai.AudioRequest) (openai.AudioResponse, error)
}

// Option configures a Transcriber.
type Option func(*Transcriber)

// WithBaseURL points the client at an OpenAI-compatible server.
func WithBaseURL(url string) Option {
	return func(t *Transcriber) { t.baseURL = url }
}

// WithModel sets the transcription model name.
func WithModel(model string) Option {
	return func(t *Transcriber) {
		if model != "" {
			t.model = model
		}
	}
}

// WithTimeout bounds a single transcription call.
func WithTimeout(d time.Duration) Option {
	return func(t *Transcriber) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(t *Transcriber) {
		if l != nil {
			t.logger = l
		}
	}
}

// withClient injects a client; used by tests.
func withClient(c client) Option {
	return func(t *Transcriber) { t.client = c }
}

// Transcriber implements scoring.Transcriber over the OpenAI audio API.
type Transcriber struct {
	client  client
	apiKey  string
	baseURL string
	model   string
	timeout time.Duration
	logger  logger.Logger
}

// New creates a Transcriber. The api key may be empty only when a base URL
// for a self-hosted server is given.
func New(apiKey string, opts ...Option) (*Transcriber, error) {
	t := &Transcriber{
		apiKey:  apiKey,
		model:   DefaultModel,
		timeout: defaultTimeout,
		logger:  logger.Get().Named("asr.openai"),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.client != nil {
		return t, nil
	}
	if t.apiKey == "" && t.baseURL == "" {
		return nil, ErrNoAPIKey
	}

	cfg := openai.DefaultConfig(t.apiKey)
	if t.baseURL != "" {
		cfg.BaseURL = t.baseURL
	}
	t.client = openai.NewClientWithConfig(cfg)
	return t, nil
}

// Transcribe uploads samples as WAV and returns the transcript with word timings.
func (t *Transcriber) Transcribe(ctx context.Context, samples []float32, sampleRate int, language string) (model.Transcript, error) {
	wav, err := audio.EncodeWAV(samples, sampleRate)
	if err != nil {
		return model.Transcript{}, fmt.Errorf("openai: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	start := time.Now()
	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: uploadName,
		Reader:   bytes.NewReader(wav),
		Language: language,
		Format:   openai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []openai.TranscriptionTimestampGranularity{
			openai.TranscriptionTimestampGranularityWord,
			openai.TranscriptionTimestampGranularitySegment,
		},
	})
	if err != nil {
		return model.Transcript{}, fmt.Errorf("openai: create transcription: %w", err)
	}

	words := make([]model.WordTiming, 0, len(resp.Words))
	for _, w := range resp.Words {
		word := strings.TrimSpace(w.Word)
		if word == "" {
			continue
		}
		words = append(words, model.WordTiming{Word: word, Start: w.Start, End: w.End})
	}
	if len(words) == 0 && len(resp.Segments) > 0 {
		for _, s := range resp.Segments {
			words = append(words, spreadSegment(s.Text, s.Start, s.End)...)
		}
		t.logger.Debug(ctx, "no word timestamps returned, spread segments", logger.Int("segments", len(resp.Segments)))
	}

	t.logger.Debug(ctx, "transcription done",
		logger.Int("words", len(words)),
		logger.Float64("audio_seconds", resp.Duration),
		logger.Any("elapsed", time.Since(start)),
	)
	return model.Transcript{Text: strings.TrimSpace(resp.Text), Words: words}, nil
}

// spreadSegment assigns equal slices of a segment's span to its words.
func spreadSegment(text string, start, end float64) []model.WordTiming {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}
	step := (end - start) / float64(len(fields))
	out := make([]model.WordTiming, len(fields))
	for i, f := range fields {
		s := start + step*float64(i)
		out[i] = model.WordTiming{Word: f, Start: s, End: s + step}
	}
	return out
}
