//go:build whisper

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/okian/readaloud/internal/adapters/audio"
	"github.com/okian/readaloud/internal/domain/model"
	"github.com/okian/readaloud/pkg/logger"
)

// Transcriber implements scoring.Transcriber with a whisper.cpp model that
// is loaded once and shared. Each call gets its own context; calls are
// serialized because a single model is not re-entrant on every backend.
type Transcriber struct {
	model whisperlib.Model
	opts  options
	mu    sync.Mutex
}

// New loads the model at modelPath.
func New(modelPath string, opts ...Option) (*Transcriber, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrModelNotFound, modelPath, err)
	}
	m, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model: %w", err)
	}
	return &Transcriber{model: m, opts: newOptions(opts)}, nil
}

// Close releases the model.
func (t *Transcriber) Close() error {
	return t.model.Close()
}

// Transcribe runs inference with per-word segmentation.
func (t *Transcriber) Transcribe(ctx context.Context, samples []float32, sampleRate int, language string) (model.Transcript, error) {
	if err := ctx.Err(); err != nil {
		return model.Transcript{}, err
	}
	samples = audio.Resample(samples, sampleRate, whisperlib.SampleRate)

	t.mu.Lock()
	defer t.mu.Unlock()

	wctx, err := t.model.NewContext()
	if err != nil {
		return model.Transcript{}, fmt.Errorf("whisper: create context: %w", err)
	}
	if language != "" {
		if err := wctx.SetLanguage(language); err != nil {
			t.opts.logger.Warn(ctx, "failed to set language, using default",
				logger.String("language", language), logger.Error(err))
		}
	}
	if t.opts.threads > 0 {
		wctx.SetThreads(uint(t.opts.threads))
	}
	wctx.SetTokenTimestamps(true)
	wctx.SetSplitOnWord(true)
	wctx.SetMaxSegmentLength(1)

	start := time.Now()
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return model.Transcript{}, fmt.Errorf("whisper: process audio: %w", err)
	}

	var segs []segment
	for {
		s, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return model.Transcript{}, fmt.Errorf("whisper: read segment: %w", err)
		}
		segs = append(segs, segment{text: s.Text, start: s.Start.Seconds(), end: s.End.Seconds()})
	}

	out := toTranscript(segs)
	t.opts.logger.Debug(ctx, "whisper transcription done",
		logger.Int("segments", len(segs)),
		logger.Int("words", len(out.Words)),
		logger.Any("elapsed", time.Since(start)),
	)
	return out, nil
}
