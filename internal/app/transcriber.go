package service

import (
	"context"
	"time"

	"github.com/okian/readaloud/internal/domain/model"
	"github.com/okian/readaloud/internal/domain/scoring"
	"github.com/okian/readaloud/pkg/metrics"
)

// instrumented records latency and failures of the wrapped transcriber.
type instrumented struct {
	next    scoring.Transcriber
	backend string
}

// InstrumentTranscriber wraps tr with transcription metrics labelled by backend.
func InstrumentTranscriber(tr scoring.Transcriber, backend string) scoring.Transcriber {
	if tr == nil {
		return nil
	}
	return &instrumented{next: tr, backend: backend}
}

func (t *instrumented) Transcribe(ctx context.Context, samples []float32, sampleRate int, language string) (model.Transcript, error) {
	start := time.Now()
	tr, err := t.next.Transcribe(ctx, samples, sampleRate, language)
	metrics.RecordTranscriptionLatency(float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.RecordErrorByComponent("transcriber", t.backend)
	}
	return tr, err
}
