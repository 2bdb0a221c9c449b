//go:build !whisper

package whisper

import (
	"context"

	"github.com/okian/readaloud/internal/domain/model"
)

// Transcriber is a placeholder when whisper.cpp is not compiled in.
type Transcriber struct{}

// New always fails with ErrDisabled.
func New(_ string, _ ...Option) (*Transcriber, error) {
	return nil, ErrDisabled
}

// Close is a no-op.
func (t *Transcriber) Close() error { return nil }

// Transcribe always fails with ErrDisabled.
func (t *Transcriber) Transcribe(context.Context, []float32, int, string) (model.Transcript, error) {
	return model.Transcript{}, ErrDisabled
}
