package scoring

import (
	"errors"

	"github.com/okian/readaloud/internal/domain/prosody"
)

// Sentinel error kinds for the scoring pipeline. Callers match with errors.Is.
var (
	// ErrDecode marks audio that could not be decoded. Fatal for the request.
	ErrDecode = errors.New("audio decode failed")
	// ErrTranscription marks a failure of the speech recognition stage. Fatal for the request.
	ErrTranscription = errors.New("transcription failed")
	// ErrCompute marks a numerical failure inside prosody; it is recovered
	// internally and never returned by Score.
	ErrCompute = prosody.ErrCompute
	// ErrConfig marks a missing prompt, missing reference audio or bad setup.
	ErrConfig = errors.New("scoring configuration error")
)
