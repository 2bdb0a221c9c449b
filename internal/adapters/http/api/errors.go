package api

import (
	"errors"
	"fmt"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest    = errors.New("bad request")
	ErrMissingAudio  = errors.New("missing audio file")
	ErrBackpressure  = errors.New("scoring queue is full, retry later")
	ErrUnknownPrompt = errors.New("unknown prompt_id")
	ErrDecode        = errors.New("audio decode failed")
	ErrReference     = errors.New("reference audio unavailable")
	ErrTranscription = errors.New("transcription failed")
	ErrTimeout       = errors.New("scoring timed out")
	ErrUnavailable   = errors.New("service unavailable")
	ErrInternal      = errors.New("internal error")
)

// kindError pairs an operation and a public kind with an optional cause.
type kindError struct {
	op    string
	kind  error
	cause error
}

func (e *kindError) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("%s: %v", e.op, e.kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.op, e.kind, e.cause)
}

func (e *kindError) Unwrap() []error {
	if e.cause == nil {
		return []error{e.kind}
	}
	return []error{e.kind, e.cause}
}

// public is the client-facing message: the kind, plus the detail of a
// bad request.
func (e *kindError) public() string {
	if errors.Is(e.kind, ErrBadRequest) && e.cause != nil {
		return e.cause.Error()
	}
	return e.kind.Error()
}

// NewKind returns an error of kind raised by op.
func NewKind(op string, kind error) error {
	return &kindError{op: op, kind: kind}
}

// WrapKind returns an error of kind raised by op and caused by err.
func WrapKind(op string, kind, err error) error {
	return &kindError{op: op, kind: kind, cause: err}
}

// Wrap prefixes err with op.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}
