package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/readaloud/internal/adapters/prompts"
	"github.com/okian/readaloud/internal/domain/scoring"
	"github.com/okian/readaloud/internal/domain/types"
	"github.com/okian/readaloud/pkg/logger"
)

// multipartMemory is how much of a form is held in memory before spilling to disk.
const multipartMemory = 8 << 20

// ScoreDependencies is what the score handler needs.
type ScoreDependencies interface {
	Score(ctx context.Context, in types.ScoreInput) (types.ScoreResult, error)
}

// ScoreHandler handles POST /score.
type ScoreHandler struct {
	deps     ScoreDependencies
	maxBytes int64
	logger   logger.Logger
}

// NewScoreHandler creates a score handler.
func NewScoreHandler(deps ScoreDependencies, maxBytes int64, l logger.Logger) *ScoreHandler {
	return &ScoreHandler{deps: deps, maxBytes: maxBytes, logger: l}
}

// HandleScore handles POST /score multipart requests.
func (h *ScoreHandler) HandleScore(w http.ResponseWriter, r *http.Request) {
	const op = "api.score"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	in, err := h.parse(w, r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large",
				WrapKind(op, ErrBadRequest, fmt.Errorf("upload exceeds %d bytes", tooLarge.Limit)))
		case errors.Is(err, ErrMissingAudio):
			writeError(w, http.StatusBadRequest, "missing_audio", NewKind(op, ErrMissingAudio))
		default:
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		}
		return
	}

	res, err := h.deps.Score(r.Context(), in)
	if err != nil {
		status, code, kind := classify(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error(r.Context(), "scoring failed",
				logger.String("prompt_id", in.PromptID),
				logger.String("code", code),
				logger.Error(Wrap(op, err)),
			)
		}
		writeError(w, status, code, WrapKind(op, kind, err))
		return
	}
	writeJSON(w, http.StatusOK, newScoreResponse(res))
}

func (h *ScoreHandler) parse(w http.ResponseWriter, r *http.Request) (types.ScoreInput, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return types.ScoreInput{}, err
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	in := types.ScoreInput{PromptID: strings.TrimSpace(r.FormValue("prompt_id"))}
	if in.PromptID == "" {
		return in, errors.New("missing prompt_id")
	}
	var err error
	if in.StartedMS, err = formFloat(r, "started_ms"); err != nil {
		return in, err
	}
	if in.EndedMS, err = formFloat(r, "ended_ms"); err != nil {
		return in, err
	}

	file, _, err := r.FormFile("audio")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return in, ErrMissingAudio
		}
		return in, err
	}
	defer func() { _ = file.Close() }()

	if in.Audio, err = io.ReadAll(file); err != nil {
		return in, fmt.Errorf("read audio: %w", err)
	}
	if len(in.Audio) == 0 {
		return in, ErrMissingAudio
	}
	return in, nil
}

func formFloat(r *http.Request, key string) (float64, error) {
	raw := strings.TrimSpace(r.FormValue(key))
	if raw == "" {
		return 0, fmt.Errorf("missing %s", key)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s; must be a number", key)
	}
	return v, nil
}

// classify maps a scoring failure to status, code and public kind.
// Reference failures are checked before decode failures since a broken
// reference file wraps both.
func classify(err error) (int, string, error) {
	switch {
	case errors.Is(err, types.ErrBackpressure):
		return http.StatusTooManyRequests, "backpressure", ErrBackpressure
	case errors.Is(err, types.ErrNotStarted):
		return http.StatusServiceUnavailable, "unavailable", ErrUnavailable
	case errors.Is(err, types.ErrReferenceUnavailable):
		return http.StatusInternalServerError, "reference_unavailable", ErrReference
	case errors.Is(err, prompts.ErrNotFound):
		return http.StatusBadRequest, "unknown_prompt", ErrUnknownPrompt
	case errors.Is(err, scoring.ErrDecode):
		return http.StatusBadRequest, "audio_decode_failed", ErrDecode
	case errors.Is(err, scoring.ErrTranscription):
		return http.StatusBadGateway, "transcription_failed", ErrTranscription
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout", ErrTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout, "cancelled", ErrTimeout
	default:
		return http.StatusInternalServerError, "internal_error", ErrInternal
	}
}
