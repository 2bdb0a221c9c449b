// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"

	"github.com/okian/readaloud/internal/adapters/prompts"
	"github.com/okian/readaloud/internal/domain/model"
	"github.com/okian/readaloud/internal/domain/types"
	"github.com/okian/readaloud/pkg/logger"
)

const defaultMaxUploadBytes int64 = 20 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Score runs one reading through the pipeline.
	Score(ctx context.Context, in types.ScoreInput) (types.ScoreResult, error)

	// DefaultPrompt and Prompts expose the prompt catalog.
	DefaultPrompt() prompts.Prompt
	Prompts() []prompts.Prompt
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	promptsHandler *PromptsHandler
	scoreHandler   *ScoreHandler
}

// Option configures the Server.
type Option func(*serverOptions)

type serverOptions struct {
	maxUploadBytes int64
	logger         logger.Logger
}

// WithMaxUploadBytes caps the size of a /score request body.
func WithMaxUploadBytes(n int64) Option {
	return func(o *serverOptions) {
		if n > 0 {
			o.maxUploadBytes = n
		}
	}
}

// WithLogger sets the logger used for failed requests.
func WithLogger(l logger.Logger) Option {
	return func(o *serverOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	o := serverOptions{maxUploadBytes: defaultMaxUploadBytes}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Get().Named("api")
	}
	return &Server{
		healthHandler:  NewHealthHandler(),
		statsHandler:   NewStatsHandler(statsProvider),
		promptsHandler: NewPromptsHandler(deps),
		scoreHandler:   NewScoreHandler(deps, o.maxUploadBytes, o.logger),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/test", MetricsMiddleware(s.promptsHandler.HandleTest, "test"))
	mux.HandleFunc("/prompts", MetricsMiddleware(s.promptsHandler.HandleList, "prompts"))
	mux.HandleFunc("/score", MetricsMiddleware(s.scoreHandler.HandleScore, "score"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// promptResponse is the shape of GET /test and of each /prompts item.
type promptResponse struct {
	PromptID  string   `json:"prompt_id"`
	Sentences []string `json:"sentences"`
}

type scoresResponse struct {
	Final    float64 `json:"final"`
	Accuracy float64 `json:"accuracy"`
	Fluency  float64 `json:"fluency"`
	Prosody  float64 `json:"prosody"`
}

type scoreResponse struct {
	RequestID          string         `json:"request_id"`
	PromptID           string         `json:"prompt_id"`
	FrontendDurationMS float64        `json:"frontend_duration_ms"`
	Scores             scoresResponse `json:"scores"`
	ProsodyMethod      string         `json:"prosody_method"`
	Details            model.Details  `json:"details"`
}

func newScoreResponse(res types.ScoreResult) scoreResponse { //nolint:gocritic // hugeParam
	b := res.Breakdown
	return scoreResponse{
		RequestID:          res.RequestID,
		PromptID:           res.PromptID,
		FrontendDurationMS: res.FrontendDurationMS,
		Scores: scoresResponse{
			Final:    round(b.Final, 1),
			Accuracy: round(b.Accuracy, 3),
			Fluency:  round(b.Fluency, 3),
			Prosody:  round(b.Prosody, 3),
		},
		ProsodyMethod: b.ProsodyMethod,
		Details:       b.Details,
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError answers with code and the public part of err. Internal causes
// wrapped inside a kind error are never sent to the client.
func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	var ke *kindError
	if errors.As(err, &ke) {
		msg = ke.public()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
