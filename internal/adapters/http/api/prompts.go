package api

import (
	"net/http"

	"github.com/okian/readaloud/internal/adapters/prompts"
)

// PromptDependencies exposes the prompt catalog.
type PromptDependencies interface {
	DefaultPrompt() prompts.Prompt
	Prompts() []prompts.Prompt
}

// PromptsHandler serves GET /test and GET /prompts.
type PromptsHandler struct {
	deps PromptDependencies
}

// NewPromptsHandler creates a prompts handler.
func NewPromptsHandler(deps PromptDependencies) *PromptsHandler {
	return &PromptsHandler{deps: deps}
}

// HandleTest returns the first prompt with its sentences.
func (h *PromptsHandler) HandleTest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, toPromptResponse(h.deps.DefaultPrompt()))
}

// HandleList returns every prompt in catalog order.
func (h *PromptsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	all := h.deps.Prompts()
	out := make([]promptResponse, len(all))
	for i, p := range all {
		out[i] = toPromptResponse(p)
	}
	writeJSON(w, http.StatusOK, map[string]any{"prompts": out})
}

func toPromptResponse(p prompts.Prompt) promptResponse {
	lines := p.Lines
	if lines == nil {
		lines = []string{}
	}
	return promptResponse{PromptID: p.ID, Sentences: lines}
}
