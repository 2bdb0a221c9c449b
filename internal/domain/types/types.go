// Package types contains request and result shapes shared by the service
// and the HTTP layer.
package types

import "github.com/okian/readaloud/internal/domain/model"

// ScoreInput is one submitted reading.
type ScoreInput struct {
	PromptID string
	Audio    []byte
	// StartedMS and EndedMS are client clock readings around the recording.
	StartedMS float64
	EndedMS   float64
}

// ScoreResult is a scored reading.
type ScoreResult struct {
	RequestID          string
	PromptID           string
	FrontendDurationMS float64
	Breakdown          model.Breakdown
}

// Stats reports service state.
type Stats struct {
	Started            bool `json:"started"`
	WorkerCount        int  `json:"worker_count"`
	QueueCapacity      int  `json:"queue_capacity"`
	QueueLength        int  `json:"queue_length"`
	Prompts            int  `json:"prompts"`
	CachedReferences   int  `json:"cached_references"`
	RequestTimeoutSecs int  `json:"request_timeout_secs"`
}
