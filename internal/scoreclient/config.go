package scoreclient

import "time"

// Config holds configuration for a scoring run.
type Config struct {
	BaseURL    string        // Base URL of the service
	PromptID   string        // Prompt to score against; empty uses GET /test
	Files      []string      // Recordings to submit
	Repeat     int           // Times each file is submitted
	Workers    int           // Concurrent submissions
	Timeout    time.Duration // Per-request HTTP timeout
	OutputFile string        // Optional JSON file for the responses
	Verbose    bool          // Log every response
}

// Prompt is the shape of GET /test.
type Prompt struct {
	PromptID  string   `json:"prompt_id"`
	Sentences []string `json:"sentences"`
}

// Scores holds the rounded scores of a response.
type Scores struct {
	Final    float64 `json:"final"`
	Accuracy float64 `json:"accuracy"`
	Fluency  float64 `json:"fluency"`
	Prosody  float64 `json:"prosody"`
}

// WordTiming is one recognized word.
type WordTiming struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Details is the diagnostic part of a response.
type Details struct {
	Transcript    string       `json:"transcript"`
	WordTimings   []WordTiming `json:"word_timings"`
	SpeechRateWPM float64      `json:"speech_rate_wpm"`
}

// ScoreResponse is the body of a successful POST /score.
type ScoreResponse struct {
	RequestID          string  `json:"request_id"`
	PromptID           string  `json:"prompt_id"`
	FrontendDurationMS float64 `json:"frontend_duration_ms"`
	Scores             Scores  `json:"scores"`
	ProsodyMethod      string  `json:"prosody_method"`
	Details            Details `json:"details"`
}

// Result is the outcome of one submission.
type Result struct {
	File     string         `json:"file"`
	Status   int            `json:"status"`
	Code     string         `json:"code,omitempty"`
	Response *ScoreResponse `json:"response,omitempty"`
	Latency  time.Duration  `json:"latency_ns"`
}

// Stats summarizes a run.
type Stats struct {
	Submitted    int
	Succeeded    int
	Failed       int
	Backpressure int
	MeanFinal    float64
	Duration     time.Duration
}
