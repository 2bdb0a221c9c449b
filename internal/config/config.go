// Package config defines service configuration and its loading layers.
package config

import (
	"context"
	"runtime"
)

// ASR backends.
const (
	BackendOpenAI  = "openai"
	BackendWhisper = "whisper"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the in-memory scoring job queue.
	QueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of scoring workers, i.e. the number of
	// concurrent transcription calls.
	WorkerCount int `koanf:"worker_count"`
	// RequestTimeoutMS bounds one scoring request end to end.
	RequestTimeoutMS int `koanf:"request_timeout_ms"`
	// MaxUploadBytes caps the multipart body of POST /score.
	MaxUploadBytes int64 `koanf:"max_upload_bytes"`

	// Language is passed to the transcription engine.
	Language string `koanf:"language"`
	// ASRBackend selects openai or whisper.
	ASRBackend string `koanf:"asr_backend"`
	// OpenAIAPIKey, OpenAIBaseURL and OpenAIModel configure the openai backend.
	OpenAIAPIKey  string `koanf:"openai_api_key"`
	OpenAIBaseURL string `koanf:"openai_base_url"`
	OpenAIModel   string `koanf:"openai_model"`
	// WhisperModelPath is the ggml model used by the whisper backend.
	WhisperModelPath string `koanf:"whisper_model_path"`
	// WhisperThreads sets inference threads; 0 keeps the engine default.
	WhisperThreads int `koanf:"whisper_threads"`

	// FFmpegPath decodes non-WAV uploads. Empty disables ffmpeg.
	FFmpegPath string `koanf:"ffmpeg_path"`

	// PromptsPath is the prompt catalog (YAML or JSON).
	PromptsPath string `koanf:"prompts_path"`
	// ReferenceCacheSize bounds cached reference features.
	ReferenceCacheSize int `koanf:"reference_cache_size"`

	// StripPunctuation relaxes accuracy matching of attached punctuation.
	StripPunctuation bool `koanf:"strip_punctuation"`
	// WindowSize and HopSize set the prosody analysis framing in samples.
	WindowSize int `koanf:"window_size"`
	HopSize    int `koanf:"hop_size"`

	// Blend weights; they must sum to 1.
	WeightAccuracy float64 `koanf:"weight_accuracy"`
	WeightFluency  float64 `koanf:"weight_fluency"`
	WeightProsody  float64 `koanf:"weight_prosody"`
}

// New creates a Config with defaults. Context is accepted first to follow
// the project-wide convention.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:           "info",
		LogFormat:          "text",
		Addr:               ":9080",
		QueueSize:          256,
		WorkerCount:        max(1, runtime.NumCPU()/2),
		RequestTimeoutMS:   60_000,
		MaxUploadBytes:     20 << 20,
		Language:           "en",
		ASRBackend:         BackendOpenAI,
		OpenAIModel:        "whisper-1",
		FFmpegPath:         "ffmpeg",
		PromptsPath:        "prompts.json",
		ReferenceCacheSize: 64,
		WindowSize:         512,
		HopSize:            160,
		WeightAccuracy:     0.40,
		WeightFluency:      0.30,
		WeightProsody:      0.30,
	}
}
