package config

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment conventions.
const (
	EnvPrefix     = "READALOUD_"
	EnvConfigFile = "READALOUD_CONFIG"

	weightTolerance = 1e-6
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) if READALOUD_CONFIG is set
//  3. env (prefix READALOUD_)
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)

	k := koanf.New(".")

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// READALOUD_QUEUE_SIZE -> queue_size; flat keys keep their underscores.
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail late at startup.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.ASRBackend != BackendOpenAI && c.ASRBackend != BackendWhisper:
		return fmt.Errorf("%w: asr_backend must be %q or %q, got %q", ErrInvalidConfig, BackendOpenAI, BackendWhisper, c.ASRBackend)
	case c.ASRBackend == BackendWhisper && c.WhisperModelPath == "":
		return fmt.Errorf("%w: whisper_model_path is required for the whisper backend", ErrInvalidConfig)
	case c.PromptsPath == "":
		return fmt.Errorf("%w: prompts_path must not be empty", ErrInvalidConfig)
	case c.WindowSize <= 0 || c.HopSize <= 0:
		return fmt.Errorf("%w: window_size and hop_size must be positive", ErrInvalidConfig)
	case c.WeightAccuracy < 0 || c.WeightFluency < 0 || c.WeightProsody < 0:
		return fmt.Errorf("%w: weights must not be negative", ErrInvalidConfig)
	}
	if sum := c.WeightAccuracy + c.WeightFluency + c.WeightProsody; math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("%w: weights must sum to 1, got %.4f", ErrInvalidConfig, sum)
	}
	return nil
}
