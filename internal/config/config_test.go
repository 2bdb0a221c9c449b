package config_test

import (
	"context"
	"errors"
	"runtime"
	"testing"

	"github.com/okian/readaloud/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.QueueSize, convey.ShouldEqual, 256)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, max(1, runtime.NumCPU()/2))
			convey.So(cfg.Language, convey.ShouldEqual, "en")
			convey.So(cfg.ASRBackend, convey.ShouldEqual, config.BackendOpenAI)
			convey.So(cfg.WindowSize, convey.ShouldEqual, 512)
			convey.So(cfg.HopSize, convey.ShouldEqual, 160)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given configs that break a rule", t, func() {
		cases := map[string]func(c *config.Config){
			"empty addr":       func(c *config.Config) { c.Addr = "" },
			"unknown backend":  func(c *config.Config) { c.ASRBackend = "vosk" },
			"whisper no model": func(c *config.Config) { c.ASRBackend = config.BackendWhisper },
			"no prompts":       func(c *config.Config) { c.PromptsPath = "" },
			"zero hop":         func(c *config.Config) { c.HopSize = 0 },
			"negative weight":  func(c *config.Config) { c.WeightFluency = -0.1 },
			"weights not one":  func(c *config.Config) { c.WeightProsody = 0.5 },
		}
		for name, mutate := range cases {
			cfg := config.New(context.Background())
			mutate(cfg)

			err := cfg.Validate()
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			convey.So(name, convey.ShouldNotBeEmpty)
		}

		convey.Convey("And whisper with a model path is valid", func() {
			cfg := config.New(context.Background())
			cfg.ASRBackend = config.BackendWhisper
			cfg.WhisperModelPath = "/models/ggml-base.en.bin"
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}
