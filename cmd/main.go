package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/okian/readaloud/internal/adapters/asr/openai"
	"github.com/okian/readaloud/internal/adapters/asr/whisper"
	"github.com/okian/readaloud/internal/adapters/audio"
	"github.com/okian/readaloud/internal/adapters/http/api"
	"github.com/okian/readaloud/internal/adapters/http/site"
	"github.com/okian/readaloud/internal/adapters/http/swagger"
	"github.com/okian/readaloud/internal/adapters/prompts"
	app "github.com/okian/readaloud/internal/app"
	"github.com/okian/readaloud/internal/config"
	"github.com/okian/readaloud/internal/domain/accuracy"
	"github.com/okian/readaloud/internal/domain/prosody"
	"github.com/okian/readaloud/internal/domain/scoring"
	"github.com/okian/readaloud/pkg/logger"
	"github.com/okian/readaloud/pkg/metrics"
)

// HTTP server timeout constants. Writes allow for a full scoring job.
const (
	readTimeout               = 30 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	writeTimeoutSlack         = 10 * time.Second
	shutdownTimeout           = 30 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		_, _ = os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg, log); err != nil {
		log.Error(ctx, "server exited", logger.Error(err))
		os.Exit(1)
	}
}

// run builds every component from cfg and serves until ctx ends.
func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	catalog, err := prompts.Load(cfg.PromptsPath)
	if err != nil {
		return fmt.Errorf("load prompts: %w", err)
	}

	tr, closer, err := buildTranscriber(cfg)
	if err != nil {
		return fmt.Errorf("build transcriber: %w", err)
	}
	defer func() { _ = closer.Close() }()

	pipeline, err := buildPipeline(cfg, app.InstrumentTranscriber(tr, cfg.ASRBackend))
	if err != nil {
		return err
	}
	decoder := audio.NewDecoder(
		audio.WithFFmpegPath(cfg.FFmpegPath),
		audio.WithSampleRate(prosody.DefaultSampleRate),
	)

	svc := app.New(pipeline, decoder, catalog,
		app.WithLogger(log.Named("service")),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithReferenceCacheSize(cfg.ReferenceCacheSize),
		app.WithRequestTimeout(requestTimeout(cfg)),
	)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := svc.Stop(stopCtx); err != nil {
			log.Warn(stopCtx, "service stop incomplete", logger.Error(err))
		}
	}()

	go startSystemMetricsUpdater(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newHandler(ctx, svc, cfg),
		ReadTimeout:       readTimeout,
		WriteTimeout:      requestTimeout(cfg) + writeTimeoutSlack,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server",
			logger.String("addr", cfg.Addr),
			logger.String("asr_backend", cfg.ASRBackend),
			logger.Int("prompts", catalog.Len()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return nil
}

// buildTranscriber opens the configured speech recognition backend. The
// returned closer releases native resources.
func buildTranscriber(cfg *config.Config) (scoring.Transcriber, io.Closer, error) {
	switch cfg.ASRBackend {
	case config.BackendWhisper:
		tr, err := whisper.New(cfg.WhisperModelPath,
			whisper.WithThreads(cfg.WhisperThreads),
			whisper.WithLogger(logger.Named("asr.whisper")),
		)
		if err != nil {
			return nil, nil, err
		}
		return tr, tr, nil
	case config.BackendOpenAI:
		tr, err := openai.New(cfg.OpenAIAPIKey,
			openai.WithBaseURL(cfg.OpenAIBaseURL),
			openai.WithModel(cfg.OpenAIModel),
			openai.WithTimeout(requestTimeout(cfg)),
		)
		if err != nil {
			return nil, nil, err
		}
		return tr, closeFunc(func() error { return nil }), nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown asr_backend %q", config.ErrInvalidConfig, cfg.ASRBackend)
	}
}

type closeFunc func() error

func (f closeFunc) Close() error { return f() }

// buildPipeline assembles the scoring pipeline around tr.
func buildPipeline(cfg *config.Config, tr scoring.Transcriber) (*scoring.Pipeline, error) {
	weights := scoring.Weights{
		Accuracy: cfg.WeightAccuracy,
		Fluency:  cfg.WeightFluency,
		Prosody:  cfg.WeightProsody,
	}
	if err := weights.Validate(); err != nil {
		return nil, err
	}

	var accOpts []accuracy.Option
	if cfg.StripPunctuation {
		accOpts = append(accOpts, accuracy.WithPunctuationStripping())
	}

	return scoring.New(tr,
		scoring.WithWeights(weights),
		scoring.WithLanguage(cfg.Language),
		scoring.WithSampleRate(prosody.DefaultSampleRate),
		scoring.WithAccuracy(accuracy.New(accOpts...)),
		scoring.WithProsody(prosody.New(prosody.WithFraming(cfg.WindowSize, cfg.HopSize))),
		scoring.WithLogger(logger.Named("scoring")),
	), nil
}

// newHandler registers every route and wraps the mux with CORS.
func newHandler(ctx context.Context, svc *app.Service, cfg *config.Config) http.Handler {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	site.Register(ctx, mux)
	api.NewServer(svc, svc,
		api.WithMaxUploadBytes(cfg.MaxUploadBytes),
		api.WithLogger(logger.Named("api")),
	).Register(ctx, mux)
	return api.CORS(mux)
}

func requestTimeout(cfg *config.Config) time.Duration {
	return time.Duration(cfg.RequestTimeoutMS) * time.Millisecond
}

// startSystemMetricsUpdater refreshes runtime gauges until ctx ends.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metrics.RefreshInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
