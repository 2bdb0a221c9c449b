// Package scoreclient submits recordings to a running scoring server and
// summarizes the responses.
package scoreclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-audio/wav"
	"golang.org/x/sync/errgroup"

	"github.com/okian/readaloud/pkg/logger"
)

const outputFilePermission = 0o600

// ErrNoFiles is returned when there is nothing to submit.
var ErrNoFiles = errors.New("no recordings given")

// Run checks the server, submits every file cfg.Repeat times with at most
// cfg.Workers in flight, and returns the summary.
func Run(ctx context.Context, cfg *Config) (Stats, error) {
	log := logger.Get().Named("scoreclient")
	start := time.Now()

	if len(cfg.Files) == 0 {
		return Stats{}, ErrNoFiles
	}
	client := NewClient(cfg.BaseURL, cfg.Timeout)

	if err := client.Health(ctx); err != nil {
		return Stats{}, fmt.Errorf("service health check failed: %w", err)
	}

	promptID := cfg.PromptID
	if promptID == "" {
		p, err := client.Test(ctx)
		if err != nil {
			return Stats{}, fmt.Errorf("fetch default prompt: %w", err)
		}
		promptID = p.PromptID
		log.Info(ctx, "using default prompt",
			logger.String("prompt_id", promptID),
			logger.Int("sentences", len(p.Sentences)),
		)
	}

	recordings, err := loadRecordings(cfg.Files)
	if err != nil {
		return Stats{}, err
	}

	repeat := max(1, cfg.Repeat)
	var (
		mu      sync.Mutex
		results = make([]Result, 0, len(recordings)*repeat)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, cfg.Workers))
	for i := 0; i < repeat; i++ {
		for _, rec := range recordings {
			g.Go(func() error {
				res, err := client.Score(gctx, promptID, rec.name, rec.data, rec.length)
				if err != nil {
					return fmt.Errorf("%s: %w", rec.name, err)
				}
				if cfg.Verbose {
					logResult(gctx, log, res)
				}
				mu.Lock()
				results = append(results, res)
				mu.Unlock()
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return summarize(results, time.Since(start)), err
	}

	stats := summarize(results, time.Since(start))
	if cfg.OutputFile != "" {
		if err := saveResults(cfg.OutputFile, results); err != nil {
			log.Warn(ctx, "failed to save results", logger.Error(err))
		}
	}
	log.Info(ctx, "final statistics",
		logger.Int("submitted", stats.Submitted),
		logger.Int("succeeded", stats.Succeeded),
		logger.Int("failed", stats.Failed),
		logger.Int("backpressure", stats.Backpressure),
		logger.Float64("mean_final", stats.MeanFinal),
		logger.Duration("duration", stats.Duration),
	)
	return stats, nil
}

type recording struct {
	name   string
	data   []byte
	length time.Duration
}

func loadRecordings(paths []string) ([]recording, error) {
	out := make([]recording, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read recording: %w", err)
		}
		out = append(out, recording{name: p, data: data, length: wavLength(data)})
	}
	return out, nil
}

// wavLength returns the playing time of a WAV file, or zero for anything
// else.
func wavLength(data []byte) time.Duration {
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return 0
	}
	length, err := d.Duration()
	if err != nil {
		return 0
	}
	return length
}

func summarize(results []Result, elapsed time.Duration) Stats {
	st := Stats{Submitted: len(results), Duration: elapsed}
	var total float64
	for _, r := range results {
		switch {
		case r.Response != nil:
			st.Succeeded++
			total += r.Response.Scores.Final
		case r.Status == http.StatusTooManyRequests:
			st.Backpressure++
			st.Failed++
		default:
			st.Failed++
		}
	}
	if st.Succeeded > 0 {
		st.MeanFinal = total / float64(st.Succeeded)
	}
	return st
}

func logResult(ctx context.Context, log logger.Logger, r Result) {
	if r.Response == nil {
		log.Warn(ctx, "reading rejected",
			logger.String("file", r.File),
			logger.Int("status", r.Status),
			logger.String("code", r.Code),
		)
		return
	}
	log.Info(ctx, "reading scored",
		logger.String("file", r.File),
		logger.Float64("final", r.Response.Scores.Final),
		logger.Float64("accuracy", r.Response.Scores.Accuracy),
		logger.Float64("fluency", r.Response.Scores.Fluency),
		logger.Float64("prosody", r.Response.Scores.Prosody),
		logger.String("prosody_method", r.Response.ProsodyMethod),
		logger.String("transcript", r.Response.Details.Transcript),
		logger.Duration("latency", r.Latency),
	)
}

func saveResults(path string, results []Result) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	if err := os.WriteFile(path, data, outputFilePermission); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	return nil
}
