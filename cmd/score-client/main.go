package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/readaloud/internal/scoreclient"
)

const (
	defaultWorkers = 4
	defaultTimeout = 2 * time.Minute
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:9080", "Base URL of the service")
		promptID   = flag.String("prompt", "", "Prompt id (default: the prompt served by /test)")
		repeat     = flag.Int("repeat", 1, "Submit each recording this many times")
		workers    = flag.Int("workers", defaultWorkers, "Concurrent submissions")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		outputFile = flag.String("output", "", "Write every response to this JSON file")
		logFile    = flag.String("log", "", "Also write logs to this file")
		verbose    = flag.Bool("verbose", false, "Log every response")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help || flag.NArg() == 0 {
		scoreclient.ShowHelp()
		return
	}

	closeLog, err := scoreclient.SetupLogging(*logFile)
	if err != nil {
		_, _ = os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := &scoreclient.Config{
		BaseURL:    *baseURL,
		PromptID:   *promptID,
		Files:      flag.Args(),
		Repeat:     *repeat,
		Workers:    *workers,
		Timeout:    *timeout,
		OutputFile: *outputFile,
		Verbose:    *verbose,
	}
	stats, err := scoreclient.Run(ctx, cfg)
	if err != nil {
		_, _ = os.Stderr.WriteString("Run failed: " + err.Error() + "\n")
		os.Exit(1)
	}
	if stats.Failed > 0 {
		os.Exit(2)
	}
}
