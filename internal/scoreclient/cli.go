package scoreclient

import (
	"fmt"
	"io"
	"os"

	"github.com/okian/readaloud/pkg/logger"
)

const logFilePermission = 0o600

// SetupLogging initializes the logger, teeing to logFile when given. The
// returned function closes the file.
func SetupLogging(logFile string) (func(), error) {
	if logFile == "" {
		if err := logger.Init(); err != nil {
			return nil, fmt.Errorf("failed to initialize logger: %w", err)
		}
		return func() {}, nil
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}
	if err := logger.Init(logger.WithOutput(io.MultiWriter(os.Stdout, file))); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return func() { _ = file.Close() }, nil
}

// ShowHelp prints usage information for the score client.
func ShowHelp() {
	_, _ = os.Stdout.WriteString(`readaloud score client
======================

Submits recordings to a running scoring server and prints the scores.

Usage:
  score-client [options] recording.wav [more.wav ...]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -prompt string
        Prompt id to score against (default: the prompt served by /test)
  -repeat int
        Submit each recording this many times (default 1)
  -workers int
        Concurrent submissions (default 4)
  -timeout duration
        HTTP request timeout (default 2m)
  -output string
        Write every response to this JSON file
  -log string
        Also write logs to this file
  -verbose
        Log every response
  -help
        Show this help message

Examples:
  score-client sample.wav
  score-client -prompt p1 -repeat 20 -workers 8 sample.wav other.webm
`)
}
