package audio

import (
	"time"

	"github.com/okian/readaloud/pkg/logger"
)

// Option applies a configuration option to the Decoder.
type Option func(*Decoder)

// WithFFmpegPath sets the ffmpeg binary used for non-WAV containers.
// An empty path disables ffmpeg.
func WithFFmpegPath(path string) Option {
	return func(d *Decoder) { d.ffmpegPath = path }
}

// WithSampleRate sets the output sample rate.
func WithSampleRate(rate int) Option {
	return func(d *Decoder) {
		if rate > 0 {
			d.sampleRate = rate
		}
	}
}

// WithTimeout bounds a single ffmpeg invocation.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Decoder) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(d *Decoder) {
		if l != nil {
			d.logger = l
		}
	}
}
