// Package audio turns uploaded recordings into mono float32 PCM at a fixed
// sample rate. RIFF/WAVE PCM is decoded in-process; any other container is
// handed to ffmpeg.
package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/okian/readaloud/internal/domain/scoring"
	"github.com/okian/readaloud/pkg/logger"
)

// Defaults.
const (
	SampleRate = 16000

	defaultFFmpegPath = "ffmpeg"
	defaultTimeout    = 30 * time.Second
	maxStderrBytes    = 4 << 10
	wavFormatPCM      = 1
)

// Decoder converts raw uploads to PCM. It is safe for concurrent use.
type Decoder struct {
	ffmpegPath string
	sampleRate int
	timeout    time.Duration
	logger     logger.Logger
}

// NewDecoder creates a Decoder with configuration options.
func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{
		ffmpegPath: defaultFFmpegPath,
		sampleRate: SampleRate,
		timeout:    defaultTimeout,
		logger:     logger.Get().Named("audio"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SampleRate returns the output rate.
func (d *Decoder) SampleRate() int { return d.sampleRate }

// Decode returns mono samples in [-1,1] at the decoder's sample rate.
// Failures wrap scoring.ErrDecode.
func (d *Decoder) Decode(ctx context.Context, data []byte) ([]float32, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", scoring.ErrDecode)
	}

	samples, err := d.decodeWAV(data)
	if err == nil {
		return samples, nil
	}
	if !errors.Is(err, errNotPCMWAV) {
		return nil, err
	}

	if d.ffmpegPath == "" {
		return nil, fmt.Errorf("%w: unsupported container and ffmpeg disabled", scoring.ErrDecode)
	}
	return d.decodeFFmpeg(ctx, data)
}

// DecodeFile reads and decodes a file from disk.
func (d *Decoder) DecodeFile(ctx context.Context, path string) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", scoring.ErrDecode, path, err)
	}
	return d.Decode(ctx, data)
}

var errNotPCMWAV = errors.New("not a PCM wav")

func (d *Decoder) decodeWAV(data []byte) ([]float32, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() || dec.WavAudioFormat != wavFormatPCM {
		return nil, errNotPCMWAV
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: wav: %w", scoring.ErrDecode, err)
	}
	if buf.Format == nil || buf.Format.NumChannels < 1 || buf.Format.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: wav: missing format", scoring.ErrDecode)
	}

	mono := Downmix(intToFloat(buf), buf.Format.NumChannels)
	return Resample(mono, buf.Format.SampleRate, d.sampleRate), nil
}

// intToFloat scales integer PCM by its source bit depth into [-1,1].
func intToFloat(buf *goaudio.IntBuffer) []float32 {
	depth := buf.SourceBitDepth
	if depth <= 0 {
		depth = 16
	}
	scale := float32(math.Pow(2, float64(depth-1)))
	out := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		// 8-bit WAV is unsigned.
		if depth == 8 {
			v -= 128
		}
		out[i] = float32(v) / scale
	}
	return out
}

func (d *Decoder) decodeFFmpeg(ctx context.Context, data []byte) ([]float32, error) {
	tmp, err := os.CreateTemp("", "readaloud-*.upload")
	if err != nil {
		return nil, fmt.Errorf("%w: temp file: %w", scoring.ErrDecode, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("%w: temp file: %w", scoring.ErrDecode, err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("%w: temp file: %w", scoring.ErrDecode, err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	args := []string{
		"-hide_banner", "-loglevel", "error", "-nostdin",
		"-i", tmp.Name(),
		"-ac", "1",
		"-ar", strconv.Itoa(d.sampleRate),
		"-f", "f32le",
		"pipe:1",
	}
	cmd := exec.CommandContext(ctx, d.ffmpegPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: ffmpeg: %w", scoring.ErrDecode, ctxErr)
		}
		detail := strings.TrimSpace(stderr.String())
		if len(detail) > maxStderrBytes {
			detail = detail[len(detail)-maxStderrBytes:]
		}
		if detail == "" {
			detail = err.Error()
		}
		return nil, fmt.Errorf("%w: ffmpeg: %s", scoring.ErrDecode, detail)
	}
	d.logger.Debug(ctx, "ffmpeg decoded upload",
		logger.Int("bytes_in", len(data)),
		logger.Int("bytes_out", stdout.Len()),
		logger.Any("elapsed", time.Since(start)),
	)

	return parseF32LE(stdout.Bytes()), nil
}

// parseF32LE reads little-endian float32 samples, ignoring a trailing partial sample.
func parseF32LE(raw []byte) []float32 {
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out
}
