package audio_test

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/readaloud/internal/adapters/audio"
	"github.com/okian/readaloud/internal/domain/scoring"
	"github.com/okian/readaloud/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func sine(n, rate int, freq float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return out
}

func TestDecodeWAV(t *testing.T) {
	Convey("Given a 16 kHz mono WAV", t, func() {
		in := sine(1600, 16000, 440)
		data, err := audio.EncodeWAV(in, 16000)
		So(err, ShouldBeNil)
		So(string(data[:4]), ShouldEqual, "RIFF")

		Convey("When decoded without ffmpeg", func() {
			d := audio.NewDecoder(audio.WithFFmpegPath(""))
			out, err := d.Decode(context.Background(), data)

			Convey("Then samples round-trip within 16-bit precision", func() {
				So(err, ShouldBeNil)
				So(out, ShouldHaveLength, len(in))
				for i := range in {
					So(math.Abs(float64(out[i]-in[i])), ShouldBeLessThan, 1e-4)
				}
			})
		})

		Convey("When decoded to 8 kHz", func() {
			d := audio.NewDecoder(audio.WithFFmpegPath(""), audio.WithSampleRate(8000))
			out, err := d.Decode(context.Background(), data)

			So(err, ShouldBeNil)
			So(out, ShouldHaveLength, 800)
			So(d.SampleRate(), ShouldEqual, 8000)
		})

		Convey("When read from disk", func() {
			path := filepath.Join(t.TempDir(), "ref.wav")
			So(os.WriteFile(path, data, 0o600), ShouldBeNil)

			out, err := audio.NewDecoder().DecodeFile(context.Background(), path)
			So(err, ShouldBeNil)
			So(out, ShouldHaveLength, len(in))
		})
	})

	Convey("Given a 48 kHz WAV", t, func() {
		data, err := audio.EncodeWAV(sine(4800, 48000, 440), 48000)
		So(err, ShouldBeNil)

		out, err := audio.NewDecoder(audio.WithFFmpegPath("")).Decode(context.Background(), data)

		Convey("Then it is resampled to 16 kHz", func() {
			So(err, ShouldBeNil)
			So(out, ShouldHaveLength, 1600)
		})
	})
}

func TestDecodeFailures(t *testing.T) {
	Convey("Given unusable input", t, func() {
		ctx := context.Background()

		Convey("When the upload is empty", func() {
			_, err := audio.NewDecoder().Decode(ctx, nil)
			So(errors.Is(err, scoring.ErrDecode), ShouldBeTrue)
		})

		Convey("When the container is unknown and ffmpeg is disabled", func() {
			_, err := audio.NewDecoder(audio.WithFFmpegPath("")).Decode(ctx, []byte("OggS not really"))
			So(errors.Is(err, scoring.ErrDecode), ShouldBeTrue)
		})

		Convey("When ffmpeg cannot be started", func() {
			d := audio.NewDecoder(audio.WithFFmpegPath(filepath.Join(t.TempDir(), "no-such-ffmpeg")))
			_, err := d.Decode(ctx, []byte("webm bytes"))
			So(errors.Is(err, scoring.ErrDecode), ShouldBeTrue)
		})

		Convey("When the file is missing", func() {
			_, err := audio.NewDecoder().DecodeFile(ctx, filepath.Join(t.TempDir(), "missing.wav"))
			So(errors.Is(err, scoring.ErrDecode), ShouldBeTrue)
		})
	})
}

func TestConvert(t *testing.T) {
	Convey("Given interleaved stereo", t, func() {
		mono := audio.Downmix([]float32{1, 0, 0.5, 0.5, -1, 1}, 2)
		So(mono, ShouldResemble, []float32{0.5, 0.5, 0})

		Convey("And mono passes through", func() {
			in := []float32{0.1, 0.2}
			So(audio.Downmix(in, 1), ShouldResemble, in)
		})
	})

	Convey("Given resampling", t, func() {
		So(audio.Resample([]float32{0, 1, 2, 3}, 16000, 16000), ShouldResemble, []float32{0, 1, 2, 3})
		So(audio.Resample([]float32{0, 1, 2, 3}, 16000, 8000), ShouldResemble, []float32{0, 2})
		So(audio.Resample([]float32{0, 1}, 8000, 16000), ShouldResemble, []float32{0, 0.5, 1, 1})
		So(audio.Resample([]float32{1}, 48000, 16000), ShouldBeNil)
		So(audio.Resample(nil, 48000, 16000), ShouldBeNil)
	})
}
