package whisper

import (
	"testing"

	"github.com/okian/readaloud/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func TestToTranscript(t *testing.T) {
	Convey("Given per-word segments", t, func() {
		segs := []segment{
			{text: " The", start: 0.0, end: 0.3},
			{text: "", start: 0.3, end: 0.35},
			{text: " cat", start: 0.4, end: 0.7},
		}

		out := toTranscript(segs)

		Convey("Then blank segments are dropped", func() {
			So(out.Text, ShouldEqual, "The cat")
			So(out.Words, ShouldHaveLength, 2)
			So(out.Words[1].Start, ShouldEqual, 0.4)
			So(out.Words[1].End, ShouldEqual, 0.7)
		})
	})

	Convey("Given a multi-word segment", t, func() {
		out := toTranscript([]segment{{text: "sat on", start: 1.0, end: 2.0}})

		So(out.Words, ShouldHaveLength, 2)
		So(out.Words[1].Start, ShouldEqual, 1.5)
	})

	Convey("Given no segments", t, func() {
		out := toTranscript(nil)
		So(out.Text, ShouldBeEmpty)
		So(out.Words, ShouldBeEmpty)
	})
}

func TestOptions(t *testing.T) {
	Convey("Given options", t, func() {
		o := newOptions([]Option{WithThreads(4), WithThreads(-1), WithLogger(nil)})
		So(o.threads, ShouldEqual, 4)
		So(o.logger, ShouldNotBeNil)
	})
}
