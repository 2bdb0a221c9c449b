package types_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/okian/readaloud/internal/domain/scoring"
	types "github.com/okian/readaloud/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestStats(t *testing.T) {
	Convey("Given service stats", t, func() {
		st := types.Stats{Started: true, WorkerCount: 4, QueueCapacity: 256, QueueLength: 3}

		Convey("When encoded for /stats", func() {
			raw, err := json.Marshal(st)
			So(err, ShouldBeNil)

			var out map[string]any
			So(json.Unmarshal(raw, &out), ShouldBeNil)

			Convey("Then fields use snake_case keys", func() {
				So(out["started"], ShouldEqual, true)
				So(out["worker_count"], ShouldEqual, 4)
				So(out["queue_capacity"], ShouldEqual, 256)
				So(out["queue_length"], ShouldEqual, 3)
				So(out, ShouldContainKey, "cached_references")
			})
		})
	})
}

func TestErrors(t *testing.T) {
	Convey("Given the service errors", t, func() {
		Convey("Then a missing reference is a configuration failure", func() {
			So(errors.Is(types.ErrReferenceUnavailable, scoring.ErrConfig), ShouldBeTrue)
		})

		Convey("Then backpressure is its own kind", func() {
			So(errors.Is(types.ErrBackpressure, scoring.ErrConfig), ShouldBeFalse)
			So(errors.Is(types.ErrNotStarted, types.ErrBackpressure), ShouldBeFalse)
		})
	})
}
