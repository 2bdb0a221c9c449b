package metrics

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options", func() {
			registry := prometheus.NewRegistry()
			m := NewManager(WithPrometheusRegistry(registry))

			Convey("Then defaults are applied", func() {
				So(m, ShouldNotBeNil)
				So(m.namespace, ShouldEqual, "readaloud")
				So(m.Enabled(), ShouldBeTrue)
				So(m.RefreshInterval(), ShouldEqual, defaultRefreshInterval)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			m := NewManager(
				WithNamespace("test"),
				WithHistogramBuckets([]float64{1, 10, 100}),
				WithRefreshInterval(time.Second),
				WithPrometheusRegistry(registry),
			)
			m.RecordScore("success", 12)

			Convey("Then metric names carry the namespace and subsystem", func() {
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				names := map[string]bool{}
				for _, f := range families {
					names[f.GetName()] = true
				}
				So(names["test_scoring_scores_total"], ShouldBeTrue)
				So(m.RefreshInterval(), ShouldEqual, time.Second)
			})
		})
	})
}

func TestManagerRecording(t *testing.T) {
	Convey("Given a manager on a private registry", t, func() {
		m := NewManager(WithPrometheusRegistry(prometheus.NewRegistry()))

		Convey("When recording scoring outcomes", func() {
			m.RecordScore("success", 100)
			m.RecordScore("success", 120)
			m.RecordScore("transcription_error", 30)

			So(testutil.ToFloat64(m.scoresTotal.WithLabelValues("success")), ShouldEqual, 2)
			So(testutil.ToFloat64(m.scoresTotal.WithLabelValues("transcription_error")), ShouldEqual, 1)
		})

		Convey("When recording a breakdown", func() {
			So(m.RecordBreakdown(1, 0.5, 0.25, 72.5), ShouldBeNil)
			So(testutil.CollectAndCount(m.subScores), ShouldEqual, 3)
		})

		Convey("When a breakdown is not finite", func() {
			err := m.RecordBreakdown(math.NaN(), 0, 0, 0)
			So(errors.Is(err, ErrObserveFailed), ShouldBeTrue)
		})
	})

	Convey("Given a disabled manager", t, func() {
		m := NewManager(WithPrometheusRegistry(prometheus.NewRegistry()), WithMetricsEnabled(false))
		m.RecordScore("success", 1)
		m.inc(m.cacheHits)

		So(testutil.ToFloat64(m.cacheHits), ShouldEqual, 0)
		So(m.RecordBreakdown(1, 1, 1, 100), ShouldBeNil)
	})
}

func TestGlobalRecording(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording through package functions", func() {
			before := testutil.ToFloat64(globalManager.cacheHits)
			RecordReferenceCacheHit()
			RecordReferenceCacheMiss()
			UpdateReferenceCacheSize(3)
			RecordProsodyMethod("fallback", "insufficient_frames")
			RecordTranscriptionLatency(250)
			RecordDecodeLatency(5)
			RecordHTTPRequest("/score", "POST", "200")
			RecordHTTPRequestDuration("/score", "POST", "200", 12)
			UpdateQueueSize(2)
			UpdateQueueCapacity(10)
			UpdateQueueUtilization(0.2)
			RecordQueueEnqueue()
			RecordQueueDequeue()
			RecordQueueEnqueueError()
			RecordQueueProcessingLatency(1)
			UpdateWorkerCount(4)
			WorkerBusy(1)
			WorkerBusy(-1)
			RecordWorkerProcessingLatency(10)
			RecordWorkerError()
			RecordErrorByComponent("api", "decode")
			RecordErrorByType("decode", "low")
			RecordErrorByEndpoint("/score", "POST", "decode")
			UpdateSystemMemoryUsage(1024)
			UpdateSystemGoroutineCount(8)
			RecordSystemGCPauseTime(0.5)

			Convey("Then values land on the custom registry", func() {
				So(testutil.ToFloat64(globalManager.cacheHits), ShouldEqual, before+1)
				So(testutil.ToFloat64(globalManager.cacheSize), ShouldEqual, 3)
				So(testutil.ToFloat64(globalManager.workerBusyCount), ShouldEqual, 0)
				So(testutil.ToFloat64(globalManager.prosodyMethod.WithLabelValues("fallback", "insufficient_frames")), ShouldBeGreaterThanOrEqualTo, 1)

				families, err := GetRegistry().Gather()
				So(err, ShouldBeNil)
				So(len(families), ShouldBeGreaterThan, 10)
				So(RefreshInterval(), ShouldBeGreaterThan, 0)
			})
		})
	})
}

func TestConcurrency(t *testing.T) {
	Convey("Given concurrent recorders", t, func() {
		m := NewManager(WithPrometheusRegistry(prometheus.NewRegistry()))
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				m.RecordScore("success", 1)
			}()
		}
		wg.Wait()

		So(testutil.ToFloat64(m.scoresTotal.WithLabelValues("success")), ShouldEqual, 50)
	})
}

func TestOptionsValidation(t *testing.T) {
	Convey("Given invalid option values", t, func() {
		m := &Manager{namespace: "keep", refreshInterval: time.Minute}
		WithNamespace("")(m)
		WithRefreshInterval(-1)(m)
		WithHistogramBuckets(nil)(m)
		WithPrometheusRegistry(nil)(m)

		So(m.namespace, ShouldEqual, "keep")
		So(m.refreshInterval, ShouldEqual, time.Minute)
		So(m.histogramBuckets, ShouldBeNil)
		So(m.registry, ShouldBeNil)
	})
}
