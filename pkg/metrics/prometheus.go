// Package metrics provides Prometheus metrics for the readaloud scoring service.
package metrics

import (
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// subsystem sits between the namespace and every series name.
const subsystem = "scoring"

// Bucket layouts: sub-scores, final scores, and latencies from 5ms to ~10s.
//
//nolint:gochecknoglobals // fixed bucket layouts
var (
	unitBuckets  = prometheus.LinearBuckets(0, 0.1, 11)
	finalBuckets = prometheus.LinearBuckets(0, 10, 11)
	msBuckets    = prometheus.ExponentialBuckets(5, 2, 12)
)

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	registry         prometheus.Registerer

	// Scoring
	scoresTotal          *prometheus.CounterVec
	scoreLatency         prometheus.Histogram
	transcriptionLatency prometheus.Histogram
	decodeLatency        prometheus.Histogram
	subScores            *prometheus.HistogramVec
	finalScores          prometheus.Histogram
	prosodyMethod        *prometheus.CounterVec

	// Reference cache
	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter
	cacheSize   prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Queue
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueueTotal      prometheus.Counter
	queueDequeueTotal      prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Workers
	workerCount             prometheus.Gauge
	workerBusyCount         prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Errors
	errorsByComponent *prometheus.CounterVec
	errorsByType      *prometheus.CounterVec
	errorsByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "readaloud",
		histogramBuckets: msBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

// RefreshInterval is how often callers should refresh sampled gauges.
func (m *Manager) RefreshInterval() time.Duration { return m.refreshInterval }

// Enabled reports whether observations are recorded.
func (m *Manager) Enabled() bool { return m.enabled }

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: subsystem, Name: name, Help: help,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: subsystem, Name: name, Help: help,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: subsystem, Name: name, Help: help,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: subsystem, Name: name, Help: help,
		Buckets: buckets,
	})
}

func (m *Manager) histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: subsystem, Name: name, Help: help,
		Buckets: buckets,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics on the configured registry.
func (m *Manager) initializeMetrics() {
	b := m.histogramBuckets

	m.scoresTotal = m.counterVec("scores_total", "Scoring requests by outcome", "outcome")
	m.scoreLatency = m.histogram("score_latency_milliseconds", "End-to-end scoring latency in milliseconds", b)
	m.transcriptionLatency = m.histogram("transcription_latency_milliseconds", "Transcription engine latency in milliseconds", b)
	m.decodeLatency = m.histogram("decode_latency_milliseconds", "Audio decode latency in milliseconds", b)
	m.subScores = m.histogramVec("sub_score", "Distribution of sub-scores in [0,1]", unitBuckets, "component")
	m.finalScores = m.histogram("final_score", "Distribution of final scores in [0,100]", finalBuckets)
	m.prosodyMethod = m.counterVec("prosody_method_total", "Prosody comparisons by method and fallback reason", "method", "reason")

	m.cacheHits = m.counter("reference_cache_hits_total", "Reference feature cache hits")
	m.cacheMisses = m.counter("reference_cache_misses_total", "Reference feature cache misses")
	m.cacheSize = m.gauge("reference_cache_size", "Reference recordings held in the feature cache")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", b, "endpoint", "method", "status_code")

	m.queueSize = m.gauge("queue_size", "Current number of queued scoring jobs")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue utilization ratio (current size / capacity)")
	m.queueEnqueueTotal = m.counter("queue_enqueue_total", "Jobs enqueued")
	m.queueDequeueTotal = m.counter("queue_dequeue_total", "Jobs dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Jobs rejected at enqueue")
	m.queueProcessingLatency = m.histogram("queue_processing_latency_milliseconds", "Enqueue latency in milliseconds", b)

	m.workerCount = m.gauge("worker_count", "Workers in the pool")
	m.workerBusyCount = m.gauge("worker_busy_count", "Workers currently scoring a job")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Per-job worker latency in milliseconds", b)
	m.workerErrors = m.counter("worker_errors_total", "Jobs that finished with an error")

	m.errorsByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")
	m.errorsByType = m.counterVec("errors_by_type_total", "Errors by type and severity", "error_type", "severity")
	m.errorsByEndpoint = m.counterVec("errors_by_endpoint_total", "Errors by HTTP endpoint", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap memory in use")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_milliseconds", "GC pause time in milliseconds", b)
}

// RecordScore counts a finished scoring request by outcome.
func (m *Manager) RecordScore(outcome string, latencyMs float64) {
	if !m.enabled {
		return
	}
	m.scoresTotal.WithLabelValues(outcome).Inc()
	m.scoreLatency.Observe(latencyMs)
}

// RecordBreakdown observes the sub-scores and final score of a success.
// Non-finite values are rejected with ErrObserveFailed.
func (m *Manager) RecordBreakdown(accuracy, fluency, prosody, final float64) error {
	for _, v := range []float64{accuracy, fluency, prosody, final} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrObserveFailed
		}
	}
	if !m.enabled {
		return nil
	}
	m.subScores.WithLabelValues("accuracy").Observe(accuracy)
	m.subScores.WithLabelValues("fluency").Observe(fluency)
	m.subScores.WithLabelValues("prosody").Observe(prosody)
	m.finalScores.Observe(final)
	return nil
}

func (m *Manager) observe(h prometheus.Observer, v float64) {
	if m.enabled {
		h.Observe(v)
	}
}

func (m *Manager) inc(c prometheus.Counter) {
	if m.enabled {
		c.Inc()
	}
}

func (m *Manager) set(g prometheus.Gauge, v float64) {
	if m.enabled {
		g.Set(v)
	}
}

// Scoring.

// RecordScore counts a finished scoring request.
func RecordScore(outcome string, latencyMs float64) { globalManager.RecordScore(outcome, latencyMs) }

// RecordBreakdown observes a successful breakdown.
func RecordBreakdown(accuracy, fluency, prosody, final float64) error {
	return globalManager.RecordBreakdown(accuracy, fluency, prosody, final)
}

// RecordTranscriptionLatency observes one transcription call.
func RecordTranscriptionLatency(latencyMs float64) {
	globalManager.observe(globalManager.transcriptionLatency, latencyMs)
}

// RecordDecodeLatency observes one decode call.
func RecordDecodeLatency(latencyMs float64) {
	globalManager.observe(globalManager.decodeLatency, latencyMs)
}

// RecordProsodyMethod counts which prosody branch produced a score.
func RecordProsodyMethod(method, reason string) {
	if globalManager.enabled {
		globalManager.prosodyMethod.WithLabelValues(method, reason).Inc()
	}
}

// Reference cache.

// RecordReferenceCacheHit counts a cache hit.
func RecordReferenceCacheHit() { globalManager.inc(globalManager.cacheHits) }

// RecordReferenceCacheMiss counts a cache miss.
func RecordReferenceCacheMiss() { globalManager.inc(globalManager.cacheMisses) }

// UpdateReferenceCacheSize sets the number of cached references.
func UpdateReferenceCacheSize(n int) { globalManager.set(globalManager.cacheSize, float64(n)) }

// HTTP.

// RecordHTTPRequest counts a request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if globalManager.enabled {
		globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	}
}

// RecordHTTPRequestDuration observes request latency.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if globalManager.enabled {
		globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
	}
}

// Queue.

// UpdateQueueSize sets the queue length.
func UpdateQueueSize(size int) { globalManager.set(globalManager.queueSize, float64(size)) }

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.set(globalManager.queueCapacity, float64(capacity))
}

// UpdateQueueUtilization sets size/capacity.
func UpdateQueueUtilization(utilization float64) {
	globalManager.set(globalManager.queueUtilization, utilization)
}

// RecordQueueEnqueue counts an accepted job.
func RecordQueueEnqueue() { globalManager.inc(globalManager.queueEnqueueTotal) }

// RecordQueueDequeue counts a job handed to a worker.
func RecordQueueDequeue() { globalManager.inc(globalManager.queueDequeueTotal) }

// RecordQueueEnqueueError counts a rejected job.
func RecordQueueEnqueueError() { globalManager.inc(globalManager.queueEnqueueErrors) }

// RecordQueueProcessingLatency observes enqueue latency.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.observe(globalManager.queueProcessingLatency, latencyMs)
}

// Workers.

// UpdateWorkerCount sets the pool size.
func UpdateWorkerCount(count int) { globalManager.set(globalManager.workerCount, float64(count)) }

// WorkerBusy moves the busy gauge by delta.
func WorkerBusy(delta int) {
	if globalManager.enabled {
		globalManager.workerBusyCount.Add(float64(delta))
	}
}

// RecordWorkerProcessingLatency observes one job.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.observe(globalManager.workerProcessingLatency, latencyMs)
}

// RecordWorkerError counts a failed job.
func RecordWorkerError() { globalManager.inc(globalManager.workerErrors) }

// Errors.

// RecordErrorByComponent counts an error raised by component.
func RecordErrorByComponent(component, errorType string) {
	if globalManager.enabled {
		globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
	}
}

// RecordErrorByType counts an error by type and severity.
func RecordErrorByType(errorType, severity string) {
	if globalManager.enabled {
		globalManager.errorsByType.WithLabelValues(errorType, severity).Inc()
	}
}

// RecordErrorByEndpoint counts an error returned by an HTTP endpoint.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	if globalManager.enabled {
		globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
	}
}

// System.

// UpdateSystemMemoryUsage sets heap bytes in use.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.set(globalManager.systemMemoryUsage, float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(count int) {
	globalManager.set(globalManager.systemGoroutineCount, float64(count))
}

// RecordSystemGCPauseTime observes a GC pause.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.observe(globalManager.systemGCPauseTime, pauseMs)
}

// RefreshInterval returns the global manager's gauge refresh interval.
func RefreshInterval() time.Duration { return globalManager.refreshInterval }

// GetRegistry returns the custom registry used by the global manager.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
