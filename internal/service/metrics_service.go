package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP surface
// and the verification pipeline.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	remoteCalls     *prometheus.HistogramVec
	remoteFailures  *prometheus.CounterVec
	sweepDuration   *prometheus.HistogramVec
	sweepProcessed  *prometheus.CounterVec

	requestCount         uint64
	requestDurationTotal uint64
	enqueuedCount        uint64
	checkedCount         uint64
	indexedCount         uint64
	remoteFailureCount   uint64
}

// MetricsSnapshot aggregates counters for the snapshot endpoint.
type MetricsSnapshot struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	DocumentsEnqueued        uint64    `json:"documents_enqueued"`
	DocumentsChecked         uint64    `json:"documents_checked"`
	DocumentsIndexed         uint64    `json:"documents_indexed"`
	RemoteFailures           uint64    `json:"remote_failures"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "queue_transitions_total",
		Help: "Queue document status transitions",
	}, []string{"status"})

	remoteCalls := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "verifier_call_duration_seconds",
		Help:    "Duration of remote verification service calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	remoteFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "verifier_call_failures_total",
		Help: "Failed remote verification service calls",
	}, []string{"op"})

	sweepDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sweep_duration_seconds",
		Help:    "Duration of scheduled sweep runs",
		Buckets: prometheus.DefBuckets,
	}, []string{"sweep"})

	sweepProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sweep_documents_processed_total",
		Help: "Documents processed by scheduled sweeps",
	}, []string{"sweep"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, transitions, remoteCalls, remoteFailures, sweepDuration, sweepProcessed, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		transitions:     transitions,
		remoteCalls:     remoteCalls,
		remoteFailures:  remoteFailures,
		sweepDuration:   sweepDuration,
		sweepProcessed:  sweepProcessed,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordTransition counts a document entering the given status.
func (m *MetricsService) RecordTransition(status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(status).Inc()
	switch status {
	case "wait_upload", "wait_block":
		atomic.AddUint64(&m.enqueuedCount, 1)
	case "checked":
		atomic.AddUint64(&m.checkedCount, 1)
	case "in_index":
		atomic.AddUint64(&m.indexedCount, 1)
	}
}

// ObserveRemoteCall records remote-call latency and failures.
func (m *MetricsService) ObserveRemoteCall(op string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.remoteCalls.WithLabelValues(op).Observe(duration.Seconds())
	if err != nil {
		m.remoteFailures.WithLabelValues(op).Inc()
		atomic.AddUint64(&m.remoteFailureCount, 1)
	}
}

// ObserveSweep records one sweep run.
func (m *MetricsService) ObserveSweep(name string, duration time.Duration, processed int) {
	if m == nil {
		return
	}
	m.sweepDuration.WithLabelValues(name).Observe(duration.Seconds())
	m.sweepProcessed.WithLabelValues(name).Add(float64(processed))
}

// Snapshot returns aggregated metrics for the admin snapshot endpoint.
func (m *MetricsService) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return MetricsSnapshot{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		DocumentsEnqueued:        atomic.LoadUint64(&m.enqueuedCount),
		DocumentsChecked:         atomic.LoadUint64(&m.checkedCount),
		DocumentsIndexed:         atomic.LoadUint64(&m.indexedCount),
		RemoteFailures:           atomic.LoadUint64(&m.remoteFailureCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
