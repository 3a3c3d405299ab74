package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/attendance-archive-api/internal/models"
)

const metricsNamespace = "archive_api"

// MetricsService owns the Prometheus registry and keeps running totals for the JSON snapshot.
// A nil *MetricsService is a valid no-op.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	httpDuration   *prometheus.HistogramVec
	cacheOps       *prometheus.HistogramVec
	exports        *prometheus.CounterVec
	exportBytes    *prometheus.HistogramVec
	cleanupRuns    *prometheus.CounterVec
	recordsDeleted *prometheus.CounterVec

	mu     sync.Mutex
	totals metricTotals
}

type metricTotals struct {
	requests        uint64
	requestDuration time.Duration
	cacheHits       uint64
	cacheMisses     uint64
	exports         uint64
	cleanupRuns     uint64
	deleted         map[string]int64
}

// NewMetricsService registers the HTTP, cache and archive collectors on a private registry.
func NewMetricsService() *MetricsService {
	m := &MetricsService{
		registry: prometheus.NewRegistry(),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		cacheOps: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "cache_operation_seconds",
			Help:      "Redis cache latency by operation and result.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		}, []string{"op", "result"}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "archive_exports_total",
			Help: "Archive exports by kind and result.",
		}, []string{"kind", "result"}),
		exportBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "archive_export_bytes",
			Help:    "Size of generated export artifacts.",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
		}, []string{"kind"}),
		cleanupRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "archive_cleanup_runs_total",
			Help: "Cleanup attempts by trigger and result.",
		}, []string{"trigger", "result"}),
		recordsDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "archive_records_deleted_total",
			Help: "Operational records removed by cleanup and clear-all.",
		}, []string{"kind"}),
		totals: metricTotals{deleted: make(map[string]int64)},
	}

	m.registry.MustRegister(
		m.httpDuration, m.cacheOps, m.exports, m.exportBytes, m.cleanupRuns, m.recordsDeleted,
		collectors.NewGoCollector(),
	)
	m.handler = promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records one served request.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())

	m.mu.Lock()
	m.totals.requests++
	m.totals.requestDuration += duration
	m.mu.Unlock()
}

// RecordCacheOperation records a cache lookup.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheOps.WithLabelValues("get", result).Observe(duration.Seconds())

	m.mu.Lock()
	if hit {
		m.totals.cacheHits++
	} else {
		m.totals.cacheMisses++
	}
	m.mu.Unlock()
}

// ObserveCacheWrite records a cache write or invalidation.
func (m *MetricsService) ObserveCacheWrite(op string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheOps.WithLabelValues(op, resultLabel(err)).Observe(duration.Seconds())
}

// RecordExport counts one export attempt. size is ignored for failures.
func (m *MetricsService) RecordExport(kind models.ExportKind, err error, size int) {
	if m == nil {
		return
	}
	m.exports.WithLabelValues(string(kind), resultLabel(err)).Inc()
	if err == nil {
		m.exportBytes.WithLabelValues(string(kind)).Observe(float64(size))
	}

	m.mu.Lock()
	m.totals.exports++
	m.mu.Unlock()
}

// RecordCleanup counts one cleanup attempt and the rows it removed.
func (m *MetricsService) RecordCleanup(trigger models.CleanupTrigger, err error, counts models.RecordCounts) {
	if m == nil {
		return
	}
	m.cleanupRuns.WithLabelValues(string(trigger), resultLabel(err)).Inc()

	m.mu.Lock()
	m.totals.cleanupRuns++
	m.mu.Unlock()

	m.RecordDeleted(counts)
}

// RecordDeleted adds deleted row counts to the per-kind totals. Zero counts are skipped.
func (m *MetricsService) RecordDeleted(counts models.RecordCounts) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for kind, n := range map[string]int{
		"attendance":  counts.Attendance,
		"assessments": counts.Assessments,
		"archives":    counts.Archives,
		"images":      counts.Images,
	} {
		if n <= 0 {
			continue
		}
		m.recordsDeleted.WithLabelValues(kind).Add(float64(n))
		m.totals.deleted[kind] += int64(n)
	}
}

// Snapshot returns the running totals for the JSON metrics endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	m.mu.Lock()
	t := m.totals
	deleted := make(map[string]int64, len(t.deleted))
	for kind, n := range t.deleted {
		deleted[kind] = n
	}
	m.mu.Unlock()

	snap := models.SystemMetrics{
		CacheHits:        t.cacheHits,
		CacheMisses:      t.cacheMisses,
		RequestsTotal:    t.requests,
		ExportsTotal:     t.exports,
		CleanupRunsTotal: t.cleanupRuns,
		RecordsDeleted:   deleted,
		Goroutines:       runtime.NumGoroutine(),
		GeneratedAt:      time.Now().UTC(),
	}
	if lookups := t.cacheHits + t.cacheMisses; lookups > 0 {
		snap.CacheHitRatio = float64(t.cacheHits) / float64(lookups)
	}
	if t.requests > 0 {
		snap.AverageRequestDurationMs = float64(t.requestDuration) / float64(t.requests) / float64(time.Millisecond)
	}
	return snap
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
