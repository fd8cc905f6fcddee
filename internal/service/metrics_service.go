package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for HTTP traffic, the cache and the timetable engine.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	conflicts       *prometheus.CounterVec
	mutations       *prometheus.CounterVec
	publications    prometheus.Counter
	publishDuration prometheus.Histogram
	publishedSize   prometheus.Gauge
}

// NewMetricsService registers the collectors on a private registry.
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

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	conflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timetable_conflicts_total",
		Help: "Rejected assignment proposals by conflict kind",
	}, []string{"kind"})

	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timetable_assignment_mutations_total",
		Help: "Committed assignment book mutations by operation",
	}, []string{"operation"})

	publications := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "timetable_publications_total",
		Help: "Published timetable versions",
	})

	publishDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "timetable_publish_duration_seconds",
		Help:    "Duration of publish transactions",
		Buckets: prometheus.DefBuckets,
	})

	publishedSize := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "timetable_active_version_assignments",
		Help: "Number of assignments in the most recently published version",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheHits, cacheMisses, conflicts, mutations, publications, publishDuration, publishedSize, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		conflicts:       conflicts,
		mutations:       mutations,
		publications:    publications,
		publishDuration: publishDuration,
		publishedSize:   publishedSize,
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

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records a cache lookup outcome.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// RecordConflict counts a rejected proposal.
func (m *MetricsService) RecordConflict(kind models.ConflictKind) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(string(kind)).Inc()
}

// RecordMutation counts a committed propose, update or remove.
func (m *MetricsService) RecordMutation(operation string) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(operation).Inc()
}

// RecordPublication tracks a committed publish.
func (m *MetricsService) RecordPublication(entries int, duration time.Duration) {
	if m == nil {
		return
	}
	m.publications.Inc()
	m.publishDuration.Observe(duration.Seconds())
	m.publishedSize.Set(float64(entries))
}
