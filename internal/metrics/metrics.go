// Package metrics exposes Prometheus collectors for the source API.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Health statuses exported on the status gauge.
var healthStatuses = []string{"healthy", "cloudflare", "timeout", "error"}

var (
	sourceFetchTotal             *prometheus.CounterVec
	sourceFetchDurationSeconds   *prometheus.HistogramVec
	sourceHealthStatus           *prometheus.GaugeVec
	sourceProbeDurationSeconds   *prometheus.HistogramVec
	sourceHealthCyclesTotal      prometheus.Counter
	sourceSearchTotal            *prometheus.CounterVec
	httpRequestsTotal            *prometheus.CounterVec
	httpRequestDurationSeconds   *prometheus.HistogramVec
	sourceRateLimitDelaysSeconds *prometheus.HistogramVec
	healthCacheLookupsTotal      *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		sourceFetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "source_fetch_total",
				Help: "Total number of retrieval stage attempts, labeled by stage and outcome.",
			},
			[]string{"stage", "outcome"},
		)

		sourceFetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "source_fetch_duration_seconds",
				Help:    "Histogram of retrieval stage latencies, labeled by stage.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
			},
			[]string{"stage"},
		)

		sourceHealthStatus = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "source_health_status",
				Help: "Last probe classification per source; 1 for the current status, 0 otherwise.",
			},
			[]string{"source", "status"},
		)

		sourceProbeDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "source_probe_duration_seconds",
				Help:    "Histogram of health probe latencies, labeled by source.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"source"},
		)

		sourceHealthCyclesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "source_health_cycles_total",
				Help: "Total number of full health probe cycles.",
			},
		)

		sourceSearchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "source_search_total",
				Help: "Total number of adapter searches, labeled by source and outcome.",
			},
			[]string{"source", "outcome"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"method", "route"},
		)

		sourceRateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "source_rate_limit_delays_seconds",
				Help:    "Histogram of throttle wait durations.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"domain"},
		)

		healthCacheLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "source_health_cache_lookups_total",
				Help: "Health snapshot cache lookups, labeled by result (hit, miss, stale).",
			},
			[]string{"result"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveFetch records one retrieval stage attempt.
func ObserveFetch(stage, outcome string, duration time.Duration) {
	Init()
	sourceFetchTotal.WithLabelValues(stage, outcome).Inc()
	sourceFetchDurationSeconds.WithLabelValues(stage).Observe(duration.Seconds())
}

// ObserveHealth sets the status gauge for a source and records the probe latency.
func ObserveHealth(source, status string, duration time.Duration) {
	Init()
	for _, s := range healthStatuses {
		v := 0.0
		if s == status {
			v = 1
		}
		sourceHealthStatus.WithLabelValues(source, s).Set(v)
	}
	if duration > 0 {
		sourceProbeDurationSeconds.WithLabelValues(source).Observe(duration.Seconds())
	}
}

// ObserveHealthCycle increments the probe cycle counter.
func ObserveHealthCycle() {
	Init()
	sourceHealthCyclesTotal.Inc()
}

// ObserveHealthCache records a snapshot cache lookup result.
func ObserveHealthCache(result string) {
	Init()
	healthCacheLookupsTotal.WithLabelValues(result).Inc()
}

// ObserveSearch records one adapter search outcome.
func ObserveSearch(source, outcome string) {
	Init()
	sourceSearchTotal.WithLabelValues(source, outcome).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a throttle wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	sourceRateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
