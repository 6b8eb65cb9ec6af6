// Package metrics exposes Prometheus collectors for the aggregator: worker
// pool activity, document fetches, politeness delays and the query API.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Task outcome labels.
const (
	OutcomeOK    = "ok"
	OutcomePanic = "panic"
)

var (
	poolWorkersActivatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "news_pool_workers_activated_total",
			Help: "Worker slots activated, labeled by pool.",
		},
		[]string{"pool"},
	)

	poolBusyWorkers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "news_pool_busy_workers",
			Help: "Workers currently executing a task, labeled by pool.",
		},
		[]string{"pool"},
	)

	poolQueuedTasks = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "news_pool_queued_tasks",
			Help: "Tasks waiting for a free worker, labeled by pool.",
		},
		[]string{"pool"},
	)

	poolTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "news_pool_tasks_total",
			Help: "Tasks finished, labeled by pool and outcome.",
		},
		[]string{"pool", "outcome"},
	)

	fetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "news_fetch_total",
			Help: "Documents fetched, labeled by site and status.",
		},
		[]string{"site", "status"},
	)

	fetchBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "news_fetch_bytes_total",
			Help: "Bytes fetched, labeled by site.",
		},
		[]string{"site"},
	)

	rateLimitDelaysSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "news_rate_limit_delays_seconds",
			Help:    "Histogram of per-host politeness wait durations.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"domain"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "news_http_requests_total",
			Help: "API requests served, labeled by method, route and status code.",
		},
		[]string{"method", "route", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "news_http_request_duration_seconds",
			Help:    "API request latency, labeled by method and route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

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
	return promhttp.Handler()
}

// ObserveWorkerActivated counts a lazily activated worker slot.
func ObserveWorkerActivated(pool string) {
	poolWorkersActivatedTotal.WithLabelValues(pool).Inc()
}

// IncBusyWorkers increments the busy workers gauge.
func IncBusyWorkers(pool string) {
	poolBusyWorkers.WithLabelValues(pool).Inc()
}

// DecBusyWorkers decrements the busy workers gauge.
func DecBusyWorkers(pool string) {
	poolBusyWorkers.WithLabelValues(pool).Dec()
}

// AddQueuedTasks adjusts the queued tasks gauge by delta.
func AddQueuedTasks(pool string, delta int) {
	poolQueuedTasks.WithLabelValues(pool).Add(float64(delta))
}

// ObserveTask counts a finished task.
func ObserveTask(pool, outcome string) {
	poolTasksTotal.WithLabelValues(pool, outcome).Inc()
}

// ObserveFetch increments the fetch metrics.
func ObserveFetch(site string, status string, bytesFetched int) {
	sanitizedSite := SanitizeSite(site)
	fetchTotal.WithLabelValues(sanitizedSite, status).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(sanitizedSite).Add(float64(bytesFetched))
	}
}

// ObserveRateLimitDelay records the duration of a politeness wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest records one served API request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
