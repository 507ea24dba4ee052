// Package metrics exposes Prometheus collectors for the pipeline service.
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

var (
	documentsTotal             *prometheus.CounterVec
	documentDurationSeconds    *prometheus.HistogramVec
	documentErrorsTotal        *prometheus.CounterVec
	chunksTotal                *prometheus.CounterVec
	chunksRejectedTotal        *prometheus.CounterVec
	fetchBytesTotal            *prometheus.CounterVec
	fetchDurationSeconds       *prometheus.HistogramVec
	rateLimitWaitSeconds       *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	activeWorkers              prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		documentsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_documents_total",
				Help: "Total number of documents processed, labeled by site and change type.",
			},
			[]string{"site", "change_type"},
		)

		documentDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipeline_document_duration_seconds",
				Help:    "Histogram of end-to-end document processing time, labeled by change type.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"change_type"},
		)

		documentErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_document_errors_total",
				Help: "Total number of document failures, labeled by pipeline stage.",
			},
			[]string{"stage"},
		)

		chunksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_chunks_total",
				Help: "Total number of chunks published, labeled by strategy.",
			},
			[]string{"strategy"},
		)

		chunksRejectedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_chunks_rejected_total",
				Help: "Total number of chunks rejected by validation, labeled by strategy.",
			},
			[]string{"strategy"},
		)

		fetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_fetch_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipeline_fetch_duration_seconds",
				Help:    "Histogram of fetch latencies, labeled by site and fetch mode.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15},
			},
			[]string{"site", "mode"},
		)

		rateLimitWaitSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipeline_rate_limit_wait_seconds",
				Help:    "Histogram of time fetches spent waiting on per-host budgets, labeled by site.",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"site"},
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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "pipeline_active_workers",
				Help: "Number of workers currently processing a document.",
			},
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
	return promhttp.Handler()
}

// ObserveDocument records one finished document pass.
func ObserveDocument(site, changeType string, duration time.Duration) {
	documentsTotal.WithLabelValues(SanitizeSite(site), changeType).Inc()
	documentDurationSeconds.WithLabelValues(changeType).Observe(duration.Seconds())
}

// ObserveDocumentError counts a document failure at the given stage.
func ObserveDocumentError(stage string) {
	documentErrorsTotal.WithLabelValues(stage).Inc()
}

// ObserveChunks records how many chunks one run published and rejected.
func ObserveChunks(strategy string, published, rejected int) {
	if published > 0 {
		chunksTotal.WithLabelValues(strategy).Add(float64(published))
	}
	if rejected > 0 {
		chunksRejectedTotal.WithLabelValues(strategy).Add(float64(rejected))
	}
}

// ObserveFetch records the size and latency of one fetch.
func ObserveFetch(site string, headless bool, bytesFetched int, duration time.Duration) {
	sanitizedSite := SanitizeSite(site)
	mode := "plain"
	if headless {
		mode = "headless"
	}
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(sanitizedSite).Add(float64(bytesFetched))
	}
	fetchDurationSeconds.WithLabelValues(sanitizedSite, mode).Observe(duration.Seconds())
}

// ObserveRateLimitWait records time one fetch spent waiting for a host token.
func ObserveRateLimitWait(site string, duration time.Duration) {
	rateLimitWaitSeconds.WithLabelValues(SanitizeSite(site)).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	activeWorkers.Dec()
}
