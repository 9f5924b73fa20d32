// Package metrics exposes Prometheus collectors for the syndication service.
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
	articlesExtractedTotal  *prometheus.CounterVec
	articlesRejectedTotal   *prometheus.CounterVec
	articlesPublishedTotal  *prometheus.CounterVec
	enrichmentRequestsTotal *prometheus.CounterVec
	fetchDurationSeconds    *prometheus.HistogramVec
	httpRequestsTotal       *prometheus.CounterVec
	httpRequestDuration     *prometheus.HistogramVec
	jobsTotal               *prometheus.CounterVec
	activeWorkers           prometheus.Gauge
	rateLimitDelaysSeconds  *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		articlesExtractedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "syndicator_articles_extracted_total",
				Help: "Total number of articles successfully extracted, labeled by source.",
			},
			[]string{"source"},
		)

		articlesRejectedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "syndicator_articles_rejected_total",
				Help: "Total number of documents rejected, labeled by source and reason.",
			},
			[]string{"source", "reason"},
		)

		articlesPublishedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "syndicator_articles_published_total",
				Help: "Total number of articles published, labeled by platform.",
			},
			[]string{"platform"},
		)

		enrichmentRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "syndicator_enrichment_requests_total",
				Help: "Total number of LLM enrichment calls, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "syndicator_fetch_duration_seconds",
				Help:    "Histogram of article fetch latencies, labeled by site.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
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

		httpRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "syndicator_jobs_total",
				Help: "Total number of scrape jobs processed, labeled by status.",
			},
			[]string{"status"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "syndicator_active_workers",
				Help: "Number of workers currently processing a job.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "syndicator_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
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

// ObserveExtraction increments the extracted-articles counter.
func ObserveExtraction(source string) {
	articlesExtractedTotal.WithLabelValues(source).Inc()
}

// ObserveRejection increments the rejected-documents counter.
func ObserveRejection(source, reason string) {
	articlesRejectedTotal.WithLabelValues(source, reason).Inc()
}

// ObservePublish increments the published-articles counter.
func ObservePublish(platform string) {
	articlesPublishedTotal.WithLabelValues(platform).Inc()
}

// ObserveEnrichment increments the enrichment counter for the outcome.
func ObserveEnrichment(outcome string) {
	enrichmentRequestsTotal.WithLabelValues(outcome).Inc()
}

// ObserveFetch records the duration of one article fetch.
func ObserveFetch(site string, duration time.Duration) {
	fetchDurationSeconds.WithLabelValues(SanitizeSite(site)).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveJob increments the job counter for the given status.
func ObserveJob(status string) {
	jobsTotal.WithLabelValues(status).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	activeWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
