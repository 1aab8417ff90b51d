// Package metrics exposes Prometheus collectors for the importer service.
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
	importerItemsTotal         *prometheus.CounterVec
	importerFeedFetchesTotal   *prometheus.CounterVec
	importerRunsTotal          prometheus.Counter
	importerQueueRetriesTotal  prometheus.Counter
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		importerItemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "importer_items_total",
				Help: "Total number of feed items processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		importerFeedFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "importer_feed_fetches_total",
				Help: "Total number of feed fetch attempts, labeled by feed host and result.",
			},
			[]string{"feed", "result"},
		)

		importerRunsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "importer_runs_total",
				Help: "Total number of import runs triggered.",
			},
		)

		importerQueueRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "importer_queue_retries_total",
				Help: "Total number of work item redeliveries.",
			},
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
	})
}

// SanitizeFeed sanitizes a feed URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeFeed(rawURL string) string {
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

// ObserveItem increments the item counter for the given outcome.
func ObserveItem(outcome string) {
	importerItemsTotal.WithLabelValues(outcome).Inc()
}

// ObserveFeedFetch increments the feed fetch counter.
func ObserveFeedFetch(feed string, result string) {
	importerFeedFetchesTotal.WithLabelValues(SanitizeFeed(feed), result).Inc()
}

// ObserveRun increments the run counter.
func ObserveRun() {
	importerRunsTotal.Inc()
}

// ObserveQueueRetry increments the redelivery counter.
func ObserveQueueRetry() {
	importerQueueRetriesTotal.Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
