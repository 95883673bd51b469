// Package metrics exposes Prometheus collectors for the album list service.
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
	callbacksTotal             *prometheus.CounterVec
	callbackDurationSeconds    prometheus.Histogram
	pageLoadsTotal             *prometheus.CounterVec
	albumsRenderedTotal        prometheus.Counter
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		callbacksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "albumlist_callbacks_total",
				Help: "Total number of callback fetches resolved, labeled by terminal state.",
			},
			[]string{"state"},
		)

		callbackDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "albumlist_callback_duration_seconds",
				Help:    "Histogram of time from send to resolution of callback fetches.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
		)

		pageLoadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "albumlist_page_loads_total",
				Help: "Total number of page loads, labeled by outcome and endpoint host.",
			},
			[]string{"outcome", "site"},
		)

		albumsRenderedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "albumlist_albums_rendered_total",
				Help: "Total number of album list items rendered.",
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

// ObserveCallback records a resolved callback fetch.
func ObserveCallback(state string, elapsed time.Duration) {
	Init()
	callbacksTotal.WithLabelValues(state).Inc()
	callbackDurationSeconds.Observe(elapsed.Seconds())
}

// ObservePageLoad records the outcome of a page load against endpoint.
func ObservePageLoad(outcome string, endpoint string, albums int) {
	Init()
	pageLoadsTotal.WithLabelValues(outcome, SanitizeSite(endpoint)).Inc()
	if albums > 0 {
		albumsRenderedTotal.Add(float64(albums))
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
