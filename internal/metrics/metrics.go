// Package metrics defines the Prometheus collectors exported on /metrics.
// Collectors are registered on the default registry at init via promauto;
// callers use the Record* helpers rather than touching collectors directly.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueryDuration times repository calls made on the album query path.
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gallery_query_duration_seconds",
			Help:    "Duration of gallery storage queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	QueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_query_errors_total",
			Help: "Total number of failed gallery storage queries",
		},
		[]string{"operation"},
	)

	// FetchMissing counts ids returned by the paging pass that were gone by
	// the time the relationship pass ran.
	FetchMissing = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_fetch_missing_total",
			Help: "Records dropped because they disappeared between the id pass and the fetch pass",
		},
		[]string{"entity"},
	)

	FilterOptionsCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_filter_options_cache_hits_total",
			Help: "Total number of filter-option cache hits",
		},
	)

	FilterOptionsCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_filter_options_cache_misses_total",
			Help: "Total number of filter-option cache misses",
		},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_http_requests_total",
			Help: "Total number of HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gallery_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "route"},
	)
)

// RecordQuery records the duration of a storage call and counts it as failed
// when err is non-nil.
func RecordQuery(operation string, duration time.Duration, err error) {
	QueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		QueryErrors.WithLabelValues(operation).Inc()
	}
}

// RecordFetchMissing adds n dropped records for the given entity. Zero is a no-op.
func RecordFetchMissing(entity string, n int) {
	if n > 0 {
		FetchMissing.WithLabelValues(entity).Add(float64(n))
	}
}

// RecordCacheLookup counts a filter-option cache hit or miss.
func RecordCacheLookup(hit bool) {
	if hit {
		FilterOptionsCacheHits.Inc()
	} else {
		FilterOptionsCacheMisses.Inc()
	}
}

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
