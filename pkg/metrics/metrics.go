// Package metrics defines the Prometheus collectors used by the search
// core and its services, and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchcore_http_requests_total",
			Help: "Total number of HTTP requests by method, path, and status.",
		},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "searchcore_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "searchcore_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed.",
		},
	)

	CommitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchcore_commits_total",
			Help: "Database commits by status (ok, error).",
		},
		[]string{"status"},
	)
	CommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "searchcore_commit_duration_seconds",
			Help:    "Time spent sealing and publishing a commit.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)
	DocumentsIndexed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "searchcore_documents_indexed_total",
			Help: "Documents written to new segments by commits.",
		},
	)
	MergesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "searchcore_merges_total",
			Help: "Segment merges performed.",
		},
	)
	SegmentCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "searchcore_segments",
			Help: "Healthy segments in the last committed state.",
		},
	)

	IngestEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchcore_ingest_events_total",
			Help: "Ingest events consumed by op and outcome (applied, rejected, error).",
		},
		[]string{"op", "outcome"},
	)
	ReopensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchcore_reopens_total",
			Help: "Searcher reopen attempts by trigger and result (advanced, unchanged, error).",
		},
		[]string{"trigger", "result"},
	)

	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchcore_queries_total",
			Help: "Queries evaluated by outcome (ok, zero_result, parse_error, error).",
		},
		[]string{"outcome"},
	)
	QueryLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "searchcore_query_latency_seconds",
			Help:    "Query evaluation latency in seconds.",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"cache_status"},
	)
	PostingsScanned = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "searchcore_query_documents_scanned",
			Help:    "Candidate documents examined per query.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		},
	)
	CacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "searchcore_cache_hits_total",
			Help: "Total number of result cache hits.",
		},
	)
	CacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "searchcore_cache_misses_total",
			Help: "Total number of result cache misses.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		HTTPRequestsInFlight,
		CommitsTotal,
		CommitDuration,
		DocumentsIndexed,
		MergesTotal,
		SegmentCount,
		IngestEventsTotal,
		ReopensTotal,
		QueriesTotal,
		QueryLatency,
		PostingsScanned,
		CacheHitsTotal,
		CacheMissesTotal,
	)
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
