// Package metrics holds the Prometheus collectors of the API and worker,
// registered on the default registry and served on /metrics, plus the
// Record* helpers the use cases call.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics track HTTP request patterns and performance
var (
	// HTTPRequestsTotal counts total HTTP requests by method, path, and status
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration measures HTTP request duration in seconds
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// HTTPResponseSize measures HTTP response body size in bytes
	HTTPResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)
)

// Matching metrics track the story matching passes
var (
	// MatchOutcomesTotal counts evaluated candidates by strength and whether
	// they were attached
	MatchOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storyline_match_outcomes_total",
			Help: "Total number of candidate evaluations by match strength",
		},
		[]string{"strength", "attached"},
	)

	// MatchSignalsTotal counts novelty and new-perspective signals on strong matches
	MatchSignalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storyline_match_signals_total",
			Help: "Total number of strong matches carrying a signal",
		},
		[]string{"signal"},
	)

	// MatchingPassDuration measures the wall time of a whole pass
	MatchingPassDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storyline_matching_pass_duration_seconds",
			Help:    "Time taken by a matching pass",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"status"},
	)

	// MatchingStoriesTotal counts per-story results by status
	MatchingStoriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storyline_matching_stories_total",
			Help: "Total number of stories handled by matching passes",
		},
		[]string{"status"}, // status: processed, failed, skipped
	)

	// CandidatesSkippedTotal counts candidates skipped for missing embeddings
	CandidatesSkippedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storyline_candidates_skipped_total",
			Help: "Total number of candidates skipped because no comparable embedding exists",
		},
	)

	// StoriesTracked tracks the number of stories in the store
	StoriesTracked = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storyline_stories_tracked",
			Help: "Number of tracked stories",
		},
	)
)

// Producer metrics track the ingestion and embedding producers
var (
	// ArticlesIngestedTotal counts articles stored per source
	ArticlesIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storyline_articles_ingested_total",
			Help: "Total number of articles stored from feed sources",
		},
		[]string{"source"},
	)

	// ArticlesCollapsedTotal counts headlines folded into a cluster representative
	ArticlesCollapsedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storyline_articles_collapsed_total",
			Help: "Total number of duplicate headlines collapsed during ingestion",
		},
	)

	// FeedCrawlDuration measures time to crawl a feed source
	FeedCrawlDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feed_crawl_duration_seconds",
			Help:    "Time taken to crawl a feed source",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"source"},
	)

	// FeedCrawlErrors counts errors during feed crawling
	FeedCrawlErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_crawl_errors_total",
			Help: "Total number of feed crawl errors",
		},
		[]string{"source", "error_type"},
	)

	// EmbeddingsTotal counts embedding requests by result
	EmbeddingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storyline_embeddings_total",
			Help: "Total number of article embedding attempts",
		},
		[]string{"result"}, // result: success, failure, skipped
	)

	// EmbeddingDuration measures time to embed one article
	EmbeddingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "storyline_embedding_duration_seconds",
			Help:    "Time taken to embed an article",
			Buckets: []float64{0.05, 0.1, 0.2, 0.4, 0.8, 1.6, 3.2, 6.4},
		},
	)

	// QuotaRemaining mirrors the last remaining-requests value reported upstream.
	// -1 means unknown.
	QuotaRemaining = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storyline_quota_remaining",
			Help: "Remaining upstream requests, -1 when unknown",
		},
	)

	// QuotaRateLimited is 1 while upstream calls are blocked
	QuotaRateLimited = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storyline_quota_rate_limited",
			Help: "Whether upstream calls are currently rate limited",
		},
	)
)

// CircuitBreakerState reports each breaker as 0 closed, 1 half-open, 2 open
var CircuitBreakerState = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "storyline_circuit_breaker_state",
		Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
	},
	[]string{"circuit"},
)

// Database metrics track database performance
var (
	// DBQueryDuration measures database query duration
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		},
		[]string{"operation"},
	)

	// DBConnectionsActive tracks active database connections
	DBConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of active database connections",
		},
	)

	// DBConnectionsIdle tracks idle database connections
	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_idle",
			Help: "Number of idle database connections",
		},
	)
)

// RecordHTTPRequest records an HTTP request with its metadata
func RecordHTTPRequest(method, path, status string, duration time.Duration, responseSize int) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())

	if responseSize > 0 {
		HTTPResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
	}
}
