package metrics

import (
	"strconv"
	"time"

	"storyline/internal/domain/entity"
)

// RecordMatchOutcome records one candidate evaluation of a matching pass.
// Strong matches also count their novelty and new-perspective signals.
func RecordMatchOutcome(o entity.MatchOutcome) {
	MatchOutcomesTotal.WithLabelValues(o.Strength.String(), strconv.FormatBool(o.Attached)).Inc()
	if o.Strength != entity.MatchStrong {
		return
	}
	if o.Novel {
		MatchSignalsTotal.WithLabelValues("novel").Inc()
	}
	if o.NewPerspective {
		MatchSignalsTotal.WithLabelValues("new_perspective").Inc()
	}
}

// RecordMatchingPass records the duration and per-story results of a pass.
// Status is "completed", "interrupted" or "failed".
func RecordMatchingPass(status string, duration time.Duration, processed, failed, skipped, candidatesSkipped int) {
	MatchingPassDuration.WithLabelValues(status).Observe(duration.Seconds())
	MatchingStoriesTotal.WithLabelValues("processed").Add(float64(processed))
	MatchingStoriesTotal.WithLabelValues("failed").Add(float64(failed))
	MatchingStoriesTotal.WithLabelValues("skipped").Add(float64(skipped))
	CandidatesSkippedTotal.Add(float64(candidatesSkipped))
}

// UpdateStoriesTracked updates the number of tracked stories.
func UpdateStoriesTracked(count int) {
	StoriesTracked.Set(float64(count))
}

// RecordFeedCrawl records metrics for a feed crawl operation.
func RecordFeedCrawl(source string, duration time.Duration, inserted, collapsed int) {
	FeedCrawlDuration.WithLabelValues(source).Observe(duration.Seconds())
	if inserted > 0 {
		ArticlesIngestedTotal.WithLabelValues(source).Add(float64(inserted))
	}
	if collapsed > 0 {
		ArticlesCollapsedTotal.Add(float64(collapsed))
	}
}

// RecordFeedCrawlError records an error during feed crawling.
func RecordFeedCrawlError(source, errorType string) {
	FeedCrawlErrors.WithLabelValues(source, errorType).Inc()
}

// RecordEmbeddingSuccess records a stored embedding and the time it took.
//
// Example:
//
//	start := time.Now()
//	vec, err := provider.Embed(ctx, text)
//	if err == nil {
//	    RecordEmbeddingSuccess(time.Since(start))
//	}
func RecordEmbeddingSuccess(duration time.Duration) {
	EmbeddingsTotal.WithLabelValues("success").Inc()
	EmbeddingDuration.Observe(duration.Seconds())
}

// RecordEmbeddingFailed records a failed embedding request.
func RecordEmbeddingFailed(duration time.Duration) {
	EmbeddingsTotal.WithLabelValues("failure").Inc()
	EmbeddingDuration.Observe(duration.Seconds())
}

// RecordEmbeddingSkipped records an article left without an embedding because
// the provider was unavailable or rate limited.
func RecordEmbeddingSkipped() {
	EmbeddingsTotal.WithLabelValues("skipped").Inc()
}

// UpdateQuota mirrors the quota snapshot into gauges.
func UpdateQuota(snap entity.QuotaSnapshot, now time.Time) {
	QuotaRemaining.Set(float64(snap.Remaining))
	limited := 0.0
	if snap.IsRateLimited(now) {
		limited = 1
	}
	QuotaRateLimited.Set(limited)
}

// RecordDBQuery records the duration of a database query operation.
// Operation should describe the query type (e.g., "list_candidates", "attach_article").
func RecordDBQuery(operation string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// UpdateDBConnectionStats updates database connection pool statistics.
func UpdateDBConnectionStats(active, idle int) {
	DBConnectionsActive.Set(float64(active))
	DBConnectionsIdle.Set(float64(idle))
}

// SetCircuitState exports a breaker state change.
func SetCircuitState(circuit string, state int) {
	CircuitBreakerState.WithLabelValues(circuit).Set(float64(state))
}
