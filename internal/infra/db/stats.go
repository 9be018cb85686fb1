package db

import (
	"context"
	"database/sql"
	"time"

	"storyline/internal/observability/metrics"
)

// ReportPoolStats publishes the connection pool gauges every interval until
// ctx is done.
func ReportPoolStats(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		stats := db.Stats()
		metrics.UpdateDBConnectionStats(stats.InUse, stats.Idle)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
