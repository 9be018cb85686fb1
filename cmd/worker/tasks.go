package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"storyline/internal/domain/entity"
	"storyline/internal/infra/worker"
	"storyline/internal/observability/slo"
	"storyline/internal/usecase/embed"
	"storyline/internal/usecase/ingest"
	"storyline/internal/usecase/orchestrator"
)

// Ingester is the part of ingest.Service the sync task drives.
type Ingester interface {
	SyncSources(ctx context.Context, defs []entity.Source) error
	IngestAll(ctx context.Context) (*ingest.Stats, error)
}

// Backfiller is the part of embed.Service the sync task drives.
type Backfiller interface {
	Backfill(ctx context.Context, limit int) (*embed.Stats, error)
}

// Matcher runs one matching pass.
type Matcher interface {
	RunMatchingPass(ctx context.Context) (*orchestrator.PassResult, error)
}

// syncTask mirrors the source list, crawls every active feed and embeds
// what is new. A failing source list keeps the sources already stored.
// backfill may be nil when embedding is disabled.
func syncTask(
	loadSources func() ([]entity.Source, error),
	ing Ingester,
	backfill Backfiller,
	backfillLimit int,
	m *worker.WorkerMetrics,
	logger *slog.Logger,
) worker.Task {
	return func(ctx context.Context) error {
		defs, err := loadSources()
		if err != nil {
			logger.Warn("source list unavailable, keeping stored sources", slog.Any("error", err))
		} else if err := ing.SyncSources(ctx, defs); err != nil {
			logger.Warn("source sync failed, keeping stored sources", slog.Any("error", err))
		}

		stats, err := ing.IngestAll(ctx)
		if err != nil {
			return fmt.Errorf("ingest: %w", err)
		}
		m.RecordItems("sync", "inserted", stats.Inserted)
		m.RecordItems("sync", "collapsed", stats.Collapsed)
		m.RecordItems("sync", "duplicated", stats.Duplicated)
		m.RecordItems("sync", "sources_failed", stats.SourcesFailed)

		if backfill == nil {
			return nil
		}
		es, err := backfill.Backfill(ctx, backfillLimit)
		if err != nil {
			return fmt.Errorf("embed backfill: %w", err)
		}
		m.RecordItems("sync", "embedded", es.Embedded)
		m.RecordItems("sync", "embed_failed", es.Failed)
		m.RecordItems("sync", "embed_skipped", es.Skipped)
		if es.Interrupted {
			return ctx.Err()
		}
		return nil
	}
}

// matchTask runs one matching pass and reports it to the SLO tracker. An
// interrupted pass returns the context error so the run is not counted as a
// success.
func matchTask(matcher Matcher, m *worker.WorkerMetrics, tracker *slo.Tracker) worker.Task {
	return func(ctx context.Context) error {
		start := time.Now()
		result, err := matcher.RunMatchingPass(ctx)
		tracker.Observe(err == nil && !result.Interrupted, time.Since(start))
		if err != nil {
			return err
		}
		m.RecordItems("match", "stories", result.StoriesProcessed)
		m.RecordItems("match", "stories_failed", result.StoriesFailed)
		m.RecordItems("match", "candidates", result.Candidates)
		m.RecordItems("match", "attached", result.Attached)
		m.RecordItems("match", "suggested", len(result.Suggestions))
		if result.Interrupted {
			return ctx.Err()
		}
		return nil
	}
}

// pingPrecondition fails when the database does not answer.
func pingPrecondition(db interface {
	PingContext(ctx context.Context) error
}) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return db.PingContext(ctx)
	}
}
