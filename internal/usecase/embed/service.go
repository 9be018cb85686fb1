package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"storyline/internal/domain/entity"
	"storyline/internal/observability/metrics"
	"storyline/internal/repository"
)

// DefaultBatchSize is the number of articles sent per provider request.
const DefaultBatchSize = 32

// Provider turns texts into vectors, one per input, in input order.
type Provider interface {
	Model() string
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Gate reports whether remote calls are currently allowed.
type Gate interface {
	Allow() bool
}

// Service embeds articles that are missing an embedding.
type Service struct {
	Articles   repository.ArticleRepository
	Embeddings repository.ArticleEmbeddingRepository
	Provider   Provider
	// Gate may be nil, in which case the provider is always called.
	Gate      Gate
	BatchSize int
	Now       func() time.Time
	Logger    *slog.Logger
}

// Stats summarizes one backfill run.
type Stats struct {
	Pending     int
	Embedded    int
	Failed      int
	Skipped     int
	Interrupted bool
	Duration    time.Duration
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Backfill embeds up to limit articles, newest first. When the gate closes
// or the provider reports ErrEmbeddingUnavailable the remaining articles
// are skipped and left for a later run. A failed batch is counted and the
// run continues with the next one.
func (s *Service) Backfill(ctx context.Context, limit int) (*Stats, error) {
	logger := s.logger()
	start := time.Now()
	stats := &Stats{}

	articles, err := s.Articles.ListMissingEmbeddings(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list articles without embeddings: %w", err)
	}
	stats.Pending = len(articles)

	size := s.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}

	for offset := 0; offset < len(articles); offset += size {
		batch := articles[offset:min(offset+size, len(articles))]
		remaining := len(articles) - offset

		if ctx.Err() != nil {
			stats.Interrupted = true
			s.skip(stats, remaining)
			break
		}
		if s.Gate != nil && !s.Gate.Allow() {
			logger.Info("embedding backfill paused, upstream quota exhausted",
				slog.Int("skipped", remaining))
			s.skip(stats, remaining)
			break
		}

		if err := s.embedBatch(ctx, batch, stats); err != nil {
			if errors.Is(err, ErrEmbeddingUnavailable) {
				logger.Info("embedding provider unavailable, skipping rest of backfill",
					slog.Int("skipped", remaining),
					slog.Any("reason", err))
				s.skip(stats, remaining)
				break
			}
			if ctx.Err() != nil {
				stats.Interrupted = true
				s.skip(stats, remaining)
				break
			}
			logger.Warn("embedding batch failed",
				slog.Int("batch_size", len(batch)),
				slog.Any("error", err))
		}
	}

	stats.Duration = time.Since(start)
	logger.Info("embedding backfill completed",
		slog.Int("pending", stats.Pending),
		slog.Int("embedded", stats.Embedded),
		slog.Int("failed", stats.Failed),
		slog.Int("skipped", stats.Skipped),
		slog.Bool("interrupted", stats.Interrupted),
		slog.Duration("duration", stats.Duration),
	)
	return stats, nil
}

// embedBatch returns the provider error, or nil once every vector has been
// offered to the store. Store failures are counted per article. A batch that
// fails because of unavailability or cancellation is not counted here.
func (s *Service) embedBatch(ctx context.Context, batch []*entity.Article, stats *Stats) error {
	texts := make([]string, len(batch))
	for i, a := range batch {
		texts[i] = a.EmbeddingText()
	}

	start := time.Now()
	vectors, err := s.Provider.Embed(ctx, texts)
	elapsed := time.Since(start)
	if err == nil && len(vectors) != len(batch) {
		err = fmt.Errorf("provider returned %d vectors for %d texts", len(vectors), len(batch))
	}
	if err != nil {
		if !errors.Is(err, ErrEmbeddingUnavailable) && ctx.Err() == nil {
			stats.Failed += len(batch)
			metrics.RecordEmbeddingFailed(elapsed)
		}
		return err
	}

	// Vectors already paid for are stored even if the run is being cancelled.
	storeCtx := context.WithoutCancel(ctx)
	model := s.Provider.Model()
	for i, a := range batch {
		e := &entity.ArticleEmbedding{
			ArticleID: a.ID,
			Model:     model,
			Dimension: len(vectors[i]),
			Vector:    vectors[i],
			CreatedAt: s.now(),
		}
		if err := s.Embeddings.Upsert(storeCtx, e); err != nil {
			stats.Failed++
			s.logger().Warn("failed to store embedding",
				slog.Int64("article_id", a.ID),
				slog.Any("error", err))
			continue
		}
		stats.Embedded++
		metrics.RecordEmbeddingSuccess(elapsed)
	}
	return nil
}

func (s *Service) skip(stats *Stats, n int) {
	stats.Skipped += n
	for range n {
		metrics.RecordEmbeddingSkipped()
	}
}
