package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"storyline/internal/domain/entity"
	"storyline/internal/domain/headline"
	"storyline/internal/observability/metrics"
	"storyline/internal/repository"
	"storyline/internal/resilience/retry"
)

const (
	// DefaultParallelism bounds concurrent feed fetches.
	DefaultParallelism = 4

	// DefaultRateLimitBackoff is how long a source that answered 429 keeps
	// the gate closed when the response carries no reset time.
	DefaultRateLimitBackoff = 15 * time.Minute
)

// FeedFetcher is an interface for fetching RSS/Atom feeds from a URL.
type FeedFetcher interface {
	Fetch(ctx context.Context, url string) ([]FeedItem, error)
}

// FeedItem represents a single item from an RSS/Atom feed.
type FeedItem struct {
	Title       string
	URL         string
	Content     string
	PublishedAt time.Time
}

// Gate is the part of the quota gate the ingester consults before each
// source and informs about upstream rate limiting.
type Gate interface {
	Allow() bool
	RecordRateLimited(until time.Time)
}

// Service provides the feed ingestion use cases.
type Service struct {
	SourceRepo  repository.SourceRepository
	ArticleRepo repository.ArticleRepository
	FeedFetcher FeedFetcher
	// Gate may be nil, in which case every source is fetched.
	Gate             Gate
	Parallelism      int
	RateLimitBackoff time.Duration
	Now              func() time.Time
	Logger           *slog.Logger
}

// Stats contains statistics about one ingestion run.
type Stats struct {
	Sources        int
	SourcesSkipped int
	SourcesFailed  int
	FeedItems      int
	Invalid        int
	Duplicated     int
	Collapsed      int
	Inserted       int
	Duration       time.Duration
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

// SyncSources mirrors the configured source definitions into the sources
// table: listed sources are upserted and activated, every other source is
// deactivated. Invalid definitions abort the sync before anything is written.
func (s *Service) SyncSources(ctx context.Context, defs []entity.Source) error {
	for i := range defs {
		if err := defs[i].Validate(); err != nil {
			return fmt.Errorf("validate source %q: %w", defs[i].Name, err)
		}
	}

	names := make([]string, 0, len(defs))
	for i := range defs {
		src := defs[i]
		if err := s.SourceRepo.Upsert(ctx, &src); err != nil {
			return fmt.Errorf("upsert source %q: %w", src.Name, err)
		}
		names = append(names, src.Name)
	}
	if err := s.SourceRepo.DeactivateExcept(ctx, names); err != nil {
		return fmt.Errorf("deactivate removed sources: %w", err)
	}

	s.logger().Info("sources synced", slog.Int("active", len(names)))
	return nil
}

// fetched is the outcome of fetching one source.
type fetched struct {
	source   *entity.Source
	articles []*entity.Article
	invalid  int
	elapsed  time.Duration
	skipped  bool
	failed   bool
}

// IngestAll fetches every active source the gate allows, then stores the
// new articles of the combined batch. A failing source is logged and
// counted; it never aborts the others.
func (s *Service) IngestAll(ctx context.Context) (*Stats, error) {
	logger := s.logger()
	start := time.Now()
	stats := &Stats{}

	srcs, err := s.SourceRepo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active sources: %w", err)
	}
	stats.Sources = len(srcs)

	limit := s.Parallelism
	if limit <= 0 {
		limit = DefaultParallelism
	}

	results := make([]fetched, len(srcs))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, src := range srcs {
		g.Go(func() error {
			results[i] = s.fetchSource(ctx, src)
			return nil
		})
	}
	_ = g.Wait()

	var batch []*entity.Article
	for _, r := range results {
		switch {
		case r.skipped:
			stats.SourcesSkipped++
		case r.failed:
			stats.SourcesFailed++
		}
		stats.Invalid += r.invalid
		stats.FeedItems += len(r.articles) + r.invalid
		batch = append(batch, r.articles...)
	}

	perSource, err := s.store(ctx, batch, stats)
	if err != nil {
		return stats, err
	}

	for _, r := range results {
		if r.skipped || r.failed {
			continue
		}
		counts := perSource[r.source.Name]
		metrics.RecordFeedCrawl(r.source.Name, r.elapsed, counts.inserted, counts.collapsed)
	}

	stats.Duration = time.Since(start)
	logger.Info("ingestion completed",
		slog.Int("sources", stats.Sources),
		slog.Int("sources_skipped", stats.SourcesSkipped),
		slog.Int("sources_failed", stats.SourcesFailed),
		slog.Int("feed_items", stats.FeedItems),
		slog.Int("invalid", stats.Invalid),
		slog.Int("duplicated", stats.Duplicated),
		slog.Int("collapsed", stats.Collapsed),
		slog.Int("inserted", stats.Inserted),
		slog.Duration("duration", stats.Duration),
	)
	return stats, nil
}

func (s *Service) fetchSource(ctx context.Context, src *entity.Source) fetched {
	logger := s.logger().With(slog.String("source", src.Name))
	res := fetched{source: src}

	if s.Gate != nil && !s.Gate.Allow() {
		logger.Info("source skipped, upstream quota exhausted")
		res.skipped = true
		return res
	}

	start := time.Now()
	items, err := s.FeedFetcher.Fetch(ctx, src.FeedURL)
	res.elapsed = time.Since(start)
	if err != nil {
		res.failed = true
		errorType := "fetch_failed"
		if isRateLimited(err) {
			errorType = "rate_limited"
			if s.Gate != nil {
				s.Gate.RecordRateLimited(s.now().Add(s.rateLimitBackoff(err)))
			}
		}
		logger.Warn("failed to fetch feed",
			slog.String("feed_url", src.FeedURL),
			slog.String("error_type", errorType),
			slog.Any("error", err))
		metrics.RecordFeedCrawlError(src.Name, errorType)
		return res
	}

	for _, item := range items {
		a, err := s.toArticle(src, item)
		if err != nil {
			res.invalid++
			logger.Debug("dropping feed item",
				slog.String("url", item.URL),
				slog.Any("error", err))
			continue
		}
		res.articles = append(res.articles, a)
	}

	if err := s.SourceRepo.TouchCrawledAt(context.WithoutCancel(ctx), src.ID, s.now()); err != nil {
		logger.Warn("failed to update source crawled timestamp", slog.Any("error", err))
	}
	return res
}

func (s *Service) toArticle(src *entity.Source, item FeedItem) (*entity.Article, error) {
	canonical, err := CanonicalURL(item.URL)
	if err != nil {
		return nil, err
	}
	published := item.PublishedAt
	if published.IsZero() {
		published = s.now()
	}
	a := &entity.Article{
		URL:         canonical,
		Title:       item.Title,
		Body:        item.Content,
		SourceName:  src.Name,
		PublishedAt: published,
		Bias:        src.Bias,
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

type sourceCounts struct {
	inserted  int
	collapsed int
}

// store removes batch-internal and already stored URLs, collapses
// near-duplicate headlines and inserts the representatives in batch order.
func (s *Service) store(ctx context.Context, batch []*entity.Article, stats *Stats) (map[string]sourceCounts, error) {
	perSource := make(map[string]sourceCounts)
	if len(batch) == 0 {
		return perSource, nil
	}

	seen := make(map[string]struct{}, len(batch))
	urls := make([]string, 0, len(batch))
	unique := batch[:0:0]
	for _, a := range batch {
		if _, dup := seen[a.URL]; dup {
			stats.Duplicated++
			continue
		}
		seen[a.URL] = struct{}{}
		urls = append(urls, a.URL)
		unique = append(unique, a)
	}

	exists, err := s.ArticleRepo.ExistsByURLBatch(ctx, urls)
	if err != nil {
		metrics.RecordFeedCrawlError("all", "batch_check_failed")
		return perSource, fmt.Errorf("check stored urls: %w", err)
	}

	fresh := unique[:0:0]
	for _, a := range unique {
		if exists[a.URL] {
			stats.Duplicated++
			continue
		}
		fresh = append(fresh, a)
	}

	for _, c := range headline.Group(fresh, func(a *entity.Article) string { return a.Title }) {
		for _, dropped := range c.Members[1:] {
			counts := perSource[dropped.SourceName]
			counts.collapsed++
			perSource[dropped.SourceName] = counts
			stats.Collapsed++
		}

		rep := c.Representative()
		created, err := s.ArticleRepo.Create(ctx, rep)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return perSource, fmt.Errorf("store articles: %w", ctxErr)
			}
			s.logger().Warn("failed to store article",
				slog.String("url", rep.URL),
				slog.Any("error", err))
			metrics.RecordFeedCrawlError(rep.SourceName, "store_failed")
			continue
		}
		if !created {
			stats.Duplicated++
			continue
		}
		counts := perSource[rep.SourceName]
		counts.inserted++
		perSource[rep.SourceName] = counts
		stats.Inserted++
	}
	return perSource, nil
}

// rateLimitBackoff prefers the upstream Retry-After hint over the
// configured backoff.
func (s *Service) rateLimitBackoff(err error) time.Duration {
	var httpErr *retry.HTTPError
	if errors.As(err, &httpErr) && httpErr.RetryAfter > 0 {
		return httpErr.RetryAfter
	}
	if s.RateLimitBackoff > 0 {
		return s.RateLimitBackoff
	}
	return DefaultRateLimitBackoff
}

func isRateLimited(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var httpErr *retry.HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusTooManyRequests
}
