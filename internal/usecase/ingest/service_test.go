package ingest_test

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyline/internal/domain/entity"
	"storyline/internal/infra/adapter/persistence/sqlite"
	"storyline/internal/infra/db"
	"storyline/internal/repository"
	"storyline/internal/resilience/retry"
	"storyline/internal/usecase/ingest"
	"storyline/tests/fixtures"
)

/*──────────────────── stubs ────────────────────*/

type stubFetcher struct {
	mu     sync.Mutex
	feeds  map[string][]ingest.FeedItem
	errs   map[string]error
	called []string
}

func (f *stubFetcher) Fetch(_ context.Context, url string) ([]ingest.FeedItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called = append(f.called, url)
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	return f.feeds[url], nil
}

type stubGate struct {
	mu      sync.Mutex
	allow   bool
	limited []time.Time
}

func (g *stubGate) Allow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.allow
}

func (g *stubGate) RecordRateLimited(until time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.allow = false
	g.limited = append(g.limited, until)
}

type env struct {
	sources  repository.SourceRepository
	articles repository.ArticleRepository
	fetcher  *stubFetcher
	svc      *ingest.Service
	now      time.Time
}

func newEnv(t *testing.T, defs ...entity.Source) *env {
	t.Helper()
	conn, err := db.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, db.MigrateUpSQLite(conn))

	e := &env{
		sources:  sqlite.NewSourceRepo(conn),
		articles: sqlite.NewArticleRepo(conn),
		fetcher:  &stubFetcher{feeds: map[string][]ingest.FeedItem{}, errs: map[string]error{}},
		now:      fixtures.BaseTime.Add(12 * time.Hour),
	}
	e.svc = &ingest.Service{
		SourceRepo:  e.sources,
		ArticleRepo: e.articles,
		FeedFetcher: e.fetcher,
		Parallelism: 2,
		Now:         func() time.Time { return e.now },
	}
	if len(defs) > 0 {
		require.NoError(t, e.svc.SyncSources(context.Background(), defs))
	}
	return e
}

func source(name, feed string, bias int) entity.Source {
	return entity.Source{Name: name, FeedURL: feed, Bias: entity.BiasPtr(bias)}
}

func item(title, url string) ingest.FeedItem {
	return ingest.FeedItem{Title: title, URL: url, Content: "body", PublishedAt: fixtures.BaseTime}
}

func sourceByName(t *testing.T, repo repository.SourceRepository, name string) *entity.Source {
	t.Helper()
	all, err := repo.List(context.Background())
	require.NoError(t, err)
	for _, s := range all {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("source %q not found", name)
	return nil
}

/*──────────────────── SyncSources ────────────────────*/

func TestService_SyncSources(t *testing.T) {
	e := newEnv(t,
		source("wire", "https://wire.example.com/rss", 1),
		source("daily", "https://daily.example.com/rss", 3),
	)
	ctx := context.Background()

	require.NoError(t, e.svc.SyncSources(ctx, []entity.Source{
		source("daily", "https://daily.example.com/feed.xml", 4),
		source("weekly", "https://weekly.example.com/rss", 5),
	}))

	active, err := e.sources.ListActive(ctx)
	require.NoError(t, err)
	var names []string
	for _, s := range active {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"daily", "weekly"}, names)

	daily := sourceByName(t, e.sources, "daily")
	assert.Equal(t, "https://daily.example.com/feed.xml", daily.FeedURL)
	require.NotNil(t, daily.Bias)
	assert.Equal(t, 4, *daily.Bias)
	assert.False(t, sourceByName(t, e.sources, "wire").Active)
}

func TestService_SyncSources_InvalidWritesNothing(t *testing.T) {
	e := newEnv(t, source("wire", "https://wire.example.com/rss", 1))
	ctx := context.Background()

	err := e.svc.SyncSources(ctx, []entity.Source{
		source("daily", "https://daily.example.com/rss", 3),
		{Name: "", FeedURL: "https://nameless.example.com/rss"},
	})
	var vErr *entity.ValidationError
	require.ErrorAs(t, err, &vErr)

	all, err := e.sources.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].Active)
}

/*──────────────────── IngestAll ────────────────────*/

func TestService_IngestAll(t *testing.T) {
	e := newEnv(t,
		source("wire", "https://wire.example.com/rss", 1),
		source("daily", "https://daily.example.com/rss", 3),
		source("broken", "https://broken.example.com/rss", 5),
	)
	ctx := context.Background()

	stored := fixtures.NewTestArticle(fixtures.WithArticleURL("https://daily.example.com/old"))
	created, err := e.articles.Create(ctx, stored)
	require.NoError(t, err)
	require.True(t, created)

	e.fetcher.feeds["https://wire.example.com/rss"] = []ingest.FeedItem{
		item("Central bank raises interest rates again", "https://Wire.example.com/a?utm_source=rss#top"),
		item("Central bank raises interest rates again", "https://wire.example.com/a"),
		item("Quake hits coastal city overnight", "https://wire.example.com/b"),
		item("", "https://wire.example.com/untitled"),
	}
	e.fetcher.feeds["https://daily.example.com/rss"] = []ingest.FeedItem{
		item("Central bank raises interest rates", "https://daily.example.com/x"),
		item("An article stored last week", "https://daily.example.com/old"),
	}
	e.fetcher.errs["https://broken.example.com/rss"] = errors.New("connection reset")

	stats, err := e.svc.IngestAll(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Sources)
	assert.Equal(t, 1, stats.SourcesFailed)
	assert.Zero(t, stats.SourcesSkipped)
	assert.Equal(t, 6, stats.FeedItems)
	assert.Equal(t, 1, stats.Invalid)
	assert.Equal(t, 2, stats.Duplicated)
	assert.Equal(t, 1, stats.Collapsed)
	assert.Equal(t, 2, stats.Inserted)

	a, err := e.articles.GetByURL(ctx, "https://wire.example.com/a")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, "wire", a.SourceName)
	require.NotNil(t, a.Bias)
	assert.Equal(t, 1, *a.Bias)

	collapsed, err := e.articles.GetByURL(ctx, "https://daily.example.com/x")
	require.NoError(t, err)
	assert.Nil(t, collapsed)

	quake, err := e.articles.GetByURL(ctx, "https://wire.example.com/b")
	require.NoError(t, err)
	assert.NotNil(t, quake)

	wire := sourceByName(t, e.sources, "wire")
	require.NotNil(t, wire.LastCrawledAt)
	assert.True(t, wire.LastCrawledAt.Equal(e.now))
	assert.Nil(t, sourceByName(t, e.sources, "broken").LastCrawledAt)
}

func TestService_IngestAll_SecondRunIsIdempotent(t *testing.T) {
	e := newEnv(t, source("wire", "https://wire.example.com/rss", 1))
	ctx := context.Background()
	e.fetcher.feeds["https://wire.example.com/rss"] = []ingest.FeedItem{
		item("Quake hits coastal city overnight", "https://wire.example.com/b"),
	}

	first, err := e.svc.IngestAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Inserted)

	second, err := e.svc.IngestAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, second.Inserted)
	assert.Equal(t, 1, second.Duplicated)
}

func TestService_IngestAll_MissingPublishedAtUsesNow(t *testing.T) {
	e := newEnv(t, source("wire", "https://wire.example.com/rss", 1))
	ctx := context.Background()
	e.fetcher.feeds["https://wire.example.com/rss"] = []ingest.FeedItem{
		{Title: "Undated dispatch", URL: "https://wire.example.com/undated"},
	}

	_, err := e.svc.IngestAll(ctx)
	require.NoError(t, err)

	a, err := e.articles.GetByURL(ctx, "https://wire.example.com/undated")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.True(t, a.PublishedAt.Equal(e.now))
}

func TestService_IngestAll_RateLimitClosesGate(t *testing.T) {
	e := newEnv(t,
		source("wire", "https://wire.example.com/rss", 1),
		source("daily", "https://daily.example.com/rss", 3),
	)
	gate := &stubGate{allow: true}
	e.svc.Gate = gate
	e.svc.Parallelism = 1
	e.svc.RateLimitBackoff = time.Hour
	e.fetcher.errs["https://wire.example.com/rss"] = &retry.HTTPError{StatusCode: 429, Message: "Too Many Requests"}
	e.fetcher.feeds["https://daily.example.com/rss"] = []ingest.FeedItem{
		item("Quake hits coastal city overnight", "https://daily.example.com/b"),
	}

	stats, err := e.svc.IngestAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.SourcesFailed)
	assert.Equal(t, 1, stats.SourcesSkipped)
	assert.Zero(t, stats.Inserted)
	require.Len(t, gate.limited, 1)
	assert.True(t, gate.limited[0].Equal(e.now.Add(time.Hour)))
	assert.Equal(t, []string{"https://wire.example.com/rss"}, e.fetcher.called)
}

func TestService_IngestAll_RetryAfterOverridesBackoff(t *testing.T) {
	e := newEnv(t, source("wire", "https://wire.example.com/rss", 1))
	gate := &stubGate{allow: true}
	e.svc.Gate = gate
	e.svc.RateLimitBackoff = time.Hour
	e.fetcher.errs["https://wire.example.com/rss"] = &retry.HTTPError{
		StatusCode: 429,
		Message:    "Too Many Requests",
		RetryAfter: 5 * time.Minute,
	}

	_, err := e.svc.IngestAll(context.Background())
	require.NoError(t, err)
	require.Len(t, gate.limited, 1)
	assert.True(t, gate.limited[0].Equal(e.now.Add(5*time.Minute)))
}

func TestService_IngestAll_GateClosedSkipsEverything(t *testing.T) {
	e := newEnv(t, source("wire", "https://wire.example.com/rss", 1))
	e.svc.Gate = &stubGate{allow: false}

	stats, err := e.svc.IngestAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.SourcesSkipped)
	assert.Empty(t, e.fetcher.called)
}

func TestService_IngestAll_ListFailure(t *testing.T) {
	e := newEnv(t)
	e.svc.SourceRepo = failingSources{}

	_, err := e.svc.IngestAll(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, sql.ErrConnDone)
}

type failingSources struct {
	repository.SourceRepository
}

func (failingSources) ListActive(context.Context) ([]*entity.Source, error) {
	return nil, sql.ErrConnDone
}
