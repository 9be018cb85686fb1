package embed_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyline/internal/domain/entity"
	"storyline/internal/infra/adapter/persistence/sqlite"
	"storyline/internal/infra/db"
	"storyline/internal/repository"
	"storyline/internal/usecase/embed"
	"storyline/tests/fixtures"
)

type stubProvider struct {
	calls [][]string
	// fail returns the error for the n-th call (0-based), nil otherwise.
	fail  func(call int) error
	short bool
}

func (p *stubProvider) Model() string { return "stub-embedding" }

func (p *stubProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	call := len(p.calls)
	p.calls = append(p.calls, texts)
	if p.fail != nil {
		if err := p.fail(call); err != nil {
			return nil, err
		}
	}
	n := len(texts)
	if p.short {
		n--
	}
	out := make([][]float32, n)
	for i := range out {
		out[i] = fixtures.GenerateTestVector(8, float32(call*100+i))
	}
	return out, nil
}

type flagGate struct{ allow bool }

func (g *flagGate) Allow() bool { return g.allow }

type env struct {
	articles   repository.ArticleRepository
	embeddings repository.ArticleEmbeddingRepository
	provider   *stubProvider
	svc        *embed.Service
	ids        []int64
}

func newEnv(t *testing.T, n int) *env {
	t.Helper()
	conn, err := db.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, db.MigrateUpSQLite(conn))

	e := &env{
		articles:   sqlite.NewArticleRepo(conn),
		embeddings: sqlite.NewArticleEmbeddingRepo(conn),
		provider:   &stubProvider{},
	}
	for _, a := range fixtures.NewTestArticles(n) {
		created, err := e.articles.Create(context.Background(), a)
		require.NoError(t, err)
		require.True(t, created)
		e.ids = append(e.ids, a.ID)
	}
	e.svc = &embed.Service{
		Articles:   e.articles,
		Embeddings: e.embeddings,
		Provider:   e.provider,
		BatchSize:  2,
		Now:        func() time.Time { return fixtures.BaseTime },
	}
	return e
}

func (e *env) embedded(t *testing.T) map[int64][]float32 {
	t.Helper()
	got, err := e.embeddings.FindByArticleIDs(context.Background(), e.ids)
	require.NoError(t, err)
	return got
}

func TestService_Backfill(t *testing.T) {
	e := newEnv(t, 5)

	stats, err := e.svc.Backfill(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, 5, stats.Pending)
	assert.Equal(t, 5, stats.Embedded)
	assert.Zero(t, stats.Failed)
	assert.Zero(t, stats.Skipped)
	assert.False(t, stats.Interrupted)
	assert.Len(t, e.provider.calls, 3)
	assert.Len(t, e.embedded(t), 5)

	missing, err := e.articles.ListMissingEmbeddings(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestService_Backfill_RespectsLimit(t *testing.T) {
	e := newEnv(t, 5)

	stats, err := e.svc.Backfill(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Pending)
	assert.Equal(t, 3, stats.Embedded)
	assert.Len(t, e.embedded(t), 3)
}

func TestService_Backfill_EmbedsTitleAndBody(t *testing.T) {
	e := newEnv(t, 1)

	_, err := e.svc.Backfill(context.Background(), 10)
	require.NoError(t, err)

	a, err := e.articles.Get(context.Background(), e.ids[0])
	require.NoError(t, err)
	require.Len(t, e.provider.calls, 1)
	assert.Equal(t, []string{a.EmbeddingText()}, e.provider.calls[0])
}

func TestService_Backfill_GateClosed(t *testing.T) {
	e := newEnv(t, 3)
	e.svc.Gate = &flagGate{allow: false}

	stats, err := e.svc.Backfill(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Skipped)
	assert.Zero(t, stats.Embedded)
	assert.Empty(t, e.provider.calls)
}

func TestService_Backfill_UnavailableSkipsRest(t *testing.T) {
	e := newEnv(t, 5)
	e.provider.fail = func(call int) error {
		if call == 1 {
			return fmt.Errorf("%w: rate limited", embed.ErrEmbeddingUnavailable)
		}
		return nil
	}

	stats, err := e.svc.Backfill(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Embedded)
	assert.Equal(t, 3, stats.Skipped)
	assert.Zero(t, stats.Failed)
	assert.Len(t, e.provider.calls, 2)
}

func TestService_Backfill_FailedBatchContinues(t *testing.T) {
	e := newEnv(t, 5)
	e.provider.fail = func(call int) error {
		if call == 0 {
			return errors.New("HTTP 500: upstream exploded")
		}
		return nil
	}

	stats, err := e.svc.Backfill(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Failed)
	assert.Equal(t, 3, stats.Embedded)
	assert.Len(t, e.provider.calls, 3)
}

func TestService_Backfill_ShortResponseIsFailure(t *testing.T) {
	e := newEnv(t, 2)
	e.provider.short = true

	stats, err := e.svc.Backfill(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Failed)
	assert.Empty(t, e.embedded(t))
}

func TestService_Backfill_Cancelled(t *testing.T) {
	e := newEnv(t, 4)
	ctx, cancel := context.WithCancel(context.Background())
	e.provider.fail = func(call int) error {
		if call == 0 {
			cancel()
		}
		return nil
	}

	stats, err := e.svc.Backfill(ctx, 10)
	require.NoError(t, err)
	assert.True(t, stats.Interrupted)
	assert.Equal(t, 2, stats.Embedded)
	assert.Equal(t, 2, stats.Skipped)
}

func TestService_Backfill_ListFailure(t *testing.T) {
	e := newEnv(t, 0)
	e.svc.Articles = failingArticles{}

	_, err := e.svc.Backfill(context.Background(), 10)
	assert.Error(t, err)
}

type failingArticles struct {
	repository.ArticleRepository
}

func (failingArticles) ListMissingEmbeddings(context.Context, int) ([]*entity.Article, error) {
	return nil, errors.New("database is locked")
}
