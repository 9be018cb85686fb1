package sqlite_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"storyline/internal/domain/entity"
	"storyline/internal/infra/adapter/persistence/sqlite"
	"storyline/internal/infra/db"
	"storyline/tests/fixtures"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := db.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, db.MigrateUpSQLite(conn))
	return conn
}

// seedArticles stores the articles and, when vectors are given, one
// embedding per article in the same order.
func seedArticles(t *testing.T, conn *sql.DB, articles []*entity.Article, vectors ...[]float32) {
	t.Helper()
	ctx := context.Background()
	articleRepo := sqlite.NewArticleRepo(conn)
	embeddingRepo := sqlite.NewArticleEmbeddingRepo(conn)

	for i, a := range articles {
		created, err := articleRepo.Create(ctx, a)
		require.NoError(t, err)
		require.True(t, created, a.URL)
		if i < len(vectors) {
			require.NoError(t, embeddingRepo.Upsert(ctx,
				fixtures.NewTestEmbedding(fixtures.WithArticleID(a.ID), fixtures.WithVector(vectors[i]))))
		}
	}
}
