package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"storyline/internal/domain/entity"
	"storyline/internal/repository"

	"github.com/pgvector/pgvector-go"
)

// ArticleEmbeddingRepo implements the ArticleEmbeddingRepository interface for PostgreSQL.
// Vectors live in a pgvector column.
type ArticleEmbeddingRepo struct {
	db *sql.DB
}

// NewArticleEmbeddingRepo creates a new PostgreSQL-based ArticleEmbeddingRepository.
func NewArticleEmbeddingRepo(db *sql.DB) repository.ArticleEmbeddingRepository {
	return &ArticleEmbeddingRepo{
		db: db,
	}
}

// Upsert creates a new embedding or replaces the existing one.
func (repo *ArticleEmbeddingRepo) Upsert(ctx context.Context, embedding *entity.ArticleEmbedding) error {
	if embedding == nil {
		return fmt.Errorf("Upsert: embedding is nil")
	}
	if err := embedding.Validate(); err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}

	vector := pgvector.NewVector(embedding.Vector)

	const query = `
INSERT INTO article_embeddings (article_id, model, dimension, embedding, created_at)
VALUES ($1, $2, $3, $4, NOW())
ON CONFLICT (article_id)
DO UPDATE SET
	model = EXCLUDED.model,
	dimension = EXCLUDED.dimension,
	embedding = EXCLUDED.embedding
RETURNING created_at`

	err := repo.db.QueryRowContext(ctx, query,
		embedding.ArticleID,
		embedding.Model,
		embedding.Dimension,
		vector,
	).Scan(&embedding.CreatedAt)
	if err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}
	return nil
}

// FindByArticleIDs loads the vectors of the given articles with one query.
func (repo *ArticleEmbeddingRepo) FindByArticleIDs(ctx context.Context, articleIDs []int64) (map[int64][]float32, error) {
	result := make(map[int64][]float32, len(articleIDs))
	if len(articleIDs) == 0 {
		return result, nil
	}

	const query = `
SELECT article_id, embedding
FROM article_embeddings
WHERE article_id = ANY($1)`

	rows, err := repo.db.QueryContext(ctx, query, articleIDs)
	if err != nil {
		return nil, fmt.Errorf("FindByArticleIDs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			id     int64
			vector pgvector.Vector
		)
		if err := rows.Scan(&id, &vector); err != nil {
			return nil, fmt.Errorf("FindByArticleIDs: Scan: %w", err)
		}
		result[id] = vector.Slice()
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("FindByArticleIDs: %w", err)
	}
	return result, nil
}

// DeleteByArticleID removes the embedding of an article.
// Returns the number of deleted rows.
func (repo *ArticleEmbeddingRepo) DeleteByArticleID(ctx context.Context, articleID int64) (int64, error) {
	const query = `DELETE FROM article_embeddings WHERE article_id = $1`

	result, err := repo.db.ExecContext(ctx, query, articleID)
	if err != nil {
		return 0, fmt.Errorf("DeleteByArticleID: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("DeleteByArticleID: RowsAffected: %w", err)
	}

	return count, nil
}
