package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"storyline/internal/domain/entity"
	"storyline/internal/repository"
)

// ArticleEmbeddingRepo stores vectors as JSON arrays in a TEXT column.
type ArticleEmbeddingRepo struct{ db *sql.DB }

// NewArticleEmbeddingRepo creates a new SQLite-based ArticleEmbeddingRepository.
func NewArticleEmbeddingRepo(db *sql.DB) repository.ArticleEmbeddingRepository {
	return &ArticleEmbeddingRepo{db: db}
}

func (repo *ArticleEmbeddingRepo) Upsert(ctx context.Context, embedding *entity.ArticleEmbedding) error {
	if embedding == nil {
		return fmt.Errorf("Upsert: embedding is nil")
	}
	if err := embedding.Validate(); err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}
	if embedding.CreatedAt.IsZero() {
		embedding.CreatedAt = time.Now().UTC()
	}

	encoded, err := json.Marshal(embedding.Vector)
	if err != nil {
		return fmt.Errorf("Upsert: marshal vector: %w", err)
	}

	const query = `
INSERT INTO article_embeddings (article_id, model, dimension, embedding, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (article_id) DO UPDATE SET
	model = excluded.model,
	dimension = excluded.dimension,
	embedding = excluded.embedding`
	if _, err := repo.db.ExecContext(ctx, query,
		embedding.ArticleID, embedding.Model, embedding.Dimension, string(encoded), toNanos(embedding.CreatedAt),
	); err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}
	return nil
}

func (repo *ArticleEmbeddingRepo) FindByArticleIDs(ctx context.Context, articleIDs []int64) (map[int64][]float32, error) {
	result := make(map[int64][]float32, len(articleIDs))
	for start := 0; start < len(articleIDs); start += maxPlaceholders {
		end := min(start+maxPlaceholders, len(articleIDs))
		chunk := articleIDs[start:end]

		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		query := fmt.Sprintf(
			"SELECT article_id, embedding FROM article_embeddings WHERE article_id IN (%s)",
			placeholders(len(chunk)))

		if err := repo.collect(ctx, query, args, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (repo *ArticleEmbeddingRepo) collect(ctx context.Context, query string, args []any, into map[int64][]float32) error {
	rows, err := repo.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("FindByArticleIDs: QueryContext: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			id      int64
			encoded string
			vector  []float32
		)
		if err := rows.Scan(&id, &encoded); err != nil {
			return fmt.Errorf("FindByArticleIDs: Scan: %w", err)
		}
		if err := json.Unmarshal([]byte(encoded), &vector); err != nil {
			return fmt.Errorf("FindByArticleIDs: article %d: %w", id, err)
		}
		into[id] = vector
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("FindByArticleIDs: rows.Err: %w", err)
	}
	return nil
}

func (repo *ArticleEmbeddingRepo) DeleteByArticleID(ctx context.Context, articleID int64) (int64, error) {
	result, err := repo.db.ExecContext(ctx, `DELETE FROM article_embeddings WHERE article_id = ?`, articleID)
	if err != nil {
		return 0, fmt.Errorf("DeleteByArticleID: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("DeleteByArticleID: RowsAffected: %w", err)
	}
	return count, nil
}
