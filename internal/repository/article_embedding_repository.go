package repository

import (
	"context"

	"storyline/internal/domain/entity"
)

// ArticleEmbeddingRepository stores the one embedding each article may have.
type ArticleEmbeddingRepository interface {
	// Upsert creates the article's embedding or replaces it.
	// Returns an error if validation or the database operation fails.
	Upsert(ctx context.Context, embedding *entity.ArticleEmbedding) error

	// FindByArticleIDs loads the vectors of the given articles in bulk.
	// Articles without an embedding are absent from the map.
	FindByArticleIDs(ctx context.Context, articleIDs []int64) (map[int64][]float32, error)

	// DeleteByArticleID removes the article's embedding and returns the number
	// of deleted rows.
	DeleteByArticleID(ctx context.Context, articleID int64) (int64, error)
}
