package repository

import (
	"context"

	"storyline/internal/domain/entity"
)

// ArticleRepository is the article cache the matcher reads from.
type ArticleRepository interface {
	// Get returns (nil, nil) when the article does not exist.
	Get(ctx context.Context, id int64) (*entity.Article, error)
	// GetByURL returns (nil, nil) when no article has the canonical URL.
	GetByURL(ctx context.Context, url string) (*entity.Article, error)
	// Create stores a new article and sets its ID and CreatedAt.
	// It reports false without error when the URL is already stored.
	Create(ctx context.Context, article *entity.Article) (bool, error)
	// ExistsByURLBatch checks many URLs in one round trip.
	ExistsByURLBatch(ctx context.Context, urls []string) (map[string]bool, error)
	// ListCandidates returns articles published within w (inclusive) that are
	// not attached to any story and already have an embedding, ordered by
	// publication time then ID.
	ListCandidates(ctx context.Context, w entity.Window) ([]*entity.Article, error)
	// ListMissingEmbeddings returns up to limit articles that have no
	// embedding yet, newest first.
	ListMissingEmbeddings(ctx context.Context, limit int) ([]*entity.Article, error)
}
