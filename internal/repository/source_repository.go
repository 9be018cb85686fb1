package repository

import (
	"context"
	"time"

	"storyline/internal/domain/entity"
)

type SourceRepository interface {
	List(ctx context.Context) ([]*entity.Source, error)
	ListActive(ctx context.Context) ([]*entity.Source, error)
	// Upsert inserts or updates the source by name, marks it active and sets
	// source.ID.
	Upsert(ctx context.Context, source *entity.Source) error
	// DeactivateExcept deactivates every source whose name is not listed.
	DeactivateExcept(ctx context.Context, names []string) error
	TouchCrawledAt(ctx context.Context, id int64, t time.Time) error
}
