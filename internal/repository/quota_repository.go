package repository

import (
	"context"

	"storyline/internal/domain/entity"
)

// QuotaRepository is the durable mirror of the in-memory quota state.
type QuotaRepository interface {
	// Load returns entity.UnknownQuota() when nothing has been saved yet.
	Load(ctx context.Context) (entity.QuotaSnapshot, error)
	Save(ctx context.Context, snapshot entity.QuotaSnapshot) error
}
