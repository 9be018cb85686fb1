package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storyline/internal/domain/entity"
	"storyline/internal/repository"
)

// QuotaRepo keeps the single quota_state row.
type QuotaRepo struct{ db *sql.DB }

func NewQuotaRepo(db *sql.DB) repository.QuotaRepository {
	return &QuotaRepo{db: db}
}

func (repo *QuotaRepo) Load(ctx context.Context) (entity.QuotaSnapshot, error) {
	var (
		until     sql.NullInt64
		remaining int
		updated   int64
	)
	err := repo.db.QueryRowContext(ctx,
		`SELECT rate_limited_until, remaining, updated_at FROM quota_state WHERE id = 1`,
	).Scan(&until, &remaining, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.UnknownQuota(), nil
	}
	if err != nil {
		return entity.QuotaSnapshot{}, fmt.Errorf("Load: %w", err)
	}

	snap := entity.QuotaSnapshot{Remaining: remaining, UpdatedAt: fromNanos(updated)}
	if t := timeFromNull(until); t != nil {
		snap.RateLimitedUntil = *t
	}
	return snap, nil
}

func (repo *QuotaRepo) Save(ctx context.Context, snap entity.QuotaSnapshot) error {
	const query = `
INSERT INTO quota_state (id, rate_limited_until, remaining, updated_at)
VALUES (1, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	rate_limited_until = excluded.rate_limited_until,
	remaining = excluded.remaining,
	updated_at = excluded.updated_at`
	if _, err := repo.db.ExecContext(ctx, query,
		nullableNanos(&snap.RateLimitedUntil), snap.Remaining, toNanos(snap.UpdatedAt),
	); err != nil {
		return fmt.Errorf("Save: %w", err)
	}
	return nil
}
