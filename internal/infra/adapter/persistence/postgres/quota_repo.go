package postgres

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
		snap  entity.QuotaSnapshot
		until sql.NullTime
	)
	err := repo.db.QueryRowContext(ctx, `
SELECT rate_limited_until, remaining, updated_at
FROM quota_state
WHERE id = 1`).Scan(&until, &snap.Remaining, &snap.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.UnknownQuota(), nil
	}
	if err != nil {
		return entity.QuotaSnapshot{}, fmt.Errorf("Load: %w", err)
	}
	if until.Valid {
		snap.RateLimitedUntil = until.Time
	}
	return snap, nil
}

func (repo *QuotaRepo) Save(ctx context.Context, snap entity.QuotaSnapshot) error {
	var until sql.NullTime
	if !snap.RateLimitedUntil.IsZero() {
		until = sql.NullTime{Time: snap.RateLimitedUntil, Valid: true}
	}
	const query = `
INSERT INTO quota_state (id, rate_limited_until, remaining, updated_at)
VALUES (1, $1, $2, $3)
ON CONFLICT (id) DO UPDATE SET
	rate_limited_until = EXCLUDED.rate_limited_until,
	remaining = EXCLUDED.remaining,
	updated_at = EXCLUDED.updated_at`
	if _, err := repo.db.ExecContext(ctx, query, until, snap.Remaining, snap.UpdatedAt); err != nil {
		return fmt.Errorf("Save: %w", err)
	}
	return nil
}
