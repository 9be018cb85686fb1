package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"storyline/internal/domain/entity"
	"storyline/internal/repository"
)

type SourceRepo struct{ db *sql.DB }

func NewSourceRepo(db *sql.DB) repository.SourceRepository {
	return &SourceRepo{db: db}
}

func (repo *SourceRepo) List(ctx context.Context) ([]*entity.Source, error) {
	return repo.list(ctx, "List", `
SELECT id, name, feed_url, bias, active, last_crawled_at
FROM sources
ORDER BY id ASC`)
}

func (repo *SourceRepo) ListActive(ctx context.Context) ([]*entity.Source, error) {
	return repo.list(ctx, "ListActive", `
SELECT id, name, feed_url, bias, active, last_crawled_at
FROM sources
WHERE active = 1
ORDER BY id ASC`)
}

func (repo *SourceRepo) list(ctx context.Context, op, query string) ([]*entity.Source, error) {
	rows, err := repo.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: QueryContext: %w", op, err)
	}
	defer func() { _ = rows.Close() }()

	sources := make([]*entity.Source, 0, 50)
	for rows.Next() {
		var (
			source  entity.Source
			bias    sql.NullInt64
			crawled sql.NullInt64
		)
		if err := rows.Scan(&source.ID, &source.Name, &source.FeedURL, &bias, &source.Active, &crawled); err != nil {
			return nil, fmt.Errorf("%s: Scan: %w", op, err)
		}
		source.Bias = biasFromNull(bias)
		source.LastCrawledAt = timeFromNull(crawled)
		sources = append(sources, &source)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows.Err: %w", op, err)
	}
	return sources, nil
}

func (repo *SourceRepo) Upsert(ctx context.Context, source *entity.Source) error {
	const query = `
INSERT INTO sources (name, feed_url, bias, active)
VALUES (?, ?, ?, 1)
ON CONFLICT (name) DO UPDATE SET
	feed_url = excluded.feed_url,
	bias = excluded.bias,
	active = 1
RETURNING id`
	if err := repo.db.QueryRowContext(ctx, query, source.Name, source.FeedURL, biasArg(source.Bias)).Scan(&source.ID); err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}
	source.Active = true
	return nil
}

func (repo *SourceRepo) DeactivateExcept(ctx context.Context, names []string) error {
	if len(names) > maxPlaceholders {
		return fmt.Errorf("DeactivateExcept: too many sources (%d > %d)", len(names), maxPlaceholders)
	}
	query := `UPDATE sources SET active = 0`
	args := make([]any, len(names))
	for i, n := range names {
		args[i] = n
	}
	if len(names) > 0 {
		query += fmt.Sprintf(" WHERE name NOT IN (%s)", placeholders(len(names)))
	}
	if _, err := repo.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("DeactivateExcept: %w", err)
	}
	return nil
}

func (repo *SourceRepo) TouchCrawledAt(ctx context.Context, id int64, t time.Time) error {
	if _, err := repo.db.ExecContext(ctx,
		`UPDATE sources SET last_crawled_at = ? WHERE id = ?`, toNanos(t), id); err != nil {
		return fmt.Errorf("TouchCrawledAt: %w", err)
	}
	return nil
}
