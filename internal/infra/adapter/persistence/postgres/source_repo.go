package postgres

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

func scanSource(rows *sql.Rows) (*entity.Source, error) {
	var (
		source entity.Source
		bias   sql.NullInt64
	)
	if err := rows.Scan(
		&source.ID, &source.Name, &source.FeedURL, &bias, &source.Active, &source.LastCrawledAt,
	); err != nil {
		return nil, err
	}
	source.Bias = biasFromNull(bias)
	return &source, nil
}

func (repo *SourceRepo) List(ctx context.Context) ([]*entity.Source, error) {
	const query = `
SELECT id, name, feed_url, bias, active, last_crawled_at
FROM sources
ORDER BY id ASC`
	return repo.list(ctx, "List", query)
}

func (repo *SourceRepo) ListActive(ctx context.Context) ([]*entity.Source, error) {
	const query = `
SELECT id, name, feed_url, bias, active, last_crawled_at
FROM sources
WHERE active = TRUE
ORDER BY id ASC`
	return repo.list(ctx, "ListActive", query)
}

func (repo *SourceRepo) list(ctx context.Context, op, query string) ([]*entity.Source, error) {
	rows, err := repo.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = rows.Close() }()

	sources := make([]*entity.Source, 0, 50)
	for rows.Next() {
		source, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		sources = append(sources, source)
	}
	return sources, rows.Err()
}

func (repo *SourceRepo) Upsert(ctx context.Context, source *entity.Source) error {
	const query = `
INSERT INTO sources (name, feed_url, bias, active)
VALUES ($1, $2, $3, TRUE)
ON CONFLICT (name) DO UPDATE SET
	feed_url = EXCLUDED.feed_url,
	bias     = EXCLUDED.bias,
	active   = TRUE
RETURNING id`
	if err := repo.db.QueryRowContext(ctx, query,
		source.Name, source.FeedURL, biasArg(source.Bias),
	).Scan(&source.ID); err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}
	source.Active = true
	return nil
}

func (repo *SourceRepo) DeactivateExcept(ctx context.Context, names []string) error {
	if names == nil {
		names = []string{}
	}
	const query = `UPDATE sources SET active = FALSE WHERE NOT (name = ANY($1))`
	if _, err := repo.db.ExecContext(ctx, query, names); err != nil {
		return fmt.Errorf("DeactivateExcept: %w", err)
	}
	return nil
}

func (repo *SourceRepo) TouchCrawledAt(ctx context.Context, id int64, t time.Time) error {
	const query = `UPDATE sources SET last_crawled_at = $1 WHERE id = $2`
	if _, err := repo.db.ExecContext(ctx, query, t, id); err != nil {
		return fmt.Errorf("TouchCrawledAt: %w", err)
	}
	return nil
}
