package sqlite

import (
	"database/sql"
	"strings"
	"time"

	"storyline/internal/domain/entity"
)

// Timestamps are stored as UTC Unix nanoseconds.
func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullableNanos(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return toNanos(*t)
}

func timeFromNull(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}

func biasArg(b *int) any {
	if b == nil {
		return nil
	}
	return int64(*b)
}

func biasFromNull(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	return entity.BiasPtr(int(n.Int64))
}

// placeholders returns "?,?,?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

type rowScanner interface {
	Scan(dest ...any) error
}

const articleColumns = `a.id, a.url, a.title, a.body, a.source_name, a.published_at, a.bias, a.created_at`

func scanArticle(row rowScanner, extra ...any) (*entity.Article, error) {
	var (
		article            entity.Article
		published, created int64
		bias               sql.NullInt64
	)
	dest := append(extra,
		&article.ID, &article.URL, &article.Title, &article.Body, &article.SourceName,
		&published, &bias, &created)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	article.PublishedAt = fromNanos(published)
	article.CreatedAt = fromNanos(created)
	article.Bias = biasFromNull(bias)
	return &article, nil
}
