package postgres

import (
	"database/sql"

	"storyline/internal/domain/entity"
)

type rowScanner interface {
	Scan(dest ...any) error
}

const articleColumns = `a.id, a.url, a.title, a.body, a.source_name, a.published_at, a.bias, a.created_at`

func scanArticle(row rowScanner, extra ...any) (*entity.Article, error) {
	var (
		article entity.Article
		bias    sql.NullInt64
	)
	dest := append(extra,
		&article.ID, &article.URL, &article.Title, &article.Body, &article.SourceName,
		&article.PublishedAt, &bias, &article.CreatedAt)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	article.Bias = biasFromNull(bias)
	return &article, nil
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
