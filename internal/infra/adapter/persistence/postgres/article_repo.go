// Package postgres provides PostgreSQL implementations of repository
// interfaces on top of the pgx database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"storyline/internal/domain/entity"
	"storyline/internal/repository"
)

type ArticleRepo struct {
	db *sql.DB
}

func NewArticleRepo(db *sql.DB) repository.ArticleRepository {
	return &ArticleRepo{db: db}
}

func (repo *ArticleRepo) Get(ctx context.Context, id int64) (*entity.Article, error) {
	query := `
SELECT ` + articleColumns + `
FROM articles a
WHERE a.id = $1
LIMIT 1`
	article, err := scanArticle(repo.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return article, nil
}

func (repo *ArticleRepo) GetByURL(ctx context.Context, url string) (*entity.Article, error) {
	query := `
SELECT ` + articleColumns + `
FROM articles a
WHERE a.url = $1
LIMIT 1`
	article, err := scanArticle(repo.db.QueryRowContext(ctx, query, url))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetByURL: %w", err)
	}
	return article, nil
}

func (repo *ArticleRepo) Create(ctx context.Context, article *entity.Article) (bool, error) {
	if article.CreatedAt.IsZero() {
		article.CreatedAt = time.Now().UTC()
	}
	const query = `
INSERT INTO articles
       (url, title, body, source_name, published_at, bias, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (url) DO NOTHING
RETURNING id`
	err := repo.db.QueryRowContext(ctx, query,
		article.URL, article.Title, article.Body, article.SourceName,
		article.PublishedAt, biasArg(article.Bias), article.CreatedAt,
	).Scan(&article.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("Create: %w", err)
	}
	return true, nil
}

// ExistsByURLBatch checks every URL with one ANY($1) query.
func (repo *ArticleRepo) ExistsByURLBatch(ctx context.Context, urls []string) (map[string]bool, error) {
	if len(urls) == 0 {
		return make(map[string]bool), nil
	}

	const query = `SELECT url FROM articles WHERE url = ANY($1)`
	rows, err := repo.db.QueryContext(ctx, query, urls)
	if err != nil {
		return nil, fmt.Errorf("ExistsByURLBatch: QueryContext: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := make(map[string]bool)
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("ExistsByURLBatch: Scan: %w", err)
		}
		result[url] = true
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ExistsByURLBatch: rows.Err: %w", err)
	}

	return result, nil
}

func (repo *ArticleRepo) ListCandidates(ctx context.Context, w entity.Window) ([]*entity.Article, error) {
	query := `
SELECT ` + articleColumns + `
FROM articles a
WHERE a.published_at BETWEEN $1 AND $2
  AND NOT EXISTS (SELECT 1 FROM story_articles sa WHERE sa.article_id = a.id)
  AND EXISTS (SELECT 1 FROM article_embeddings e WHERE e.article_id = a.id)
ORDER BY a.published_at ASC, a.id ASC`
	return repo.list(ctx, "ListCandidates", query, w.From, w.To)
}

func (repo *ArticleRepo) ListMissingEmbeddings(ctx context.Context, limit int) ([]*entity.Article, error) {
	query := `
SELECT ` + articleColumns + `
FROM articles a
WHERE NOT EXISTS (SELECT 1 FROM article_embeddings e WHERE e.article_id = a.id)
ORDER BY a.published_at DESC, a.id DESC
LIMIT $1`
	return repo.list(ctx, "ListMissingEmbeddings", query, limit)
}

func (repo *ArticleRepo) list(ctx context.Context, op, query string, args ...any) ([]*entity.Article, error) {
	rows, err := repo.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = rows.Close() }()

	articles := make([]*entity.Article, 0, 32)
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: Scan: %w", op, err)
		}
		articles = append(articles, article)
	}
	return articles, rows.Err()
}
