// Package sqlite provides SQLite implementations of repository interfaces.
// The database is opened with a single connection (see infra/db.OpenSQLite),
// which makes every transaction here serializable within the process.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"storyline/internal/domain/entity"
	"storyline/internal/repository"
)

// maxPlaceholders is SQLite's default bound on host parameters per statement.
// See https://www.sqlite.org/limits.html#max_variable_number
const maxPlaceholders = 999

// ArticleRepo implements the ArticleRepository interface using SQLite.
type ArticleRepo struct{ db *sql.DB }

// NewArticleRepo creates a new SQLite-backed article repository.
func NewArticleRepo(db *sql.DB) repository.ArticleRepository {
	return &ArticleRepo{db: db}
}

func (repo *ArticleRepo) Get(ctx context.Context, id int64) (*entity.Article, error) {
	query := `SELECT ` + articleColumns + ` FROM articles a WHERE a.id = ? LIMIT 1`
	article, err := scanArticle(repo.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: QueryRowContext: %w", err)
	}
	return article, nil
}

func (repo *ArticleRepo) GetByURL(ctx context.Context, url string) (*entity.Article, error) {
	query := `SELECT ` + articleColumns + ` FROM articles a WHERE a.url = ? LIMIT 1`
	article, err := scanArticle(repo.db.QueryRowContext(ctx, query, url))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetByURL: QueryRowContext: %w", err)
	}
	return article, nil
}

// Create inserts the article unless its URL is already stored.
func (repo *ArticleRepo) Create(ctx context.Context, article *entity.Article) (bool, error) {
	if article.CreatedAt.IsZero() {
		article.CreatedAt = time.Now().UTC()
	}
	const query = `
INSERT INTO articles (url, title, body, source_name, published_at, bias, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (url) DO NOTHING
RETURNING id`
	err := repo.db.QueryRowContext(ctx, query,
		article.URL, article.Title, article.Body, article.SourceName,
		toNanos(article.PublishedAt), biasArg(article.Bias), toNanos(article.CreatedAt),
	).Scan(&article.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("Create: %w", err)
	}
	return true, nil
}

func (repo *ArticleRepo) ExistsByURLBatch(ctx context.Context, urls []string) (map[string]bool, error) {
	result := make(map[string]bool)
	for start := 0; start < len(urls); start += maxPlaceholders {
		end := min(start+maxPlaceholders, len(urls))
		chunk := urls[start:end]

		args := make([]any, len(chunk))
		for i, url := range chunk {
			args[i] = url
		}
		// placeholders only contains "?", so the formatted query is safe.
		query := fmt.Sprintf("SELECT url FROM articles WHERE url IN (%s)", placeholders(len(chunk)))

		if err := repo.collectURLs(ctx, query, args, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (repo *ArticleRepo) collectURLs(ctx context.Context, query string, args []any, into map[string]bool) error {
	rows, err := repo.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("ExistsByURLBatch: QueryContext: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return fmt.Errorf("ExistsByURLBatch: Scan: %w", err)
		}
		into[url] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("ExistsByURLBatch: rows.Err: %w", err)
	}
	return nil
}

func (repo *ArticleRepo) ListCandidates(ctx context.Context, w entity.Window) ([]*entity.Article, error) {
	query := `
SELECT ` + articleColumns + `
FROM articles a
WHERE a.published_at BETWEEN ? AND ?
  AND NOT EXISTS (SELECT 1 FROM story_articles sa WHERE sa.article_id = a.id)
  AND EXISTS (SELECT 1 FROM article_embeddings e WHERE e.article_id = a.id)
ORDER BY a.published_at ASC, a.id ASC`
	return repo.list(ctx, "ListCandidates", query, toNanos(w.From), toNanos(w.To))
}

func (repo *ArticleRepo) ListMissingEmbeddings(ctx context.Context, limit int) ([]*entity.Article, error) {
	query := `
SELECT ` + articleColumns + `
FROM articles a
WHERE NOT EXISTS (SELECT 1 FROM article_embeddings e WHERE e.article_id = a.id)
ORDER BY a.published_at DESC, a.id DESC
LIMIT ?`
	return repo.list(ctx, "ListMissingEmbeddings", query, limit)
}

func (repo *ArticleRepo) list(ctx context.Context, op, query string, args ...any) ([]*entity.Article, error) {
	rows, err := repo.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: QueryContext: %w", op, err)
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
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows.Err: %w", op, err)
	}
	return articles, nil
}
