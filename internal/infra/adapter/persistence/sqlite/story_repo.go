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

// StoryRepo implements repository.StoryRepository on SQLite.
// Transactions begin IMMEDIATE, so the count check in CreateWithSeed and the
// inserts that follow hold the write lock together.
type StoryRepo struct{ db *sql.DB }

func NewStoryRepo(db *sql.DB) repository.StoryRepository {
	return &StoryRepo{db: db}
}

func (repo *StoryRepo) CreateWithSeed(ctx context.Context, story *entity.Story, seedArticleID int64, addedAt time.Time, limit int) (err error) {
	tx, err := repo.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("CreateWithSeed: BeginTx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var count int
	if err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM stories`).Scan(&count); err != nil {
		return fmt.Errorf("CreateWithSeed: count: %w", err)
	}
	if count >= limit {
		err = repository.ErrStoryLimitReached
		return err
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO stories (title, created_at, last_viewed_at) VALUES (?, ?, ?)`,
		story.Title, toNanos(story.CreatedAt), toNanos(story.LastViewedAt))
	if err != nil {
		return fmt.Errorf("CreateWithSeed: insert story: %w", err)
	}
	storyID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("CreateWithSeed: LastInsertId: %w", err)
	}

	res, err = tx.ExecContext(ctx, `
INSERT INTO story_articles (article_id, story_id, added_at)
VALUES (?, ?, ?)
ON CONFLICT (article_id) DO NOTHING`, seedArticleID, storyID, toNanos(addedAt))
	if err != nil {
		return fmt.Errorf("CreateWithSeed: insert seed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("CreateWithSeed: RowsAffected: %w", err)
	}
	if n == 0 {
		err = repository.ErrArticleAlreadyTracked
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("CreateWithSeed: Commit: %w", err)
	}
	story.ID = storyID
	return nil
}

func (repo *StoryRepo) AttachArticle(ctx context.Context, storyID, articleID int64, addedAt time.Time) (bool, error) {
	const query = `
INSERT INTO story_articles (article_id, story_id, added_at)
SELECT ?, id, ? FROM stories WHERE id = ?
ON CONFLICT (article_id) DO NOTHING`
	res, err := repo.db.ExecContext(ctx, query, articleID, toNanos(addedAt), storyID)
	if err != nil {
		return false, fmt.Errorf("AttachArticle: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("AttachArticle: RowsAffected: %w", err)
	}
	if n > 0 {
		return true, nil
	}

	// Nothing was inserted: the story is gone or the article already has an
	// owner. The story check comes first.
	var (
		exists bool
		owner  sql.NullInt64
	)
	err = repo.db.QueryRowContext(ctx, `
SELECT EXISTS (SELECT 1 FROM stories WHERE id = ?),
       (SELECT story_id FROM story_articles WHERE article_id = ?)`,
		storyID, articleID).Scan(&exists, &owner)
	switch {
	case err != nil:
		return false, fmt.Errorf("AttachArticle: owner: %w", err)
	case !exists:
		return false, repository.ErrStoryNotFound
	case !owner.Valid:
		return false, fmt.Errorf("AttachArticle: article %d was neither attached nor tracked", articleID)
	case owner.Int64 != storyID:
		return false, repository.ErrArticleAlreadyTracked
	default:
		return false, nil
	}
}

func (repo *StoryRepo) MarkViewed(ctx context.Context, storyID int64, at time.Time) error {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE stories SET last_viewed_at = MAX(last_viewed_at, ?) WHERE id = ?`,
		toNanos(at), storyID)
	if err != nil {
		return fmt.Errorf("MarkViewed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrStoryNotFound
	}
	return nil
}

func scanStory(row rowScanner) (*entity.Story, error) {
	var (
		story           entity.Story
		created, viewed int64
	)
	if err := row.Scan(&story.ID, &story.Title, &created, &viewed); err != nil {
		return nil, err
	}
	story.CreatedAt = fromNanos(created)
	story.LastViewedAt = fromNanos(viewed)
	return &story, nil
}

func (repo *StoryRepo) Get(ctx context.Context, id int64) (*entity.Story, error) {
	story, err := scanStory(repo.db.QueryRowContext(ctx,
		`SELECT id, title, created_at, last_viewed_at FROM stories WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return story, nil
}

func (repo *StoryRepo) List(ctx context.Context) ([]*entity.Story, error) {
	rows, err := repo.db.QueryContext(ctx,
		`SELECT id, title, created_at, last_viewed_at FROM stories ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("List: QueryContext: %w", err)
	}
	defer func() { _ = rows.Close() }()

	stories := make([]*entity.Story, 0, 64)
	for rows.Next() {
		story, err := scanStory(rows)
		if err != nil {
			return nil, fmt.Errorf("List: Scan: %w", err)
		}
		stories = append(stories, story)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("List: rows.Err: %w", err)
	}
	return stories, nil
}

func (repo *StoryRepo) ListWithUnread(ctx context.Context) ([]entity.StoryWithUnread, error) {
	const query = `
SELECT s.id, s.title, s.created_at, s.last_viewed_at,
       COUNT(sa.article_id),
       COALESCE(SUM(CASE WHEN sa.added_at > s.last_viewed_at THEN 1 ELSE 0 END), 0),
       MAX(a.published_at)
FROM stories s
LEFT JOIN story_articles sa ON sa.story_id = s.id
LEFT JOIN articles a ON a.id = sa.article_id
GROUP BY s.id, s.title, s.created_at, s.last_viewed_at
ORDER BY MAX(a.published_at) DESC, s.id ASC`
	rows, err := repo.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ListWithUnread: QueryContext: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := make([]entity.StoryWithUnread, 0, 64)
	for rows.Next() {
		var (
			item            entity.StoryWithUnread
			created, viewed int64
			latest          sql.NullInt64
		)
		if err := rows.Scan(&item.Story.ID, &item.Story.Title, &created, &viewed,
			&item.ArticleCount, &item.UnreadCount, &latest); err != nil {
			return nil, fmt.Errorf("ListWithUnread: Scan: %w", err)
		}
		item.Story.CreatedAt = fromNanos(created)
		item.Story.LastViewedAt = fromNanos(viewed)
		if latest.Valid {
			item.LatestPublishedAt = fromNanos(latest.Int64)
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListWithUnread: rows.Err: %w", err)
	}
	return result, nil
}

func (repo *StoryRepo) Perspectives(ctx context.Context) (map[int64][]int, error) {
	const query = `
SELECT DISTINCT sa.story_id, a.bias
FROM story_articles sa
JOIN articles a ON a.id = sa.article_id
WHERE a.bias IS NOT NULL
ORDER BY sa.story_id, a.bias`
	rows, err := repo.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("Perspectives: QueryContext: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := make(map[int64][]int)
	for rows.Next() {
		var storyID int64
		var bias int
		if err := rows.Scan(&storyID, &bias); err != nil {
			return nil, fmt.Errorf("Perspectives: Scan: %w", err)
		}
		result[storyID] = append(result[storyID], bias)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Perspectives: rows.Err: %w", err)
	}
	return result, nil
}

func (repo *StoryRepo) Members(ctx context.Context, storyID int64) ([]entity.StoryMember, error) {
	query := `
SELECT sa.story_id, sa.added_at, ` + articleColumns + `
FROM story_articles sa
JOIN articles a ON a.id = sa.article_id
WHERE sa.story_id = ?
ORDER BY a.published_at ASC, a.id ASC`
	rows, err := repo.db.QueryContext(ctx, query, storyID)
	if err != nil {
		return nil, fmt.Errorf("Members: QueryContext: %w", err)
	}
	defer func() { _ = rows.Close() }()

	members := make([]entity.StoryMember, 0, 16)
	for rows.Next() {
		var (
			member entity.StoryMember
			added  int64
		)
		article, err := scanArticle(rows, &member.StoryID, &added)
		if err != nil {
			return nil, fmt.Errorf("Members: Scan: %w", err)
		}
		member.Article = article
		member.AddedAt = fromNanos(added)
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Members: rows.Err: %w", err)
	}
	return members, nil
}

func (repo *StoryRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := repo.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM stories`).Scan(&count); err != nil {
		return 0, fmt.Errorf("Count: %w", err)
	}
	return count, nil
}

func (repo *StoryRepo) Delete(ctx context.Context, id int64) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM stories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrStoryNotFound
	}
	return nil
}
