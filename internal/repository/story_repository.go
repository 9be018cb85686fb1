package repository

import (
	"context"
	"time"

	"storyline/internal/domain/entity"
)

// StoryRepository persists stories and their memberships.
//
// Implementations enforce the store invariants at the database level:
// membership is keyed by article, so an article belongs to at most one story
// and appears in it once; a story is created together with its seed member;
// the story count never exceeds the limit passed to CreateWithSeed.
type StoryRepository interface {
	// CreateWithSeed inserts story and attaches seedArticleID in one
	// transaction. It fails with ErrStoryLimitReached when limit stories
	// already exist and with ErrArticleAlreadyTracked when the seed belongs
	// to a story. On success story.ID is set.
	CreateWithSeed(ctx context.Context, story *entity.Story, seedArticleID int64, addedAt time.Time, limit int) error

	// AttachArticle adds the article to the story. It reports false when the
	// article is already a member of this story, ErrArticleAlreadyTracked when
	// it belongs to another story and ErrStoryNotFound when the story is gone.
	AttachArticle(ctx context.Context, storyID, articleID int64, addedAt time.Time) (bool, error)

	// MarkViewed moves last_viewed_at forward to at. It never moves it back.
	MarkViewed(ctx context.Context, storyID int64, at time.Time) error

	// Get returns (nil, nil) when the story does not exist.
	Get(ctx context.Context, id int64) (*entity.Story, error)
	// List returns every story ordered by ID.
	List(ctx context.Context) ([]*entity.Story, error)
	// ListWithUnread returns every story with derived counters, most recently
	// covered first. Perspectives are not filled in.
	ListWithUnread(ctx context.Context) ([]entity.StoryWithUnread, error)
	// Perspectives returns the sorted distinct bias categories per story.
	Perspectives(ctx context.Context) (map[int64][]int, error)
	// Members returns the story's articles ordered by publication time.
	Members(ctx context.Context, storyID int64) ([]entity.StoryMember, error)
	Count(ctx context.Context) (int, error)
	// Delete removes the story and releases its articles.
	Delete(ctx context.Context, id int64) error
}
