package story

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"storyline/internal/domain/entity"
	"storyline/internal/observability/metrics"
	"storyline/internal/repository"
)

// Service provides story tracking use cases.
// Structural mutations of one story (attach, mark viewed, delete) are
// serialized in-process; cross-process races are settled by the database.
type Service struct {
	Stories  repository.StoryRepository
	Articles repository.ArticleRepository

	// Limit caps the number of stories. Zero means entity.MaxTrackedStories.
	Limit int
	// Now defaults to time.Now.
	Now func() time.Time

	locks keyedMutex

	clockMu sync.Mutex
	last    time.Time
}

// now returns a strictly increasing time at microsecond resolution, the
// precision of PostgreSQL timestamps. A view and an attach made in the same
// microsecond therefore keep their order once stored, and the strict unread
// comparison still sees an attach that follows a view.
func (s *Service) now() time.Time {
	t := time.Now()
	if s.Now != nil {
		t = s.Now()
	}
	t = t.Truncate(time.Microsecond)

	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	if !t.After(s.last) {
		t = s.last.Add(time.Microsecond)
	}
	s.last = t
	return t
}

func (s *Service) limit() int {
	if s.Limit > 0 {
		return s.Limit
	}
	return entity.MaxTrackedStories
}

// Follow creates a story seeded with the article. The story takes the
// article's title and starts fully read.
// Returns ErrLimitReached, ErrArticleTracked or ErrArticleNotFound; in every
// error case nothing is stored.
func (s *Service) Follow(ctx context.Context, articleID int64) (*entity.Story, error) {
	if articleID <= 0 {
		return nil, &entity.ValidationError{Field: "article_id", Message: "must be positive"}
	}

	article, err := s.Articles.Get(ctx, articleID)
	if err != nil {
		return nil, fmt.Errorf("get article: %w", err)
	}
	if article == nil {
		return nil, ErrArticleNotFound
	}

	now := s.now()
	story := &entity.Story{
		Title:        article.Title,
		CreatedAt:    now,
		LastViewedAt: now,
	}
	if err := s.Stories.CreateWithSeed(ctx, story, article.ID, now, s.limit()); err != nil {
		return nil, mapStoreError("create story", err)
	}
	return story, nil
}

// Attach adds the article to the story. It reports false when the article
// is already a member of this story.
func (s *Service) Attach(ctx context.Context, storyID, articleID int64) (bool, error) {
	unlock := s.locks.Lock(storyID)
	defer unlock()
	defer observe("attach_article", time.Now())

	attached, err := s.Stories.AttachArticle(ctx, storyID, articleID, s.now())
	if err != nil {
		return false, mapStoreError("attach article", err)
	}
	return attached, nil
}

// MarkViewed clears the story's unread state as of now.
func (s *Service) MarkViewed(ctx context.Context, storyID int64) error {
	unlock := s.locks.Lock(storyID)
	defer unlock()

	if err := s.Stories.MarkViewed(ctx, storyID, s.now()); err != nil {
		return mapStoreError("mark viewed", err)
	}
	return nil
}

// ListTracked returns all stories with unread counts and the perspectives
// present among their members.
func (s *Service) ListTracked(ctx context.Context) ([]entity.StoryWithUnread, error) {
	stories, err := s.Stories.ListWithUnread(ctx)
	if err != nil {
		return nil, fmt.Errorf("list stories: %w", err)
	}
	perspectives, err := s.Stories.Perspectives(ctx)
	if err != nil {
		return nil, fmt.Errorf("list perspectives: %w", err)
	}
	for i := range stories {
		stories[i].Perspectives = perspectives[stories[i].Story.ID]
	}
	return stories, nil
}

// List returns every story ordered by ID.
func (s *Service) List(ctx context.Context) ([]*entity.Story, error) {
	stories, err := s.Stories.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list stories: %w", err)
	}
	return stories, nil
}

// Members returns the story's articles ordered by publication time.
func (s *Service) Members(ctx context.Context, storyID int64) ([]entity.StoryMember, error) {
	story, err := s.Stories.Get(ctx, storyID)
	if err != nil {
		return nil, fmt.Errorf("get story: %w", err)
	}
	if story == nil {
		return nil, ErrStoryNotFound
	}
	members, err := s.Stories.Members(ctx, storyID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

// Delete removes the story. Its articles become candidates again.
func (s *Service) Delete(ctx context.Context, storyID int64) error {
	unlock := s.locks.Lock(storyID)
	defer unlock()

	if err := s.Stories.Delete(ctx, storyID); err != nil {
		return mapStoreError("delete story", err)
	}
	return nil
}

// CandidatesInWindow returns untracked, embedded articles published within w.
func (s *Service) CandidatesInWindow(ctx context.Context, w entity.Window) ([]*entity.Article, error) {
	defer observe("list_candidates", time.Now())
	articles, err := s.Articles.ListCandidates(ctx, w)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	return articles, nil
}

func observe(op string, start time.Time) {
	metrics.RecordDBQuery(op, time.Since(start))
}

func mapStoreError(op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrStoryLimitReached):
		return ErrLimitReached
	case errors.Is(err, repository.ErrArticleAlreadyTracked):
		return ErrArticleTracked
	case errors.Is(err, repository.ErrStoryNotFound):
		return ErrStoryNotFound
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
