package repository

import "errors"

// Store invariant violations reported by StoryRepository implementations.
var (
	// ErrStoryLimitReached is returned when creating a story would exceed the
	// tracked-story ceiling. Nothing is written.
	ErrStoryLimitReached = errors.New("story limit reached")

	// ErrArticleAlreadyTracked is returned when the article already belongs to
	// a different story.
	ErrArticleAlreadyTracked = errors.New("article already tracked by another story")

	// ErrStoryNotFound is returned when a mutation targets a missing story.
	ErrStoryNotFound = errors.New("story not found")
)
