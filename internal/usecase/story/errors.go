// Package story provides the use cases for following stories and keeping
// their memberships. The repository enforces the storage invariants; this
// layer maps storage errors to caller-facing ones and serializes mutations
// of the same story within one process.
package story

import "errors"

// Sentinel errors for story use case operations.
var (
	// ErrLimitReached indicates that the maximum number of tracked stories
	// already exists. Nothing was created.
	ErrLimitReached = errors.New("tracked story limit reached")

	// ErrArticleTracked indicates that the article already belongs to a story.
	ErrArticleTracked = errors.New("article already tracked by a story")

	// ErrStoryNotFound indicates that the requested story does not exist.
	ErrStoryNotFound = errors.New("story not found")

	// ErrArticleNotFound indicates that the article to follow does not exist.
	ErrArticleNotFound = errors.New("article not found")
)
