// Package entity defines the core domain entities of the story tracker.
// It contains articles, their embeddings, tracked stories and the transient
// records produced by the matching engine, along with validation rules and
// domain-specific errors.
package entity

import (
	"strings"
	"time"

	"storyline/internal/utils/text"
)

// Article represents a news article held in the article cache.
// The canonical URL is the article's identity; ID is the storage key.
// Articles are immutable once stored.
type Article struct {
	ID          int64
	URL         string
	Title       string
	Body        string
	SourceName  string
	PublishedAt time.Time
	// Bias is the bias/category score of the article's source.
	// nil means the source is unscored.
	Bias      *int
	CreatedAt time.Time
}

// Validate checks that the article carries the fields the matcher relies on.
func (a *Article) Validate() error {
	if err := ValidateURL(a.URL); err != nil {
		return err
	}
	if strings.TrimSpace(a.Title) == "" {
		return &ValidationError{Field: "title", Message: "title is required"}
	}
	if a.PublishedAt.IsZero() {
		return &ValidationError{Field: "published_at", Message: "published_at is required"}
	}
	if a.Bias != nil {
		if err := ValidateBias(*a.Bias); err != nil {
			return err
		}
	}
	return nil
}

// MaxEmbeddingRunes caps the text sent for one embedding, well inside the
// provider's input token limit.
const MaxEmbeddingRunes = 8000

// EmbeddingText returns the text handed to the embedding provider: the title,
// then the body, truncated to MaxEmbeddingRunes.
func (a *Article) EmbeddingText() string {
	if a.Body == "" {
		return text.Truncate(a.Title, MaxEmbeddingRunes)
	}
	return text.Truncate(a.Title+"\n\n"+a.Body, MaxEmbeddingRunes)
}

// BiasPtr returns a pointer to v. It keeps literals readable at call sites.
func BiasPtr(v int) *int {
	return &v
}
