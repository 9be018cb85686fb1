package entity

import (
	"errors"
	"time"
)

// Embedding validation errors.
var (
	ErrEmptyEmbedding            = errors.New("embedding vector is empty")
	ErrInvalidEmbeddingDimension = errors.New("embedding dimension does not match vector length")
)

// ArticleEmbedding is the fixed-dimension vector produced for an article by the
// external embedder. There is at most one embedding per article.
type ArticleEmbedding struct {
	ArticleID int64
	Model     string
	Dimension int
	Vector    []float32
	CreatedAt time.Time
}

// Validate checks that the embedding is attached to an article and that its
// declared dimension matches the vector.
func (e *ArticleEmbedding) Validate() error {
	if e.ArticleID <= 0 {
		return &ValidationError{Field: "ArticleID", Message: "must be positive"}
	}
	if len(e.Vector) == 0 {
		return ErrEmptyEmbedding
	}
	if e.Dimension != len(e.Vector) {
		return ErrInvalidEmbeddingDimension
	}
	return nil
}
