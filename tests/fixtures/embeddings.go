package fixtures

import (
	"math"

	"storyline/internal/domain/entity"
)

// TestDimension is the vector size used by fixture embeddings.
const TestDimension = 8

// EmbeddingOption customizes NewTestEmbedding.
type EmbeddingOption func(*entity.ArticleEmbedding)

// NewTestEmbedding returns an embedding for article 1 with a deterministic
// TestDimension vector.
//
//	e := NewTestEmbedding(WithArticleID(100), WithVector(UnitVector(TestDimension, 0)))
func NewTestEmbedding(opts ...EmbeddingOption) *entity.ArticleEmbedding {
	e := &entity.ArticleEmbedding{
		ArticleID: 1,
		Model:     "text-embedding-3-small",
		Dimension: TestDimension,
		Vector:    GenerateTestVector(TestDimension, 0.1),
		CreatedAt: BaseTime,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func WithArticleID(id int64) EmbeddingOption {
	return func(e *entity.ArticleEmbedding) { e.ArticleID = id }
}

// WithVector also sets Dimension to len(v).
func WithVector(v []float32) EmbeddingOption {
	return func(e *entity.ArticleEmbedding) {
		e.Vector = v
		e.Dimension = len(v)
	}
}

// GenerateTestVector returns seed, seed+0.001, seed+0.002, ...
func GenerateTestVector(dimension int, seed float32) []float32 {
	vec := make([]float32, dimension)
	for i := range vec {
		vec[i] = seed + float32(i)*0.001
	}
	return vec
}

// UnitVector has 1 at index and 0 elsewhere.
func UnitVector(dimension, index int) []float32 {
	vec := make([]float32, dimension)
	if index >= 0 && index < dimension {
		vec[index] = 1
	}
	return vec
}

// VectorWithSimilarity returns a unit vector whose cosine similarity with
// UnitVector(dimension, 0) is cos. dimension must be at least 2.
func VectorWithSimilarity(dimension int, cos float64) []float32 {
	vec := make([]float32, dimension)
	vec[0] = float32(cos)
	vec[1] = float32(math.Sqrt(math.Max(0, 1-cos*cos)))
	return vec
}
