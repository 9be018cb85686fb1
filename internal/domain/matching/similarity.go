// Package matching implements the pure scoring rules of the story matcher:
// cosine similarity and tier classification, the temporal candidate window,
// novelty detection and source-diversity detection. Nothing in this package
// performs I/O.
package matching

import (
	"errors"
	"fmt"
	"math"

	"storyline/internal/domain/entity"
)

// Match tier thresholds. Every threshold decision in the engine derives from
// these two constants.
const (
	StrongMatchThreshold = 0.70
	WeakMatchThreshold   = 0.50
)

// ErrDimensionMismatch is returned when two vectors cannot be compared.
// It is fatal to a single comparison only.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// CosineSimilarity returns the cosine of the angle between a and b, clamped to
// [-1, 1]. A zero-norm input yields 0.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}

	score := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	switch {
	case score > 1:
		return 1, nil
	case score < -1:
		return -1, nil
	default:
		return score, nil
	}
}

// Strength classifies a similarity score into a match tier.
func Strength(score float64) entity.MatchStrength {
	switch {
	case score >= StrongMatchThreshold:
		return entity.MatchStrong
	case score >= WeakMatchThreshold:
		return entity.MatchWeak
	default:
		return entity.MatchNone
	}
}

// IsMatch reports whether score reaches at least the weak tier.
func IsMatch(score float64) bool {
	return score >= WeakMatchThreshold
}

// IsStrongMatch reports whether score reaches the strong tier.
func IsStrongMatch(score float64) bool {
	return score >= StrongMatchThreshold
}

// MaxSimilarity scores candidate against every member vector and returns the
// best score. Pairs with mismatched dimensions are skipped; compared is the
// number of pairs actually scored, so compared == 0 means nothing was
// comparable.
func MaxSimilarity(candidate []float32, members [][]float32) (best float64, compared int) {
	best = -1
	for _, m := range members {
		score, err := CosineSimilarity(candidate, m)
		if err != nil {
			continue
		}
		compared++
		if score > best {
			best = score
		}
	}
	if compared == 0 {
		return 0, 0
	}
	return best, compared
}

// Comparable returns the members that share candidate's dimension, in order.
func Comparable(candidate []float32, members [][]float32) [][]float32 {
	out := make([][]float32, 0, len(members))
	for _, m := range members {
		if len(m) == len(candidate) {
			out = append(out, m)
		}
	}
	return out
}
