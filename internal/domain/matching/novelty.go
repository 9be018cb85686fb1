package matching

import "fmt"

// NoveltyThreshold is the centroid similarity below which content counts as a
// new development rather than a restatement.
const NoveltyThreshold = 0.85

// Centroid returns the component-wise arithmetic mean of vectors.
func Centroid(vectors [][]float32) ([]float32, error) {
	if len(vectors) == 0 {
		return nil, nil
	}
	dim := len(vectors[0])
	sum := make([]float64, dim)
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: vector %d has %d dimensions, want %d", ErrDimensionMismatch, i, len(v), dim)
		}
		for j, x := range v {
			sum[j] += float64(x)
		}
	}

	centroid := make([]float32, dim)
	n := float64(len(vectors))
	for j := range sum {
		centroid[j] = float32(sum[j] / n)
	}
	return centroid, nil
}

// IsNovelContent reports whether newEmbedding differs enough from the centroid
// of existing to be a genuine new development. With nothing to compare
// against, content is novel.
func IsNovelContent(newEmbedding []float32, existing [][]float32) (bool, error) {
	if len(existing) == 0 {
		return true, nil
	}
	centroid, err := Centroid(existing)
	if err != nil {
		return false, err
	}
	score, err := CosineSimilarity(newEmbedding, centroid)
	if err != nil {
		return false, err
	}
	return score < NoveltyThreshold, nil
}
