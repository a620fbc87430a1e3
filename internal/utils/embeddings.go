// Package utils holds vector helpers for embedding-based retrieval.
package utils

import (
	"errors"
	"math"
	"sort"
)

var (
	ErrEmptyVector       = errors.New("vectors cannot be empty")
	ErrDimensionMismatch = errors.New("vectors must have the same dimension")
)

// CosineSimilarity returns the cosine of the angle between a and b. A zero
// vector has similarity 0 with everything. Sums are accumulated in float64.
func CosineSimilarity(a, b []float32) (float32, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, ErrEmptyVector
	}
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
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
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB))), nil
}

// Scored pairs an item index with its similarity.
type Scored struct {
	Index      int
	Similarity float32
}

// TopK scores every candidate against query and returns at most k of those at
// or above threshold, most similar first. Candidates that cannot be compared
// are skipped. Ties keep candidate order.
func TopK(query []float32, candidates [][]float32, k int, threshold float32) []Scored {
	out := make([]Scored, 0, len(candidates))
	for i, c := range candidates {
		sim, err := CosineSimilarity(query, c)
		if err != nil || sim < threshold {
			continue
		}
		out = append(out, Scored{Index: i, Similarity: sim})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}
