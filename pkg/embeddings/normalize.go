// Package embeddings provides vector math for embedding similarity.
package embeddings

import (
	"errors"
	"math"
)

// ErrDimensionMismatch is returned when two vectors differ in length.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// NormalizeL2 scales vector to unit length in place. It reports false for the zero vector,
// which is left unchanged.
func NormalizeL2(vector []float32) bool {
	var sumSquares float64
	for _, v := range vector {
		sumSquares += float64(v) * float64(v)
	}

	if sumSquares == 0 {
		return false
	}

	magnitude := math.Sqrt(sumSquares)
	for i := range vector {
		vector[i] = float32(float64(vector[i]) / magnitude)
	}

	return true
}

// Normalized returns a unit-length copy of vector.
func Normalized(vector []float32) []float32 {
	out := make([]float32, len(vector))
	copy(out, vector)
	NormalizeL2(out)

	return out
}

// Dot returns the dot product of two equal-length vectors. For unit vectors this is the cosine similarity.
func Dot(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}

	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}

	return sum, nil
}

// Cosine returns the cosine similarity of two vectors of any magnitude. Zero vectors score 0.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}

	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}

	if na == 0 || nb == 0 {
		return 0, nil
	}

	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}

// ClampUnit clamps a similarity to [0,1]. Negative similarity carries no signal for ranking.
func ClampUnit(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
