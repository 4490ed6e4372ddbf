package utils

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/blas/blas32"
)

// TopK returns the indices and values of top k elements.
// Ties keep the lower index first.
func TopK(scores []float64, k int) ([]int, []float64) {
	if k > len(scores) {
		k = len(scores)
	}
	if k < 0 {
		k = 0
	}

	order := ArgSort(scores, true)[:k]
	values := make([]float64, k)
	for i, idx := range order {
		values[i] = scores[idx]
	}
	return order, values
}

// ArgSort returns the indices that would sort the slice.
// The sort is stable, so equal scores keep their original order.
func ArgSort(scores []float64, descending bool) []int {
	indices := make([]int, len(scores))
	for i := range indices {
		indices[i] = i
	}

	sort.SliceStable(indices, func(a, b int) bool {
		if descending {
			return scores[indices[a]] > scores[indices[b]]
		}
		return scores[indices[a]] < scores[indices[b]]
	})

	return indices
}

// Dot computes the dot product of two vectors
func Dot(a, b []float32) float32 {
	if len(a) != len(b) {
		panic("vectors must have same length")
	}
	if len(a) == 0 {
		return 0
	}
	return blas32.Dot(
		blas32.Vector{N: len(a), Data: a, Inc: 1},
		blas32.Vector{N: len(b), Data: b, Inc: 1},
	)
}

// Norm computes the L2 norm of a vector
func Norm(v []float32) float32 {
	if len(v) == 0 {
		return 0
	}
	return blas32.Nrm2(blas32.Vector{N: len(v), Data: v, Inc: 1})
}

// Normalize returns v scaled to unit length; the zero vector is returned unchanged
func Normalize(v []float32) []float32 {
	return NormalizeEps(v, 0)
}

// NormalizeEps divides v by max(||v||, eps)
func NormalizeEps(v []float32, eps float32) []float32 {
	norm := Norm(v)
	if norm < eps {
		norm = eps
	}
	result := make([]float32, len(v))
	if norm == 0 {
		copy(result, v)
		return result
	}
	for i, x := range v {
		result[i] = x / norm
	}
	return result
}

// Max returns the largest value, or -Inf for an empty slice
func Max(v []float32) float32 {
	best := float32(math.Inf(-1))
	for _, x := range v {
		if x > best {
			best = x
		}
	}
	return best
}
