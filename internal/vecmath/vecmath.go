// Package vecmath provides the dense vector helpers used for similarity
// scoring: normalisation, cosine, pairwise matrices, argmax, softmax and
// top-k selection.
package vecmath

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Normalize returns a unit-length copy of v. Zero vectors are returned as-is.
func Normalize(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	norm := floats.Norm(out, 2)
	if norm == 0 {
		return out
	}
	floats.Scale(1/norm, out)
	return out
}

// Cosine returns the cosine similarity of a and b, or 0 when either is zero
// or the dimensions differ.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	na := floats.Norm(a, 2)
	nb := floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(a, b) / (na * nb)
}

// SimilarityMatrix returns the symmetric pairwise cosine matrix of vectors.
func SimilarityMatrix(vectors [][]float64) [][]float64 {
	n := len(vectors)
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		out[i][i] = Cosine(vectors[i], vectors[i])
		for j := i + 1; j < n; j++ {
			score := Cosine(vectors[i], vectors[j])
			out[i][j] = score
			out[j][i] = score
		}
	}
	return out
}

// Scores returns the cosine of query against every candidate.
func Scores(query []float64, candidates [][]float64) []float64 {
	out := make([]float64, len(candidates))
	for i, candidate := range candidates {
		out[i] = Cosine(query, candidate)
	}
	return out
}

// Argmax returns the index of the first maximum of values, or -1 when empty.
func Argmax(values []float64) int {
	if len(values) == 0 {
		return -1
	}
	return floats.MaxIdx(values)
}

// Softmax returns exp(scale*v) normalised to sum to one.
func Softmax(values []float64, scale float64) []float64 {
	if len(values) == 0 {
		return nil
	}
	scaled := make([]float64, len(values))
	copy(scaled, values)
	floats.Scale(scale, scaled)
	lse := floats.LogSumExp(scaled)
	for i := range scaled {
		scaled[i] = math.Exp(scaled[i] - lse)
	}
	return scaled
}

// TopK returns the indices of the k largest values in descending order.
// Equal values are ordered with the later index first.
func TopK(values []float64, k int) []int {
	if k <= 0 || len(values) == 0 {
		return nil
	}
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		va, vb := values[idx[a]], values[idx[b]]
		if va != vb {
			return va > vb
		}
		return idx[a] > idx[b]
	})
	if k > len(idx) {
		k = len(idx)
	}
	return idx[:k]
}

// Mean returns the arithmetic mean of values, or 0 when empty.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return floats.Sum(values) / float64(len(values))
}

// Max returns the largest of values, or 0 when empty.
func Max(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return floats.Max(values)
}
