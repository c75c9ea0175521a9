// Package similarity scores TF-IDF vectors against each other, ranks the
// results and derives the anchor text and topics attached to a match.
package similarity

import (
	"github.com/viterin/vek"
)

// Backend computes dot products over equal-length dense vectors.
type Backend interface {
	DotProduct(a, b []float64) float64
	BatchSimilarity(query []float64, targets [][]float64) []float64
}

// CPUBackend uses SIMD kernels when the CPU supports them and falls back to
// portable Go otherwise.
type CPUBackend struct{}

func (CPUBackend) DotProduct(a, b []float64) float64 {
	return vek.Dot(a, b)
}

func (CPUBackend) BatchSimilarity(query []float64, targets [][]float64) []float64 {
	out := make([]float64, len(targets))
	for i, t := range targets {
		out[i] = vek.Dot(query, t)
	}
	return out
}
