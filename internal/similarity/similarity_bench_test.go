package similarity

import (
	"fmt"
	"math/rand/v2"
	"testing"
)

func randomVectors(n, dim int, rng *rand.Rand) [][]float64 {
	out := make([][]float64, n)
	for i := range out {
		v := make([]float64, dim)
		for j := range v {
			v[j] = rng.Float64()
		}
		out[i] = v
	}
	return out
}

func BenchmarkBatchSimilarity(b *testing.B) {
	rng := rand.New(rand.NewPCG(1, 2))
	for _, dim := range []int{256, 4096} {
		for _, n := range []int{100, 1000} {
			query := randomVectors(1, dim, rng)[0]
			targets := randomVectors(n, dim, rng)
			b.Run(fmt.Sprintf("dim_%d/targets_%d", dim, n), func(b *testing.B) {
				b.ReportAllocs()
				for i := 0; i < b.N; i++ {
					_ = CPUBackend{}.BatchSimilarity(query, targets)
				}
			})
		}
	}
}

func BenchmarkRank(b *testing.B) {
	rng := rand.New(rand.NewPCG(3, 4))
	for _, n := range []int{100, 1000, 10000} {
		scores := make([]float64, n)
		for i := range scores {
			scores[i] = rng.Float64()
		}
		b.Run(fmt.Sprintf("scores_%d", n), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = Rank(scores, 0.02, 5)
			}
		})
	}
}

func BenchmarkSuggestAnchor(b *testing.B) {
	text := "Choosing the right food for an older cat matters: senior cats need fewer calories and more protein."
	terms := []string{"senior", "cats", "protein"}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = SuggestAnchor(text, terms)
	}
}
