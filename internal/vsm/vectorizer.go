package vsm

import (
	"math"

	apperrors "github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// Vector is a dense TF-IDF vector with one slot per vocabulary term. A
// non-zero vector has unit L2 norm.
type Vector struct {
	Values     []float64
	Generation uint64
}

// Dim is the vocabulary size the vector was built against.
func (v Vector) Dim() int { return len(v.Values) }

// IsZero reports whether no vocabulary term contributed to v.
func (v Vector) IsZero() bool {
	for _, x := range v.Values {
		if x != 0 {
			return false
		}
	}
	return true
}

// Vectorize weights each vocabulary term of terms by (1 + ln(count)) * idf and
// L2-normalises the result. Terms outside the vocabulary are ignored, so a
// sequence with no known term yields the zero vector.
func Vectorize(terms []string, vocab *Vocabulary, idf *IDFTable) (Vector, error) {
	if vocab == nil || idf == nil {
		return Vector{}, apperrors.Dataf("vectorize: vocabulary and idf table are required")
	}
	if idf.generation != vocab.generation || idf.Len() != vocab.Len() {
		return Vector{}, apperrors.Dataf("vectorize: idf table generation %d does not belong to vocabulary generation %d",
			idf.generation, vocab.generation)
	}

	counts := make(map[int]int, len(terms))
	for _, t := range terms {
		if i, ok := vocab.index[t]; ok {
			counts[i]++
		}
	}

	values := make([]float64, vocab.Len())
	for i, c := range counts {
		values[i] = (1 + math.Log(float64(c))) * idf.weights[i]
	}
	if len(counts) > 0 {
		if norm := floats.Norm(values, 2); norm > 0 {
			floats.Scale(1/norm, values)
		}
	}
	return Vector{Values: values, Generation: vocab.generation}, nil
}
