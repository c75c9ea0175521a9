package vsm

import (
	"math"

	apperrors "github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/errors"
)

// IDFTable holds one smoothed inverse document frequency weight per
// vocabulary slot. Its lifetime is tied to the vocabulary it was built from.
type IDFTable struct {
	weights    []float64
	generation uint64
}

// ComputeIDF derives idf(t) = ln((N+1)/(df(t)+1)) + 1 for every slot of
// vocab. The result is strictly positive and decreases as df grows.
func ComputeIDF(vocab *Vocabulary, docFreq []int, totalDocs int) (*IDFTable, error) {
	if vocab == nil || vocab.Len() == 0 {
		return nil, apperrors.Dataf("empty corpus")
	}
	if len(docFreq) != vocab.Len() {
		return nil, apperrors.Dataf("document frequencies cover %d terms, vocabulary has %d", len(docFreq), vocab.Len())
	}
	if totalDocs <= 0 {
		return nil, apperrors.Dataf("total document count must be positive, got %d", totalDocs)
	}
	n := float64(totalDocs)
	weights := make([]float64, len(docFreq))
	for i, df := range docFreq {
		if df < 0 || df > totalDocs {
			return nil, apperrors.Dataf("document frequency %d of %q outside [0, %d]", df, vocab.Term(i), totalDocs)
		}
		weights[i] = math.Log((n+1)/(float64(df)+1)) + 1
	}
	return &IDFTable{weights: weights, generation: vocab.generation}, nil
}

// Len is the number of weights, one per vocabulary term.
func (t *IDFTable) Len() int { return len(t.weights) }

// Generation is the vocabulary generation the table was computed for.
func (t *IDFTable) Generation() uint64 { return t.generation }

// Weight returns the IDF of slot i.
func (t *IDFTable) Weight(i int) float64 { return t.weights[i] }
