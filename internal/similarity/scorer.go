package similarity

import (
	"sort"

	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/vsm"
	apperrors "github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/errors"
)

const (
	DefaultThreshold = 0.02
	DefaultTopK      = 5
)

type Scored struct {
	Index int
	Score float64
}

type Scorer struct {
	backend   Backend
	threshold float64
	topK      int
}

// NewScorer returns a scorer keeping at most topK results scoring at least
// threshold. A nil backend selects CPUBackend; topK <= 0 selects the default.
func NewScorer(backend Backend, threshold float64, topK int) *Scorer {
	if backend == nil {
		backend = CPUBackend{}
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Scorer{backend: backend, threshold: threshold, topK: topK}
}

// Threshold is the minimum score a match must reach.
func (s *Scorer) Threshold() float64 { return s.threshold }

// TopK is the most matches Rank keeps.
func (s *Scorer) TopK() int { return s.topK }

// Score returns the cosine similarity of source with every target, clamped to
// [-1, 1]. All vectors are unit length or zero, so cosine is the dot
// product. A target of another dimension or vocabulary generation is a
// stale vector and fails the whole batch.
func (s *Scorer) Score(source vsm.Vector, targets []vsm.Vector) ([]float64, error) {
	rows := make([][]float64, len(targets))
	for i, t := range targets {
		if t.Dim() != source.Dim() {
			return nil, apperrors.Dataf("target %d has dimension %d, source has %d", i, t.Dim(), source.Dim())
		}
		if t.Generation != source.Generation {
			return nil, apperrors.Dataf("target %d built from vocabulary generation %d, source from %d",
				i, t.Generation, source.Generation)
		}
		rows[i] = t.Values
	}
	scores := s.backend.BatchSimilarity(source.Values, rows)
	for i, v := range scores {
		scores[i] = clamp(v)
	}
	return scores, nil
}

// Rank keeps the positive scores at or above the threshold, sorted
// descending with ties broken by position, and truncated to top-K.
func (s *Scorer) Rank(scores []float64) []Scored {
	return Rank(scores, s.threshold, s.topK)
}

func Rank(scores []float64, threshold float64, topK int) []Scored {
	ranked := make([]Scored, 0)
	for i, v := range scores {
		if v <= 0 || v < threshold {
			continue
		}
		ranked = append(ranked, Scored{Index: i, Score: v})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Index < ranked[j].Index
	})
	if topK > 0 && len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return ranked
}

func clamp(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
