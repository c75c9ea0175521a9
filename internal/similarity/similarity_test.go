package similarity

import (
	"math/rand"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/model"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/vsm"
	apperrors "github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshot(t *testing.T) *vsm.Snapshot {
	t.Helper()
	s, err := vsm.Build([]model.Document{
		{URL: "a", Terms: []string{"cats", "great", "pets"}},
		{URL: "b", Terms: []string{"dogs", "loyal", "animals"}},
		{URL: "c", Terms: []string{"cats", "dogs", "training", "training"}},
	})
	require.NoError(t, err)
	return s
}

func vec(t *testing.T, s *vsm.Snapshot, terms ...string) vsm.Vector {
	t.Helper()
	v, err := s.Vectorize(terms)
	require.NoError(t, err)
	return v
}

func TestCPUBackendDot(t *testing.T) {
	b := CPUBackend{}
	assert.InDelta(t, 32.0, b.DotProduct([]float64{1, 2, 3}, []float64{4, 5, 6}), 1e-12)
	got := b.BatchSimilarity([]float64{1, 0}, [][]float64{{1, 0}, {0, 1}, {0.5, 0.5}})
	assert.InDeltaSlice(t, []float64{1, 0, 0.5}, got, 1e-12)
}

func TestScoreSelfIsOne(t *testing.T) {
	s := snapshot(t)
	sc := NewScorer(nil, DefaultThreshold, DefaultTopK)
	for _, terms := range [][]string{{"cats"}, {"dogs", "loyal"}, {"training", "cats", "pets"}} {
		v := vec(t, s, terms...)
		scores, err := sc.Score(v, []vsm.Vector{v})
		require.NoError(t, err)
		assert.InDelta(t, 1.0, scores[0], 1e-9)
		assert.LessOrEqual(t, scores[0], 1.0)
	}
}

func TestScoreBounds(t *testing.T) {
	s := snapshot(t)
	vocab := s.Vocabulary.Terms()
	rng := rand.New(rand.NewSource(7))
	sc := NewScorer(nil, 0, 0)

	randomVec := func() vsm.Vector {
		n := 1 + rng.Intn(6)
		terms := make([]string, n)
		for i := range terms {
			terms[i] = vocab[rng.Intn(len(vocab))]
		}
		return vec(t, s, terms...)
	}
	for i := 0; i < 50; i++ {
		scores, err := sc.Score(randomVec(), []vsm.Vector{randomVec(), randomVec()})
		require.NoError(t, err)
		for _, v := range scores {
			assert.GreaterOrEqual(t, v, -1.0)
			assert.LessOrEqual(t, v, 1.0)
		}
	}
}

func TestScoreZeroVector(t *testing.T) {
	s := snapshot(t)
	sc := NewScorer(nil, 0, 0)
	scores, err := sc.Score(vec(t, s, "quantum"), []vsm.Vector{vec(t, s, "cats")})
	require.NoError(t, err)
	assert.Equal(t, 0.0, scores[0])
}

func TestScoreRejectsStaleVectors(t *testing.T) {
	s := snapshot(t)
	other := snapshot(t)
	sc := NewScorer(nil, 0, 0)

	_, err := sc.Score(vec(t, s, "cats"), []vsm.Vector{vec(t, other, "cats")})
	assert.True(t, apperrors.IsData(err))

	short := vsm.Vector{Values: []float64{1}, Generation: s.Generation()}
	_, err = sc.Score(vec(t, s, "cats"), []vsm.Vector{short})
	assert.True(t, apperrors.IsData(err))
}

func TestRank(t *testing.T) {
	scores := []float64{0.5, 0.01, 0.9, 0.5, 0, -0.2, 0.3, 0.7, 0.05}
	got := Rank(scores, 0.02, 5)
	assert.Equal(t, []Scored{
		{Index: 2, Score: 0.9},
		{Index: 7, Score: 0.7},
		{Index: 0, Score: 0.5},
		{Index: 3, Score: 0.5},
		{Index: 6, Score: 0.3},
	}, got)

	assert.Empty(t, Rank([]float64{0, 0}, 0, 5))
	assert.Len(t, Rank(scores, 0.02, 0), 6)
}

func TestScorerDefaults(t *testing.T) {
	sc := NewScorer(nil, 0.1, 0)
	assert.Equal(t, DefaultTopK, sc.TopK())
	assert.Equal(t, 0.1, sc.Threshold())
}

func TestSuggestAnchor(t *testing.T) {
	text := "Owning pets is fun. Cats are great pets for small flats."
	got := SuggestAnchor(text, []string{"cats", "great", "pets"})
	assert.Equal(t, "Cats are great", got)

	assert.Equal(t, "The quick brown", SuggestAnchor("The quick brown fox jumps", []string{"zebra"}))
}

func TestSuggestAnchorFallback(t *testing.T) {
	assert.Equal(t, "Cats rule", SuggestAnchor("Cats rule!", nil))
	assert.Equal(t, "", SuggestAnchor("   ", nil))
	assert.Equal(t, "Supercalifragilisticexpialidoc", SuggestAnchor("Supercalifragilisticexpialidocious words", nil))
}

func TestTopics(t *testing.T) {
	s := snapshot(t)
	v := vec(t, s, "training", "training", "cats", "pets")
	topics := Topics(v, s.Vocabulary, DefaultTopics)
	require.Len(t, topics, 3)
	assert.Equal(t, "training", topics[0])
	assert.ElementsMatch(t, []string{"training", "cats", "pets"}, topics)

	assert.Empty(t, Topics(vec(t, s, "unknown"), s.Vocabulary, 3))
	assert.Nil(t, Topics(v, snapshot(t).Vocabulary, 3))
}
