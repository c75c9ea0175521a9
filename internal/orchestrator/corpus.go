package orchestrator

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/candidate"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/model"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/similarity"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/vsm"
	apperrors "github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/metrics"
)

// Corpus is the prepared target side of a run: tokenized targets, their
// vectors and topics, and the candidate index over them. It is read-only
// once built and shared by every worker scoring against it.
type Corpus struct {
	ID          string
	Fingerprint string
	Targets     []model.Document
	Snapshot    *vsm.Snapshot
	Vectors     []vsm.Vector
	Topics      [][]string
	Index       *candidate.Index

	scorer  *similarity.Scorer
	cache   *vsm.VectorCache
	topics  int
	metrics *metrics.Metrics
	urls    map[string]struct{}
}

// Len is the number of targets.
func (c *Corpus) Len() int { return len(c.Targets) }

// Contains reports whether url is one of the targets.
func (c *Corpus) Contains(url string) bool {
	_, ok := c.urls[url]
	return ok
}

// Vectorize returns the vector of terms under this corpus' vocabulary.
func (c *Corpus) Vectorize(terms []string) (vsm.Vector, error) {
	if c.cache != nil {
		return c.cache.Vectorize(c.Snapshot, terms)
	}
	return c.Snapshot.Vectorize(terms)
}

// Match scores source against its candidate targets and returns the ranked
// matches. Source must already carry its terms. A target with the source's
// own URL is never a match.
func (c *Corpus) Match(ctx context.Context, source model.Document) (model.SourceResult, error) {
	if source.URL == "" {
		return model.SourceResult{}, apperrors.Dataf("source without url")
	}
	if source.Terms == nil {
		return model.SourceResult{}, apperrors.Dataf("source %q has not been tokenized", source.URL)
	}
	vec, err := c.Vectorize(source.Terms)
	if err != nil {
		return model.SourceResult{}, fmt.Errorf("vectorizing %s: %w", source.URL, err)
	}
	res := model.SourceResult{
		SourceURL:    source.URL,
		SourceTopics: similarity.Topics(vec, c.Snapshot.Vocabulary, c.topics),
		Matches:      []model.Match{},
	}
	if vec.IsZero() {
		c.observe(0, 0)
		return res, nil
	}

	ids := c.Index.Candidates(source)
	positions := make([]int, 0, len(ids))
	vectors := make([]vsm.Vector, 0, len(ids))
	for _, id := range ids {
		i := int(id)
		if c.Targets[i].URL == source.URL {
			continue
		}
		positions = append(positions, i)
		vectors = append(vectors, c.Vectors[i])
	}
	if err := ctx.Err(); err != nil {
		return model.SourceResult{}, err
	}

	scores, err := c.scorer.Score(vec, vectors)
	if err != nil {
		return model.SourceResult{}, fmt.Errorf("scoring %s: %w", source.URL, err)
	}
	for _, s := range c.scorer.Rank(scores) {
		target := c.Targets[positions[s.Index]]
		res.Matches = append(res.Matches, model.Match{
			TargetURL:       target.URL,
			Title:           target.Title,
			SimilarityScore: s.Score,
			SuggestedAnchor: similarity.SuggestAnchor(target.Text(), source.Terms),
			Topics:          c.Topics[positions[s.Index]],
		})
	}
	c.observe(len(ids), len(res.Matches))
	return res, nil
}

func (c *Corpus) observe(candidates, matches int) {
	if c.metrics == nil {
		return
	}
	c.metrics.CandidateSetSize.Observe(float64(candidates))
	c.metrics.MatchesPerSource.Observe(float64(matches))
}
