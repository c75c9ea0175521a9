// Package candidate holds the pre-filters that shrink the set of targets a
// source must be scored against: MinHash/LSH buckets, an inverted index, a
// prefix index and a Bloom filter over the target vocabulary. Every structure
// is derived from the target documents and can be rebuilt at any time.
package candidate

import (
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/model"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/errors"
	"github.com/RoaringBitmap/roaring/v2"
)

// Mode selects how candidates are retrieved.
type Mode string

const (
	// ModeAny returns every target sharing at least one term with the
	// source. It never loses a target with positive cosine similarity.
	ModeAny Mode = "any"
	// ModeAll returns targets containing every source term.
	ModeAll Mode = "all"
	// ModeLSH returns targets sharing a MinHash band with the source.
	ModeLSH Mode = "lsh"
	// ModePrefix intersects prefix postings of the source title words.
	ModePrefix Mode = "prefix"
)

// ParseMode accepts the mode names used in configuration. Empty means
// ModeAny.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeAny, nil
	case ModeAny, ModeAll, ModeLSH, ModePrefix:
		return m, nil
	default:
		return "", apperrors.Dataf("unknown candidate mode %q", s)
	}
}

type Config struct {
	Mode                   Mode
	NumHashes              int
	Bands                  int
	BloomFalsePositiveRate float64
}

func (c Config) withDefaults() Config {
	if c.Mode == "" {
		c.Mode = ModeAny
	}
	if c.NumHashes <= 0 {
		c.NumHashes = DefaultNumHashes
	}
	if c.Bands <= 0 {
		c.Bands = DefaultBands
	}
	if c.BloomFalsePositiveRate <= 0 {
		c.BloomFalsePositiveRate = 0.01
	}
	return c
}

// Index combines the filters over one target set. Candidate ids are
// positions in the slice passed to Build. An Index is read-only after Build
// and safe for concurrent Candidates calls.
type Index struct {
	cfg      Config
	size     int
	vocab    *BloomFilter
	inverted *InvertedIndex
	prefix   *PrefixIndex
	lsh      *LSH
}

// Build indexes targets. Each target must already carry its terms.
func Build(cfg Config, targets []model.Document) (*Index, error) {
	cfg = cfg.withDefaults()
	if _, err := ParseMode(string(cfg.Mode)); err != nil {
		return nil, err
	}
	lsh, err := NewLSH(cfg.NumHashes, cfg.Bands)
	if err != nil {
		return nil, err
	}
	ix := &Index{
		cfg:      cfg,
		inverted: NewInvertedIndex(),
		prefix:   NewPrefixIndex(),
		lsh:      lsh,
	}
	if err := ix.Rebuild(targets); err != nil {
		return nil, err
	}
	return ix, nil
}

// Rebuild clears every filter and re-indexes targets. Rebuilding from the
// same targets produces the same candidates.
func (ix *Index) Rebuild(targets []model.Document) error {
	ix.Clear()
	unique := make(map[string]struct{})
	for _, d := range targets {
		for _, t := range d.Terms {
			unique[t] = struct{}{}
		}
	}
	bloom, err := NewBloomFilter(len(unique), ix.cfg.BloomFalsePositiveRate)
	if err != nil {
		return err
	}
	for t := range unique {
		bloom.Add(t)
	}
	ix.vocab = bloom

	for i, d := range targets {
		if d.Terms == nil {
			return apperrors.Dataf("target %q has not been tokenized", d.URL)
		}
		id := uint32(i)
		ix.inverted.Add(id, d.Terms)
		ix.prefix.Add(id, d.Terms)
		ix.lsh.Add(id, d.Terms)
	}
	ix.size = len(targets)
	return nil
}

func (ix *Index) Clear() {
	ix.inverted.Clear()
	ix.prefix.Clear()
	ix.lsh.Clear()
	if ix.vocab != nil {
		ix.vocab.Clear()
	}
	ix.size = 0
}

// Mode is the candidate mode the index answers with.
func (ix *Index) Mode() Mode { return ix.cfg.Mode }

// Len is the number of indexed targets.
func (ix *Index) Len() int { return ix.size }

// Candidates returns the target ids worth scoring against source.
func (ix *Index) Candidates(source model.Document) []uint32 {
	return ix.CandidateSet(source).ToArray()
}

// CandidateSet is Candidates as a bitmap. Source terms that the vocabulary
// Bloom filter rules out are dropped first; a source left with no term gets
// no candidates.
func (ix *Index) CandidateSet(source model.Document) *roaring.Bitmap {
	known := ix.knownTerms(source.Terms)
	if len(known) == 0 {
		return roaring.New()
	}
	switch ix.cfg.Mode {
	case ModeAll:
		return ix.inverted.Search(known)
	case ModeLSH:
		return ix.lsh.Query(source.Terms)
	case ModePrefix:
		words := known
		if source.Title != "" {
			if titleTerms := tokenizer.Tokenize(source.Title); len(titleTerms) > 0 {
				words = titleTerms
			}
		}
		return ix.prefix.FindCandidatesTerms(words)
	default:
		return ix.inverted.SearchAny(known)
	}
}

func (ix *Index) knownTerms(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	known := make([]string, 0, len(terms))
	for _, t := range terms {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		if ix.vocab != nil && ix.vocab.Test(t) {
			known = append(known, t)
		}
	}
	return known
}

func (ix *Index) String() string {
	return fmt.Sprintf("candidate.Index{mode=%s targets=%d terms=%d prefixes=%d buckets=%d}",
		ix.cfg.Mode, ix.size, ix.inverted.Terms(), ix.prefix.Prefixes(), ix.lsh.Buckets())
}
