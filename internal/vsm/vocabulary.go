// Package vsm implements the TF-IDF vector space model: a corpus vocabulary,
// its smoothed IDF table, L2-normalised document vectors and the cache that
// keeps those vectors for one corpus snapshot.
package vsm

import (
	"sort"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/model"
	apperrors "github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/errors"
)

var generations atomic.Uint64

// Vocabulary is the sorted, deduplicated term set of a corpus snapshot.
// Every vocabulary gets a fresh Generation, and vectors carry the generation
// they were built against so that vectors from different snapshots can never
// be compared.
type Vocabulary struct {
	terms      []string
	index      map[string]int
	docFreq    []int
	totalDocs  int
	generation uint64
}

// BuildVocabulary collects the document frequency of every term in corpus.
// A document whose Terms is nil has not been tokenized and is rejected; an
// empty (non-nil) term list is accepted and contributes nothing.
func BuildVocabulary(corpus []model.Document) (*Vocabulary, error) {
	if len(corpus) == 0 {
		return nil, apperrors.Dataf("empty corpus")
	}
	df := make(map[string]int)
	seen := make(map[string]struct{})
	for i, doc := range corpus {
		if doc.Terms == nil {
			return nil, apperrors.Dataf("document %d (%q) has no term sequence", i, doc.URL)
		}
		clear(seen)
		for _, t := range doc.Terms {
			if _, dup := seen[t]; dup {
				continue
			}
			seen[t] = struct{}{}
			df[t]++
		}
	}
	if len(df) == 0 {
		return nil, apperrors.Dataf("empty corpus: no terms in %d documents", len(corpus))
	}

	terms := make([]string, 0, len(df))
	for t := range df {
		terms = append(terms, t)
	}
	sort.Strings(terms)

	v := &Vocabulary{
		terms:      terms,
		index:      make(map[string]int, len(terms)),
		docFreq:    make([]int, len(terms)),
		totalDocs:  len(corpus),
		generation: generations.Add(1),
	}
	for i, t := range terms {
		v.index[t] = i
		v.docFreq[i] = df[t]
	}
	return v, nil
}

// Len is the number of distinct terms.
func (v *Vocabulary) Len() int { return len(v.terms) }

// TotalDocs is the number of documents the vocabulary was built from.
func (v *Vocabulary) TotalDocs() int { return v.totalDocs }

// Generation increases with every vocabulary built in this process.
func (v *Vocabulary) Generation() uint64 { return v.generation }

// Term returns the term stored at slot i.
func (v *Vocabulary) Term(i int) string { return v.terms[i] }

// Terms returns the sorted term list. Callers must not modify it.
func (v *Vocabulary) Terms() []string { return v.terms }

// Index returns the slot of term, or -1 when it is not in the vocabulary.
func (v *Vocabulary) Index(term string) int {
	if i, ok := v.index[term]; ok {
		return i
	}
	return -1
}

// Contains reports whether term is in the vocabulary.
func (v *Vocabulary) Contains(term string) bool {
	_, ok := v.index[term]
	return ok
}

// DocFreq returns per-slot document frequencies. Callers must not modify it.
func (v *Vocabulary) DocFreq() []int { return v.docFreq }
