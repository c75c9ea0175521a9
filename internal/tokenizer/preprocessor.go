package tokenizer

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/model"
	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/ristretto"
)

const (
	defaultNumCounters = 1e6
	defaultMaxCost     = 1 << 26
	defaultBufferItems = 64
)

type cachedTerms struct {
	textHash uint64
	terms    []string
}

// Preprocessor tokenizes documents and caches the result by URL. An entry is
// only reused while the document text hashes to the same value, so a page
// edited between runs is re-tokenized.
type Preprocessor struct {
	tok   *Tokenizer
	cache *ristretto.Cache

	OnHit  func()
	OnMiss func()
}

// NewPreprocessor wraps tok with a term cache bounded to maxCost bytes of
// terms. maxCost <= 0 selects the default bound.
func NewPreprocessor(tok *Tokenizer, maxCost int64) (*Preprocessor, error) {
	if tok == nil {
		tok = defaultTokenizer
	}
	if maxCost <= 0 {
		maxCost = defaultMaxCost
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: defaultNumCounters,
		MaxCost:     maxCost,
		BufferItems: defaultBufferItems,
	})
	if err != nil {
		return nil, fmt.Errorf("creating term cache: %w", err)
	}
	return &Preprocessor{tok: tok, cache: cache}, nil
}

// Terms returns the term sequence for doc, consulting the cache first.
func (p *Preprocessor) Terms(doc model.Document) []string {
	text := doc.Text()
	h := xxhash.Sum64String(text)
	if v, ok := p.cache.Get(doc.URL); ok {
		if entry, ok := v.(cachedTerms); ok && entry.textHash == h {
			if p.OnHit != nil {
				p.OnHit()
			}
			return entry.terms
		}
	}
	if p.OnMiss != nil {
		p.OnMiss()
	}
	terms := p.tok.Tokenize(text)
	p.cache.Set(doc.URL, cachedTerms{textHash: h, terms: terms}, termsCost(terms))
	return terms
}

// Prepare fills Terms on every document that does not have them yet and
// returns the same slice.
func (p *Preprocessor) Prepare(docs []model.Document) []model.Document {
	for i := range docs {
		if docs[i].Terms == nil {
			docs[i].Terms = p.Terms(docs[i])
		}
	}
	return docs
}

// Flush blocks until buffered cache writes are visible.
func (p *Preprocessor) Flush() {
	p.cache.Wait()
}

// Clear drops every cached entry.
func (p *Preprocessor) Clear() {
	p.cache.Clear()
}

func (p *Preprocessor) Close() {
	p.cache.Close()
}

func termsCost(terms []string) int64 {
	cost := int64(24)
	for _, t := range terms {
		cost += int64(len(t)) + 16
	}
	return cost
}
