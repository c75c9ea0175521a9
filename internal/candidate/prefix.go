package candidate

import (
	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/tokenizer"
	"github.com/RoaringBitmap/roaring/v2"
)

const PrefixLength = 3

// PrefixIndex maps the first three characters of each word to the documents
// containing a word with that prefix. Lookups tolerate differing suffixes
// such as plural or tense variations.
type PrefixIndex struct {
	postings map[string]*roaring.Bitmap
}

func NewPrefixIndex() *PrefixIndex {
	return &PrefixIndex{postings: make(map[string]*roaring.Bitmap)}
}

func (ix *PrefixIndex) Add(id uint32, terms []string) {
	for _, t := range terms {
		p, ok := prefixOf(t)
		if !ok {
			continue
		}
		bm, exists := ix.postings[p]
		if !exists {
			bm = roaring.New()
			ix.postings[p] = bm
		}
		bm.Add(id)
	}
}

// FindCandidates tokenizes phrase and intersects the prefix postings of its
// significant words.
func (ix *PrefixIndex) FindCandidates(phrase string) *roaring.Bitmap {
	return ix.FindCandidatesTerms(tokenizer.Tokenize(phrase))
}

// FindCandidatesTerms intersects the prefix postings of terms. No usable
// word, or a prefix nobody has, yields an empty set.
func (ix *PrefixIndex) FindCandidatesTerms(terms []string) *roaring.Bitmap {
	var result *roaring.Bitmap
	for _, t := range terms {
		p, ok := prefixOf(t)
		if !ok {
			continue
		}
		bm, exists := ix.postings[p]
		if !exists {
			return roaring.New()
		}
		if result == nil {
			result = bm.Clone()
		} else {
			result.And(bm)
		}
		if result.IsEmpty() {
			return result
		}
	}
	if result == nil {
		return roaring.New()
	}
	return result
}

// Prefixes is the number of distinct prefixes indexed.
func (ix *PrefixIndex) Prefixes() int { return len(ix.postings) }

func (ix *PrefixIndex) Clear() {
	clear(ix.postings)
}

func prefixOf(term string) (string, bool) {
	r := []rune(term)
	if len(r) < PrefixLength {
		return "", false
	}
	return string(r[:PrefixLength]), true
}
