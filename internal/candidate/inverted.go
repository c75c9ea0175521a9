package candidate

import (
	"github.com/RoaringBitmap/roaring/v2"
)

// InvertedIndex maps each term to the posting set of documents containing it.
type InvertedIndex struct {
	postings map[string]*roaring.Bitmap
}

func NewInvertedIndex() *InvertedIndex {
	return &InvertedIndex{postings: make(map[string]*roaring.Bitmap)}
}

func (ix *InvertedIndex) Add(id uint32, terms []string) {
	for _, t := range terms {
		bm, ok := ix.postings[t]
		if !ok {
			bm = roaring.New()
			ix.postings[t] = bm
		}
		bm.Add(id)
	}
}

// Search returns the documents containing every query term. An empty query
// or any unknown term yields an empty set.
func (ix *InvertedIndex) Search(terms []string) *roaring.Bitmap {
	if len(terms) == 0 {
		return roaring.New()
	}
	lists := make([]*roaring.Bitmap, 0, len(terms))
	for _, t := range terms {
		bm, ok := ix.postings[t]
		if !ok {
			return roaring.New()
		}
		lists = append(lists, bm)
	}
	return roaring.FastAnd(lists...)
}

// SearchAny returns the documents containing at least one query term.
func (ix *InvertedIndex) SearchAny(terms []string) *roaring.Bitmap {
	lists := make([]*roaring.Bitmap, 0, len(terms))
	for _, t := range terms {
		if bm, ok := ix.postings[t]; ok {
			lists = append(lists, bm)
		}
	}
	return roaring.FastOr(lists...)
}

// Postings returns the posting set of term, or nil.
func (ix *InvertedIndex) Postings(term string) *roaring.Bitmap {
	return ix.postings[term]
}

// Terms is the number of distinct terms with postings.
func (ix *InvertedIndex) Terms() int { return len(ix.postings) }

func (ix *InvertedIndex) Clear() {
	clear(ix.postings)
}
