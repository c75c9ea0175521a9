package candidate

import (
	"encoding/binary"
	"math"

	apperrors "github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/errors"
	"github.com/RoaringBitmap/roaring/v2"
	"github.com/cespare/xxhash/v2"
)

const (
	DefaultNumHashes = 128
	DefaultBands     = 16
)

// MinHasher computes fixed-size MinHash signatures over term sets. Hash
// function i is the base xxhash of a term mixed with seed i.
type MinHasher struct {
	seeds []uint64
}

func NewMinHasher(numHashes int) *MinHasher {
	seeds := make([]uint64, numHashes)
	s := uint64(0x9e3779b97f4a7c15)
	for i := range seeds {
		s += 0x9e3779b97f4a7c15
		seeds[i] = mix64(s)
	}
	return &MinHasher{seeds: seeds}
}

// NumHashes is the signature length.
func (h *MinHasher) NumHashes() int { return len(h.seeds) }

// Signature returns the elementwise minimum hash over terms. Duplicate terms
// do not change the result. An empty set yields all math.MaxUint64.
func (h *MinHasher) Signature(terms []string) []uint64 {
	sig := make([]uint64, len(h.seeds))
	for i := range sig {
		sig[i] = math.MaxUint64
	}
	for _, t := range terms {
		base := xxhash.Sum64String(t)
		for i, seed := range h.seeds {
			if v := mix64(base ^ seed); v < sig[i] {
				sig[i] = v
			}
		}
	}
	return sig
}

// EstimateJaccard is the fraction of equal signature slots.
func EstimateJaccard(a, b []uint64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	eq := 0
	for i := range a {
		if a[i] == b[i] {
			eq++
		}
	}
	return float64(eq) / float64(len(a))
}

// LSH buckets MinHash signatures by band. Two documents are candidates when
// at least one band of their signatures is identical.
type LSH struct {
	hasher  *MinHasher
	bands   int
	rows    int
	buckets map[uint64]*roaring.Bitmap
}

// NewLSH requires bands to divide numHashes evenly.
func NewLSH(numHashes, bands int) (*LSH, error) {
	if numHashes <= 0 || bands <= 0 {
		return nil, apperrors.Dataf("lsh: numHashes (%d) and bands (%d) must be positive", numHashes, bands)
	}
	if numHashes%bands != 0 {
		return nil, apperrors.Dataf("lsh: %d bands do not divide %d hashes", bands, numHashes)
	}
	return &LSH{
		hasher:  NewMinHasher(numHashes),
		bands:   bands,
		rows:    numHashes / bands,
		buckets: make(map[uint64]*roaring.Bitmap),
	}, nil
}

// Add indexes the term set of document id. Documents without terms are not
// bucketed since they can never be similar to anything.
func (l *LSH) Add(id uint32, terms []string) {
	if len(terms) == 0 {
		return
	}
	for _, key := range l.bandKeys(l.hasher.Signature(terms)) {
		bm, ok := l.buckets[key]
		if !ok {
			bm = roaring.New()
			l.buckets[key] = bm
		}
		bm.Add(id)
	}
}

// Query returns every document sharing at least one band with terms.
func (l *LSH) Query(terms []string) *roaring.Bitmap {
	if len(terms) == 0 {
		return roaring.New()
	}
	var hits []*roaring.Bitmap
	for _, key := range l.bandKeys(l.hasher.Signature(terms)) {
		if bm, ok := l.buckets[key]; ok {
			hits = append(hits, bm)
		}
	}
	return roaring.FastOr(hits...)
}

// Signature is the MinHash signature of terms.
func (l *LSH) Signature(terms []string) []uint64 { return l.hasher.Signature(terms) }

// Buckets is the number of distinct band buckets.
func (l *LSH) Buckets() int { return len(l.buckets) }

// Clear drops every bucket.
func (l *LSH) Clear() {
	clear(l.buckets)
}

// bandKeys hashes (bandIndex, bandSlice) for every band.
func (l *LSH) bandKeys(sig []uint64) []uint64 {
	keys := make([]uint64, l.bands)
	buf := make([]byte, 8*(l.rows+1))
	for b := 0; b < l.bands; b++ {
		binary.LittleEndian.PutUint64(buf, uint64(b))
		for r := 0; r < l.rows; r++ {
			binary.LittleEndian.PutUint64(buf[8*(r+1):], sig[b*l.rows+r])
		}
		keys[b] = xxhash.Sum64(buf)
	}
	return keys
}
