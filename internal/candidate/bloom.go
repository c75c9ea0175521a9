package candidate

import (
	"math"

	apperrors "github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/errors"
	"github.com/bits-and-blooms/bitset"
	"github.com/cespare/xxhash/v2"
)

const maxBloomHashes = 16

// BloomFilter answers "definitely absent" or "maybe present" for strings.
// Added items always test true; other items test true with a probability
// close to the configured false-positive rate.
type BloomFilter struct {
	bits  *bitset.BitSet
	m     uint64
	k     uint64
	count int
}

// BloomSize returns the bit count m = ceil(-n*ln(p)/ln(2)^2) and hash count
// k = max(1, min(round(m/n*ln(2)), 16)) for n expected items at rate p.
func BloomSize(n int, p float64) (m uint64, k uint64) {
	if n <= 0 {
		n = 1
	}
	mf := math.Ceil(-float64(n) * math.Log(p) / (math.Ln2 * math.Ln2))
	if mf < 1 {
		mf = 1
	}
	kf := math.Round(mf / float64(n) * math.Ln2)
	kf = math.Max(1, math.Min(kf, maxBloomHashes))
	return uint64(mf), uint64(kf)
}

// NewBloomFilter sizes a filter for expected items at falsePositiveRate,
// which must lie strictly between 0 and 1.
func NewBloomFilter(expected int, falsePositiveRate float64) (*BloomFilter, error) {
	if !(falsePositiveRate > 0 && falsePositiveRate < 1) {
		return nil, apperrors.Dataf("bloom false-positive rate %v outside (0, 1)", falsePositiveRate)
	}
	m, k := BloomSize(expected, falsePositiveRate)
	return &BloomFilter{bits: bitset.New(uint(m)), m: m, k: k}, nil
}

func (b *BloomFilter) Add(item string) {
	h1, h2 := bloomHash(item)
	for i := uint64(0); i < b.k; i++ {
		b.bits.Set(uint((h1 + i*h2) % b.m))
	}
	b.count++
}

// Test reports false only when item was definitely never added.
func (b *BloomFilter) Test(item string) bool {
	h1, h2 := bloomHash(item)
	for i := uint64(0); i < b.k; i++ {
		if !b.bits.Test(uint((h1 + i*h2) % b.m)) {
			return false
		}
	}
	return true
}

// Count is the number of Add calls since the last Clear.
func (b *BloomFilter) Count() int { return b.count }

// Size returns the bit count and hash count the filter was built with.
func (b *BloomFilter) Size() (m uint64, k uint64) { return b.m, b.k }

// EstimatedFalsePositiveRate is (1 - e^(-k*n/m))^k for the current fill.
func (b *BloomFilter) EstimatedFalsePositiveRate() float64 {
	if b.count == 0 {
		return 0
	}
	kn := float64(b.k) * float64(b.count)
	return math.Pow(1-math.Exp(-kn/float64(b.m)), float64(b.k))
}

func (b *BloomFilter) Clear() {
	b.bits.ClearAll()
	b.count = 0
}

// bloomHash derives the two base hashes for double hashing. h2 is forced odd
// so the probe sequence never collapses to a single bit.
func bloomHash(s string) (uint64, uint64) {
	h1 := xxhash.Sum64String(s)
	return h1, mix64(h1) | 1
}

func mix64(x uint64) uint64 {
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	x *= 0xc4ceb9fe1a85ec53
	x ^= x >> 33
	return x
}
