package vsm

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultVectorCacheSize = 8192

// VectorCache memoises vectors by the sorted term sequence and the
// generation of the table they were built with. It is bound to one corpus
// fingerprint at a time; InvalidateOnCorpusChange drops every entry when the
// fingerprint moves.
type VectorCache struct {
	mu          sync.Mutex
	lru         *lru.Cache[string, Vector]
	fingerprint string

	OnHit  func()
	OnMiss func()
}

// NewVectorCache returns an LRU cache of size vectors. size <= 0 selects the default.
func NewVectorCache(size int) (*VectorCache, error) {
	if size <= 0 {
		size = DefaultVectorCacheSize
	}
	c, err := lru.New[string, Vector](size)
	if err != nil {
		return nil, fmt.Errorf("creating vector cache: %w", err)
	}
	return &VectorCache{lru: c}, nil
}

// Vectorize returns the cached vector for terms under s, computing and
// storing it on a miss. Errors are never cached.
func (c *VectorCache) Vectorize(s *Snapshot, terms []string) (Vector, error) {
	key := cacheKey(s.Generation(), terms)
	if v, ok := c.lru.Get(key); ok {
		if c.OnHit != nil {
			c.OnHit()
		}
		return v, nil
	}
	if c.OnMiss != nil {
		c.OnMiss()
	}
	v, err := s.Vectorize(terms)
	if err != nil {
		return Vector{}, err
	}
	c.lru.Add(key, v)
	return v, nil
}

// InvalidateOnCorpusChange purges the cache if fingerprint differs from the
// one it was last bound to, and reports whether it did.
func (c *VectorCache) InvalidateOnCorpusChange(fingerprint string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fingerprint == fingerprint {
		return false
	}
	c.lru.Purge()
	c.fingerprint = fingerprint
	return true
}

// Clear drops all entries but keeps the bound fingerprint.
func (c *VectorCache) Clear() {
	c.lru.Purge()
}

// Len is the number of cached vectors.
func (c *VectorCache) Len() int { return c.lru.Len() }

func cacheKey(generation uint64, terms []string) string {
	sorted := make([]string, len(terms))
	copy(sorted, terms)
	sort.Strings(sorted)
	var b strings.Builder
	fmt.Fprintf(&b, "%d", generation)
	for _, t := range sorted {
		b.WriteByte(0)
		b.WriteString(t)
	}
	return b.String()
}
