// Package store is the persistence boundary of the link-suggestion pipeline:
// documents, cached matches per source and corpus, the processed-source ledger and
// content-addressed corpus ids.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/model"
)

// Store is the narrow read/write contract the orchestrator depends on. Any
// method may fail transiently; wrap implementations with NewRetrying to
// absorb that.
type Store interface {
	// GetDocument returns nil, nil when url is unknown.
	GetDocument(ctx context.Context, url string) (*model.Document, error)
	PutDocument(ctx context.Context, doc model.Document) error

	// GetCachedMatches reports ok=false when nothing is cached for source
	// against corpusID.
	GetCachedMatches(ctx context.Context, sourceURL, corpusID string) (matches []model.Match, ok bool, err error)
	PutMatches(ctx context.Context, sourceURL, corpusID string, matches []model.Match) error

	IsProcessed(ctx context.Context, sourceURL, corpusID string) (bool, error)
	MarkProcessed(ctx context.Context, sourceURL, corpusID string) error
	ClearProcessed(ctx context.Context, sourceURL, corpusID string) error

	// GetOrCreateCorpusID returns the id of the target set made of urls.
	// Order and duplicates do not matter.
	GetOrCreateCorpusID(ctx context.Context, targetURLs []string) (string, error)
}

// CorpusHash is the content address of a target URL set: the SHA-256 of the
// sorted, deduplicated URLs.
func CorpusHash(targetURLs []string) string {
	urls := make([]string, len(targetURLs))
	copy(urls, targetURLs)
	sort.Strings(urls)
	h := sha256.New()
	prev := ""
	for i, u := range urls {
		if i > 0 && u == prev {
			continue
		}
		prev = u
		h.Write([]byte(u))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func countUnique(urls []string) int {
	seen := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		seen[u] = struct{}{}
	}
	return len(seen)
}
