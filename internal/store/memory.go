package store

import (
	"context"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/model"
	"github.com/google/uuid"
)

// MemoryStore keeps everything in process memory. It is the default backend
// for one-off CLI runs and for tests.
type MemoryStore struct {
	mu        sync.RWMutex
	documents map[string]model.Document
	matches   map[matchKey][]model.Match
	processed map[string]map[string]struct{}
	corpora   map[string]string
}

type matchKey struct {
	source string
	corpus string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		documents: make(map[string]model.Document),
		matches:   make(map[matchKey][]model.Match),
		processed: make(map[string]map[string]struct{}),
		corpora:   make(map[string]string),
	}
}

func (s *MemoryStore) GetDocument(_ context.Context, url string) (*model.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[url]
	if !ok {
		return nil, nil
	}
	return &doc, nil
}

func (s *MemoryStore) PutDocument(_ context.Context, doc model.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[doc.URL] = doc
	return nil
}

func (s *MemoryStore) GetCachedMatches(_ context.Context, sourceURL, corpusID string) ([]model.Match, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.matches[matchKey{source: sourceURL, corpus: corpusID}]
	if !ok {
		return nil, false, nil
	}
	out := make([]model.Match, len(m))
	copy(out, m)
	return out, true, nil
}

func (s *MemoryStore) PutMatches(_ context.Context, sourceURL, corpusID string, matches []model.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]model.Match, len(matches))
	copy(stored, matches)
	s.matches[matchKey{source: sourceURL, corpus: corpusID}] = stored
	return nil
}

func (s *MemoryStore) IsProcessed(_ context.Context, sourceURL, corpusID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.processed[corpusID][sourceURL]
	return ok, nil
}

func (s *MemoryStore) MarkProcessed(_ context.Context, sourceURL, corpusID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.processed[corpusID]
	if !ok {
		set = make(map[string]struct{})
		s.processed[corpusID] = set
	}
	set[sourceURL] = struct{}{}
	return nil
}

func (s *MemoryStore) ClearProcessed(_ context.Context, sourceURL, corpusID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.processed[corpusID], sourceURL)
	return nil
}

func (s *MemoryStore) GetOrCreateCorpusID(_ context.Context, targetURLs []string) (string, error) {
	hash := CorpusHash(targetURLs)
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.corpora[hash]; ok {
		return id, nil
	}
	id := uuid.NewString()
	s.corpora[hash] = id
	return id, nil
}
