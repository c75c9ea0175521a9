package vsm

import (
	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/model"
)

// Snapshot bundles the vocabulary and IDF table derived from one corpus,
// together with the fingerprint of that corpus. It is read-only once built
// and may be shared by concurrent scorers.
type Snapshot struct {
	Fingerprint string
	Vocabulary  *Vocabulary
	IDF         *IDFTable
}

// Build derives a snapshot from a tokenized corpus.
func Build(corpus []model.Document) (*Snapshot, error) {
	vocab, err := BuildVocabulary(corpus)
	if err != nil {
		return nil, err
	}
	idf, err := ComputeIDF(vocab, vocab.DocFreq(), vocab.TotalDocs())
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		Fingerprint: Fingerprint(corpus),
		Vocabulary:  vocab,
		IDF:         idf,
	}, nil
}

// Generation is the generation of the snapshot's vocabulary.
func (s *Snapshot) Generation() uint64 { return s.Vocabulary.Generation() }

// Vectorize builds the vector of terms against this snapshot.
func (s *Snapshot) Vectorize(terms []string) (Vector, error) {
	return Vectorize(terms, s.Vocabulary, s.IDF)
}
