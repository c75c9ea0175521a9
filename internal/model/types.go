// Package model defines the documents flowing through the similarity
// pipeline and the result records it produces.
package model

import "time"

// Document is a source or target page. URL is its identity. Terms is filled
// once by the tokenizer and never mutated afterwards.
type Document struct {
	ID    string   `json:"id,omitempty"`
	URL   string   `json:"url"`
	Title string   `json:"title,omitempty"`
	Body  string   `json:"body"`
	Terms []string `json:"terms,omitempty"`
}

// Text returns the text the tokenizer sees for d.
func (d Document) Text() string {
	if d.Title == "" {
		return d.Body
	}
	return d.Title + " " + d.Body
}

// Match is one suggested link from a source to a target.
type Match struct {
	TargetURL       string   `json:"target_url"`
	Title           string   `json:"title,omitempty"`
	SimilarityScore float64  `json:"similarity_score"`
	SuggestedAnchor string   `json:"suggested_anchor"`
	Topics          []string `json:"topics,omitempty"`
}

// SourceResult collects the matches found for one source document.
type SourceResult struct {
	SourceURL    string   `json:"source_url"`
	SourceTopics []string `json:"source_topics,omitempty"`
	Matches      []Match  `json:"matches"`
	FromCache    bool     `json:"from_cache"`
}

// ShouldMarkProcessed reports whether the source may be recorded as done.
// Sources without matches stay eligible for a later run against a larger
// corpus.
func (r SourceResult) ShouldMarkProcessed() bool {
	return len(r.Matches) > 0
}

// Failure records a source whose scoring task did not complete.
type Failure struct {
	SourceURL string `json:"source_url"`
	Error     string `json:"error"`
}

// Summary is the outcome of a batch run. Results is keyed by source URL
// because tasks complete in no particular order.
type Summary struct {
	RunID       string                  `json:"run_id"`
	CorpusID    string                  `json:"corpus_id"`
	Results     map[string]SourceResult `json:"results"`
	Failures    []Failure               `json:"failures,omitempty"`
	Skipped     int                     `json:"skipped"`
	StartedAt   time.Time               `json:"started_at"`
	CompletedAt time.Time               `json:"completed_at"`
}
