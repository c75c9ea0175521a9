// Package tokenizer turns document text into the normalised term sequence
// consumed by the vector space model. It lower-cases input, splits on
// non-letter boundaries, drops terms outside the accepted length range and
// removes stop-words for the detected language.
package tokenizer

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	MinTermLength = 3
	MaxTermLength = 50
)

// Tokenizer is safe for concurrent use; it holds no mutable state.
type Tokenizer struct {
	detector  Detector
	stopWords map[Language]map[string]struct{}
}

// Option customises a Tokenizer.
type Option func(*Tokenizer)

// WithDetector replaces the default stop-word based language detector.
func WithDetector(d Detector) Option {
	return func(t *Tokenizer) {
		t.detector = d
	}
}

// WithStopWords registers or replaces the stop-word list for lang.
func WithStopWords(lang Language, words []string) Option {
	return func(t *Tokenizer) {
		t.stopWords[lang] = toSet(words)
	}
}

func New(opts ...Option) *Tokenizer {
	t := &Tokenizer{
		stopWords: defaultStopWords(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.detector == nil {
		t.detector = NewStopWordDetector(t.stopWords)
	}
	return t
}

var defaultTokenizer = New()

// Tokenize runs the default tokenizer.
func Tokenize(text string) []string {
	return defaultTokenizer.Tokenize(text)
}

// Tokenize returns the ordered terms of text. The result is never nil, and
// identical input always yields an identical sequence.
func (t *Tokenizer) Tokenize(text string) []string {
	words := Words(text)
	terms := make([]string, 0, len(words))
	if len(words) == 0 {
		return terms
	}
	stop := t.stopWords[t.detector.Detect(words)]
	for _, word := range words {
		n := utf8.RuneCountInString(word)
		if n < MinTermLength || n > MaxTermLength {
			continue
		}
		if _, isStop := stop[word]; isStop {
			continue
		}
		terms = append(terms, word)
	}
	return terms
}

// Words lower-cases text and splits it on every non-letter rune, without
// any length or stop-word filtering.
func Words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
}

func toSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[strings.ToLower(w)] = struct{}{}
	}
	return set
}
