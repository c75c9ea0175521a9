package similarity

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	anchorWindow        = 3
	anchorFallbackWords = 5
	anchorFallbackChars = 30
)

// SuggestAnchor picks the three-word window of text sharing the most words
// with sourceTerms, preferring the earliest window on ties. Texts shorter
// than one window fall back to their first five words, cut to thirty
// characters.
func SuggestAnchor(text string, sourceTerms []string) string {
	words := strings.Fields(text)
	if len(words) < anchorWindow {
		return fallbackAnchor(words)
	}

	terms := make(map[string]struct{}, len(sourceTerms))
	for _, t := range sourceTerms {
		terms[t] = struct{}{}
	}
	hit := make([]int, len(words))
	for i, w := range words {
		if _, ok := terms[normalizeWord(w)]; ok {
			hit[i] = 1
		}
	}

	best, bestScore := 0, -1
	for start := 0; start+anchorWindow <= len(words); start++ {
		score := 0
		for _, h := range hit[start : start+anchorWindow] {
			score += h
		}
		if score > bestScore {
			best, bestScore = start, score
		}
	}
	return trimPunct(strings.Join(words[best:best+anchorWindow], " "))
}

func fallbackAnchor(words []string) string {
	if len(words) > anchorFallbackWords {
		words = words[:anchorFallbackWords]
	}
	phrase := trimPunct(strings.Join(words, " "))
	if utf8.RuneCountInString(phrase) > anchorFallbackChars {
		phrase = strings.TrimSpace(string([]rune(phrase)[:anchorFallbackChars]))
	}
	return phrase
}

func normalizeWord(w string) string {
	return strings.ToLower(strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) }))
}

func trimPunct(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})
}
