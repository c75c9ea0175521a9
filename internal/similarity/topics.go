package similarity

import (
	"sort"

	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/vsm"
)

const DefaultTopics = 3

// Topics returns the n highest-weighted vocabulary terms of vec, ties
// broken alphabetically. Zero weights are never topics.
func Topics(vec vsm.Vector, vocab *vsm.Vocabulary, n int) []string {
	if n <= 0 || vocab == nil || vec.Generation != vocab.Generation() {
		return nil
	}
	idx := make([]int, 0, n)
	for i, w := range vec.Values {
		if w > 0 {
			idx = append(idx, i)
		}
	}
	sort.Slice(idx, func(a, b int) bool {
		wa, wb := vec.Values[idx[a]], vec.Values[idx[b]]
		if wa != wb {
			return wa > wb
		}
		return idx[a] < idx[b]
	})
	if len(idx) > n {
		idx = idx[:n]
	}
	topics := make([]string, len(idx))
	for i, j := range idx {
		topics[i] = vocab.Term(j)
	}
	return topics
}
