package export

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func results() map[string]model.SourceResult {
	return map[string]model.SourceResult{
		"https://src/b": {
			SourceURL:    "https://src/b",
			SourceTopics: []string{"quantum"},
		},
		"https://src/a": {
			SourceURL:    "https://src/a",
			SourceTopics: []string{"cats", "pets"},
			Matches: []model.Match{
				{TargetURL: "https://t/1", SimilarityScore: 0.9876, SuggestedAnchor: "cats are great", Topics: []string{"cats", "great"}},
				{TargetURL: "https://t/2", SimilarityScore: 0.25, Topics: []string{"pets"}},
			},
		},
	}
}

func TestRows(t *testing.T) {
	rows := Rows(results())
	require.Len(t, rows, 3)
	assert.Equal(t, "https://t/1", rows[0].MatchURL)
	assert.InDelta(t, 98.76, rows[0].SimilarityPercent, 1e-9)
	assert.Equal(t, "https://t/2", rows[1].MatchURL)
	assert.Equal(t, []string{"cats", "pets"}, rows[1].SourceTopics)
	assert.True(t, rows[2].Placeholder())
	assert.Equal(t, "https://src/b", rows[2].SourceURL)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, Rows(results())))
	want := "source_url,match_url,similarity_percent,suggested_anchor,match_topics,source_topics\n" +
		"https://src/a,https://t/1,98.76,cats are great,cats; great,cats; pets\n" +
		"https://src/a,https://t/2,25.00,,pets,cats; pets\n" +
		"https://src/b,,,,,quantum\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteSummary(t *testing.T) {
	s := &model.Summary{Results: results()}

	var buf bytes.Buffer
	n, err := WriteSummary("-", &buf, s)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Contains(t, buf.String(), "https://src/b")

	path := filepath.Join(t.TempDir(), "out.csv")
	n, err = WriteSummary(path, nil, s)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, buf.String(), string(data))
}
