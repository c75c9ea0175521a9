// Package export flattens batch results into one row per match for bulk
// download.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/model"
)

// Header is the first line written by WriteCSV.
var Header = []string{"source_url", "match_url", "similarity_percent", "suggested_anchor", "match_topics", "source_topics"}

const topicSeparator = "; "

// Row is one exported line. A source without matches is exported as a
// single placeholder row with an empty MatchURL.
type Row struct {
	SourceURL         string
	MatchURL          string
	SimilarityPercent float64
	SuggestedAnchor   string
	MatchTopics       []string
	SourceTopics      []string
}

// Placeholder reports whether r stands for a source without matches.
func (r Row) Placeholder() bool { return r.MatchURL == "" }

func (r Row) record() []string {
	percent := ""
	if !r.Placeholder() {
		percent = strconv.FormatFloat(r.SimilarityPercent, 'f', 2, 64)
	}
	return []string{
		r.SourceURL,
		r.MatchURL,
		percent,
		r.SuggestedAnchor,
		strings.Join(r.MatchTopics, topicSeparator),
		strings.Join(r.SourceTopics, topicSeparator),
	}
}

// Rows flattens results ordered by source URL, keeping each source's matches
// in rank order.
func Rows(results map[string]model.SourceResult) []Row {
	sources := make([]string, 0, len(results))
	for src := range results {
		sources = append(sources, src)
	}
	sort.Strings(sources)

	var rows []Row
	for _, src := range sources {
		res := results[src]
		if len(res.Matches) == 0 {
			rows = append(rows, Row{SourceURL: src, SourceTopics: res.SourceTopics})
			continue
		}
		for _, m := range res.Matches {
			rows = append(rows, Row{
				SourceURL:         src,
				MatchURL:          m.TargetURL,
				SimilarityPercent: m.SimilarityScore * 100,
				SuggestedAnchor:   m.SuggestedAnchor,
				MatchTopics:       m.Topics,
				SourceTopics:      res.SourceTopics,
			})
		}
	}
	return rows
}

// WriteCSV writes the header followed by rows.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write(r.record()); err != nil {
			return fmt.Errorf("writing row for %s: %w", r.SourceURL, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSummary exports every result of s to path, or to w when path is "-".
func WriteSummary(path string, stdout io.Writer, s *model.Summary) (int, error) {
	rows := Rows(s.Results)
	if path == "" || path == "-" {
		return len(rows), WriteCSV(stdout, rows)
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("creating %s: %w", path, err)
	}
	if err := WriteCSV(f, rows); err != nil {
		f.Close()
		return 0, err
	}
	return len(rows), f.Close()
}
