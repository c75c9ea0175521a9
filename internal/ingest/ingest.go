// Package ingest reads two-column (URL, body) CSV tables into documents.
// Malformed rows are rejected one at a time with a diagnostic; only I/O
// failures abort the whole read.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/model"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/config"
)

const (
	DefaultMinBodyLength = 10
	DefaultMaxBodyLength = 1 << 20
)

// Limits bounds the accepted body length in characters.
type Limits struct {
	MinBodyLength int
	MaxBodyLength int
}

// LimitsFromConfig converts the ingest config section, filling zero values
// with the defaults.
func LimitsFromConfig(cfg config.IngestConfig) Limits {
	return Limits{MinBodyLength: cfg.MinBodyLength, MaxBodyLength: cfg.MaxBodyLength}.withDefaults()
}

func (l Limits) withDefaults() Limits {
	if l.MinBodyLength <= 0 {
		l.MinBodyLength = DefaultMinBodyLength
	}
	if l.MaxBodyLength <= 0 {
		l.MaxBodyLength = DefaultMaxBodyLength
	}
	return l
}

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, e.Fields[field]))
	}
	return strings.Join(parts, "; ")
}

// Diagnostic describes one rejected row. Line is the 1-based line in the
// input where the row starts.
type Diagnostic struct {
	Line   int    `json:"line"`
	URL    string `json:"url,omitempty"`
	Reason string `json:"reason"`
}

func (d Diagnostic) String() string {
	if d.URL == "" {
		return fmt.Sprintf("line %d: %s", d.Line, d.Reason)
	}
	return fmt.Sprintf("line %d (%s): %s", d.Line, d.URL, d.Reason)
}

// Result is the outcome of reading one table.
type Result struct {
	Documents   []model.Document
	Diagnostics []Diagnostic
}

// URLs returns the URLs of the accepted documents in input order.
func (r *Result) URLs() []string {
	urls := make([]string, len(r.Documents))
	for i, d := range r.Documents {
		urls[i] = d.URL
	}
	return urls
}

type columns struct {
	url, body, title, id int
}

// ReadFile opens path and reads it with Read.
func ReadFile(path string, limits Limits) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	res, err := Read(f, limits)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	slog.Default().With("component", "ingest").Info("table loaded",
		"path", path,
		"accepted", len(res.Documents),
		"rejected", len(res.Diagnostics),
	)
	return res, nil
}

// Read parses a CSV table. A header row naming a "url" column selects
// columns by name (url, body|text|content, optional title and id);
// otherwise the first column is the URL and the second the body.
func Read(r io.Reader, limits Limits) (*Result, error) {
	limits = limits.withDefaults()
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	res := &Result{Documents: []model.Document{}}
	seen := make(map[string]int)
	cols := columns{url: 0, body: 1, title: -1, id: -1}
	first := true

	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				res.Diagnostics = append(res.Diagnostics, Diagnostic{Line: perr.StartLine, Reason: "unparseable row: " + perr.Err.Error()})
				continue
			}
			return nil, err
		}
		line, _ := cr.FieldPos(0)
		if first {
			first = false
			if c, ok := headerColumns(record); ok {
				cols = c
				continue
			}
		}
		if isBlank(record) {
			continue
		}

		doc, verr := parseRow(record, cols, limits)
		if verr != nil {
			res.Diagnostics = append(res.Diagnostics, Diagnostic{Line: line, URL: doc.URL, Reason: verr.Error()})
			continue
		}
		if prev, dup := seen[doc.URL]; dup {
			res.Diagnostics = append(res.Diagnostics, Diagnostic{
				Line:   line,
				URL:    doc.URL,
				Reason: fmt.Sprintf("duplicate url, first seen on line %d", prev),
			})
			continue
		}
		seen[doc.URL] = line
		res.Documents = append(res.Documents, doc)
	}
	return res, nil
}

func parseRow(record []string, cols columns, limits Limits) (model.Document, error) {
	doc := model.Document{
		URL:   strings.TrimSpace(field(record, cols.url)),
		Body:  strings.TrimSpace(field(record, cols.body)),
		Title: strings.TrimSpace(field(record, cols.title)),
		ID:    strings.TrimSpace(field(record, cols.id)),
	}
	if len(record) <= max(cols.url, cols.body) {
		return doc, &ValidationError{Fields: map[string]string{
			"row": fmt.Sprintf("expected at least %d columns, got %d", max(cols.url, cols.body)+1, len(record)),
		}}
	}
	return doc, Validate(doc, limits)
}

// Validate checks the URL and body of one document against limits.
func Validate(doc model.Document, limits Limits) error {
	limits = limits.withDefaults()
	errs := make(map[string]string)

	if doc.URL == "" {
		errs["url"] = "url is required"
	} else if u, err := url.Parse(doc.URL); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		errs["url"] = "url must be an absolute http(s) url"
	}
	n := utf8.RuneCountInString(strings.TrimSpace(doc.Body))
	switch {
	case n == 0:
		errs["body"] = "body is required"
	case n < limits.MinBodyLength:
		errs["body"] = fmt.Sprintf("body must be at least %d characters", limits.MinBodyLength)
	case n > limits.MaxBodyLength:
		errs["body"] = fmt.Sprintf("body must be at most %d characters", limits.MaxBodyLength)
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

func headerColumns(record []string) (columns, bool) {
	cols := columns{url: -1, body: -1, title: -1, id: -1}
	for i, name := range record {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))) {
		case "url", "link", "address":
			cols.url = i
		case "body", "text", "content":
			cols.body = i
		case "title":
			cols.title = i
		case "id":
			cols.id = i
		}
	}
	if cols.url < 0 {
		return columns{}, false
	}
	if cols.body < 0 {
		cols.body = 1
		if cols.url == 1 {
			cols.body = 0
		}
	}
	return cols, true
}

func field(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return record[i]
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
