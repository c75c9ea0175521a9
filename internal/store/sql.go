package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/model"
	"github.com/google/uuid"
)

type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		url        TEXT PRIMARY KEY,
		id         TEXT NOT NULL DEFAULT '',
		title      TEXT NOT NULL DEFAULT '',
		body       TEXT NOT NULL,
		terms      TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS match_cache (
		source_url TEXT NOT NULL,
		corpus_id  TEXT NOT NULL,
		matches    TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (source_url, corpus_id)
	)`,
	`CREATE TABLE IF NOT EXISTS processed_sources (
		source_url   TEXT NOT NULL,
		corpus_id    TEXT NOT NULL,
		processed_at TIMESTAMP NOT NULL,
		PRIMARY KEY (source_url, corpus_id)
	)`,
	`CREATE TABLE IF NOT EXISTS corpora (
		id           TEXT PRIMARY KEY,
		content_hash TEXT NOT NULL UNIQUE,
		url_count    INTEGER NOT NULL,
		created_at   TIMESTAMP NOT NULL
	)`,
}

// SQLStore persists to PostgreSQL or SQLite through database/sql. Queries
// are written once with ? placeholders and rebound for postgres.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// Migrate creates the tables if they do not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrating %s schema: %w", s.dialect, err)
		}
	}
	return nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) GetDocument(ctx context.Context, url string) (*model.Document, error) {
	var doc model.Document
	var terms string
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT url, id, title, body, terms FROM documents WHERE url = ?`), url,
	).Scan(&doc.URL, &doc.ID, &doc.Title, &doc.Body, &terms)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading document %s: %w", url, err)
	}
	if terms != "" {
		if err := json.Unmarshal([]byte(terms), &doc.Terms); err != nil {
			return nil, fmt.Errorf("decoding terms of %s: %w", url, err)
		}
	}
	return &doc, nil
}

func (s *SQLStore) PutDocument(ctx context.Context, doc model.Document) error {
	terms := ""
	if doc.Terms != nil {
		data, err := json.Marshal(doc.Terms)
		if err != nil {
			return fmt.Errorf("encoding terms of %s: %w", doc.URL, err)
		}
		terms = string(data)
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO documents (url, id, title, body, terms, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (url) DO UPDATE SET
			id = excluded.id, title = excluded.title, body = excluded.body,
			terms = excluded.terms, updated_at = excluded.updated_at`),
		doc.URL, doc.ID, doc.Title, doc.Body, terms, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("storing document %s: %w", doc.URL, err)
	}
	return nil
}

func (s *SQLStore) GetCachedMatches(ctx context.Context, sourceURL, corpusID string) ([]model.Match, bool, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT matches FROM match_cache WHERE source_url = ? AND corpus_id = ?`),
		sourceURL, corpusID,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("loading cached matches for %s: %w", sourceURL, err)
	}
	var matches []model.Match
	if err := json.Unmarshal([]byte(data), &matches); err != nil {
		return nil, false, fmt.Errorf("decoding cached matches for %s: %w", sourceURL, err)
	}
	return matches, true, nil
}

func (s *SQLStore) PutMatches(ctx context.Context, sourceURL, corpusID string, matches []model.Match) error {
	if matches == nil {
		matches = []model.Match{}
	}
	data, err := json.Marshal(matches)
	if err != nil {
		return fmt.Errorf("encoding matches for %s: %w", sourceURL, err)
	}
	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO match_cache (source_url, corpus_id, matches, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (source_url, corpus_id) DO UPDATE SET matches = excluded.matches, updated_at = excluded.updated_at`),
		sourceURL, corpusID, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("storing matches for %s: %w", sourceURL, err)
	}
	return nil
}

func (s *SQLStore) IsProcessed(ctx context.Context, sourceURL, corpusID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT COUNT(*) FROM processed_sources WHERE source_url = ? AND corpus_id = ?`),
		sourceURL, corpusID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking processed status of %s: %w", sourceURL, err)
	}
	return n > 0, nil
}

func (s *SQLStore) MarkProcessed(ctx context.Context, sourceURL, corpusID string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO processed_sources (source_url, corpus_id, processed_at) VALUES (?, ?, ?)
		ON CONFLICT (source_url, corpus_id) DO NOTHING`),
		sourceURL, corpusID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("marking %s processed: %w", sourceURL, err)
	}
	return nil
}

func (s *SQLStore) ClearProcessed(ctx context.Context, sourceURL, corpusID string) error {
	_, err := s.db.ExecContext(ctx,
		s.rebind(`DELETE FROM processed_sources WHERE source_url = ? AND corpus_id = ?`),
		sourceURL, corpusID)
	if err != nil {
		return fmt.Errorf("clearing processed status of %s: %w", sourceURL, err)
	}
	return nil
}

func (s *SQLStore) GetOrCreateCorpusID(ctx context.Context, targetURLs []string) (string, error) {
	hash := CorpusHash(targetURLs)
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO corpora (id, content_hash, url_count, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (content_hash) DO NOTHING`),
		uuid.NewString(), hash, countUnique(targetURLs), time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("registering corpus: %w", err)
	}
	var id string
	err = s.db.QueryRowContext(ctx,
		s.rebind(`SELECT id FROM corpora WHERE content_hash = ?`), hash,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("loading corpus id: %w", err)
	}
	return id, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// rebind turns ? placeholders into $1, $2, ... for postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
