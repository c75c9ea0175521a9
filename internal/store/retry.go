package store

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/model"
	apperrors "github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/sqlite"
)

// Retrying retries transient failures of the wrapped store with bounded
// exponential backoff. Data errors and other non-transient failures are
// returned immediately.
type Retrying struct {
	next Store
	cfg  resilience.RetryConfig
}

func NewRetrying(next Store, cfg resilience.RetryConfig) *Retrying {
	if cfg.Retryable == nil {
		cfg.Retryable = IsRetryable
	}
	return &Retrying{next: next, cfg: cfg}
}

// IsRetryable is the transient error class for every backend this package
// talks to.
func IsRetryable(err error) bool {
	return apperrors.IsRetryable(err, postgres.IsTransient, sqlite.IsBusy)
}

func (r *Retrying) GetDocument(ctx context.Context, url string) (*model.Document, error) {
	var doc *model.Document
	err := resilience.Retry(ctx, "store.get_document", r.cfg, func() error {
		var err error
		doc, err = r.next.GetDocument(ctx, url)
		return err
	})
	return doc, err
}

func (r *Retrying) PutDocument(ctx context.Context, doc model.Document) error {
	return resilience.Retry(ctx, "store.put_document", r.cfg, func() error {
		return r.next.PutDocument(ctx, doc)
	})
}

func (r *Retrying) GetCachedMatches(ctx context.Context, sourceURL, corpusID string) ([]model.Match, bool, error) {
	var (
		matches []model.Match
		ok      bool
	)
	err := resilience.Retry(ctx, "store.get_cached_matches", r.cfg, func() error {
		var err error
		matches, ok, err = r.next.GetCachedMatches(ctx, sourceURL, corpusID)
		return err
	})
	return matches, ok, err
}

func (r *Retrying) PutMatches(ctx context.Context, sourceURL, corpusID string, matches []model.Match) error {
	return resilience.Retry(ctx, "store.put_matches", r.cfg, func() error {
		return r.next.PutMatches(ctx, sourceURL, corpusID, matches)
	})
}

func (r *Retrying) IsProcessed(ctx context.Context, sourceURL, corpusID string) (bool, error) {
	var done bool
	err := resilience.Retry(ctx, "store.is_processed", r.cfg, func() error {
		var err error
		done, err = r.next.IsProcessed(ctx, sourceURL, corpusID)
		return err
	})
	return done, err
}

func (r *Retrying) MarkProcessed(ctx context.Context, sourceURL, corpusID string) error {
	return resilience.Retry(ctx, "store.mark_processed", r.cfg, func() error {
		return r.next.MarkProcessed(ctx, sourceURL, corpusID)
	})
}

func (r *Retrying) ClearProcessed(ctx context.Context, sourceURL, corpusID string) error {
	return resilience.Retry(ctx, "store.clear_processed", r.cfg, func() error {
		return r.next.ClearProcessed(ctx, sourceURL, corpusID)
	})
}

func (r *Retrying) GetOrCreateCorpusID(ctx context.Context, targetURLs []string) (string, error) {
	var id string
	err := resilience.Retry(ctx, "store.get_or_create_corpus_id", r.cfg, func() error {
		var err error
		id, err = r.next.GetOrCreateCorpusID(ctx, targetURLs)
		return err
	})
	return id, err
}
