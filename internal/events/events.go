// Package events connects the orchestrator to Kafka. Publisher emits one
// MatchResultEvent per finished source; HandleMatchRequest turns a
// MatchRequest message into a batch run.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/ingest"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/model"
	apperrors "github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/logger"
)

// MatchRequest asks for every source to be matched against Targets.
type MatchRequest struct {
	RequestID string           `json:"request_id"`
	Sources   []model.Document `json:"sources"`
	Targets   []model.Document `json:"targets"`
}

// MatchResultEvent is published for each source once its result is final.
type MatchResultEvent struct {
	RunID        string        `json:"run_id"`
	CorpusID     string        `json:"corpus_id"`
	SourceURL    string        `json:"source_url"`
	SourceTopics []string      `json:"source_topics,omitempty"`
	Matches      []model.Match `json:"matches"`
	FromCache    bool          `json:"from_cache"`
	PublishedAt  time.Time     `json:"published_at"`
}

// EventPublisher is satisfied by *kafka.Producer.
type EventPublisher interface {
	Publish(ctx context.Context, events ...kafka.Event) error
}

// Publisher delivers results to Kafka keyed by source URL, so every result
// for one source lands on the same partition.
type Publisher struct {
	producer EventPublisher
	now      func() time.Time
}

func NewPublisher(p EventPublisher) *Publisher {
	return &Publisher{producer: p, now: time.Now}
}

func (p *Publisher) Deliver(ctx context.Context, runID, corpusID string, res model.SourceResult) error {
	return p.producer.Publish(ctx, resultEvent(ctx, p.now(), runID, corpusID, res))
}

func resultEvent(ctx context.Context, now time.Time, runID, corpusID string, res model.SourceResult) kafka.Event {
	headers := map[string]string{"run_id": runID, "corpus_id": corpusID}
	if id := logger.RequestID(ctx); id != "" {
		headers["request_id"] = id
	}
	return kafka.Event{
		Key: res.SourceURL,
		Value: MatchResultEvent{
			RunID:        runID,
			CorpusID:     corpusID,
			SourceURL:    res.SourceURL,
			SourceTopics: res.SourceTopics,
			Matches:      res.Matches,
			FromCache:    res.FromCache,
			PublishedAt:  now.UTC(),
		},
		Headers: headers,
	}
}

// Runner runs one batch; *orchestrator.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, sources, targets []model.Document) (*model.Summary, error)
}

// HandleMatchRequest returns the consumer callback for match requests.
// Malformed or invalid requests are logged and dropped. Run errors are
// returned so the consumer can decide whether to redeliver.
func HandleMatchRequest(runner Runner, limits ingest.Limits) kafka.MessageHandler {
	log := slog.Default().With("component", "match-requests")
	return func(ctx context.Context, key []byte, value []byte) error {
		req, err := kafka.DecodeJSON[MatchRequest](value)
		if err != nil {
			log.Warn("dropping undecodable match request", "key", string(key), "error", err)
			return nil
		}
		if req.RequestID != "" {
			ctx = logger.WithRequestID(ctx, req.RequestID)
		}
		if err := ValidateRequest(req, limits); err != nil {
			logger.FromContext(ctx).Warn("dropping invalid match request", "error", err)
			return nil
		}
		summary, err := runner.Run(ctx, req.Sources, req.Targets)
		if err != nil {
			if apperrors.IsData(err) {
				logger.FromContext(ctx).Warn("match request rejected", "error", err)
				return nil
			}
			return fmt.Errorf("running match request: %w", err)
		}
		logger.FromContext(ctx).Info("match request completed",
			"run_id", summary.RunID,
			"results", len(summary.Results),
			"failures", len(summary.Failures),
		)
		return nil
	}
}

// ValidateRequest checks that both document sets are non-empty and every
// document passes ingest validation. The returned error wraps ErrData.
func ValidateRequest(req MatchRequest, limits ingest.Limits) error {
	if len(req.Sources) == 0 {
		return apperrors.Dataf("sources must not be empty")
	}
	if len(req.Targets) == 0 {
		return apperrors.Dataf("targets must not be empty")
	}
	var errs []error
	check := func(kind string, docs []model.Document) {
		for i, doc := range docs {
			if err := ingest.Validate(doc, limits); err != nil {
				errs = append(errs, fmt.Errorf("%s[%d]: %w", kind, i, err))
			}
		}
	}
	check("sources", req.Sources)
	check("targets", req.Targets)
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", apperrors.ErrData, errors.Join(errs...))
	}
	return nil
}
