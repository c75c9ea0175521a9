package orchestrator

import (
	"context"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/model"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/scheduler"
	apperrors "github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/metrics"
)

// ScoreRequest is the payload of one scoring task.
type ScoreRequest struct {
	Source model.Document
	Corpus *Corpus
}

// Pool is the worker pool type the orchestrator submits scoring tasks to.
type Pool = scheduler.Pool[ScoreRequest, model.SourceResult]

// ScorerSpec describes the scoring worker. It holds no state, so a restarted
// worker behaves exactly like the one it replaces.
func ScorerSpec(opts scheduler.WorkerOptions) scheduler.WorkerSpec[ScoreRequest, model.SourceResult] {
	return scheduler.WorkerSpec[ScoreRequest, model.SourceResult]{
		Name:    "scorer",
		Entry:   score,
		Options: opts,
	}
}

// NewPool starts a scoring pool. size <= 0 selects scheduler.DefaultSize.
func NewPool(size int, opts scheduler.WorkerOptions, m *metrics.Metrics, onProgress func(scheduler.Progress)) (*Pool, error) {
	return scheduler.New(ScorerSpec(opts), scheduler.Options{
		Size:       size,
		Metrics:    m,
		OnProgress: onProgress,
	})
}

func score(ctx context.Context, task scheduler.Task[ScoreRequest], report scheduler.Reporter) (model.SourceResult, error) {
	req := task.Payload
	if req.Corpus == nil {
		return model.SourceResult{}, apperrors.Dataf("task %s carries no corpus", task.ID)
	}
	res, err := req.Corpus.Match(ctx, req.Source)
	if err != nil {
		return model.SourceResult{}, err
	}
	report.Progress(1, req.Source.URL)
	report.Log(slog.LevelDebug, "source scored", "source_url", req.Source.URL, "matches", len(res.Matches))
	return res, nil
}
