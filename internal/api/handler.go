// Package api exposes the link-suggestion pipeline over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/events"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/export"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/ingest"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/model"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/scheduler"
	apperrors "github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/logger"
)

// Matcher is the slice of *orchestrator.Orchestrator the handler drives.
type Matcher interface {
	Run(ctx context.Context, sources, targets []model.Document) (*model.Summary, error)
	Cancel() int
	Stats() (scheduler.Stats, bool)
	ClearCaches() []string
}

// CacheInvalidator drops a shared match cache, such as *store.Cached.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

type Handler struct {
	matcher  Matcher
	matches  CacheInvalidator
	limits   ingest.Limits
	maxBytes int64
	logger   *slog.Logger
}

// New creates a Handler. matches may be nil when no shared cache is
// configured.
func New(m Matcher, matches CacheInvalidator, limits ingest.Limits, maxBytes int64) *Handler {
	return &Handler{
		matcher:  m,
		matches:  matches,
		limits:   limits,
		maxBytes: maxBytes,
		logger:   slog.Default().With("component", "api-handler"),
	}
}

// Match runs one batch and returns the summary as JSON, or the flattened
// export rows when the client asks for text/csv.
func (h *Handler) Match(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	if h.maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	}
	var req events.MatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := events.ValidateRequest(req, h.limits); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := h.matcher.Run(ctx, req.Sources, req.Targets)
	if err != nil && summary == nil {
		log.Error("match failed", "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
		return
	}
	if err != nil {
		// Cancelled mid-run: the partial summary is still useful.
		log.Warn("match interrupted", "error", err)
	}

	log.Info("match completed",
		"run_id", summary.RunID,
		"sources", len(req.Sources),
		"targets", len(req.Targets),
		"results", len(summary.Results),
		"failures", len(summary.Failures),
		"latency_ms", time.Since(start).Milliseconds(),
	)

	if r.Header.Get("Accept") == "text/csv" {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("X-Run-ID", summary.RunID)
		w.WriteHeader(http.StatusOK)
		if err := export.WriteCSV(w, export.Rows(summary.Results)); err != nil {
			log.Error("failed to write csv", "error", err)
		}
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) CancelTasks(w http.ResponseWriter, r *http.Request) {
	n := h.matcher.Cancel()
	logger.FromContext(r.Context()).Warn("cancel requested", "tasks", n)
	h.writeJSON(w, http.StatusOK, map[string]int{"cancelled": n})
}

func (h *Handler) PoolStats(w http.ResponseWriter, r *http.Request) {
	stats, ok := h.matcher.Stats()
	if !ok {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) ClearCaches(w http.ResponseWriter, r *http.Request) {
	cleared := h.matcher.ClearCaches()
	if h.matches != nil {
		if err := h.matches.Invalidate(r.Context()); err != nil {
			h.logger.Error("match cache invalidation failed", "error", err)
			h.writeError(w, http.StatusInternalServerError, "match cache invalidation failed")
			return
		}
		cleared = append(cleared, "match-cache")
	}
	h.writeJSON(w, http.StatusOK, map[string][]string{"cleared": cleared})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
