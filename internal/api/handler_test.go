package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/export"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/ingest"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/model"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/orchestrator"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/scheduler"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const matchBody = `{
	"request_id": "r1",
	"sources": [{"url": "https://blog.example/post", "body": "cats make great pets"}],
	"targets": [
		{"url": "https://pets.example/cats", "body": "cats are great pets"},
		{"url": "https://pets.example/dogs", "body": "dogs are loyal animals"}
	]
}`

type stubMatcher struct {
	summary   *model.Summary
	err       error
	cancelled int
	pooled    bool
}

func (s *stubMatcher) Run(context.Context, []model.Document, []model.Document) (*model.Summary, error) {
	return s.summary, s.err
}
func (s *stubMatcher) Cancel() int { return s.cancelled }
func (s *stubMatcher) Stats() (scheduler.Stats, bool) {
	return scheduler.Stats{Workers: 2, Completed: 7}, s.pooled
}
func (s *stubMatcher) ClearCaches() []string { return []string{"preprocessor", "vector-cache"} }

type stubInvalidator struct{ err error }

func (s stubInvalidator) Invalidate(context.Context) error { return s.err }

func newRouter(t *testing.T, m Matcher, inv CacheInvalidator, opts RouterOptions) http.Handler {
	t.Helper()
	return NewRouter(New(m, inv, ingest.Limits{}, 1<<20), health.NewChecker(), opts)
}

func do(h http.Handler, method, path, body string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMatchEndToEnd(t *testing.T) {
	o, err := orchestrator.New(orchestrator.Config{Threshold: 0.02, TopK: 5}, orchestrator.Options{})
	require.NoError(t, err)
	defer o.Close()
	h := newRouter(t, o, nil, RouterOptions{Timeout: 5 * time.Second})

	rec := do(h, http.MethodPost, "/api/v1/match", matchBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))

	var summary model.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	res := summary.Results["https://blog.example/post"]
	require.NotEmpty(t, res.Matches)
	assert.Equal(t, "https://pets.example/cats", res.Matches[0].TargetURL)

	rec = do(h, http.MethodPost, "/api/v1/match", matchBody, "Accept", "text/csv")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), strings.Join(export.Header, ",")))
}

func TestMatchRejectsBadRequests(t *testing.T) {
	h := newRouter(t, &stubMatcher{}, nil, RouterOptions{})

	rec := do(h, http.MethodPost, "/api/v1/match", "{")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(h, http.MethodPost, "/api/v1/match", `{"sources":[],"targets":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "sources must not be empty")

	big := `{"sources":[{"url":"https://a.example","body":"` + strings.Repeat("x", 2<<20) + `"}]}`
	rec = do(h, http.MethodPost, "/api/v1/match", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = do(h, http.MethodGet, "/api/v1/match", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMatchErrorStatus(t *testing.T) {
	h := newRouter(t, &stubMatcher{err: errors.New("boom")}, nil, RouterOptions{})
	rec := do(h, http.MethodPost, "/api/v1/match", matchBody)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	partial := &model.Summary{RunID: "run-1", Results: map[string]model.SourceResult{}, Skipped: 1}
	h = newRouter(t, &stubMatcher{summary: partial, err: context.Canceled}, nil, RouterOptions{})
	rec = do(h, http.MethodPost, "/api/v1/match", matchBody)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"skipped":1`)
}

func TestMatchRateLimited(t *testing.T) {
	m := &stubMatcher{summary: &model.Summary{Results: map[string]model.SourceResult{}}}
	h := newRouter(t, m, nil, RouterOptions{Limiter: middleware.NewLimiter(1, time.Minute)})
	assert.Equal(t, http.StatusOK, do(h, http.MethodPost, "/api/v1/match", matchBody).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(h, http.MethodPost, "/api/v1/match", matchBody).Code)
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/api/v1/pool/stats", "").Code)
}

func TestAdminEndpoints(t *testing.T) {
	m := &stubMatcher{cancelled: 3, pooled: true}
	reg := prometheus.NewRegistry()
	h := newRouter(t, m, stubInvalidator{}, RouterOptions{Metrics: metrics.NewWithRegistry(reg)})

	rec := do(h, http.MethodPost, "/api/v1/tasks/cancel", "")
	assert.JSONEq(t, `{"cancelled":3}`, rec.Body.String())

	rec = do(h, http.MethodGet, "/api/v1/pool/stats", "")
	var stats scheduler.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.Workers)

	rec = do(h, http.MethodPost, "/api/v1/caches/clear", "")
	assert.JSONEq(t, `{"cleared":["preprocessor","vector-cache","match-cache"]}`, rec.Body.String())

	m.pooled = false
	rec = do(h, http.MethodGet, "/api/v1/pool/stats", "")
	assert.JSONEq(t, `{"status":"disabled"}`, rec.Body.String())

	rec = do(h, http.MethodGet, "/health/live", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestClearCachesInvalidationFailure(t *testing.T) {
	h := newRouter(t, &stubMatcher{}, stubInvalidator{err: errors.New("redis down")}, RouterOptions{})
	rec := do(h, http.MethodPost, "/api/v1/caches/clear", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

var _ Matcher = (*orchestrator.Orchestrator)(nil)
