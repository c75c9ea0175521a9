package api

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/middleware"
)

// RouterOptions configures the middleware around the routes. Zero values
// disable the corresponding middleware.
type RouterOptions struct {
	Timeout      time.Duration
	Limiter      *middleware.Limiter
	AllowOrigins []string
	Metrics      *metrics.Metrics
}

// NewRouter builds the HTTP handler.
//
// Route table:
//
//	POST /api/v1/match         run a batch (rate limited)
//	POST /api/v1/tasks/cancel  cancel queued and running tasks
//	GET  /api/v1/pool/stats    worker pool counters
//	POST /api/v1/caches/clear  drop term, vector and match caches
//	GET  /health/live          liveness
//	GET  /health/ready         readiness
//
// Middleware chain (outermost first):
//
//	RequestID → Metrics → CORS → Timeout → mux
func NewRouter(h *Handler, checker *health.Checker, opts RouterOptions) http.Handler {
	mux := http.NewServeMux()

	var match http.Handler = http.HandlerFunc(h.Match)
	if opts.Limiter != nil {
		match = middleware.RateLimit(opts.Limiter)(match)
	}
	mux.Handle("POST /api/v1/match", match)
	mux.HandleFunc("POST /api/v1/tasks/cancel", h.CancelTasks)
	mux.HandleFunc("GET /api/v1/pool/stats", h.PoolStats)
	mux.HandleFunc("POST /api/v1/caches/clear", h.ClearCaches)

	if checker != nil {
		mux.HandleFunc("GET /health/live", checker.LiveHandler())
		mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	}

	var chain http.Handler = mux
	if opts.Timeout > 0 {
		chain = middleware.Timeout(opts.Timeout)(chain)
	}
	chain = middleware.CORS(opts.AllowOrigins)(chain)
	if opts.Metrics != nil {
		chain = middleware.Metrics(opts.Metrics)(chain)
	}
	chain = middleware.RequestID(chain)
	return chain
}
