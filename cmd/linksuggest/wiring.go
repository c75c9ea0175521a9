package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/api"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/memory"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/orchestrator"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/scheduler"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/store"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/sqlite"
)

const pingTimeout = 2 * time.Second

// backend is the configured store stack: the driver, the retry decorator
// and the optional Redis match cache.
type backend struct {
	store   store.Store
	cached  *store.Cached
	checks  map[string]health.Check
	closers []io.Closer
}

func openBackend(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*backend, error) {
	b := &backend{checks: make(map[string]health.Check)}

	var sqlStore *store.SQLStore
	switch cfg.Store.Driver {
	case "sqlite":
		client, err := sqlite.New(cfg.SQLite)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, client)
		sqlStore = store.NewSQLStore(client.DB, store.SQLite)
	case "postgres":
		client, err := postgres.New(cfg.Postgres)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, client)
		sqlStore = store.NewSQLStore(client.DB, store.Postgres)
	default:
		b.store = store.NewMemoryStore()
		b.checks["store"] = health.PingCheck(pingTimeout, false, func(context.Context) error { return nil })
	}
	if sqlStore != nil {
		if err := sqlStore.Migrate(ctx); err != nil {
			b.Close()
			return nil, fmt.Errorf("migrating %s store: %w", cfg.Store.Driver, err)
		}
		b.checks["store"] = health.PingCheck(pingTimeout, false, sqlStore.Ping)
		b.store = store.NewRetrying(sqlStore, resilience.RetryConfig{
			MaxAttempts:  cfg.Retry.MaxAttempts,
			InitialDelay: cfg.Retry.InitialDelay,
			MaxDelay:     cfg.Retry.MaxDelay,
		})
	}

	if cfg.Redis.Enabled {
		client, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, match caching disabled", "error", err)
			b.checks["redis"] = func(context.Context) health.ComponentHealth {
				return health.ComponentHealth{Status: health.StatusDegraded, Message: "not connected"}
			}
		} else {
			b.closers = append(b.closers, client)
			b.cached = store.NewCached(b.store, client, cfg.Redis.CacheTTL, m)
			b.store = b.cached
			b.checks["redis"] = health.PingCheck(pingTimeout, true, client.Ping)
			slog.Info("match cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}
	slog.Info("store ready", "driver", cfg.Store.Driver)
	return b, nil
}

// invalidator returns the match cache as an interface value, or a nil
// interface when no cache is configured.
func (b *backend) invalidator() api.CacheInvalidator {
	if b.cached == nil {
		return nil
	}
	return b.cached
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i].Close(); err != nil {
			slog.Warn("closing backend", "error", err)
		}
	}
}

func newMemoryManager(cfg *config.Config, m *metrics.Metrics) *memory.Manager {
	return memory.NewManager(cfg.Memory.MaxHeapBytes,
		memory.WithMetrics(m),
		memory.WithBackoff(cfg.Memory.Backoff),
	)
}

// newPipeline builds the orchestrator and, unless disabled, its scoring
// pool. The pool is nil when scoring runs inline.
func newPipeline(cfg *config.Config, st store.Store, mem *memory.Manager, m *metrics.Metrics, sinks []orchestrator.Sink) (*orchestrator.Orchestrator, *orchestrator.Pool, error) {
	ocfg, err := orchestrator.ConfigFrom(cfg)
	if err != nil {
		return nil, nil, err
	}
	var pool *orchestrator.Pool
	if !cfg.Pool.Disabled {
		pool, err = orchestrator.NewPool(cfg.Pool.Size, scheduler.WorkerOptions{RestartDelay: cfg.Pool.RestartDelay}, m,
			func(p scheduler.Progress) {
				slog.Debug("task progress", "task_id", p.TaskID, "worker_id", p.WorkerID, "fraction", p.Fraction, "note", p.Note)
			})
		if err != nil {
			return nil, nil, fmt.Errorf("starting worker pool: %w", err)
		}
	}
	o, err := orchestrator.New(ocfg, orchestrator.Options{
		Store:   st,
		Pool:    pool,
		Memory:  mem,
		Metrics: m,
		Sinks:   sinks,
	})
	if err != nil {
		if pool != nil {
			_ = pool.Shutdown(context.Background())
		}
		return nil, nil, err
	}
	return o, pool, nil
}
