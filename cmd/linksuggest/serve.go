package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/api"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/events"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/ingest"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/orchestrator"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/middleware"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the Kafka match-request consumer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, c)
		},
	}
}

func serve(ctx context.Context, c *cli) error {
	cfg := c.cfg
	slog.Info("starting link suggestion service", "port", cfg.Server.Port, "store", cfg.Store.Driver)

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, nil)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			_ = shutdownMetrics(shutdownCtx)
		}()
	}

	b, err := openBackend(ctx, cfg, m)
	if err != nil {
		return err
	}
	defer b.Close()

	checker := health.NewChecker()
	for name, check := range b.checks {
		checker.Register(name, check)
	}

	var sinks []orchestrator.Sink
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.MatchResults)
		defer producer.Close()
		batcher := events.NewBatchPublisher(producer, cfg.Kafka.BatchSize, cfg.Kafka.FlushInterval)
		publishCtx, stopPublishing := context.WithCancel(context.Background())
		batcher.Start(publishCtx)
		defer func() {
			stopPublishing()
			<-batcher.Done()
		}()
		sinks = append(sinks, batcher)
		checker.Register("kafka", health.PingCheck(pingTimeout, false, func(ctx context.Context) error {
			return kafka.Ping(ctx, cfg.Kafka.Brokers)
		}))
		slog.Info("result publisher enabled", "topic", cfg.Kafka.Topics.MatchResults)
	}

	mem := newMemoryManager(cfg, m)
	o, pool, err := newPipeline(cfg, b.store, mem, m, sinks)
	if err != nil {
		return err
	}
	defer o.Close()
	if pool != nil {
		checker.Register("worker_pool", func(context.Context) health.ComponentHealth {
			stats := pool.Stats()
			if stats.Workers-stats.Restarting > 0 {
				return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d workers, %d queued", stats.Workers, stats.Queued)}
			}
			return health.ComponentHealth{Status: health.StatusDown, Message: "no live workers"}
		})
	}

	limits := ingest.LimitsFromConfig(cfg.Ingest)
	opts := api.RouterOptions{
		Timeout:      cfg.Server.RequestTimeout,
		AllowOrigins: cfg.Server.AllowOrigins,
		Metrics:      m,
	}
	if cfg.Server.MatchRateLimit > 0 {
		opts.Limiter = middleware.NewLimiter(cfg.Server.MatchRateLimit, time.Minute)
	}
	handler := api.NewRouter(api.New(o, b.invalidator(), limits, cfg.Server.MaxRequestBytes), checker, opts)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		mem.Monitor(gctx, cfg.Memory.CheckInterval)
		return nil
	})
	if opts.Limiter != nil {
		g.Go(func() error {
			opts.Limiter.Sweep(gctx, 5*time.Minute)
			return nil
		})
	}
	if cfg.Kafka.Enabled {
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.MatchRequests, events.HandleMatchRequest(o, limits))
		defer consumer.Close()
		g.Go(func() error { return consumer.Start(gctx) })
		slog.Info("match-request consumer started", "topic", cfg.Kafka.Topics.MatchRequests)
	}
	g.Go(func() error {
		slog.Info("link suggestion service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		if pool != nil {
			if err := pool.Drain(shutdownCtx); err != nil {
				slog.Warn("worker pool drain incomplete", "error", err)
			}
		}
		return nil
	})

	err = g.Wait()
	slog.Info("link suggestion service stopped")
	return err
}
