package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/events"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/export"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/ingest"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/orchestrator"
	apperrors "github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

type runFlags struct {
	sources string
	targets string
	out     string
	publish bool
}

func newRunCmd(c *cli) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Match a source CSV against a target CSV",
		Long: `Read two-column (url, body) CSV files, score every source against
the target corpus and write one row per suggested link.

Rows that fail validation are reported on stderr and skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runBatch(ctx, cmd, c, f)
		},
	}
	cmd.Flags().StringVar(&f.sources, "sources", "", "CSV file of source documents")
	cmd.Flags().StringVar(&f.targets, "targets", "", "CSV file of target documents")
	cmd.Flags().StringVarP(&f.out, "out", "o", "-", "output CSV path, - for stdout")
	cmd.Flags().BoolVar(&f.publish, "publish", false, "also publish each result to kafka.topics.matchResults")
	_ = cmd.MarkFlagRequired("sources")
	_ = cmd.MarkFlagRequired("targets")
	return cmd
}

func runBatch(ctx context.Context, cmd *cobra.Command, c *cli, f *runFlags) error {
	cfg := c.cfg
	limits := ingest.LimitsFromConfig(cfg.Ingest)

	sources, err := readDocuments(cmd, f.sources, limits)
	if err != nil {
		return err
	}
	targets, err := readDocuments(cmd, f.targets, limits)
	if err != nil {
		return err
	}
	if len(targets.Documents) == 0 {
		return apperrors.Dataf("no valid target documents in %s", f.targets)
	}

	// A private registry keeps repeated runs in one process from colliding.
	m := metrics.NewWithRegistry(prometheus.NewRegistry())

	b, err := openBackend(ctx, cfg, m)
	if err != nil {
		return err
	}
	defer b.Close()

	var sinks []orchestrator.Sink
	if f.publish {
		if !cfg.Kafka.Enabled {
			return apperrors.Dataf("--publish needs kafka.enabled")
		}
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.MatchResults)
		defer producer.Close()
		sinks = append(sinks, events.NewPublisher(producer))
	}

	mem := newMemoryManager(cfg, m)
	go mem.Monitor(ctx, cfg.Memory.CheckInterval)

	o, pool, err := newPipeline(cfg, b.store, mem, m, sinks)
	if err != nil {
		return err
	}
	defer o.Close()
	if pool != nil {
		defer func() {
			if err := pool.Shutdown(context.Background()); err != nil {
				slog.Warn("pool shutdown", "error", err)
			}
		}()
	}

	summary, runErr := o.Run(ctx, sources.Documents, targets.Documents)
	if summary == nil {
		return runErr
	}
	rows, err := export.WriteSummary(f.out, cmd.OutOrStdout(), summary)
	if err != nil {
		return err
	}
	for _, failure := range summary.Failures {
		fmt.Fprintf(cmd.ErrOrStderr(), "failed: %s: %s\n", failure.SourceURL, failure.Error)
	}
	slog.Info("run finished",
		"run_id", summary.RunID,
		"corpus_id", summary.CorpusID,
		"sources", len(summary.Results),
		"failures", len(summary.Failures),
		"skipped", summary.Skipped,
		"rows", rows,
		"duration", summary.CompletedAt.Sub(summary.StartedAt),
	)
	return runErr
}

func readDocuments(cmd *cobra.Command, path string, limits ingest.Limits) (*ingest.Result, error) {
	res, err := ingest.ReadFile(path, limits)
	if err != nil {
		return nil, err
	}
	for _, d := range res.Diagnostics {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", path, d)
	}
	return res, nil
}
