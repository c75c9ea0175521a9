package main

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/logger"
	"github.com/spf13/cobra"
)

// cli holds the state shared by every subcommand once the persistent
// pre-run has loaded the configuration.
type cli struct {
	configPath string
	logLevel   string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "linksuggest",
		Short: "Suggest internal links between documents",
		Long: `linksuggest scores source documents against a target corpus with
TF-IDF cosine similarity and suggests the best matching links.

Examples:
  linksuggest run --sources posts.csv --targets pages.csv --out links.csv
  linksuggest serve --config configs/production.yaml`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(c.configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if c.logLevel != "" {
				cfg.Logging.Level = c.logLevel
			}
			logger.SetupWriter(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
			c.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "path to YAML config file")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")

	root.AddCommand(newRunCmd(c), newServeCmd(c), newLoadTestCmd())
	return root
}
