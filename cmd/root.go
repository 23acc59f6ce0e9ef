// Package cmd defines the CLI commands for the matchday executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fixturelab/matchday-crawler/internal/config"
	"github.com/fixturelab/matchday-crawler/internal/logging"
)

var cfgFile string

// newRootCmd creates the root command and wires in the subcommands.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "matchday",
		Short: "Football match crawler with a pooled headless browser",
		Long: `matchday crawls configured country/league targets season by season,
walking match lists hidden behind "load more" pagination and fetching each
match detail page through a bounded pool of headless browser tabs. Results
land as per-league JSON files in blob storage; a checksum-validated cache
lets re-runs skip matches that are already final.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML; env overrides use the MATCHDAY_ prefix)")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newCacheCmd())

	return cmd
}

// setup loads configuration and builds the logger every subcommand starts
// from.
func setup() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
