package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fixturelab/matchday-crawler/internal/app"
)

// newCrawlCmd creates the 'crawl' subcommand, which runs a single crawl over
// every configured target and exits.
func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Run one crawl over the configured targets and exit",
		Long: `Crawls every configured country/league target once: discovers seasons,
exhausts "load more" pagination, fetches match details through the browser
pool, and writes per-league JSON files to storage. The cache snapshot is
restored before the run and persisted after it.`,
		RunE: runCrawlCommand,
	}
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.CrawlOnce(ctx)
	logger.Info("crawl finished",
		zap.Int("attempted", report.Attempted),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped),
		zap.Int("load_more_clicks", report.LoadMoreClicks),
		zap.Int("cache_hits", report.CacheHits),
	)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
