package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fixturelab/matchday-crawler/internal/app"
)

// newServeCmd creates the 'serve' subcommand, which runs the ops HTTP server
// and executes queued crawl runs until interrupted.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the ops API and execute queued crawl runs",
		Long: `Starts the HTTP server with run submission, run history, pool and cache
statistics, and Prometheus metrics. Submitted runs queue up and execute one
at a time. SIGINT or SIGTERM drains the server and persists the cache
snapshot before exiting.`,
		RunE: runServeCommand,
	}
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
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

	return a.Serve(ctx)
}
