package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fixturelab/matchday-crawler/internal/app"
)

// newCacheCmd creates the 'cache' subcommand group for moving the match
// cache snapshot in and out of blob storage.
func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Export or import the match cache snapshot",
	}
	cmd.AddCommand(newCacheExportCmd())
	cmd.AddCommand(newCacheImportCmd())
	return cmd
}

func newCacheExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the stored cache snapshot to a file or stdout",
		RunE:  runCacheExportCommand,
	}
	cmd.Flags().StringP("out", "o", "", "destination file (default stdout)")
	return cmd
}

func newCacheImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Validate a snapshot file and store it as the cache snapshot",
		Long: `Reads a snapshot file, drops entries whose checksum no longer matches
their data or whose TTL has lapsed, and stores the surviving entries as the
new cache snapshot. The next crawl or serve start restores from it.`,
		Args: cobra.ExactArgs(1),
		RunE: runCacheImportCommand,
	}
}

func runCacheExportCommand(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	blobs, closeBlobs, err := app.NewBlobStore(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer closeStore(closeBlobs, logger)

	blob, err := app.LoadSnapshot(ctx, blobs, cfg.Storage.SnapshotKey)
	if err != nil {
		return err
	}
	payload, err := json.MarshalIndent(blob, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	out, _ := cmd.Flags().GetString("out")
	if out == "" || out == "-" {
		fmt.Fprintln(cmd.OutOrStdout(), string(payload))
	} else if err := os.WriteFile(out, append(payload, '\n'), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}

	logger.Info("cache snapshot exported",
		zap.Int("entries", len(blob.Entries)),
		zap.Time("exported_at", blob.ExportedAt),
	)
	return nil
}

func runCacheImportCommand(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}
	var blob app.Snapshot
	if err := json.Unmarshal(data, &blob); err != nil {
		return fmt.Errorf("decode %s: %w", args[0], err)
	}

	canonical, imported, err := app.ValidateSnapshot(blob, cfg.Cache.TTL)
	if err != nil {
		return err
	}
	if imported == 0 && len(blob.Entries) > 0 {
		return fmt.Errorf("no valid entries in %s, keeping the stored snapshot", args[0])
	}

	blobs, closeBlobs, err := app.NewBlobStore(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer closeStore(closeBlobs, logger)

	uri, err := app.SaveSnapshot(ctx, blobs, cfg.Storage.SnapshotKey, canonical)
	if err != nil {
		return err
	}
	logger.Info("cache snapshot imported",
		zap.Int("imported", imported),
		zap.Int("dropped", len(blob.Entries)-imported),
		zap.String("uri", uri),
	)
	return nil
}

func closeStore(closeFn func() error, logger *zap.Logger) {
	if closeFn == nil {
		return
	}
	if err := closeFn(); err != nil {
		logger.Warn("blob store close failed", zap.Error(err))
	}
}
