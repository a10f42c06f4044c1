package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every cached file record and fingerprint",
	Long: `Delete every cached file record and fingerprint.

The next scan recomputes all fingerprints from scratch.

Example:
  photo-dedup cache clear --yes`,
	Args: cobra.NoArgs,
	RunE: runCacheClear,
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)

	cacheClearCmd.Flags().Bool("yes", false, "Skip confirmation prompt")
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	skipConfirm := mustGetBool(cmd, "yes")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	cache, err := openCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer cache.Close()

	stats, err := cache.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to read cache stats: %w", err)
	}
	if stats.Files == 0 && stats.Fingerprints == 0 {
		fmt.Println("Cache is already empty.")
		return nil
	}

	fmt.Printf("Cache: %s (%s)\n", cacheLocation(cfg), cfg.Cache.Backend)
	printer.Printf("Files: %d, fingerprints: %d\n", stats.Files, stats.Fingerprints)

	if !skipConfirm && !confirmAction("\nDelete all cached data? [y/N]: ") {
		fmt.Println("Cancelled.")
		return nil
	}

	if err := cache.ClearAll(ctx); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	successColor.Println("Done! Cache cleared.")
	return nil
}
