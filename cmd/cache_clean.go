package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-dedup/internal/database"
)

var cacheCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove cache entries for files that no longer exist",
	Long: `Remove file records whose paths no longer exist on disk, then remove
fingerprints that no file record references any more.

Examples:
  photo-dedup cache clean
  photo-dedup cache clean --json`,
	Args: cobra.NoArgs,
	RunE: runCacheClean,
}

func init() {
	cacheCmd.AddCommand(cacheCleanCmd)

	cacheCleanCmd.Flags().Bool("json", false, "Output as JSON")
}

// CleanCacheResult represents the result of a cache clean operation
type CleanCacheResult struct {
	Success             bool   `json:"success"`
	Checked             int    `json:"checked"`
	FilesRemoved        int64  `json:"files_removed"`
	FingerprintsRemoved int64  `json:"fingerprints_removed"`
	DurationMs          int64  `json:"duration_ms"`
	DurationHuman       string `json:"duration_human,omitempty"`
}

func runCacheClean(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")
	startTime := time.Now()

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

	if !jsonOutput {
		fmt.Println("Checking cached paths...")
	}
	res, err := database.CleanMissing(ctx, cache, database.FileExists)
	if err != nil {
		return fmt.Errorf("failed to clean cache: %w", err)
	}

	duration := time.Since(startTime)
	result := CleanCacheResult{
		Success:             true,
		Checked:             res.Checked,
		FilesRemoved:        res.FilesRemoved,
		FingerprintsRemoved: res.FingerprintsRemoved,
		DurationMs:          duration.Milliseconds(),
		DurationHuman:       formatDuration(duration),
	}

	if jsonOutput {
		// Remove human-readable duration for JSON output
		result.DurationHuman = ""
		return outputJSON(result)
	}

	successColor.Println("\nClean complete!")
	printer.Printf("  Paths checked:        %d\n", result.Checked)
	printer.Printf("  Files removed:        %d\n", result.FilesRemoved)
	printer.Printf("  Fingerprints removed: %d\n", result.FingerprintsRemoved)
	fmt.Printf("  Duration:             %s\n", result.DurationHuman)
	return nil
}
