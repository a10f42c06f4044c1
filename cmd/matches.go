package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-dedup/internal/cluster"
	"github.com/kozaktomas/photo-dedup/internal/scan"
)

var matchesCmd = &cobra.Command{
	Use:   "matches",
	Short: "List duplicate groups from the cache",
	Long: `List duplicate groups using only fingerprints already in the cache.

No files are read, so results reflect the library as of the last scan. Run
"photo-dedup cache clean" first to drop files that were deleted since.

Examples:
  photo-dedup matches
  photo-dedup matches --threshold 0 --json`,
	Args: cobra.NoArgs,
	RunE: runMatches,
}

func init() {
	rootCmd.AddCommand(matchesCmd)

	matchesCmd.Flags().Int("threshold", 0, "Maximum differing bits for two images to match (default from config)")
	matchesCmd.Flags().Int("grid-size", 0, "Fingerprint grid size to read from the cache (default from config)")
	matchesCmd.Flags().Bool("json", false, "Output as JSON")
}

func runMatches(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")
	startTime := time.Now()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	settings, err := resolveScanSettings(cmd, cfg)
	if err != nil {
		return err
	}

	ctx := context.Background()
	cache, err := openCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer cache.Close()

	result, err := scan.FromCache(ctx, cache, settings.gridSize, settings.threshold, settings.workers)
	if err != nil {
		return err
	}

	if jsonOutput {
		groups := result.Groups
		if groups == nil {
			groups = []cluster.Group{}
		}
		return outputJSON(ScanReport{
			GridSize:   settings.gridSize,
			Threshold:  settings.threshold,
			Groups:     groups,
			Stats:      result.Stats,
			DurationMs: time.Since(startTime).Milliseconds(),
		})
	}

	if result.Stats.Files == 0 {
		warnColor.Printf("No cached fingerprints at grid size %d. Run \"photo-dedup scan\" first.\n", settings.gridSize)
		return nil
	}
	printer.Printf("Cached images at grid size %d: %d\n\n", settings.gridSize, result.Stats.Files)
	printGroups(result.Groups)
	return nil
}
