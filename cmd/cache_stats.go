package cmd

import (
	"context"
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-dedup/internal/config"
	"github.com/kozaktomas/photo-dedup/internal/database"
)

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache statistics",
	Args:  cobra.NoArgs,
	RunE:  runCacheStats,
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)

	cacheStatsCmd.Flags().Bool("json", false, "Output as JSON")
}

// CacheStatsResult is the JSON output of cache stats
type CacheStatsResult struct {
	Backend    string `json:"backend"`
	Location   string `json:"location"`
	SizeOnDisk int64  `json:"size_on_disk,omitempty"`
	*database.Stats
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

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

	result := CacheStatsResult{
		Backend:  cfg.Cache.Backend,
		Location: cacheLocation(cfg),
		Stats:    stats,
	}
	if cfg.Cache.Backend == config.BackendSQLite {
		if info, err := os.Stat(cfg.Cache.Path); err == nil {
			result.SizeOnDisk = info.Size()
		}
	}

	if jsonOutput {
		return outputJSON(result)
	}

	headerColor.Println("Fingerprint cache")
	fmt.Printf("  Backend:          %s\n", result.Backend)
	fmt.Printf("  Location:         %s\n", result.Location)
	if result.SizeOnDisk > 0 {
		fmt.Printf("  Size on disk:     %s\n", formatBytes(result.SizeOnDisk))
	}
	printer.Printf("  Files:            %d\n", stats.Files)
	printer.Printf("  Unique contents:  %d\n", stats.UniqueContents)
	printer.Printf("  Fingerprints:     %d\n", stats.Fingerprints)
	if stats.DedupRatio > 0 {
		fmt.Printf("  Files per content: %.2f\n", stats.DedupRatio)
	}

	resolutions := make([]int, 0, len(stats.ByResolution))
	for r := range stats.ByResolution {
		resolutions = append(resolutions, r)
	}
	slices.Sort(resolutions)
	for _, r := range resolutions {
		printer.Printf("    %3d×%-3d         %d\n", r, r, stats.ByResolution[r])
	}
	return nil
}
