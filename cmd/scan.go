package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-dedup/internal/cluster"
	"github.com/kozaktomas/photo-dedup/internal/config"
	"github.com/kozaktomas/photo-dedup/internal/database"
	"github.com/kozaktomas/photo-dedup/internal/scan"
	"github.com/kozaktomas/photo-dedup/internal/walker"
)

var scanCmd = &cobra.Command{
	Use:   "scan [paths...]",
	Short: "Scan directories for duplicate images",
	Long: `Scan files and directories for duplicate images.

Every image is reduced to a rotation-invariant fingerprint. Images whose
fingerprints differ in at most --threshold bits are grouped together; groups
are transitive, so a chain of close matches forms one group.

Fingerprints are cached by content digest. Unchanged files (same size and
modification time) are not re-read on later scans.

Examples:
  # Scan the current directory
  photo-dedup scan

  # Scan two libraries with a stricter threshold
  photo-dedup scan ~/Pictures /mnt/backup/photos --threshold 5

  # Ignore the cache entirely
  photo-dedup scan ~/Pictures --no-cache

  # JSON output for scripting
  photo-dedup scan ~/Pictures --json`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().Int("threshold", 0, "Maximum differing bits for two images to match (default from config)")
	scanCmd.Flags().Int("grid-size", 0, "Fingerprint grid size N for an N×N grid (default from config)")
	scanCmd.Flags().Int("workers", 0, "Number of files processed in parallel (default from config)")
	scanCmd.Flags().Bool("no-cache", false, "Do not read or write the fingerprint cache")
	scanCmd.Flags().Bool("rehash", false, "Digest every file even when size and mtime are unchanged")
	scanCmd.Flags().Bool("include-hidden", false, "Descend into hidden directories")
	scanCmd.Flags().Bool("skip-validation", false, "Trust file extensions without checking file signatures")
	scanCmd.Flags().Bool("degrade-cache", false, "Continue without the cache when it fails instead of aborting")
	scanCmd.Flags().Bool("json", false, "Output as JSON")
	scanCmd.Flags().BoolP("quiet", "q", false, "Print duplicate groups only")
}

// ScanReport is the JSON output of the scan and matches commands.
type ScanReport struct {
	GridSize   int             `json:"grid_size"`
	Threshold  int             `json:"threshold"`
	Groups     []cluster.Group `json:"groups"`
	Stats      scan.Stats      `json:"stats"`
	Skipped    []string        `json:"skipped,omitempty"`
	DurationMs int64           `json:"duration_ms"`
}

type scanSettings struct {
	gridSize  int
	threshold int
	workers   int
}

// resolveScanSettings applies command flags over the configuration.
func resolveScanSettings(cmd *cobra.Command, cfg *config.Config) (scanSettings, error) {
	s := scanSettings{
		gridSize:  intFlagOr(cmd, "grid-size", cfg.Scan.GridSize),
		threshold: intFlagOr(cmd, "threshold", cfg.Scan.Threshold),
		workers:   intFlagOr(cmd, "workers", cfg.Scan.Workers),
	}
	if s.workers < 1 {
		return s, fmt.Errorf("%w: workers must be at least 1", config.ErrConfiguration)
	}
	if err := config.ValidateScan(s.gridSize, s.threshold); err != nil {
		return s, err
	}
	return s, nil
}

func runScan(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")
	quiet := mustGetBool(cmd, "quiet")
	noCache := mustGetBool(cmd, "no-cache")

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	settings, err := resolveScanSettings(cmd, cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startTime := time.Now()
	logger := newLogger()

	roots := args
	if len(roots) == 0 {
		roots = []string{"."}
	}
	paths, err := walker.Walk(ctx, roots, walker.Options{
		IncludeHidden:  mustGetBool(cmd, "include-hidden"),
		SkipValidation: mustGetBool(cmd, "skip-validation"),
		IgnorePrefixes: cfg.Scan.IgnorePrefixes,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("failed to collect images: %w", err)
	}

	var cache database.Cache
	if !noCache {
		if err := cfg.Validate(); err != nil {
			return err
		}
		cache, err = openCache(ctx, cfg)
		if err != nil {
			return err
		}
		defer cache.Close()
	}

	if !jsonOutput && !quiet {
		printer.Printf("Found %d images to process\n", len(paths))
		if cache != nil {
			dimColor.Printf("Cache: %s (%s)\n", cacheLocation(cfg), cfg.Cache.Backend)
		}
		fmt.Println()
	}

	opts := []scan.Option{
		scan.WithResolution(settings.gridSize),
		scan.WithThreshold(settings.threshold),
		scan.WithWorkers(settings.workers),
		scan.WithRehash(mustGetBool(cmd, "rehash")),
		scan.WithLogger(logger),
	}
	if mustGetBool(cmd, "degrade-cache") {
		opts = append(opts, scan.WithCachePolicy(scan.CacheDegrade))
	}

	// Create progress bar (only for human output)
	var bar *progressbar.ProgressBar
	if !jsonOutput && !quiet && len(paths) > 0 {
		bar = progressbar.NewOptions(len(paths),
			progressbar.OptionSetDescription("Fingerprinting"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("images"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
		opts = append(opts, scan.WithProgress(func(scan.Progress) {
			bar.Add(1)
		}))
	}

	result, err := scan.New(cache, opts...).Scan(ctx, paths)
	if bar != nil {
		fmt.Println()
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return errors.New("scan interrupted; fingerprints computed so far are cached")
		}
		if errors.Is(err, database.ErrCache) {
			return fmt.Errorf("%w (rerun with --degrade-cache or --no-cache to continue without it)", err)
		}
		return err
	}

	report := ScanReport{
		GridSize:   settings.gridSize,
		Threshold:  settings.threshold,
		Groups:     result.Groups,
		Stats:      result.Stats,
		DurationMs: time.Since(startTime).Milliseconds(),
	}
	for _, f := range result.Failures {
		report.Skipped = append(report.Skipped, f.Error())
	}

	if jsonOutput {
		if report.Groups == nil {
			report.Groups = []cluster.Group{}
		}
		return outputJSON(report)
	}

	printGroups(result.Groups)
	if quiet {
		return nil
	}
	printScanSummary(report, time.Since(startTime))
	return nil
}

// printGroups prints duplicate groups, one path per line.
func printGroups(groups []cluster.Group) {
	if len(groups) == 0 {
		successColor.Println("No duplicates found.")
		return
	}
	for i, g := range groups {
		headerColor.Printf("Group %d (%d files, max distance %d)\n", i+1, len(g.Members), g.MaxDistance)
		for _, m := range g.Members {
			fmt.Printf("  %s\n", m)
		}
		fmt.Println()
	}
}

func printScanSummary(report ScanReport, duration time.Duration) {
	s := report.Stats
	duplicates := 0
	for _, g := range report.Groups {
		duplicates += len(g.Members) - 1
	}

	fmt.Println("Scan complete!")
	printer.Printf("  Images:         %d\n", s.Files)
	printer.Printf("  Groups:         %d (%d redundant files)\n", len(report.Groups), duplicates)
	printer.Printf("  Cache hits:     %d\n", s.CacheHits)
	printer.Printf("  Computed:       %d\n", s.CacheMisses)
	printer.Printf("  Digested:       %d\n", s.Hashed)
	if s.Skipped() > 0 {
		warnColor.Printf("  Skipped:        %s\n", printer.Sprintf("%d (%d undecodable, %d unreadable)", s.Skipped(), s.DecodeFailures, s.IOFailures))
		for _, line := range report.Skipped {
			dimColor.Printf("    %s\n", line)
		}
	}
	if s.Degraded {
		warnColor.Printf("  Cache:          failed %d time(s), results were computed without it\n", s.CacheErrors)
	}
	fmt.Printf("  Duration:       %s\n", formatDuration(duration))
}
