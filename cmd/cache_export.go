package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-dedup/internal/database"
)

var cacheExportCmd = &cobra.Command{
	Use:   "export FILE",
	Short: "Export the cache to a compressed snapshot",
	Long: `Export every file record and fingerprint to a zstd-compressed JSON file.

Snapshots can be imported into any backend, for example to move a local
SQLite cache into a shared PostgreSQL database.

Example:
  photo-dedup cache export cache` + database.SnapshotExtension,
	Args: cobra.ExactArgs(1),
	RunE: runCacheExport,
}

var cacheImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import a snapshot into the cache",
	Long: `Import a snapshot written by "cache export".

Existing fingerprints are kept; file records in the snapshot replace the
records for the same paths.

Example:
  DATABASE_URL=postgres://... photo-dedup cache import cache` + database.SnapshotExtension,
	Args: cobra.ExactArgs(1),
	RunE: runCacheImport,
}

func init() {
	cacheCmd.AddCommand(cacheExportCmd)
	cacheCmd.AddCommand(cacheImportCmd)
}

func runCacheExport(cmd *cobra.Command, args []string) error {
	path := args[0]
	if !strings.HasSuffix(path, database.SnapshotExtension) {
		warnColor.Printf("Warning: %s does not end in %s\n", path, database.SnapshotExtension)
	}

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

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}

	snap, err := database.Export(ctx, cache, f)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("closing %s: %w", path, closeErr)
	}
	if err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("failed to export cache: %w", err)
	}

	successColor.Printf("Exported %s to %s\n",
		printer.Sprintf("%d files and %d fingerprints", len(snap.Files), len(snap.Fingerprints)), path)
	return nil
}

func runCacheImport(cmd *cobra.Command, args []string) error {
	path := args[0]

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

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	res, err := database.Import(ctx, cache, f)
	if err != nil {
		return fmt.Errorf("failed to import snapshot: %w", err)
	}

	successColor.Printf("Imported %s into %s\n",
		printer.Sprintf("%d files and %d fingerprints", res.Files, res.Fingerprints), cacheLocation(cfg))
	return nil
}
