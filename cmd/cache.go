package cmd

import (
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Cache management commands",
	Long: `Commands for managing the fingerprint cache.

The cache lives in a local SQLite file by default. Set DATABASE_URL to share
it through PostgreSQL, or MARIADB_DSN to use MariaDB.`,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
}
