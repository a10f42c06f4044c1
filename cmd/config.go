package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-dedup/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration after applying the config file and environment.

The config file is read from $PHOTO_DEDUP_CONFIG, or config.yaml in the
photo-dedup directory under the user config directory.`,
	Args: cobra.NoArgs,
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)

	configCmd.Flags().Bool("json", false, "Output as JSON")
}

// ConfigResult is the JSON output of the config command
type ConfigResult struct {
	Source         string   `json:"source,omitempty"`
	GridSize       int      `json:"grid_size"`
	Threshold      int      `json:"threshold"`
	Workers        int      `json:"workers"`
	IgnorePrefixes []string `json:"ignore_prefixes,omitempty"`
	Backend        string   `json:"backend"`
	Location       string   `json:"location"`
	WebAddress     string   `json:"web_address"`
	Valid          bool     `json:"valid"`
	Error          string   `json:"error,omitempty"`
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	result := ConfigResult{
		Source:         cfg.Source,
		GridSize:       cfg.Scan.GridSize,
		Threshold:      cfg.Scan.Threshold,
		Workers:        cfg.Scan.Workers,
		IgnorePrefixes: cfg.Scan.IgnorePrefixes,
		Backend:        cfg.Cache.Backend,
		Location:       cacheLocation(cfg),
		WebAddress:     fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port),
		Valid:          true,
	}
	if err := cfg.Validate(); err != nil {
		result.Valid = false
		result.Error = err.Error()
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(result)
	}

	source := result.Source
	if source == "" {
		source = "(none, using defaults)"
	}
	headerColor.Println("Configuration")
	fmt.Printf("  Config file:     %s\n", source)
	fmt.Printf("  Grid size:       %d\n", result.GridSize)
	fmt.Printf("  Threshold:       %d\n", result.Threshold)
	fmt.Printf("  Workers:         %d\n", result.Workers)
	if len(result.IgnorePrefixes) > 0 {
		fmt.Printf("  Ignore prefixes: %s\n", strings.Join(result.IgnorePrefixes, ", "))
	}
	fmt.Printf("  Cache backend:   %s\n", result.Backend)
	fmt.Printf("  Cache location:  %s\n", result.Location)
	fmt.Printf("  Web address:     %s\n", result.WebAddress)
	if !result.Valid {
		warnColor.Printf("\nInvalid configuration: %s\n", result.Error)
	}
	return nil
}
