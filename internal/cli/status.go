package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tradetape/tradetape/internal/config"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("🏷️ tradetape Version")
		fmt.Fprintf(cmd.OutOrStdout(), "Version: %s\n", version)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show environment and config summary",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("📊 tradetape Status")
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Version: %s\n", version)

		cfgPath, _ := config.ConfigPath()
		if _, err := os.Stat(cfgPath); err == nil {
			fmt.Fprintln(out, "Config:  ✓ Found ("+cfgPath+")")
		} else {
			fmt.Fprintln(out, "Config:  ✗ Not found (run 'tradetape init' first)")
		}

		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(out, "Config error: %v\n", err)
			return
		}

		fmt.Fprintf(out, "Store:   %s (%s)\n", cfg.Store.Backend, cfg.Store.Path)
		if _, err := os.Stat(cfg.Store.Path); err == nil {
			fmt.Fprintln(out, "Journal: ✓ Present")
		} else {
			fmt.Fprintln(out, "Journal: ✗ Empty (nothing appended yet)")
		}
		fmt.Fprintf(out, "Vector:  %s\n", cfg.Vector.Backend)
		fmt.Fprintf(out, "Embedding: %s (%s, dim %d)\n",
			cfg.Embedding.Provider, cfg.Embedding.Model, cfg.Embedding.Dimension)
		if cfg.Tap.Enabled {
			fmt.Fprintf(out, "Tap:     ✓ Enabled (%s)\n", cfg.Tap.Topic)
		} else {
			fmt.Fprintln(out, "Tap:     ✗ Disabled")
		}
		if cfg.Telemetry.Endpoint != "" {
			fmt.Fprintf(out, "Telemetry: ✓ %s\n", cfg.Telemetry.Endpoint)
		} else {
			fmt.Fprintln(out, "Telemetry: ✗ Disabled")
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
}
