package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tradetape/tradetape/internal/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration file",
	Run:   runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) {
	printHeader("🚀 tradetape Init")
	out := cmd.OutOrStdout()

	cfgPath, err := config.ConfigPath()
	if err != nil {
		fmt.Fprintf(out, "Error resolving config path: %v\n", err)
		return
	}

	if _, err := os.Stat(cfgPath); err == nil && !initForce {
		fmt.Fprintf(out, "Config already exists at: %s\n", cfgPath)
		fmt.Fprintln(out, "Use --force (-f) to overwrite.")
		return
	}

	if err := config.Save(config.DefaultConfig()); err != nil {
		fmt.Fprintf(out, "Error saving config: %v\n", err)
		return
	}
	fmt.Fprintf(out, "Config created at: %s\n", cfgPath)

	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "1. Pick a store backend (file or sqlite) and path in config.json.")
	fmt.Fprintln(out, "2. Enable a vector backend (qdrant, redis or chromem) for recall.")
	fmt.Fprintln(out, `3. Append your first decision: tradetape append '{"ticker":"AAPL","decision":"buy","p_up":0.62}'`)
}
