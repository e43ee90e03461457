// Package cli implements the tradetape command tree.
package cli

import (
	"fmt"
	"log/slog"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/tradetape/tradetape/internal/cli.version=1.2.3"
	version = "0.3.0"
	logo    = "\n" +
		"  _                 _      _\n" +
		" | |_ _ __ __ _  __| | ___| |_ __ _ _ __   ___\n" +
		" | __| '__/ _` |/ _` |/ _ \\ __/ _` | '_ \\ / _ \\\n" +
		" | |_| | | (_| | (_| |  __/ || (_| | |_) |  __/\n" +
		"  \\__|_|  \\__,_|\\__,_|\\___|\\__\\__,_| .__/ \\___|\n" +
		"                                   |_|\n"
)

var rootCmd = &cobra.Command{
	Use:   "tradetape",
	Short: "tradetape - decision journal with similarity recall",
	Long:  color.CyanString(logo) + "\nAppend-only trading decision journal with retrieval-augmented recall.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func printHeader(title string) {
	fmt.Println(color.CyanString(logo))
	if title != "" {
		fmt.Println(title)
		fmt.Println("─────────────────────")
	}
}

func applyLogLevel(level string) {
	switch level {
	case "debug":
		slog.SetLogLoggerLevel(slog.LevelDebug)
	case "warn":
		slog.SetLogLoggerLevel(slog.LevelWarn)
	case "error":
		slog.SetLogLoggerLevel(slog.LevelError)
	default:
		slog.SetLogLoggerLevel(slog.LevelInfo)
	}
}
