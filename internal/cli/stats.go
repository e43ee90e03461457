package cli

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show journal metrics and backend identity",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	printHeader("📈 tradetape Stats")

	ctx := cmd.Context()
	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.close(ctx)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Store backend:\t%s\n", rt.cfg.Store.Backend)
	fmt.Fprintf(w, "Store path:\t%s\n", rt.cfg.Store.Path)
	fmt.Fprintf(w, "Vector backend:\t%s\n", rt.index.Backend())
	fmt.Fprintf(w, "Embedding:\t%s (dim %d)\n", rt.builder.Method(), rt.builder.Dimension())
	fmt.Fprintf(w, "Tap enabled:\t%v\n", rt.pub.Enabled())
	fmt.Fprintf(w, "Telemetry:\t%v\n", rt.tel.Enabled())
	if err := w.Flush(); err != nil {
		return err
	}

	metrics := rt.store.Metrics()
	keys := make([]string, 0, len(metrics))
	for k := range metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintln(cmd.OutOrStdout(), "\nJournal metrics:")
	mw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	for _, k := range keys {
		fmt.Fprintf(mw, "  %s:\t%v\n", k, metrics[k])
	}
	return mw.Flush()
}
