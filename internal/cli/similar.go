package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	similarK      int
	similarFilter []string
)

var similarCmd = &cobra.Command{
	Use:   "similar [json]",
	Short: "Find events similar to a context payload",
	Long: `Embed the given context payload and query the vector backend for the
nearest recorded events. Outcomes shown are reconciled from the journal.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSimilar,
}

func init() {
	similarCmd.Flags().IntVarP(&similarK, "neighbors", "k", 0, "Number of neighbors (0 for the configured default)")
	similarCmd.Flags().StringArrayVar(&similarFilter, "filter", nil, "Metadata equality filter, key=value (repeatable)")
	rootCmd.AddCommand(similarCmd)
}

func runSimilar(cmd *cobra.Command, args []string) error {
	fields, err := readPayload(cmd, args)
	if err != nil {
		return err
	}
	filter, err := parseFilter(similarFilter)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.close(ctx)

	matches := rt.svc.Matches(ctx, fields, similarK, filter)
	if len(matches) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No neighbors found.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSCORE\tTICKER\tP_OUTCOME")
	for _, m := range matches {
		ticker := "-"
		if v, ok := m.Result.Metadata["ticker"]; ok {
			ticker = fmt.Sprint(v)
		}
		outcome := "-"
		if m.POutcome != nil {
			outcome = fmt.Sprintf("%.4f", *m.POutcome)
		}
		fmt.Fprintf(w, "%s\t%.4f\t%s\t%s\n", m.Result.ID, m.Result.Score, ticker, outcome)
	}
	return w.Flush()
}

func parseFilter(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	filter := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("bad filter %q (want key=value)", pair)
		}
		filter[key] = value
	}
	return filter, nil
}
