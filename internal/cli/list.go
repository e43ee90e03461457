package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	listUpdates bool
	listLimit   int
	listType    string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List journal events in append order",
	RunE:  runList,
}

func init() {
	listCmd.Flags().BoolVar(&listUpdates, "updates", false, "Include raw outcome shadow records")
	listCmd.Flags().IntVar(&listLimit, "limit", 0, "Show only the newest N events (0 for all)")
	listCmd.Flags().StringVar(&listType, "type", "", "Filter by event_type")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.close(ctx)

	events, err := rt.store.Events(ctx, listUpdates)
	if err != nil {
		return err
	}
	if listType != "" {
		kept := events[:0]
		for _, ev := range events {
			if ev.EventType() == listType {
				kept = append(kept, ev)
			}
		}
		events = kept
	}
	if listLimit > 0 && len(events) > listLimit {
		events = events[len(events)-listLimit:]
	}

	if len(events) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No events.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTS\tTYPE\tTICKER\tP_OUTCOME")
	for _, ev := range events {
		typ := ev.EventType()
		if typ == "" {
			if ev.IsUpdate() {
				typ = "outcome_update"
			} else {
				typ = "-"
			}
		}
		ticker := "-"
		if v, ok := ev.Fields["ticker"].(string); ok && v != "" {
			ticker = v
		}
		outcome := "-"
		if oc := ev.Outcome(); oc != nil {
			if p, ok := oc["p_outcome"]; ok {
				outcome = fmt.Sprint(p)
			} else {
				outcome = "set"
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			ev.ID, ev.TS.UTC().Format("2006-01-02 15:04:05"), typ, ticker, outcome)
	}
	return w.Flush()
}
