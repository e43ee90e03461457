package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var outcomeCmd = &cobra.Command{
	Use:   "outcome <id> <json>",
	Short: "Record an outcome update for an event",
	Long: `Append an outcome shadow record for the given event id. The original
event is never rewritten; reads reconcile the latest outcome into it.`,
	Args: cobra.ExactArgs(2),
	RunE: runOutcome,
}

func init() {
	rootCmd.AddCommand(outcomeCmd)
}

func runOutcome(cmd *cobra.Command, args []string) error {
	var outcome map[string]any
	if err := json.Unmarshal([]byte(args[1]), &outcome); err != nil {
		return fmt.Errorf("parse outcome JSON: %w", err)
	}

	ctx := cmd.Context()
	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.close(ctx)

	if err := rt.svc.UpdateOutcome(ctx, args[0], outcome); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Outcome recorded for %s\n", args[0])
	return nil
}
