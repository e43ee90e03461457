package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var reindexReset bool

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the vector index from the journal",
	RunE:  runReindex,
}

func init() {
	reindexCmd.Flags().BoolVar(&reindexReset, "reset", false, "Clear the collection before backfilling")
	rootCmd.AddCommand(reindexCmd)
}

func runReindex(cmd *cobra.Command, args []string) error {
	printHeader("🔁 tradetape Reindex")

	ctx := cmd.Context()
	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.close(ctx)

	n, err := rt.svc.Reindex(ctx, reindexReset)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Reindexed %d events into %s\n", n, rt.index.Backend())
	return nil
}
