package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var advisePModel float64

var adviseCmd = &cobra.Command{
	Use:   "advise [json]",
	Short: "Blend the model probability with similar-event outcomes",
	Long: `Run the full recall loop: embed the context, fetch the nearest recorded
events, average their outcomes into a prior and blend it with --p-model.
The blended decision is appended to the journal as a new event.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAdvise,
}

func init() {
	adviseCmd.Flags().Float64Var(&advisePModel, "p-model", -1, "Model probability to blend (required, 0..1)")
	rootCmd.AddCommand(adviseCmd)
}

func runAdvise(cmd *cobra.Command, args []string) error {
	if advisePModel < 0 || advisePModel > 1 {
		return fmt.Errorf("--p-model is required and must be in [0,1]")
	}
	fields, err := readPayload(cmd, args)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.close(ctx)

	advice, err := rt.svc.Advise(ctx, fields, advisePModel)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Event:   %s\n", advice.EventID)
	fmt.Fprintf(out, "p_model: %.4f\n", advice.PModel)
	if advice.PPrior != nil {
		fmt.Fprintf(out, "p_prior: %.4f (%d neighbors)\n", *advice.PPrior, len(advice.Neighbors))
	} else {
		fmt.Fprintln(out, "p_prior: none (no scored neighbors)")
	}
	fmt.Fprintf(out, "p_blend: %.4f\n", advice.PBlend)
	return nil
}
