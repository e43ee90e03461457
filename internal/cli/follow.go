package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tradetape/tradetape/internal/config"
	"github.com/tradetape/tradetape/internal/tap"
)

var (
	followGroup         string
	followFromBeginning bool
)

var followCmd = &cobra.Command{
	Use:   "follow",
	Short: "Tail the Kafka event tap",
	Long: `Consume the event tap topic and print each mirrored event as one JSON
line. Without --group the consumer reads partition 0 directly.`,
	RunE: runFollow,
}

func init() {
	followCmd.Flags().StringVar(&followGroup, "group", "", "Consumer group id (empty reads partition 0 directly)")
	followCmd.Flags().BoolVar(&followFromBeginning, "from-beginning", false, "Start from the oldest retained message")
	rootCmd.AddCommand(followCmd)
}

func runFollow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	applyLogLevel(cfg.Log.Level)

	consumer, err := tap.NewConsumer(cfg.Tap, followGroup, followFromBeginning)
	if err != nil {
		return err
	}
	defer consumer.Close()

	printHeader("👂 tradetape Follow")
	fmt.Printf("Following %s on %s (Ctrl-C to stop)\n\n", cfg.Tap.Topic, strings.Join(cfg.Tap.Brokers, ","))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	enc := json.NewEncoder(cmd.OutOrStdout())
	for {
		ev, err := consumer.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := enc.Encode(ev); err != nil {
			return err
		}
	}
}
