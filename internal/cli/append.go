package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

var appendBatch bool

var appendCmd = &cobra.Command{
	Use:   "append [json]",
	Short: "Append a decision event to the journal",
	Long: `Append one decision event given as a JSON object argument or on stdin.
With --batch, stdin is read as JSON Lines and appended under a single
durability barrier.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAppend,
}

func init() {
	appendCmd.Flags().BoolVar(&appendBatch, "batch", false, "Read JSON Lines from stdin and append as one batch")
	rootCmd.AddCommand(appendCmd)
}

func runAppend(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.close(ctx)

	if appendBatch {
		batch, err := readBatch(cmd.InOrStdin())
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return fmt.Errorf("no events on stdin")
		}
		ids, err := rt.svc.RecordBatch(ctx, batch)
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		return nil
	}

	fields, err := readPayload(cmd, args)
	if err != nil {
		return err
	}
	id, err := rt.svc.Record(ctx, fields)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}

// readPayload parses one JSON object from the argument or stdin.
func readPayload(cmd *cobra.Command, args []string) (map[string]any, error) {
	var raw []byte
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		raw = []byte(args[0])
	} else {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, err
		}
		raw = data
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("parse event JSON: %w", err)
	}
	return fields, nil
}

// readBatch parses JSON Lines, skipping blank lines.
func readBatch(r io.Reader) ([]map[string]any, error) {
	var batch []map[string]any
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var fields map[string]any
		if err := json.Unmarshal([]byte(text), &fields); err != nil {
			return nil, fmt.Errorf("parse stdin line %d: %w", line, err)
		}
		batch = append(batch, fields)
	}
	return batch, scanner.Err()
}
