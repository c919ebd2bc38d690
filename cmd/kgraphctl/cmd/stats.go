package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/uforge/kgraph/internal/output"
)

func newStatsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show object, vector, and embedding queue counts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStats(cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func runStats(cmd *cobra.Command, jsonOutput bool) error {
	out := output.New(cmd.OutOrStdout())

	e, err := openEngine()
	if err != nil {
		return err
	}
	defer func() { _ = e.Shutdown(cmd.Context(), 0) }()

	stats, err := e.Stats(cmd.Context())
	if err != nil {
		out.Errorf("stats failed: %v", err)
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	out.Status("", fmt.Sprintf("objects:   %d", stats.ObjectCount))
	out.Status("", fmt.Sprintf("vectors:   %d", stats.VectorCount))
	out.Status("", fmt.Sprintf("pending:   %d", stats.Progress.Pending))
	out.Status("", fmt.Sprintf("completed: %d", stats.Progress.Completed))
	out.Status("", fmt.Sprintf("failed:    %d", stats.Progress.Failed))
	return nil
}
