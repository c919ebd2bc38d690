package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/uforge/kgraph/internal/output"
)

func newIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Load line-delimited JSON nodes and edges into the graph",
		Long: `Ingest reads the line-delimited JSON collaborator format: one
{"type":"node",...} or {"type":"edge",...} record per line. Edge endpoints
are resolved by name against the nodes created earlier in the same file and
the name index; a name shared by more than one object stops ingestion with
an ambiguous-endpoint error.

Example:
  kgraphctl ingest fellowship.jsonl`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, args[0])
		},
	}
	return cmd
}

func runIngest(cmd *cobra.Command, path string) error {
	out := output.New(cmd.OutOrStdout())

	f, err := os.Open(path)
	if err != nil {
		out.Errorf("open %s: %v", path, err)
		return err
	}
	defer f.Close()

	e, err := openEngine()
	if err != nil {
		return err
	}
	defer func() { _ = e.Shutdown(cmd.Context(), 0) }()

	result, err := e.IngestJSONL(cmd.Context(), f)
	if err != nil {
		out.Errorf("ingest failed: %v", err)
		return err
	}

	out.Successf("ingested %d nodes and %d edges from %s", result.NodesCreated, result.EdgesCreated, path)
	return nil
}
