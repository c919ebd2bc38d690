package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/uforge/kgraph/internal/hybridsearch"
	"github.com/uforge/kgraph/internal/output"
)

func newSearchCmd() *cobra.Command {
	var limit int
	var alpha float64
	var types []string
	var timeoutMs int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run hybrid search over the graph",
		Long: `Search fuses exact name matching with semantic similarity. --alpha weighs
the exact branch (1.0 is exact-only, default 0.5). An alpha of 0 selects the
default 0.5, so a purely semantic ranking cannot be requested.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd, query, limit, alpha, types, timeoutMs, jsonOutput)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum number of results")
	cmd.Flags().Float64Var(&alpha, "alpha", hybridsearch.DefaultAlpha, "exact/semantic fusion weight")
	cmd.Flags().StringSliceVarP(&types, "type", "t", nil, "restrict results to these object types (repeatable)")
	cmd.Flags().IntVar(&timeoutMs, "timeout-ms", 0, "deadline for the semantic branch before degrading to exact-only (0 means no deadline)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output results as JSON")

	return cmd
}

func runSearch(cmd *cobra.Command, query string, limit int, alpha float64, types []string, timeoutMs int, jsonOutput bool) error {
	out := output.New(cmd.OutOrStdout())

	e, err := openEngine()
	if err != nil {
		return err
	}
	defer func() { _ = e.Shutdown(cmd.Context(), 0) }()

	q := hybridsearch.Query{Text: query, K: limit, Alpha: alpha}
	if len(types) > 0 {
		q.Filter = make(map[string]bool, len(types))
		for _, t := range types {
			q.Filter[t] = true
		}
	}
	if timeoutMs > 0 {
		q.Deadline = time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
	}

	hits, err := e.SearchHybrid(cmd.Context(), q)
	if err != nil {
		out.Errorf("search failed: %v", err)
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(hits)
	}

	if len(hits) == 0 {
		out.Status("", "no results")
		return nil
	}
	for i, h := range hits {
		matched := matchedByLabel(h.MatchedBy)
		out.Status("", fmt.Sprintf("%2d. %-24s %-12s score=%.3f (%s)", i+1, h.Name, h.ObjectType, h.Score, matched))
	}
	return nil
}

func matchedByLabel(m hybridsearch.MatchedBy) string {
	switch {
	case m.Exact && m.Semantic:
		return "exact+semantic"
	case m.Exact:
		return "exact"
	case m.Semantic:
		return "semantic"
	default:
		return "unmatched"
	}
}
