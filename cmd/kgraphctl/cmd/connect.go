package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/uforge/kgraph"
	"github.com/uforge/kgraph/internal/hybridsearch"
	"github.com/uforge/kgraph/internal/output"
)

func newConnectCmd() *cobra.Command {
	var edgeType string

	cmd := &cobra.Command{
		Use:   "connect <from-name> <to-name>",
		Short: "Connect two existing objects by name",
		Long: `Connect resolves both names to objects via hybrid search and creates a
directed edge between them. A name is resolved only when exactly one object
carries it.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConnect(cmd, args[0], args[1], edgeType)
		},
	}

	cmd.Flags().StringVarP(&edgeType, "type", "t", "", "edge type (required)")
	_ = cmd.MarkFlagRequired("type")

	return cmd
}

func runConnect(cmd *cobra.Command, fromName, toName, edgeType string) error {
	out := output.New(cmd.OutOrStdout())

	e, err := openEngine()
	if err != nil {
		return err
	}
	defer func() { _ = e.Shutdown(cmd.Context(), 0) }()

	from, err := resolveByName(cmd.Context(), e, fromName)
	if err != nil {
		out.Errorf("resolve %q: %v", fromName, err)
		return err
	}
	to, err := resolveByName(cmd.Context(), e, toName)
	if err != nil {
		out.Errorf("resolve %q: %v", toName, err)
		return err
	}

	edgeID, err := e.Connect(cmd.Context(), from, to, edgeType, nil, nil)
	if err != nil {
		out.Errorf("connect failed: %v", err)
		return err
	}

	out.Successf("connected %s -[%s]-> %s (%s)", fromName, edgeType, toName, edgeID)
	return nil
}

func resolveByName(ctx context.Context, e *kgraph.Engine, name string) (uuid.UUID, error) {
	hits, err := e.SearchHybrid(ctx, hybridsearch.Query{Text: name, K: 5})
	if err != nil {
		return uuid.Nil, err
	}
	var matches []hybridsearch.Hit
	for _, h := range hits {
		if strings.EqualFold(h.Name, name) {
			matches = append(matches, h)
		}
	}
	switch len(matches) {
	case 0:
		return uuid.Nil, fmt.Errorf("no object named %q", name)
	case 1:
		return matches[0].ObjectID, nil
	default:
		return uuid.Nil, fmt.Errorf("ambiguous name %q: %d objects match", name, len(matches))
	}
}
