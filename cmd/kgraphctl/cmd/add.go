package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/uforge/kgraph/internal/graphstore"
	"github.com/uforge/kgraph/internal/ingest"
	"github.com/uforge/kgraph/internal/output"
)

func newAddCmd() *cobra.Command {
	var objectType string
	var description string
	var tags []string
	var metadata []string

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add an object to the graph",
		Long: `Add creates a new node object, chunks its description, and enqueues the
chunks for embedding.

Examples:
  kgraphctl add "Fireball" --type spell --description "A roaring burst of flame."
  kgraphctl add "Gandalf" --type character --tag wizard --meta "Race: Maia"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(cmd, args[0], objectType, description, tags, metadata)
		},
	}

	cmd.Flags().StringVarP(&objectType, "type", "t", "", "object type (required)")
	cmd.Flags().StringVarP(&description, "description", "d", "", "free-text description, chunked for embedding")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "a tag (repeatable)")
	cmd.Flags().StringSliceVar(&metadata, "meta", nil, "a \"Key: Value\" property (repeatable)")
	_ = cmd.MarkFlagRequired("type")

	return cmd
}

func runAdd(cmd *cobra.Command, name, objectType, description string, tags, metadata []string) error {
	out := output.New(cmd.OutOrStdout())

	e, err := openEngine()
	if err != nil {
		return err
	}
	defer func() { _ = e.Shutdown(cmd.Context(), 0) }()

	properties, metaTags := ingest.SplitMetadata(metadata)
	allTags := append(append([]string{}, tags...), metaTags...)

	obj := &graphstore.Object{
		Name:        name,
		ObjectType:  objectType,
		Description: description,
		Tags:        allTags,
		Properties:  properties,
	}

	id, err := e.AddObject(cmd.Context(), obj)
	if err != nil {
		out.Errorf("add failed: %v", err)
		return err
	}

	out.Successf("added %s %q as %s", objectType, name, id)
	if len(allTags) > 0 {
		out.Status("", fmt.Sprintf("tags: %s", strings.Join(allTags, ", ")))
	}
	return nil
}
