// Package cmd provides the CLI commands for kgraphctl.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/uforge/kgraph/pkg/version"
)

var dbPath string
var configPath string

// NewRootCmd creates the root command for the kgraphctl CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "kgraphctl",
		Short:   "Inspect and drive a local kgraph database",
		Long:    `kgraphctl is a thin operator CLI over the kgraph engine: add objects, connect them, run hybrid search, and check embedding progress against a db_path on disk.`,
		Version: version.Version,
	}

	cmd.SetVersionTemplate("kgraphctl version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&dbPath, "db-path", "", "path to the graph database directory (overrides config db_path)")
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")

	cmd.AddCommand(newAddCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newConnectCmd())
	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
