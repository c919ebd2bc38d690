// Package main provides the entry point for the kgraphctl CLI.
package main

import (
	"os"

	"github.com/uforge/kgraph/cmd/kgraphctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
