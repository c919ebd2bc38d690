package cmd

import (
	"fmt"
	"os"

	"github.com/uforge/kgraph"
	"github.com/uforge/kgraph/internal/config"
)

// openEngine loads configuration from configPath (if set), with the
// --db-path flag taking precedence via the same KGRAPH_DB_PATH override
// config.Load already honors, then opens the engine.
func openEngine() (*kgraph.Engine, error) {
	if dbPath != "" {
		if err := os.Setenv("KGRAPH_DB_PATH", dbPath); err != nil {
			return nil, fmt.Errorf("set db-path: %w", err)
		}
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return kgraph.Open(cfg)
}
