// Package embedprovider defines the embedding provider capability interface
// (C6) and ships two provider implementations: a deterministic hash-based
// provider for tests and offline demos, and a caching decorator usable over
// any provider.
package embedprovider

import "context"

// Embedder converts text to fixed-dimension vectors. Implementations must
// be safe for concurrent use.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	MaxTokens() int
}
