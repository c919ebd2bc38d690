package embedprovider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds how many distinct texts CachedProvider keeps
// embeddings for at once.
const DefaultCacheSize = 1000

// CachedProvider memoizes embeddings by text content, avoiding repeat work
// when the same description or chunk text is resubmitted (e.g. retried
// after a queue failure).
type CachedProvider struct {
	inner Embedder
	cache *lru.Cache[string, []float32]
}

// NewCachedProvider wraps inner with an LRU cache of the given size
// (DefaultCacheSize if size <= 0).
func NewCachedProvider(inner Embedder, size int) (*CachedProvider, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &CachedProvider{inner: inner, cache: cache}, nil
}

func (c *CachedProvider) cacheKey(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

func (c *CachedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)
	if v, ok := c.cache.Get(key); ok {
		return v, nil
	}
	v, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, v)
	return v, nil
}

func (c *CachedProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	for i, t := range texts {
		if v, ok := c.cache.Get(c.cacheKey(t)); ok {
			results[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}

	if len(missTexts) > 0 {
		computed, err := c.inner.EmbedBatch(ctx, missTexts)
		if err != nil {
			return nil, err
		}
		for j, idx := range missIdx {
			results[idx] = computed[j]
			c.cache.Add(c.cacheKey(missTexts[j]), computed[j])
		}
	}
	return results, nil
}

func (c *CachedProvider) Dimensions() int { return c.inner.Dimensions() }
func (c *CachedProvider) MaxTokens() int  { return c.inner.MaxTokens() }

// Inner returns the wrapped provider, mostly useful for tests.
func (c *CachedProvider) Inner() Embedder { return c.inner }
