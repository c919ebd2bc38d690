package embedprovider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticProvider_Embed_IsDeterministic(t *testing.T) {
	p := NewStaticProvider()
	v1, err := p.Embed(context.Background(), "Kaelen walked through Rivendell")
	require.NoError(t, err)
	v2, err := p.Embed(context.Background(), "Kaelen walked through Rivendell")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
}

func TestStaticProvider_Embed_DifferentTextsDiffer(t *testing.T) {
	p := NewStaticProvider()
	v1, err := p.Embed(context.Background(), "Kaelen the exiled mage")
	require.NoError(t, err)
	v2, err := p.Embed(context.Background(), "Shadowfax the swift horse")
	require.NoError(t, err)
	assert.NotEqual(t, v1, v2)
}

func TestStaticProvider_Embed_EmptyText_ReturnsZeroVector(t *testing.T) {
	p := NewStaticProvider()
	v, err := p.Embed(context.Background(), "")
	require.NoError(t, err)
	for _, x := range v {
		assert.Zero(t, x)
	}
}

func TestStaticProvider_Dimensions(t *testing.T) {
	p := NewStaticProvider()
	assert.Equal(t, StaticDimensions, p.Dimensions())
}

func TestStaticProvider_EmbedBatch_PreservesOrder(t *testing.T) {
	p := NewStaticProvider()
	texts := []string{"Gandalf", "Galadriel", "Frodo"}
	vecs, err := p.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, 3)

	for i, text := range texts {
		single, err := p.Embed(context.Background(), text)
		require.NoError(t, err)
		assert.Equal(t, single, vecs[i])
	}
}

func TestCachedProvider_Embed_CachesResult(t *testing.T) {
	inner := &countingProvider{Embedder: NewStaticProvider()}
	cached, err := NewCachedProvider(inner, 0)
	require.NoError(t, err)

	_, err = cached.Embed(context.Background(), "Kaelen")
	require.NoError(t, err)
	_, err = cached.Embed(context.Background(), "Kaelen")
	require.NoError(t, err)

	assert.Equal(t, 1, inner.calls)
}

func TestCachedProvider_EmbedBatch_OnlyComputesMisses(t *testing.T) {
	inner := &countingProvider{Embedder: NewStaticProvider()}
	cached, err := NewCachedProvider(inner, 0)
	require.NoError(t, err)

	_, err = cached.Embed(context.Background(), "Gandalf")
	require.NoError(t, err)

	results, err := cached.EmbedBatch(context.Background(), []string{"Gandalf", "Galadriel"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 2, inner.calls) // 1 Embed + 1 batch-of-1 EmbedBatch for the miss
}

type countingProvider struct {
	Embedder
	calls int
}

func (c *countingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	return c.Embedder.Embed(ctx, text)
}

func (c *countingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls++
	return c.Embedder.EmbedBatch(ctx, texts)
}
