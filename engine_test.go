package kgraph

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uforge/kgraph/internal/config"
	"github.com/uforge/kgraph/internal/graphstore"
	"github.com/uforge/kgraph/internal/hybridsearch"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DBPath = filepath.Join(t.TempDir(), "db")
	return cfg
}

func openEngine(t *testing.T, cfg *config.Config) *Engine {
	t.Helper()
	e, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = e.Shutdown(context.Background(), time.Second)
	})
	return e
}

func TestOpen_WiresGraphAndSearch(t *testing.T) {
	cfg := testConfig(t)
	e := openEngine(t, cfg)
	assert.NotNil(t, e.graph)
	assert.NotNil(t, e.search)
}

func TestAddObject_GetObject_RoundTrip(t *testing.T) {
	cfg := testConfig(t)
	e := openEngine(t, cfg)
	ctx := context.Background()

	obj := &graphstore.Object{
		Name:        "Fireball",
		ObjectType:  "spell",
		Description: "Fireball is a spell that conjures a roaring ball of fire to burn enemies.",
	}
	id, err := e.AddObject(ctx, obj)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, id)

	got, err := e.GetObject(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Fireball", got.Name)
	assert.Equal(t, "spell", got.ObjectType)
	assert.NotEmpty(t, got.ChunkIDs)
}

func TestDeleteObject_RemovesChunksAndVectors(t *testing.T) {
	cfg := testConfig(t)
	e := openEngine(t, cfg)
	ctx := context.Background()

	obj := &graphstore.Object{
		Name:        "Lightning Bolt",
		ObjectType:  "spell",
		Description: "Lightning Bolt hurls a bolt of electricity that arcs between nearby foes.",
	}
	id, err := e.AddObject(ctx, obj)
	require.NoError(t, err)

	got, err := e.GetObject(ctx, id)
	require.NoError(t, err)
	chunkIDs := append([]uuid.UUID{}, got.ChunkIDs...)
	require.NotEmpty(t, chunkIDs)

	for _, cid := range chunkIDs {
		require.Eventually(t, func() bool {
			return e.vectors.Contains(cid)
		}, 2*time.Second, 10*time.Millisecond)
	}

	require.NoError(t, e.DeleteObject(ctx, id))

	deleted, err := e.GetObject(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, deleted)

	for _, cid := range chunkIDs {
		assert.False(t, e.vectors.Contains(cid))
		_, ok := e.ObjectForChunk(cid)
		assert.False(t, ok)
	}
}

func TestConnectAndNeighbors(t *testing.T) {
	cfg := testConfig(t)
	e := openEngine(t, cfg)
	ctx := context.Background()

	wizard, err := e.AddObject(ctx, &graphstore.Object{Name: "Gandalf", ObjectType: "character", Description: "A wandering wizard who guides the fellowship."})
	require.NoError(t, err)
	staff, err := e.AddObject(ctx, &graphstore.Object{Name: "Staff of Gandalf", ObjectType: "item", Description: "A carved wooden staff that channels arcane power."})
	require.NoError(t, err)

	_, err = e.Connect(ctx, wizard, staff, "wields", nil, nil)
	require.NoError(t, err)

	edges, err := e.Neighbors(ctx, wizard, graphstore.DirectionOut, "")
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, staff, edges[0].To)
	assert.Equal(t, "wields", edges[0].EdgeType)
}

func TestSearchHybrid_FindsObjectByNameAndDescription(t *testing.T) {
	cfg := testConfig(t)
	e := openEngine(t, cfg)
	ctx := context.Background()

	id, err := e.AddObject(ctx, &graphstore.Object{
		Name:        "Fireball",
		ObjectType:  "spell",
		Description: "Fireball conjures a roaring burst of flame that scorches everything nearby.",
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		p := e.Progress()
		return p.Completed+p.Failed > 0
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, e.RebuildNameIndex(ctx))

	hits, err := e.SearchHybrid(ctx, hybridsearch.Query{Text: "fireball", K: 5})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, id, hits[0].ObjectID)
	assert.True(t, hits[0].MatchedBy.Exact)
}

func TestRetryEmbedding_ResubmitsMissingVectors(t *testing.T) {
	cfg := testConfig(t)
	e := openEngine(t, cfg)
	ctx := context.Background()

	id, err := e.AddObject(ctx, &graphstore.Object{
		Name:        "Ice Shard",
		ObjectType:  "spell",
		Description: "Ice Shard launches a jagged spike of frozen water at a single target.",
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		p := e.Progress()
		return p.Completed+p.Failed > 0
	}, 2*time.Second, 10*time.Millisecond)

	n, err := e.RetryEmbedding(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "every chunk already has a vector, nothing to resubmit")
}

func TestStats_ReflectsObjectAndVectorCounts(t *testing.T) {
	cfg := testConfig(t)
	e := openEngine(t, cfg)
	ctx := context.Background()

	_, err := e.AddObject(ctx, &graphstore.Object{Name: "Elara", ObjectType: "character", Description: "Elara is a wandering bard with a silver lute."})
	require.NoError(t, err)

	stats, err := e.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ObjectCount)
}

func TestShutdownAndReopen_PersistsVectorAndNameIndices(t *testing.T) {
	cfg := testConfig(t)
	e, err := Open(cfg)
	require.NoError(t, err)
	ctx := context.Background()

	id, err := e.AddObject(ctx, &graphstore.Object{
		Name:        "Obsidian Blade",
		ObjectType:  "item",
		Description: "Obsidian Blade is a shard-black dagger that never dulls.",
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		p := e.Progress()
		return p.Completed+p.Failed > 0
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, e.RebuildNameIndex(ctx))
	require.NoError(t, e.Shutdown(ctx, 2*time.Second))

	reopened, err := Open(cfg)
	require.NoError(t, err)
	defer func() { _ = reopened.Shutdown(context.Background(), time.Second) }()

	got, err := reopened.GetObject(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Obsidian Blade", got.Name)

	hits, err := reopened.SearchHybrid(ctx, hybridsearch.Query{Text: "obsidian", K: 5})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, id, hits[0].ObjectID)
}

func TestIngestJSONL_ResolvesEndpointsAndConnects(t *testing.T) {
	cfg := testConfig(t)
	e := openEngine(t, cfg)
	ctx := context.Background()

	jsonl := `{"type":"node","name":"Gandalf","nodeType":"character","metadata":["Race: Maia","wizard"]}
{"type":"node","name":"Rivendell","nodeType":"location","metadata":[]}
{"type":"edge","from":"Gandalf","to":"Rivendell","edgeType":"resides_in"}`

	result, err := e.IngestJSONL(ctx, strings.NewReader(jsonl))
	require.NoError(t, err)
	assert.Equal(t, 2, result.NodesCreated)
	assert.Equal(t, 1, result.EdgesCreated)

	stats, err := e.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.ObjectCount)
}

func TestIngestJSONL_AmbiguousEndpointStopsIngestion(t *testing.T) {
	cfg := testConfig(t)
	e := openEngine(t, cfg)
	ctx := context.Background()

	jsonl := `{"type":"node","name":"Shadowfax","nodeType":"character","metadata":[]}
{"type":"node","name":"Shadowfax","nodeType":"location","metadata":[]}
{"type":"edge","from":"Shadowfax","to":"Shadowfax","edgeType":"self_ref"}`

	_, err := e.IngestJSONL(ctx, strings.NewReader(jsonl))
	require.Error(t, err)
	assert.Contains(t, strings.ToUpper(err.Error()), "AMBIGUOUS")
}

func TestWriterLock_RejectsConcurrentOpen(t *testing.T) {
	cfg := testConfig(t)
	e := openEngine(t, cfg)

	_, err := Open(cfg)
	require.Error(t, err)
	_ = e
}
