// Package kgraph is the local-first knowledge-graph engine: a single
// entry point composing the graph store, schema registry, name and vector
// indices, the embedding queue, and hybrid search into the API an external
// collaborator (UI, CLI, RPC layer) consumes.
package kgraph

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/uforge/kgraph/internal/chunker"
	"github.com/uforge/kgraph/internal/config"
	"github.com/uforge/kgraph/internal/embedprovider"
	"github.com/uforge/kgraph/internal/embedqueue"
	kgerrors "github.com/uforge/kgraph/internal/errors"
	"github.com/uforge/kgraph/internal/graphstore"
	"github.com/uforge/kgraph/internal/hybridsearch"
	"github.com/uforge/kgraph/internal/ingest"
	"github.com/uforge/kgraph/internal/kvstore"
	"github.com/uforge/kgraph/internal/nameindex"
	"github.com/uforge/kgraph/internal/recordcodec"
	"github.com/uforge/kgraph/internal/schema"
	"github.com/uforge/kgraph/internal/vectorindex"
)

// DefaultSchemaName is the schema every object is validated against unless
// the caller registers and activates a different one under the same name.
const DefaultSchemaName = "default"

var _ ingest.EndpointResolver = (*Engine)(nil)

// Engine is the graph facade. Create one with Open and release it with
// Shutdown.
type Engine struct {
	cfg *config.Config

	writerLock *writerLock

	kv       *kvstore.Store
	graph    *graphstore.Store
	registry *schema.Registry
	provider embedprovider.Embedder
	queue    *embedqueue.Queue
	vectors  *vectorindex.Index
	search   *hybridsearch.Engine

	namesMu sync.RWMutex
	names   *nameindex.Index

	chunkOwnerMu sync.RWMutex
	chunkOwner   map[uuid.UUID]uuid.UUID // chunk id -> object id, for hybrid search hydration
}

// Open creates or reopens an engine rooted at cfg.DBPath, registering the
// default schema and any YAML schemas under cfg.SchemaDir, and loading the
// FST name index and the HNSW vector index. Schemas registered in an earlier
// session are not read back from the schemas column family.
func Open(cfg *config.Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	wl, err := acquireWriterLock(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	kv, err := kvstore.Open(cfg.DBPath)
	if err != nil {
		wl.Unlock()
		return nil, err
	}

	e := &Engine{
		cfg:        cfg,
		writerLock: wl,
		kv:         kv,
		chunkOwner: make(map[uuid.UUID]uuid.UUID),
	}

	e.registry = schema.NewRegistry(e.persistSchema)
	e.registry.SetObjectTypeResolver(e.resolveObjectType)
	if err := e.registry.RegisterSchema(&schema.Definition{Name: DefaultSchemaName, Version: 1}); err != nil {
		e.closeOnOpenFailure()
		return nil, err
	}
	if cfg.SchemaDir != "" {
		if err := e.registry.LoadDir(cfg.SchemaDir); err != nil {
			e.closeOnOpenFailure()
			return nil, err
		}
	}

	e.graph = graphstore.New(kv, e.registry.BoundTo(DefaultSchemaName))

	inner := embedprovider.NewStaticProvider()
	cached, err := embedprovider.NewCachedProvider(inner, 0)
	if err != nil {
		e.closeOnOpenFailure()
		return nil, err
	}
	e.provider = cached

	vecCfg := vectorindex.DefaultConfig(e.provider.Dimensions(), cfg.HNSWMaxElements)
	vecCfg.M = cfg.HNSWM
	vecCfg.EfSearch = cfg.HNSWEfSearch
	e.vectors = vectorindex.New(vecCfg)
	if _, err := os.Stat(cfg.AnnIndexPath()); err == nil {
		if err := e.vectors.Load(cfg.AnnIndexPath()); err != nil {
			e.closeOnOpenFailure()
			return nil, err
		}
	}

	names, err := e.loadOrBuildNameIndex()
	if err != nil {
		e.closeOnOpenFailure()
		return nil, err
	}
	e.names = names

	e.search = hybridsearch.New(e.vectors, e.names, e.provider, e)

	queueCfg := embedqueue.Config{Capacity: cfg.QueueCapacity, BatchSize: cfg.BatchSize, BatchTimeout: cfg.BatchTimeoutMs}
	e.queue = embedqueue.New(queueCfg, e.provider, &embedResultSink{engine: e})

	slog.Info("engine opened",
		slog.String("db_path", cfg.DBPath),
		slog.Int("vector_count", e.vectors.Count()),
		slog.Int("queue_capacity", cfg.QueueCapacity))
	return e, nil
}

func (e *Engine) closeOnOpenFailure() {
	_ = e.kv.Close()
	e.writerLock.Unlock()
}

// ObjectForChunk and MetaForObject implement hybridsearch.ObjectLookup.
func (e *Engine) ObjectForChunk(chunkID uuid.UUID) (uuid.UUID, bool) {
	e.chunkOwnerMu.RLock()
	defer e.chunkOwnerMu.RUnlock()
	id, ok := e.chunkOwner[chunkID]
	return id, ok
}

func (e *Engine) MetaForObject(objectID uuid.UUID) (hybridsearch.ObjectMeta, bool) {
	obj, err := e.graph.GetObject(context.Background(), objectID)
	if err != nil || obj == nil {
		return hybridsearch.ObjectMeta{}, false
	}
	return hybridsearch.ObjectMeta{ObjectType: obj.ObjectType, Name: obj.Name, CreatedAt: obj.CreatedAt}, true
}

func (e *Engine) resolveObjectType(objectID string) (string, bool) {
	id, err := uuid.Parse(objectID)
	if err != nil {
		return "", false
	}
	obj, err := e.graph.GetObject(context.Background(), id)
	if err != nil || obj == nil {
		return "", false
	}
	return obj.ObjectType, true
}

func (e *Engine) persistSchema(def *schema.Definition) error {
	// Records the schema under its name in the schemas column family. Only
	// the name is stored (as a length-prefixed string), not the definition
	// body, and Open does not read this column family back.
	batch, err := e.kv.NewBatch()
	if err != nil {
		return err
	}
	w := recordcodec.NewWriter()
	w.PutString(def.Name)
	if err := batch.Put("schemas", []byte(def.Name), w.Bytes()); err != nil {
		batch.Abort()
		return err
	}
	return batch.Commit()
}

// AddObject validates obj against the active schema and writes the node
// record, then chunks its description, writes the chunk records in a second
// batch, and enqueues an embedding request per chunk. The two batches commit
// separately; if the chunk write fails, the node record stays. The name index
// is not updated here: the object becomes visible to name lookups once the
// index is rebuilt, by RebuildNameIndex or automatically once
// nameIndexRebuildThreshold pending mutations have accumulated.
func (e *Engine) AddObject(ctx context.Context, obj *graphstore.Object) (uuid.UUID, error) {
	if obj.ID == uuid.Nil {
		obj.ID = uuid.New()
	}

	if err := e.graph.PutObject(ctx, obj); err != nil {
		return uuid.Nil, err
	}

	pieces := chunker.Split(obj.Description, e.provider.MaxTokens())
	chunks := make([]*graphstore.Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = &graphstore.Chunk{ID: uuid.New(), ObjectID: obj.ID, Ordinal: p.Ordinal, Text: p.Text}
	}
	if len(chunks) > 0 {
		if err := e.graph.PutChunks(ctx, obj.ID, chunks); err != nil {
			return uuid.Nil, err
		}
	}

	e.chunkOwnerMu.Lock()
	for _, c := range chunks {
		e.chunkOwner[c.ID] = obj.ID
	}
	e.chunkOwnerMu.Unlock()

	e.refreshNameIndexIfDue(ctx)

	for _, c := range chunks {
		if _, _, err := e.queue.Submit(ctx, obj.ID, c.ID, c.Text); err != nil {
			slog.Warn("embedding submission failed",
				slog.String("object_id", obj.ID.String()),
				slog.String("chunk_id", c.ID.String()),
				slog.String("error", err.Error()))
			return obj.ID, fmt.Errorf("object stored but embedding submission failed for chunk %s: %w", c.ID, err)
		}
	}

	slog.Debug("object added", slog.String("object_id", obj.ID.String()), slog.String("object_type", obj.ObjectType), slog.Int("chunks", len(chunks)))
	return obj.ID, nil
}

// GetObject returns an object by id, or nil if it does not exist.
func (e *Engine) GetObject(ctx context.Context, id uuid.UUID) (*graphstore.Object, error) {
	return e.graph.GetObject(ctx, id)
}

// DeleteObject removes an object, its chunks, incident edges, and adjacency
// slots, then drops any vectors the deleted chunks owned.
func (e *Engine) DeleteObject(ctx context.Context, id uuid.UUID) error {
	removedChunks, err := e.graph.DeleteObject(ctx, id)
	if err != nil {
		return err
	}

	e.chunkOwnerMu.Lock()
	for _, cid := range removedChunks {
		delete(e.chunkOwner, cid)
	}
	e.chunkOwnerMu.Unlock()

	for _, cid := range removedChunks {
		if err := e.vectors.Delete(ctx, cid); err != nil {
			return err
		}
	}

	slog.Debug("object deleted", slog.String("object_id", id.String()), slog.Int("chunks_removed", len(removedChunks)))
	e.refreshNameIndexIfDue(ctx)
	return nil
}

// Connect creates a directed, typed edge between two existing objects.
func (e *Engine) Connect(ctx context.Context, from, to uuid.UUID, edgeType string, weight *float32, props map[string]recordcodec.Value) (uuid.UUID, error) {
	return e.graph.Connect(ctx, from, to, edgeType, weight, props)
}

// Neighbors returns the edges touching id in the given direction, optionally
// filtered by edge type.
func (e *Engine) Neighbors(ctx context.Context, id uuid.UUID, dir graphstore.Direction, edgeTypeFilter string) ([]*graphstore.Edge, error) {
	return e.graph.Neighbors(ctx, id, dir, edgeTypeFilter)
}

// ResolveByName implements ingest.EndpointResolver: it looks up the single
// object whose name matches exactly (case-insensitively) against the name
// index, failing with UnknownEndpoint if none exists or AmbiguousEndpoint if
// more than one does. Objects added since the last name-index rebuild are
// not visible to it; IngestJSONL resolves against its own in-flight set
// first for exactly that reason.
func (e *Engine) ResolveByName(name string) (string, error) {
	matches, err := e.namedMatches(name)
	if err != nil {
		return "", err
	}
	switch len(matches) {
	case 0:
		return "", kgerrors.GraphError(kgerrors.ErrCodeUnknownEndpoint, fmt.Sprintf("no object named %q", name), nil)
	case 1:
		return matches[0].String(), nil
	default:
		return "", kgerrors.GraphError(kgerrors.ErrCodeAmbiguousEndpoint, fmt.Sprintf("%d objects named %q", len(matches), name), nil)
	}
}

// namedMatches returns every object id whose name matches name exactly,
// case-insensitively, per the name index as it currently stands.
func (e *Engine) namedMatches(name string) ([]uuid.UUID, error) {
	e.namesMu.RLock()
	entries, err := e.names.PrefixSearch(name, e.names.Len()+1)
	e.namesMu.RUnlock()
	if err != nil {
		return nil, err
	}

	lname := strings.ToLower(name)
	var ids []uuid.UUID
	for _, en := range entries {
		if strings.ToLower(en.Name) == lname {
			ids = append(ids, en.ObjectID)
		}
	}
	return ids, nil
}

// IngestResult counts the records an IngestJSONL call created.
type IngestResult struct {
	NodesCreated int
	EdgesCreated int
}

// IngestJSONL reads the line-delimited JSON collaborator format (§6):
// "node" lines are created as objects directly, "edge" lines resolve their
// From/To names before connecting. Endpoint names must be unique for
// resolution to succeed; duplicates surface as AmbiguousEndpoint and stop
// ingestion at that line.
//
// The name index only reflects objects seen at or before its last rebuild,
// so a node created earlier in the same ingestion run would otherwise be
// invisible to an edge line referencing it a few lines later; resolution
// here checks the objects created by this call first, falling back to the
// name index for endpoints that already existed before ingestion started.
func (e *Engine) IngestJSONL(ctx context.Context, r io.Reader) (IngestResult, error) {
	var result IngestResult
	createdByName := make(map[string][]uuid.UUID)

	resolve := func(name string) (uuid.UUID, error) {
		ids := append([]uuid.UUID{}, createdByName[strings.ToLower(name)]...)
		indexed, err := e.namedMatches(name)
		if err != nil {
			return uuid.Nil, err
		}
		for _, id := range indexed {
			if !containsUUID(ids, id) {
				ids = append(ids, id)
			}
		}
		switch len(ids) {
		case 0:
			return uuid.Nil, kgerrors.GraphError(kgerrors.ErrCodeUnknownEndpoint, fmt.Sprintf("no object named %q", name), nil)
		case 1:
			return ids[0], nil
		default:
			return uuid.Nil, kgerrors.GraphError(kgerrors.ErrCodeAmbiguousEndpoint, fmt.Sprintf("%d objects named %q", len(ids), name), nil)
		}
	}

	err := ingest.Parse(r, func(line ingest.Line) error {
		switch {
		case line.Node != nil:
			props, tags := ingest.SplitMetadata(line.Node.Metadata)
			obj := &graphstore.Object{
				Name:       line.Node.Name,
				ObjectType: line.Node.NodeType,
				Tags:       tags,
				Properties: props,
			}
			id, err := e.AddObject(ctx, obj)
			if err != nil {
				return fmt.Errorf("line %d: %w", line.LineNumber, err)
			}
			key := strings.ToLower(line.Node.Name)
			createdByName[key] = append(createdByName[key], id)
			result.NodesCreated++

		case line.Edge != nil:
			from, err := resolve(line.Edge.From)
			if err != nil {
				return fmt.Errorf("line %d: resolve from %q: %w", line.LineNumber, line.Edge.From, err)
			}
			to, err := resolve(line.Edge.To)
			if err != nil {
				return fmt.Errorf("line %d: resolve to %q: %w", line.LineNumber, line.Edge.To, err)
			}
			if _, err := e.Connect(ctx, from, to, line.Edge.EdgeType, nil, nil); err != nil {
				return fmt.Errorf("line %d: %w", line.LineNumber, err)
			}
			result.EdgesCreated++
		}
		return nil
	})
	slog.Info("jsonl ingestion finished", slog.Int("nodes", result.NodesCreated), slog.Int("edges", result.EdgesCreated))
	return result, err
}

func containsUUID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}

// SearchHybrid runs the fused ANN+FST search.
func (e *Engine) SearchHybrid(ctx context.Context, q hybridsearch.Query) ([]hybridsearch.Hit, error) {
	e.namesMu.RLock()
	defer e.namesMu.RUnlock()
	return e.search.Search(ctx, q)
}

// SubmitTextForEmbedding enqueues a single chunk's text for embedding
// outside the normal AddObject path (e.g. re-embedding after a schema- or
// description-only update).
func (e *Engine) SubmitTextForEmbedding(ctx context.Context, objectID, chunkID uuid.UUID, text string) (uuid.UUID, error) {
	reqID, _, err := e.queue.Submit(ctx, objectID, chunkID, text)
	return reqID, err
}

// RetryEmbedding resubmits every chunk of objectID that has no vector yet.
// Grounded on the same "resubmit on failure" idea as a download retry, but
// without backoff: a missing vector is not a flaky-network condition, it is
// either pending or permanently failed, and either way one more attempt
// through the same queue is the correct remedy.
func (e *Engine) RetryEmbedding(ctx context.Context, objectID uuid.UUID) (int, error) {
	obj, err := e.graph.GetObject(ctx, objectID)
	if err != nil {
		return 0, err
	}
	if obj == nil {
		return 0, kgerrors.NotFound(fmt.Sprintf("object %s not found", objectID), nil)
	}
	chunks, err := e.graph.GetChunks(ctx, objectID)
	if err != nil {
		return 0, err
	}

	var resubmitted int
	for _, c := range chunks {
		if e.vectors.Contains(c.ID) {
			continue
		}
		if _, _, err := e.queue.Submit(ctx, objectID, c.ID, c.Text); err != nil {
			return resubmitted, err
		}
		resubmitted++
	}
	return resubmitted, nil
}

// Progress returns the embedding queue's coalesced progress snapshot.
func (e *Engine) Progress() embedqueue.Progress {
	return e.queue.Progress()
}

// Stats is a supplemented introspection surface: counts and sizes useful to
// an operator or a debug CLI, not named by the original interface.
type Stats struct {
	ObjectCount int
	VectorCount int
	Progress    embedqueue.Progress
}

// Stats reports point-in-time counts across the engine's indices.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	objs, err := e.graph.ListAllObjects(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		ObjectCount: len(objs),
		VectorCount: e.vectors.Count(),
		Progress:    e.queue.Progress(),
	}, nil
}

// RebuildNameIndex forces an immediate FST rebuild from the live object
// set, regardless of the pending-mutation threshold.
func (e *Engine) RebuildNameIndex(ctx context.Context) error {
	idx, err := e.buildNameIndex(ctx)
	if err != nil {
		return err
	}
	e.namesMu.Lock()
	e.names = idx
	e.search = hybridsearch.New(e.vectors, idx, e.provider, e)
	e.graph.ResetPendingNameMutations()
	e.namesMu.Unlock()
	slog.Info("name index rebuilt", slog.Int("entries", idx.Len()))
	return e.persistNameIndex(idx)
}

// nameIndexRebuildThreshold is the pending-mutation count past which
// refreshNameIndexIfDue rebuilds eagerly instead of waiting for an explicit
// RebuildNameIndex call.
const nameIndexRebuildThreshold = 200

func (e *Engine) refreshNameIndexIfDue(ctx context.Context) {
	if e.graph.PendingNameMutations() < nameIndexRebuildThreshold {
		return
	}
	_ = e.RebuildNameIndex(ctx)
}

func (e *Engine) buildNameIndex(ctx context.Context) (*nameindex.Index, error) {
	briefs, err := e.graph.ListAllObjects(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]nameindex.Entry, len(briefs))
	for i, b := range briefs {
		entries[i] = nameindex.Entry{ObjectID: b.ID, Name: b.Name, ObjectType: b.ObjectType}
	}
	return nameindex.Build(entries)
}

func (e *Engine) loadOrBuildNameIndex() (*nameindex.Index, error) {
	if idx, ok, err := loadNameIndexFile(e.cfg.NamesIndexPath()); err != nil {
		return nil, err
	} else if ok {
		return idx, nil
	}
	return e.buildNameIndex(context.Background())
}

func (e *Engine) persistNameIndex(idx *nameindex.Index) error {
	fstBytes, chainsBytes, err := idx.Serialize()
	if err != nil {
		return err
	}
	return writeAtomic(e.cfg.NamesIndexPath(), append(lengthPrefixed(fstBytes), chainsBytes...))
}

// Shutdown stops accepting embedding submissions, drains in-flight work up
// to grace, persists the vector and name indices (rebuilding the name index
// first if objects changed since its last rebuild), and releases the
// process-wide writer lock.
func (e *Engine) Shutdown(ctx context.Context, grace time.Duration) error {
	slog.Info("engine shutting down", slog.Duration("grace", grace))
	shutdownCtx := ctx
	if grace > 0 {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(ctx, grace)
		defer cancel()
	}
	queueErr := e.queue.Shutdown(shutdownCtx)

	if err := e.vectors.Save(e.cfg.AnnIndexPath()); err != nil {
		return err
	}

	if e.graph.PendingNameMutations() > 0 {
		if err := e.RebuildNameIndex(ctx); err != nil {
			return err
		}
	} else {
		e.namesMu.RLock()
		idx := e.names
		e.namesMu.RUnlock()
		if err := e.persistNameIndex(idx); err != nil {
			return err
		}
	}

	if err := e.kv.Close(); err != nil {
		return err
	}
	e.writerLock.Unlock()
	slog.Info("engine shutdown complete")
	return queueErr
}

// embedResultSink routes successfully embedded vectors into the ANN index.
type embedResultSink struct {
	engine *Engine
}

func (s *embedResultSink) OnEmbedded(req embedqueue.Request, vector []float32) error {
	return s.engine.vectors.Add(context.Background(), req.ChunkID, vector)
}
