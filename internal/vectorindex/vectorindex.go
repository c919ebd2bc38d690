// Package vectorindex implements the ANN vector index (C5): an HNSW graph
// over fixed-dimension float32 vectors, keyed by external chunk id, with
// atomic disk persistence and a tombstone-based delete.
package vectorindex

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
	"github.com/google/uuid"

	kgerrors "github.com/uforge/kgraph/internal/errors"
)

// Config fixes the HNSW construction parameters for one index instance.
// Defaults match the design defaults: M=16, EfConstruction=16, EfSearch=32.
type Config struct {
	Dimensions   int
	M            int
	EfConstruction int
	EfSearch     int
	MaxElements  int
}

// DefaultConfig returns the design-default HNSW parameters for the given
// fixed dimension and element capacity.
func DefaultConfig(dimensions, maxElements int) Config {
	return Config{
		Dimensions:     dimensions,
		M:              16,
		EfConstruction: 16,
		EfSearch:       32,
		MaxElements:    maxElements,
	}
}

// Result is one ranked neighbor of a search query.
type Result struct {
	ExternalID uuid.UUID
	Distance   float32
}

// Index wraps a coder/hnsw graph. Deletes are lazy tombstones over the
// external<->internal key map rather than true graph deletions: the
// underlying graph is append-only, and removing its last node is known to
// corrupt the structure, so a removed id's key is simply dropped from the
// maps and filtered out of search results.
type Index struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	cfg    Config
	idOf   map[uint64]uuid.UUID
	keyOf  map[uuid.UUID]uint64
	nextKey uint64
}

// New creates an empty index with the given configuration.
func New(cfg Config) *Index {
	g := hnsw.NewGraph[uint64]()
	g.M = cfg.M
	g.EfSearch = cfg.EfSearch
	g.Distance = hnsw.EuclideanDistance

	return &Index{
		graph: g,
		cfg:   cfg,
		idOf:  make(map[uint64]uuid.UUID),
		keyOf: make(map[uuid.UUID]uint64),
	}
}

// Add inserts a single vector under externalID, replacing any previous
// vector stored under the same id (the old key is tombstoned, not deleted
// from the graph; see the type comment).
func (idx *Index) Add(ctx context.Context, externalID uuid.UUID, vec []float32) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if len(vec) != idx.cfg.Dimensions {
		return kgerrors.VectorError(kgerrors.ErrCodeDimensionMismatch,
			"vector dimension does not match index dimension", nil).
			WithDetail("expected", itoa(idx.cfg.Dimensions)).
			WithDetail("actual", itoa(len(vec)))
	}
	if _, exists := idx.keyOf[externalID]; !exists {
		if idx.cfg.MaxElements > 0 && len(idx.keyOf) >= idx.cfg.MaxElements {
			return kgerrors.VectorError(kgerrors.ErrCodeIndexFull, "vector index is at capacity", nil)
		}
	} else {
		delete(idx.idOf, idx.keyOf[externalID])
	}

	key := idx.nextKey
	idx.nextKey++
	idx.idOf[key] = externalID
	idx.keyOf[externalID] = key

	idx.graph.Add(hnsw.MakeNode(key, vec))
	return nil
}

// Search returns up to k nearest neighbors of query, ascending by distance.
// Tombstoned (deleted) entries are filtered out.
func (idx *Index) Search(ctx context.Context, query []float32, k int) ([]Result, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(query) != idx.cfg.Dimensions {
		return nil, kgerrors.VectorError(kgerrors.ErrCodeDimensionMismatch,
			"query dimension does not match index dimension", nil)
	}
	if len(idx.keyOf) == 0 {
		return nil, nil
	}

	// over-fetch to absorb tombstoned keys still resident in the graph.
	fetch := k * 4
	if fetch < k+8 {
		fetch = k + 8
	}
	nodes, err := idx.graph.Search(query, fetch)
	if err != nil {
		return nil, kgerrors.VectorError(kgerrors.ErrCodeIO, "hnsw search failed", err)
	}

	results := make([]Result, 0, k)
	for _, n := range nodes {
		externalID, live := idx.idOf[n.Key]
		if !live {
			continue
		}
		dist := hnsw.EuclideanDistance(query, n.Value)
		results = append(results, Result{ExternalID: externalID, Distance: dist})
		if len(results) >= k {
			break
		}
	}
	return results, nil
}

// Delete tombstones externalID so it no longer appears in search results or
// id listings.
func (idx *Index) Delete(ctx context.Context, externalID uuid.UUID) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	key, ok := idx.keyOf[externalID]
	if !ok {
		return nil
	}
	delete(idx.keyOf, externalID)
	delete(idx.idOf, key)
	return nil
}

// Contains reports whether externalID currently has a live vector.
func (idx *Index) Contains(externalID uuid.UUID) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.keyOf[externalID]
	return ok
}

// Count returns the number of live (non-tombstoned) vectors.
func (idx *Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.keyOf)
}

// AllIDs returns every live external id.
func (idx *Index) AllIDs() []uuid.UUID {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]uuid.UUID, 0, len(idx.keyOf))
	for id := range idx.keyOf {
		out = append(out, id)
	}
	return out
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var b [20]byte
	i := len(b)
	for n > 0 {
		i--
		b[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		b[i] = '-'
	}
	return string(b[i:])
}

// Save persists the graph and its id maps to path (graph) and path+".meta"
// (maps and config), both written to a temp file and renamed into place so
// a crash mid-write never leaves a half-written file at the real path.
func (idx *Index) Save(path string) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return kgerrors.StorageError(kgerrors.ErrCodeIO, "create vector index dir", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return kgerrors.StorageError(kgerrors.ErrCodeIO, "create vector index temp file", err)
	}
	if err := idx.graph.Export(f); err != nil {
		f.Close()
		return kgerrors.StorageError(kgerrors.ErrCodeIO, "export hnsw graph", err)
	}
	if err := f.Close(); err != nil {
		return kgerrors.StorageError(kgerrors.ErrCodeIO, "close vector index temp file", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return kgerrors.StorageError(kgerrors.ErrCodeIO, "rename vector index file", err)
	}

	return idx.saveMeta(path + ".meta")
}

// Load replaces the index's graph and maps with the contents persisted at
// path by Save.
func (idx *Index) Load(path string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if err := idx.loadMeta(path + ".meta"); err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return kgerrors.StorageError(kgerrors.ErrCodeIO, "open vector index file", err)
	}
	defer f.Close()

	g := hnsw.NewGraph[uint64]()
	g.M = idx.cfg.M
	g.EfSearch = idx.cfg.EfSearch
	g.Distance = hnsw.EuclideanDistance
	if err := g.Import(bufio.NewReader(f)); err != nil {
		return kgerrors.StorageError(kgerrors.ErrCodeCorruption, "import hnsw graph", err)
	}
	idx.graph = g
	return nil
}

// Rebuild discards the current graph and reinserts every currently-live
// vector fresh, using (externalID, vector) pairs supplied by the caller.
// This is the maintenance path for recovering from a fragmented or
// suspiciously large graph built up from many tombstoned inserts.
func (idx *Index) Rebuild(ctx context.Context, vectors map[uuid.UUID][]float32) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	g := hnsw.NewGraph[uint64]()
	g.M = idx.cfg.M
	g.EfSearch = idx.cfg.EfSearch
	g.Distance = hnsw.EuclideanDistance

	idOf := make(map[uint64]uuid.UUID, len(vectors))
	keyOf := make(map[uuid.UUID]uint64, len(vectors))
	var key uint64
	for id, vec := range vectors {
		if len(vec) != idx.cfg.Dimensions {
			return kgerrors.VectorError(kgerrors.ErrCodeDimensionMismatch, "rebuild: vector dimension mismatch", nil)
		}
		g.Add(hnsw.MakeNode(key, vec))
		idOf[key] = id
		keyOf[id] = key
		key++
	}

	idx.graph = g
	idx.idOf = idOf
	idx.keyOf = keyOf
	idx.nextKey = key
	return nil
}

// Close releases any resources held by the index. The in-memory hnsw graph
// needs no explicit teardown; this exists for interface symmetry with the
// other storage components.
func (idx *Index) Close() error {
	return nil
}
