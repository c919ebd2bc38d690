// Package graphstore implements the property graph on top of the column
// family key-value store: objects (nodes), their text chunks, edges, and the
// derived adjacency index. Every mutation follows a read-compute-write-batch
// pattern. An edge plus both adjacency updates commit atomically or not at
// all; a node record (PutObject) and its chunks (PutChunks) commit in separate
// batches. This package does not write the name index; it only counts the
// pending name mutations a rebuild would pick up.
package graphstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	kgerrors "github.com/uforge/kgraph/internal/errors"
	"github.com/uforge/kgraph/internal/kvstore"
	"github.com/uforge/kgraph/internal/recordcodec"
)

const (
	cfNodes     = "nodes"
	cfChunks    = "chunks"
	cfEdges     = "edges"
	cfAdjacency = "adjacency"
)

// Direction selects which side of an object's adjacency to enumerate.
type Direction int

const (
	DirectionOut Direction = iota
	DirectionIn
	DirectionBoth
)

// Validator delegates schema enforcement to the schema registry (C3). A nil
// Validator accepts every object and edge, useful for tests and bootstrap.
type Validator interface {
	ValidateObject(obj *Object) error
	ValidateEdge(edgeType string, fromType, toType string) error
}

// Store is the graph store (C2): put/get/delete objects, connect/enumerate
// edges, all backed by a kvstore.Store. A single Store must not be shared by
// more than one concurrent writer; Store serializes mutations internally but
// cross-process exclusion is the caller's responsibility (see the facade's
// file lock).
type Store struct {
	kv        *kvstore.Store
	validator Validator

	writeMu sync.Mutex

	// pendingNameMutations counts puts/deletes affecting the name index
	// since the last rebuild, for the threshold-based rebuild policy.
	pendingNameMutations int
}

// New wraps a kv store as a graph store. validator may be nil.
func New(kv *kvstore.Store, validator Validator) *Store {
	return &Store{kv: kv, validator: validator}
}

// SetValidator swaps the schema validator (e.g. once the schema registry has
// finished loading schemas from disk).
func (s *Store) SetValidator(v Validator) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.validator = v
}

// ObjectBrief is the minimal projection of an object needed to build the
// name index, decoupling graphstore from the nameindex package.
type ObjectBrief struct {
	ID         uuid.UUID
	Name       string
	ObjectType string
}

// PutObject validates obj against the active schema, then bumps updated_at
// and writes the node record in one batch; chunks are written separately by
// PutChunks. Both a fresh insert and an update of an existing object go
// through this path.
func (s *Store) PutObject(ctx context.Context, obj *Object) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if obj.Name == "" {
		return kgerrors.SchemaError(kgerrors.ErrCodeInvalidValue, "name", "object name must not be empty", nil)
	}
	if s.validator != nil {
		if err := s.validator.ValidateObject(obj); err != nil {
			return err
		}
	}

	now := time.Now()
	if obj.CreatedAt.IsZero() {
		obj.CreatedAt = now
	}
	obj.UpdatedAt = now

	batch, err := s.kv.NewBatch()
	if err != nil {
		return err
	}
	if err := batch.Put(cfNodes, obj.ID[:], encodeObject(obj)); err != nil {
		batch.Abort()
		return err
	}
	s.pendingNameMutations++

	if err := batch.Commit(); err != nil {
		return err
	}
	return nil
}

// PutChunks atomically (re)writes the chunk records for an object and
// updates the object's ChunkIDs list to match.
func (s *Store) PutChunks(ctx context.Context, objectID uuid.UUID, chunks []*Chunk) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	obj, err := s.getObjectLocked(objectID)
	if err != nil {
		return err
	}

	batch, err := s.kv.NewBatch()
	if err != nil {
		return err
	}
	chunkIDs := make([]uuid.UUID, 0, len(chunks))
	for _, c := range chunks {
		c.ObjectID = objectID
		if err := batch.Put(cfChunks, c.ID[:], encodeChunk(c)); err != nil {
			batch.Abort()
			return err
		}
		chunkIDs = append(chunkIDs, c.ID)
	}
	obj.ChunkIDs = chunkIDs
	obj.UpdatedAt = time.Now()
	if err := batch.Put(cfNodes, obj.ID[:], encodeObject(obj)); err != nil {
		batch.Abort()
		return err
	}
	return batch.Commit()
}

// GetObject reads a single object by id.
func (s *Store) GetObject(ctx context.Context, id uuid.UUID) (*Object, error) {
	return s.getObjectLocked(id)
}

func (s *Store) getObjectLocked(id uuid.UUID) (*Object, error) {
	data, err := s.kv.Get(cfNodes, id[:])
	if err != nil {
		return nil, err
	}
	return decodeObject(id, data)
}

// GetChunks reads every chunk belonging to an object, in ordinal order.
func (s *Store) GetChunks(ctx context.Context, objectID uuid.UUID) ([]*Chunk, error) {
	obj, err := s.getObjectLocked(objectID)
	if err != nil {
		return nil, err
	}
	chunks := make([]*Chunk, 0, len(obj.ChunkIDs))
	for _, cid := range obj.ChunkIDs {
		data, err := s.kv.Get(cfChunks, cid[:])
		if err != nil {
			return nil, err
		}
		c, err := decodeChunk(cid, data)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Ordinal < chunks[j].Ordinal })
	return chunks, nil
}

// DeleteObject removes the node, its chunks, every incident edge, the
// adjacency slots of its neighbors, and its own adjacency slot, in one
// batch. It returns the ids of removed chunks so the vector index can drop
// their vectors.
func (s *Store) DeleteObject(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	obj, err := s.getObjectLocked(id)
	if err != nil {
		return nil, err
	}

	adj, err := s.getAdjacencyLocked(id)
	if err != nil {
		return nil, err
	}

	batch, err := s.kv.NewBatch()
	if err != nil {
		return nil, err
	}

	if err := batch.Delete(cfNodes, id[:]); err != nil {
		batch.Abort()
		return nil, err
	}
	for _, cid := range obj.ChunkIDs {
		if err := batch.Delete(cfChunks, cid[:]); err != nil {
			batch.Abort()
			return nil, err
		}
	}

	touched := map[uuid.UUID]struct{}{}
	allEdgeIDs := append(append([]uuid.UUID{}, adj.Outgoing...), adj.Incoming...)
	for _, eid := range allEdgeIDs {
		edge, err := s.getEdgeLocked(eid)
		if err != nil {
			if kgerrors.GetCode(err) == kgerrors.ErrCodeNotFound {
				continue
			}
			batch.Abort()
			return nil, err
		}
		if err := batch.Delete(cfEdges, eid[:]); err != nil {
			batch.Abort()
			return nil, err
		}
		touched[edge.From] = struct{}{}
		touched[edge.To] = struct{}{}
	}
	delete(touched, id)

	for other := range touched {
		otherAdj, err := s.getAdjacencyLocked(other)
		if err != nil {
			if kgerrors.GetCode(err) == kgerrors.ErrCodeNotFound {
				continue
			}
			batch.Abort()
			return nil, err
		}
		otherAdj.Outgoing = removeAll(otherAdj.Outgoing, allEdgeIDs)
		otherAdj.Incoming = removeAll(otherAdj.Incoming, allEdgeIDs)
		if err := batch.Put(cfAdjacency, other[:], encodeAdjacency(otherAdj)); err != nil {
			batch.Abort()
			return nil, err
		}
	}

	if err := batch.Delete(cfAdjacency, id[:]); err != nil {
		batch.Abort()
		return nil, err
	}
	s.pendingNameMutations++

	if err := batch.Commit(); err != nil {
		return nil, err
	}
	return obj.ChunkIDs, nil
}

// Connect creates an edge from -> to. Endpoints must both exist. If a
// Validator is installed and the edge type is registered, the endpoint
// types are checked against it.
func (s *Store) Connect(ctx context.Context, from, to uuid.UUID, edgeType string, weight *float32, props map[string]recordcodec.Value) (uuid.UUID, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	fromObj, err := s.getObjectLocked(from)
	if err != nil {
		return uuid.Nil, kgerrors.GraphError(kgerrors.ErrCodeUnknownEndpoint, "connect: unknown source object", err)
	}
	toObj, err := s.getObjectLocked(to)
	if err != nil {
		return uuid.Nil, kgerrors.GraphError(kgerrors.ErrCodeUnknownEndpoint, "connect: unknown target object", err)
	}
	if s.validator != nil {
		if err := s.validator.ValidateEdge(edgeType, fromObj.ObjectType, toObj.ObjectType); err != nil {
			return uuid.Nil, err
		}
	}

	edge := &Edge{
		ID:         uuid.Must(uuid.NewRandom()),
		From:       from,
		To:         to,
		EdgeType:   edgeType,
		Properties: props,
		CreatedAt:  time.Now(),
	}
	if weight != nil {
		w := float64(*weight)
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 || w > 1 {
			return uuid.Nil, kgerrors.SchemaError(kgerrors.ErrCodeInvalidValue, "weight", fmt.Sprintf("edge weight must be a finite value in [0,1], got %v", *weight), nil)
		}
		edge.HasWeight = true
		edge.Weight = *weight
	}

	fromAdj, err := s.getAdjacencyLocked(from)
	if err != nil && kgerrors.GetCode(err) != kgerrors.ErrCodeNotFound {
		return uuid.Nil, err
	}
	if fromAdj == nil {
		fromAdj = &AdjacencyRecord{}
	}
	toAdj, err := s.getAdjacencyLocked(to)
	if err != nil && kgerrors.GetCode(err) != kgerrors.ErrCodeNotFound {
		return uuid.Nil, err
	}
	if toAdj == nil {
		toAdj = &AdjacencyRecord{}
	}
	fromAdj.Outgoing = append(fromAdj.Outgoing, edge.ID)
	toAdj.Incoming = append(toAdj.Incoming, edge.ID)

	batch, err := s.kv.NewBatch()
	if err != nil {
		return uuid.Nil, err
	}
	if err := batch.Put(cfEdges, edge.ID[:], encodeEdge(edge)); err != nil {
		batch.Abort()
		return uuid.Nil, err
	}
	if err := batch.Put(cfAdjacency, from[:], encodeAdjacency(fromAdj)); err != nil {
		batch.Abort()
		return uuid.Nil, err
	}
	if err := batch.Put(cfAdjacency, to[:], encodeAdjacency(toAdj)); err != nil {
		batch.Abort()
		return uuid.Nil, err
	}
	if err := batch.Commit(); err != nil {
		return uuid.Nil, err
	}
	return edge.ID, nil
}

// Neighbors enumerates edges touching id in the given direction, in
// insertion order, optionally restricted to a single edge type (empty
// string means no filter).
func (s *Store) Neighbors(ctx context.Context, id uuid.UUID, dir Direction, edgeTypeFilter string) ([]*Edge, error) {
	adj, err := s.getAdjacencyLocked(id)
	if err != nil {
		if kgerrors.GetCode(err) == kgerrors.ErrCodeNotFound {
			return nil, nil
		}
		return nil, err
	}

	var ids []uuid.UUID
	switch dir {
	case DirectionOut:
		ids = adj.Outgoing
	case DirectionIn:
		ids = adj.Incoming
	default:
		ids = append(append([]uuid.UUID{}, adj.Outgoing...), adj.Incoming...)
	}

	edges := make([]*Edge, 0, len(ids))
	for _, eid := range ids {
		edge, err := s.getEdgeLocked(eid)
		if err != nil {
			if kgerrors.GetCode(err) == kgerrors.ErrCodeNotFound {
				continue
			}
			return nil, err
		}
		if edgeTypeFilter != "" && edge.EdgeType != edgeTypeFilter {
			continue
		}
		edges = append(edges, edge)
	}
	return edges, nil
}

func (s *Store) getEdgeLocked(id uuid.UUID) (*Edge, error) {
	data, err := s.kv.Get(cfEdges, id[:])
	if err != nil {
		return nil, err
	}
	return decodeEdge(id, data)
}

func (s *Store) getAdjacencyLocked(id uuid.UUID) (*AdjacencyRecord, error) {
	data, err := s.kv.Get(cfAdjacency, id[:])
	if err != nil {
		return nil, err
	}
	return decodeAdjacency(data)
}

// PendingNameMutations reports how many put/delete operations have occurred
// since the last name-index rebuild, for the threshold-based rebuild policy.
func (s *Store) PendingNameMutations() int {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.pendingNameMutations
}

// ResetPendingNameMutations clears the counter after a rebuild completes.
func (s *Store) ResetPendingNameMutations() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.pendingNameMutations = 0
}

// ListAllObjects returns a brief projection of every object, for building or
// rebuilding the name index from scratch.
func (s *Store) ListAllObjects(ctx context.Context) ([]ObjectBrief, error) {
	snap, err := s.kv.Snapshot()
	if err != nil {
		return nil, err
	}
	defer snap.Close()

	var briefs []ObjectBrief
	err = snap.Iterate(cfNodes, nil, func(key, value []byte) error {
		id, perr := uuid.FromBytes(key)
		if perr != nil {
			return kgerrors.StorageError(kgerrors.ErrCodeCorruption, "malformed node key", perr)
		}
		obj, derr := decodeObject(id, value)
		if derr != nil {
			return kgerrors.StorageError(kgerrors.ErrCodeCorruption, "malformed node record", derr)
		}
		briefs = append(briefs, ObjectBrief{ID: obj.ID, Name: obj.Name, ObjectType: obj.ObjectType})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return briefs, nil
}

func removeAll(ids, remove []uuid.UUID) []uuid.UUID {
	if len(remove) == 0 {
		return ids
	}
	doomed := make(map[uuid.UUID]struct{}, len(remove))
	for _, r := range remove {
		doomed[r] = struct{}{}
	}
	out := ids[:0]
	for _, id := range ids {
		if _, dead := doomed[id]; !dead {
			out = append(out, id)
		}
	}
	return out
}
