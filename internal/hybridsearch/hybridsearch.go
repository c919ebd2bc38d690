// Package hybridsearch implements C8: parallel ANN + FST retrieval fanned
// out with errgroup, then alpha-weighted fusion into one ranked result set.
package hybridsearch

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/uforge/kgraph/internal/embedprovider"
	"github.com/uforge/kgraph/internal/nameindex"
	"github.com/uforge/kgraph/internal/vectorindex"
)

// DefaultAlpha is the design-default exact/semantic fusion weight.
const DefaultAlpha = 0.5

// ObjectMeta is the minimal per-object context fusion needs: the type and
// name for the result, and the creation time for deterministic tie-breaks.
type ObjectMeta struct {
	ObjectType string
	Name       string
	CreatedAt  time.Time
}

// ObjectLookup resolves chunk ids to owning object ids and object ids to
// their metadata, keeping this package free of a graphstore dependency.
type ObjectLookup interface {
	ObjectForChunk(chunkID uuid.UUID) (objectID uuid.UUID, ok bool)
	MetaForObject(objectID uuid.UUID) (ObjectMeta, bool)
}

// MatchedBy records which retrieval branch(es) produced a hit.
type MatchedBy struct {
	Exact    bool
	Semantic bool
}

// Hit is one ranked hybrid search result.
type Hit struct {
	ObjectID   uuid.UUID
	ObjectType string
	Name       string
	Score      float64
	MatchedBy  MatchedBy
}

// Query parameterizes a single search_hybrid call.
type Query struct {
	Text     string
	K        int
	Alpha    float64         // 0 defaults to DefaultAlpha
	Filter   map[string]bool // object types to keep; nil/empty means no filter
	Deadline time.Time       // zero means no deadline
}

// Engine wires the two retrieval branches and the fusion step together.
type Engine struct {
	vectors  *vectorindex.Index
	names    *nameindex.Index
	provider embedprovider.Embedder
	lookup   ObjectLookup

	kSemanticFactor int // over-fetch factor so filtering/dedup doesn't starve k
}

// New builds an Engine over the given indices, provider, and lookup.
func New(vectors *vectorindex.Index, names *nameindex.Index, provider embedprovider.Embedder, lookup ObjectLookup) *Engine {
	return &Engine{vectors: vectors, names: names, provider: provider, lookup: lookup, kSemanticFactor: 4}
}

type exactCandidate struct {
	objectID uuid.UUID
}

type semanticCandidate struct {
	objectID uuid.UUID
	distance float32
}

// Search runs the semantic and exact branches in parallel and fuses them.
func (e *Engine) Search(ctx context.Context, q Query) ([]Hit, error) {
	alpha := q.Alpha
	if alpha == 0 {
		alpha = DefaultAlpha
	}
	k := q.K
	if k <= 0 {
		k = 10
	}

	searchCtx := ctx
	var cancel context.CancelFunc
	if !q.Deadline.IsZero() {
		searchCtx, cancel = context.WithDeadline(ctx, q.Deadline)
		defer cancel()
	}

	g, gctx := errgroup.WithContext(searchCtx)

	var exactHits []exactCandidate
	var semanticHits []semanticCandidate
	var semanticErr error

	g.Go(func() error {
		entries, err := e.names.PrefixSearch(q.Text, k*e.kSemanticFactor)
		if err != nil {
			return err
		}
		for _, ent := range entries {
			exactHits = append(exactHits, exactCandidate{objectID: ent.ObjectID})
		}
		return nil
	})

	g.Go(func() error {
		vec, err := e.provider.Embed(gctx, q.Text)
		if err != nil {
			semanticErr = err
			return nil // semantic branch degrades gracefully, never fails the group
		}
		results, err := e.vectors.Search(gctx, vec, k*e.kSemanticFactor)
		if err != nil {
			semanticErr = err
			return nil
		}
		for _, r := range results {
			objID, ok := e.lookup.ObjectForChunk(r.ExternalID)
			if !ok {
				continue
			}
			semanticHits = append(semanticHits, semanticCandidate{objectID: objID, distance: r.Distance})
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		// The exact branch is the only one allowed to fail the whole search;
		// the semantic branch records its own error and degrades instead.
		return nil, err
	}

	semanticDegraded := semanticErr != nil || searchCtx.Err() != nil

	return e.fuse(exactHits, semanticHits, semanticDegraded, alpha, k, q.Filter), nil
}

func (e *Engine) fuse(exact []exactCandidate, semantic []semanticCandidate, semanticDegraded bool, alpha float64, k int, filter map[string]bool) []Hit {
	type accum struct {
		exactScore    float64
		semanticScore float64
		matchedExact  bool
		matchedSem    bool
	}
	byObject := make(map[uuid.UUID]*accum)

	for _, c := range exact {
		a, ok := byObject[c.objectID]
		if !ok {
			a = &accum{}
			byObject[c.objectID] = a
		}
		a.exactScore = 1
		a.matchedExact = true
	}

	if !semanticDegraded {
		// Best (lowest) distance per object id wins when a chunk produces
		// multiple hits for the same object.
		best := make(map[uuid.UUID]float32)
		for _, c := range semantic {
			if prev, ok := best[c.objectID]; !ok || c.distance < prev {
				best[c.objectID] = c.distance
			}
		}
		for objID, dist := range best {
			a, ok := byObject[objID]
			if !ok {
				a = &accum{}
				byObject[objID] = a
			}
			a.semanticScore = 1 / (1 + float64(dist))
			a.matchedSem = true
		}
	}

	hits := make([]Hit, 0, len(byObject))
	for objID, a := range byObject {
		meta, ok := e.lookup.MetaForObject(objID)
		if !ok {
			continue
		}
		if len(filter) > 0 && !filter[meta.ObjectType] {
			continue
		}
		fused := alpha*a.exactScore + (1-alpha)*a.semanticScore
		hits = append(hits, Hit{
			ObjectID:   objID,
			ObjectType: meta.ObjectType,
			Name:       meta.Name,
			Score:      fused,
			MatchedBy:  MatchedBy{Exact: a.matchedExact, Semantic: a.matchedSem},
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		mi, _ := e.lookup.MetaForObject(hits[i].ObjectID)
		mj, _ := e.lookup.MetaForObject(hits[j].ObjectID)
		return mi.CreatedAt.Before(mj.CreatedAt)
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}
