package graphstore

import (
	"time"

	"github.com/google/uuid"

	"github.com/uforge/kgraph/internal/recordcodec"
)

// Object is a graph node: a named, typed entity with free-form properties
// and an ordered set of text chunks available for embedding.
type Object struct {
	ID          uuid.UUID
	Name        string
	ObjectType  string
	Description string
	Tags        []string
	Properties  map[string]recordcodec.Value
	ChunkIDs    []uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Chunk is a unit of text belonging to an object, identified independently
// so it can be embedded and tracked through the vector index.
type Chunk struct {
	ID       uuid.UUID
	ObjectID uuid.UUID
	Ordinal  int
	Text     string
}

// Edge connects two objects. EdgeType is a free-form string: edge types are
// first-class data, not a closed enum, matching the graph's schema-optional
// edge model.
type Edge struct {
	ID         uuid.UUID
	From       uuid.UUID
	To         uuid.UUID
	EdgeType   string
	HasWeight  bool
	Weight     float32
	Properties map[string]recordcodec.Value
	CreatedAt  time.Time
}

// AdjacencyRecord tracks, for one object, the edge ids touching it, in
// insertion order.
type AdjacencyRecord struct {
	Outgoing []uuid.UUID
	Incoming []uuid.UUID
}

func encodeObject(o *Object) []byte {
	w := recordcodec.NewWriter()
	w.PutString(o.Name)
	w.PutString(o.ObjectType)
	w.PutString(o.Description)
	w.PutStringSlice(o.Tags)
	w.PutProperties(o.Properties)
	w.PutStringSlice(uuidsToStrings(o.ChunkIDs))
	w.PutUint64(uint64(o.CreatedAt.UnixNano()))
	w.PutUint64(uint64(o.UpdatedAt.UnixNano()))
	return w.Bytes()
}

func decodeObject(id uuid.UUID, data []byte) (*Object, error) {
	r := recordcodec.NewReader(data)
	name, err := r.String()
	if err != nil {
		return nil, err
	}
	objectType, err := r.String()
	if err != nil {
		return nil, err
	}
	description, err := r.String()
	if err != nil {
		return nil, err
	}
	tags, err := r.StringSlice()
	if err != nil {
		return nil, err
	}
	props, err := r.Properties()
	if err != nil {
		return nil, err
	}
	chunkIDStrs, err := r.StringSlice()
	if err != nil {
		return nil, err
	}
	chunkIDs, err := stringsToUUIDs(chunkIDStrs)
	if err != nil {
		return nil, err
	}
	createdAt, err := r.Uint64()
	if err != nil {
		return nil, err
	}
	updatedAt, err := r.Uint64()
	if err != nil {
		return nil, err
	}
	return &Object{
		ID:          id,
		Name:        name,
		ObjectType:  objectType,
		Description: description,
		Tags:        tags,
		Properties:  props,
		ChunkIDs:    chunkIDs,
		CreatedAt:   time.Unix(0, int64(createdAt)),
		UpdatedAt:   time.Unix(0, int64(updatedAt)),
	}, nil
}

func encodeChunk(c *Chunk) []byte {
	w := recordcodec.NewWriter()
	w.PutString(c.ObjectID.String())
	w.PutUint64(uint64(c.Ordinal))
	w.PutString(c.Text)
	return w.Bytes()
}

func decodeChunk(id uuid.UUID, data []byte) (*Chunk, error) {
	r := recordcodec.NewReader(data)
	objectIDStr, err := r.String()
	if err != nil {
		return nil, err
	}
	objectID, err := uuid.Parse(objectIDStr)
	if err != nil {
		return nil, err
	}
	ordinal, err := r.Uint64()
	if err != nil {
		return nil, err
	}
	text, err := r.String()
	if err != nil {
		return nil, err
	}
	return &Chunk{ID: id, ObjectID: objectID, Ordinal: int(ordinal), Text: text}, nil
}

func encodeEdge(e *Edge) []byte {
	w := recordcodec.NewWriter()
	w.PutString(e.From.String())
	w.PutString(e.To.String())
	w.PutString(e.EdgeType)
	w.PutBool(e.HasWeight)
	w.PutFloat32(e.Weight)
	w.PutProperties(e.Properties)
	w.PutUint64(uint64(e.CreatedAt.UnixNano()))
	return w.Bytes()
}

func decodeEdge(id uuid.UUID, data []byte) (*Edge, error) {
	r := recordcodec.NewReader(data)
	fromStr, err := r.String()
	if err != nil {
		return nil, err
	}
	from, err := uuid.Parse(fromStr)
	if err != nil {
		return nil, err
	}
	toStr, err := r.String()
	if err != nil {
		return nil, err
	}
	to, err := uuid.Parse(toStr)
	if err != nil {
		return nil, err
	}
	edgeType, err := r.String()
	if err != nil {
		return nil, err
	}
	hasWeight, err := r.Bool()
	if err != nil {
		return nil, err
	}
	weight, err := r.Float32()
	if err != nil {
		return nil, err
	}
	props, err := r.Properties()
	if err != nil {
		return nil, err
	}
	createdAt, err := r.Uint64()
	if err != nil {
		return nil, err
	}
	return &Edge{
		ID:         id,
		From:       from,
		To:         to,
		EdgeType:   edgeType,
		HasWeight:  hasWeight,
		Weight:     weight,
		Properties: props,
		CreatedAt:  time.Unix(0, int64(createdAt)),
	}, nil
}

func encodeAdjacency(a *AdjacencyRecord) []byte {
	w := recordcodec.NewWriter()
	w.PutStringSlice(uuidsToStrings(a.Outgoing))
	w.PutStringSlice(uuidsToStrings(a.Incoming))
	return w.Bytes()
}

func decodeAdjacency(data []byte) (*AdjacencyRecord, error) {
	r := recordcodec.NewReader(data)
	outStrs, err := r.StringSlice()
	if err != nil {
		return nil, err
	}
	inStrs, err := r.StringSlice()
	if err != nil {
		return nil, err
	}
	out, err := stringsToUUIDs(outStrs)
	if err != nil {
		return nil, err
	}
	in, err := stringsToUUIDs(inStrs)
	if err != nil {
		return nil, err
	}
	return &AdjacencyRecord{Outgoing: out, Incoming: in}, nil
}

func uuidsToStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func stringsToUUIDs(ss []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, len(ss))
	for i, s := range ss {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, err
		}
		out[i] = id
	}
	return out, nil
}
