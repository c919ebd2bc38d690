package graphstore

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kgerrors "github.com/uforge/kgraph/internal/errors"
	"github.com/uforge/kgraph/internal/kvstore"
	"github.com/uforge/kgraph/internal/recordcodec"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	kv, err := kvstore.Open(filepath.Join(t.TempDir(), "kg.db"))
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })
	return New(kv, nil)
}

func mustPutObject(t *testing.T, s *Store, name, objectType string) *Object {
	t.Helper()
	obj := &Object{ID: uuid.Must(uuid.NewRandom()), Name: name, ObjectType: objectType}
	require.NoError(t, s.PutObject(context.Background(), obj))
	return obj
}

func TestPutObject_GetObject_RoundTrip(t *testing.T) {
	s := newTestStore(t)

	obj := &Object{
		ID:         uuid.Must(uuid.NewRandom()),
		Name:       "Kaelen",
		ObjectType: "character",
		Tags:       []string{"mage", "exiled"},
		Properties: map[string]recordcodec.Value{
			"level": recordcodec.NumberValue(7),
		},
	}
	require.NoError(t, s.PutObject(context.Background(), obj))

	got, err := s.GetObject(context.Background(), obj.ID)
	require.NoError(t, err)
	assert.Equal(t, "Kaelen", got.Name)
	assert.Equal(t, "character", got.ObjectType)
	assert.Equal(t, []string{"mage", "exiled"}, got.Tags)
	assert.Equal(t, float64(7), got.Properties["level"].Num)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestPutObject_EmptyName_Rejected(t *testing.T) {
	s := newTestStore(t)
	err := s.PutObject(context.Background(), &Object{ID: uuid.Must(uuid.NewRandom())})
	require.Error(t, err)
}

func TestConnect_CreatesEdgeAndBothAdjacencySlots(t *testing.T) {
	s := newTestStore(t)
	gandalf := mustPutObject(t, s, "Gandalf", "character")
	rivendell := mustPutObject(t, s, "Rivendell", "location")

	edgeID, err := s.Connect(context.Background(), gandalf.ID, rivendell.ID, "visited", nil, nil)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, edgeID)

	out, err := s.Neighbors(context.Background(), gandalf.ID, DirectionOut, "")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, edgeID, out[0].ID)
	assert.Equal(t, rivendell.ID, out[0].To)

	in, err := s.Neighbors(context.Background(), rivendell.ID, DirectionIn, "")
	require.NoError(t, err)
	require.Len(t, in, 1)
	assert.Equal(t, edgeID, in[0].ID)
}

func TestConnect_UnknownEndpoint_Fails(t *testing.T) {
	s := newTestStore(t)
	gandalf := mustPutObject(t, s, "Gandalf", "character")

	_, err := s.Connect(context.Background(), gandalf.ID, uuid.Must(uuid.NewRandom()), "visited", nil, nil)
	require.Error(t, err)
}

func TestConnect_AcceptsValidWeight(t *testing.T) {
	s := newTestStore(t)
	gandalf := mustPutObject(t, s, "Gandalf", "character")
	rivendell := mustPutObject(t, s, "Rivendell", "location")

	w := float32(0.5)
	edgeID, err := s.Connect(context.Background(), gandalf.ID, rivendell.ID, "visited", &w, nil)
	require.NoError(t, err)

	out, err := s.Neighbors(context.Background(), gandalf.ID, DirectionOut, "")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, edgeID, out[0].ID)
	assert.True(t, out[0].HasWeight)
	assert.Equal(t, float32(0.5), out[0].Weight)
}

func TestConnect_RejectsOutOfRangeOrNonFiniteWeight(t *testing.T) {
	cases := map[string]float32{
		"negative":     -5,
		"above-one":    12.0,
		"nan":          float32(math.NaN()),
		"positive-inf": float32(math.Inf(1)),
		"negative-inf": float32(math.Inf(-1)),
	}
	for name, w := range cases {
		w := w
		t.Run(name, func(t *testing.T) {
			s := newTestStore(t)
			gandalf := mustPutObject(t, s, "Gandalf", "character")
			rivendell := mustPutObject(t, s, "Rivendell", "location")

			_, err := s.Connect(context.Background(), gandalf.ID, rivendell.ID, "visited", &w, nil)
			require.Error(t, err)
			assert.Equal(t, kgerrors.ErrCodeInvalidValue, kgerrors.GetCode(err))
		})
	}
}

func TestNeighbors_FiltersByEdgeType(t *testing.T) {
	s := newTestStore(t)
	gandalf := mustPutObject(t, s, "Gandalf", "character")
	rivendell := mustPutObject(t, s, "Rivendell", "location")
	shadowfax := mustPutObject(t, s, "Shadowfax", "creature")

	_, err := s.Connect(context.Background(), gandalf.ID, rivendell.ID, "visited", nil, nil)
	require.NoError(t, err)
	_, err = s.Connect(context.Background(), gandalf.ID, shadowfax.ID, "rides", nil, nil)
	require.NoError(t, err)

	rides, err := s.Neighbors(context.Background(), gandalf.ID, DirectionOut, "rides")
	require.NoError(t, err)
	require.Len(t, rides, 1)
	assert.Equal(t, shadowfax.ID, rides[0].To)
}

func TestDeleteObject_CascadesEdgesAndAdjacency(t *testing.T) {
	s := newTestStore(t)
	gandalf := mustPutObject(t, s, "Gandalf", "character")
	rivendell := mustPutObject(t, s, "Rivendell", "location")

	_, err := s.Connect(context.Background(), gandalf.ID, rivendell.ID, "visited", nil, nil)
	require.NoError(t, err)

	_, err = s.DeleteObject(context.Background(), gandalf.ID)
	require.NoError(t, err)

	_, err = s.GetObject(context.Background(), gandalf.ID)
	require.Error(t, err)

	remaining, err := s.Neighbors(context.Background(), rivendell.ID, DirectionIn, "")
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestDeleteObject_ReturnsRemovedChunkIDs(t *testing.T) {
	s := newTestStore(t)
	obj := mustPutObject(t, s, "Gandalf", "character")

	chunk := &Chunk{ID: uuid.Must(uuid.NewRandom()), Ordinal: 0, Text: "A wizard is never late."}
	require.NoError(t, s.PutChunks(context.Background(), obj.ID, []*Chunk{chunk}))

	removed, err := s.DeleteObject(context.Background(), obj.ID)
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, chunk.ID, removed[0])
}

func TestListAllObjects_ReturnsEveryObject(t *testing.T) {
	s := newTestStore(t)
	mustPutObject(t, s, "Gandalf", "character")
	mustPutObject(t, s, "Galadriel", "character")

	briefs, err := s.ListAllObjects(context.Background())
	require.NoError(t, err)
	assert.Len(t, briefs, 2)
}

type rejectAllValidator struct{}

func (rejectAllValidator) ValidateObject(obj *Object) error {
	return assert.AnError
}
func (rejectAllValidator) ValidateEdge(edgeType string, fromType, toType string) error {
	return assert.AnError
}

func TestPutObject_DelegatesToValidator(t *testing.T) {
	s := newTestStore(t)
	s.SetValidator(rejectAllValidator{})

	err := s.PutObject(context.Background(), &Object{ID: uuid.Must(uuid.NewRandom()), Name: "x", ObjectType: "character"})
	require.Error(t, err)
}
