package kvstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kgerrors "github.com/uforge/kgraph/internal/errors"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "kg.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_PutGet_RoundTrip(t *testing.T) {
	s := openTestStore(t)

	b, err := s.NewBatch()
	require.NoError(t, err)
	require.NoError(t, b.Put("nodes", []byte("obj-1"), []byte("kaelen-record")))
	require.NoError(t, b.Commit())

	value, err := s.Get("nodes", []byte("obj-1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("kaelen-record"), value)
}

func TestStore_Get_MissingKey_ReturnsNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Get("nodes", []byte("missing"))
	require.Error(t, err)
	assert.Equal(t, kgerrors.ErrCodeNotFound, kgerrors.GetCode(err))
}

func TestStore_Get_UnknownColumnFamily_ReturnsError(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Get("bogus", []byte("k"))
	require.Error(t, err)
}

func TestWriteBatch_Abort_DiscardsAllStagedOps(t *testing.T) {
	s := openTestStore(t)

	b, err := s.NewBatch()
	require.NoError(t, err)
	require.NoError(t, b.Put("nodes", []byte("obj-1"), []byte("v1")))
	require.NoError(t, b.Abort())

	_, err = s.Get("nodes", []byte("obj-1"))
	require.Error(t, err)
	assert.Equal(t, kgerrors.ErrCodeNotFound, kgerrors.GetCode(err))
}

func TestWriteBatch_Commit_IsAtomicAcrossColumnFamilies(t *testing.T) {
	s := openTestStore(t)

	b, err := s.NewBatch()
	require.NoError(t, err)
	require.NoError(t, b.Put("nodes", []byte("obj-1"), []byte("node-data")))
	require.NoError(t, b.Put("adjacency", []byte("obj-1"), []byte("adj-data")))
	require.NoError(t, b.Commit())

	n, err := s.Get("nodes", []byte("obj-1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("node-data"), n)

	a, err := s.Get("adjacency", []byte("obj-1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("adj-data"), a)
}

func TestStore_Delete_RemovesKey(t *testing.T) {
	s := openTestStore(t)

	b, err := s.NewBatch()
	require.NoError(t, err)
	require.NoError(t, b.Put("nodes", []byte("obj-1"), []byte("v1")))
	require.NoError(t, b.Commit())

	b2, err := s.NewBatch()
	require.NoError(t, err)
	require.NoError(t, b2.Delete("nodes", []byte("obj-1")))
	require.NoError(t, b2.Commit())

	_, err = s.Get("nodes", []byte("obj-1"))
	require.Error(t, err)
	assert.Equal(t, kgerrors.ErrCodeNotFound, kgerrors.GetCode(err))
}

func TestStore_Iterate_RespectsPrefixAndOrder(t *testing.T) {
	s := openTestStore(t)

	b, err := s.NewBatch()
	require.NoError(t, err)
	require.NoError(t, b.Put("names", []byte("gandalf"), []byte("1")))
	require.NoError(t, b.Put("names", []byte("galadriel"), []byte("2")))
	require.NoError(t, b.Put("names", []byte("frodo"), []byte("3")))
	require.NoError(t, b.Commit())

	var keys []string
	err = s.Iterate("names", []byte("ga"), func(key, value []byte) error {
		keys = append(keys, string(key))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"galadriel", "gandalf"}, keys)
}

func TestSnapshot_IsIsolatedFromLaterWrites(t *testing.T) {
	s := openTestStore(t)

	b, err := s.NewBatch()
	require.NoError(t, err)
	require.NoError(t, b.Put("nodes", []byte("obj-1"), []byte("v1")))
	require.NoError(t, b.Commit())

	snap, err := s.Snapshot()
	require.NoError(t, err)
	defer snap.Close()

	b2, err := s.NewBatch()
	require.NoError(t, err)
	require.NoError(t, b2.Put("nodes", []byte("obj-2"), []byte("v2")))
	require.NoError(t, b2.Commit())

	_, err = snap.Get("nodes", []byte("obj-2"))
	require.Error(t, err)

	liveValue, err := s.Get("nodes", []byte("obj-2"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), liveValue)
}

func TestSnapshot_Iterate_ReflectsPointInTime(t *testing.T) {
	s := openTestStore(t)

	b, err := s.NewBatch()
	require.NoError(t, err)
	require.NoError(t, b.Put("nodes", []byte("a"), []byte("1")))
	require.NoError(t, b.Commit())

	snap, err := s.Snapshot()
	require.NoError(t, err)
	defer snap.Close()

	var keys []string
	err = snap.Iterate("nodes", nil, func(key, value []byte) error {
		keys = append(keys, string(key))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, keys)
}
