// Package nameindex builds and queries the FST-backed exact/prefix name
// index (C4): an immutable ordered map from lowercased object name to a
// position in a parallel value array, rebuilt from scratch whenever the
// pending-mutation threshold is crossed or on explicit request.
package nameindex

import (
	"bytes"
	"sort"
	"strings"

	"github.com/blevesearch/vellum"
	"github.com/google/uuid"

	kgerrors "github.com/uforge/kgraph/internal/errors"
	"github.com/uforge/kgraph/internal/recordcodec"
)

// Entry is one (object_id, display_name, object_type) row in the value
// array the FST's integer offsets point into.
type Entry struct {
	ObjectID   uuid.UUID
	Name       string
	ObjectType string
}

// Index is a built, queryable name index: an FST plus the chain sidecar
// that resolves name collisions (several objects sharing the exact same
// lowercased name).
type Index struct {
	fst    *vellum.FST
	chains [][]Entry
	raw    []byte // serialized FST bytes, kept so Serialize never needs to re-encode
}

// Build constructs a fresh Index from every known object. Entries do not
// need to arrive pre-sorted.
func Build(entries []Entry) (*Index, error) {
	groups := map[string][]Entry{}
	for _, e := range entries {
		key := strings.ToLower(e.Name)
		groups[key] = append(groups[key], e)
	}
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	builder, err := vellum.New(&buf, nil)
	if err != nil {
		return nil, kgerrors.StorageError(kgerrors.ErrCodeIO, "create fst builder", err)
	}

	chains := make([][]Entry, 0, len(keys))
	for i, k := range keys {
		if err := builder.Insert([]byte(k), uint64(i)); err != nil {
			return nil, kgerrors.StorageError(kgerrors.ErrCodeCorruption, "insert fst key", err)
		}
		chains = append(chains, groups[k])
	}
	if err := builder.Close(); err != nil {
		return nil, kgerrors.StorageError(kgerrors.ErrCodeIO, "finalize fst", err)
	}

	raw := buf.Bytes()
	fst, err := vellum.Load(raw)
	if err != nil {
		return nil, kgerrors.StorageError(kgerrors.ErrCodeCorruption, "load built fst", err)
	}
	return &Index{fst: fst, chains: chains, raw: raw}, nil
}

// Len returns the number of distinct lowercased name keys in the index
// (collisions under one key count once).
func (idx *Index) Len() int {
	return len(idx.chains)
}

// PrefixSearch returns up to k entries whose lowercased name starts with
// lowercase(q), in lexical key order; entries sharing an exact name are
// returned together, in their original insertion order.
func (idx *Index) PrefixSearch(q string, k int) ([]Entry, error) {
	if idx == nil || idx.fst == nil {
		return nil, nil
	}
	prefix := []byte(strings.ToLower(q))

	upper, hasUpper := prefixUpperBound(prefix)
	var (
		it  *vellum.FSTIterator
		err error
	)
	if hasUpper {
		it, err = idx.fst.Iterator(prefix, upper)
	} else {
		it, err = idx.fst.Iterator(prefix, nil)
	}
	if err == vellum.ErrIteratorDone {
		return nil, nil
	}
	if err != nil {
		return nil, kgerrors.StorageError(kgerrors.ErrCodeIO, "iterate fst", err)
	}

	var results []Entry
	for err == nil {
		_, value := it.Current()
		if int(value) < len(idx.chains) {
			for _, e := range idx.chains[value] {
				results = append(results, e)
				if len(results) >= k {
					return results, nil
				}
			}
		}
		err = it.Next()
	}
	if err != nil && err != vellum.ErrIteratorDone {
		return nil, kgerrors.StorageError(kgerrors.ErrCodeIO, "iterate fst", err)
	}
	return results, nil
}

// prefixUpperBound computes the exclusive upper bound for a byte-string
// prefix scan: the prefix with its last byte incremented, truncated at the
// first byte that isn't 0xFF. Returns ok=false when the prefix is empty or
// consists entirely of 0xFF bytes, meaning there is no finite upper bound
// and the scan must run to the end of the index.
func prefixUpperBound(prefix []byte) (bound []byte, ok bool) {
	if len(prefix) == 0 {
		return nil, false
	}
	b := append([]byte{}, prefix...)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xFF {
			b[i]++
			return b[:i+1], true
		}
	}
	return nil, false
}

// Close releases the underlying FST's resources.
func (idx *Index) Close() error {
	if idx == nil || idx.fst == nil {
		return nil
	}
	return idx.fst.Close()
}

// Serialize encodes the FST bytes and the collision-chain sidecar so the
// index can be persisted into the "names" column family.
func (idx *Index) Serialize() (fstBytes []byte, chainsBytes []byte, err error) {
	fstBytes = idx.raw

	w := recordcodec.NewWriter()
	w.PutUint64(uint64(len(idx.chains)))
	for _, chain := range idx.chains {
		w.PutUint64(uint64(len(chain)))
		for _, e := range chain {
			w.PutString(e.ObjectID.String())
			w.PutString(e.Name)
			w.PutString(e.ObjectType)
		}
	}
	return fstBytes, w.Bytes(), nil
}

// Load reconstructs an Index from bytes produced by Serialize.
func Load(fstBytes, chainsBytes []byte) (*Index, error) {
	fst, err := vellum.Load(fstBytes)
	if err != nil {
		return nil, kgerrors.StorageError(kgerrors.ErrCodeCorruption, "load fst", err)
	}

	r := recordcodec.NewReader(chainsBytes)
	chainCount, err := r.Uint64()
	if err != nil {
		return nil, kgerrors.StorageError(kgerrors.ErrCodeCorruption, "read chain count", err)
	}
	chains := make([][]Entry, 0, chainCount)
	for i := uint64(0); i < chainCount; i++ {
		entryCount, err := r.Uint64()
		if err != nil {
			return nil, kgerrors.StorageError(kgerrors.ErrCodeCorruption, "read chain entry count", err)
		}
		chain := make([]Entry, 0, entryCount)
		for j := uint64(0); j < entryCount; j++ {
			idStr, err := r.String()
			if err != nil {
				return nil, kgerrors.StorageError(kgerrors.ErrCodeCorruption, "read entry id", err)
			}
			id, err := uuid.Parse(idStr)
			if err != nil {
				return nil, kgerrors.StorageError(kgerrors.ErrCodeCorruption, "parse entry id", err)
			}
			name, err := r.String()
			if err != nil {
				return nil, kgerrors.StorageError(kgerrors.ErrCodeCorruption, "read entry name", err)
			}
			objectType, err := r.String()
			if err != nil {
				return nil, kgerrors.StorageError(kgerrors.ErrCodeCorruption, "read entry object type", err)
			}
			chain = append(chain, Entry{ObjectID: id, Name: name, ObjectType: objectType})
		}
		chains = append(chains, chain)
	}
	return &Index{fst: fst, chains: chains, raw: fstBytes}, nil
}
