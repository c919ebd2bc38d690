package vectorindex

import (
	"os"

	"github.com/google/uuid"

	kgerrors "github.com/uforge/kgraph/internal/errors"
	"github.com/uforge/kgraph/internal/recordcodec"
)

func (idx *Index) saveMeta(path string) error {
	w := recordcodec.NewWriter()
	w.PutUint64(uint64(idx.cfg.Dimensions))
	w.PutUint64(uint64(idx.cfg.M))
	w.PutUint64(uint64(idx.cfg.EfConstruction))
	w.PutUint64(uint64(idx.cfg.EfSearch))
	w.PutUint64(uint64(idx.cfg.MaxElements))
	w.PutUint64(idx.nextKey)
	w.PutUint64(uint64(len(idx.idOf)))
	for key, id := range idx.idOf {
		w.PutUint64(key)
		w.PutString(id.String())
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, w.Bytes(), 0o644); err != nil {
		return kgerrors.StorageError(kgerrors.ErrCodeIO, "write vector index metadata", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return kgerrors.StorageError(kgerrors.ErrCodeIO, "rename vector index metadata", err)
	}
	return nil
}

func (idx *Index) loadMeta(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return kgerrors.StorageError(kgerrors.ErrCodeIO, "read vector index metadata", err)
	}
	r := recordcodec.NewReader(data)

	dims, err := r.Uint64()
	if err != nil {
		return kgerrors.StorageError(kgerrors.ErrCodeCorruption, "read dimensions", err)
	}
	m, err := r.Uint64()
	if err != nil {
		return kgerrors.StorageError(kgerrors.ErrCodeCorruption, "read M", err)
	}
	efc, err := r.Uint64()
	if err != nil {
		return kgerrors.StorageError(kgerrors.ErrCodeCorruption, "read ef_construction", err)
	}
	efs, err := r.Uint64()
	if err != nil {
		return kgerrors.StorageError(kgerrors.ErrCodeCorruption, "read ef_search", err)
	}
	maxEl, err := r.Uint64()
	if err != nil {
		return kgerrors.StorageError(kgerrors.ErrCodeCorruption, "read max_elements", err)
	}
	nextKey, err := r.Uint64()
	if err != nil {
		return kgerrors.StorageError(kgerrors.ErrCodeCorruption, "read next key", err)
	}
	count, err := r.Uint64()
	if err != nil {
		return kgerrors.StorageError(kgerrors.ErrCodeCorruption, "read id map size", err)
	}

	idOf := make(map[uint64]uuid.UUID, count)
	keyOf := make(map[uuid.UUID]uint64, count)
	for i := uint64(0); i < count; i++ {
		key, err := r.Uint64()
		if err != nil {
			return kgerrors.StorageError(kgerrors.ErrCodeCorruption, "read id map key", err)
		}
		idStr, err := r.String()
		if err != nil {
			return kgerrors.StorageError(kgerrors.ErrCodeCorruption, "read id map value", err)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return kgerrors.StorageError(kgerrors.ErrCodeCorruption, "parse id map value", err)
		}
		idOf[key] = id
		keyOf[id] = key
	}

	idx.cfg = Config{
		Dimensions:     int(dims),
		M:              int(m),
		EfConstruction: int(efc),
		EfSearch:       int(efs),
		MaxElements:    int(maxEl),
	}
	idx.nextKey = nextKey
	idx.idOf = idOf
	idx.keyOf = keyOf
	return nil
}
