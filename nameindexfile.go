package kgraph

import (
	"encoding/binary"
	"os"
	"path/filepath"

	kgerrors "github.com/uforge/kgraph/internal/errors"
	"github.com/uforge/kgraph/internal/nameindex"
)

// writeAtomic writes data to path via a temp file + rename, so a crash
// mid-write never leaves a half-written names.fst behind.
func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return kgerrors.StorageError(kgerrors.ErrCodeIO, "create names.fst dir", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return kgerrors.StorageError(kgerrors.ErrCodeIO, "write names.fst", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return kgerrors.StorageError(kgerrors.ErrCodeIO, "rename names.fst", err)
	}
	return nil
}

// lengthPrefixed returns data prefixed with its own length as a big-endian
// uint64, so the chain sidecar that follows it in the same file can be
// located without a second file.
func lengthPrefixed(data []byte) []byte {
	out := make([]byte, 8+len(data))
	binary.BigEndian.PutUint64(out, uint64(len(data)))
	copy(out[8:], data)
	return out
}

// loadNameIndexFile reads the fst+chains pair written by persistNameIndex.
// A missing file is not an error: it means no name index has been
// persisted yet, and the caller should build one from live objects instead.
func loadNameIndexFile(path string) (*nameindex.Index, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, kgerrors.StorageError(kgerrors.ErrCodeIO, "read names.fst", err)
	}
	if len(data) < 8 {
		return nil, false, kgerrors.StorageError(kgerrors.ErrCodeCorruption, "names.fst truncated", nil)
	}
	fstLen := binary.BigEndian.Uint64(data[:8])
	if uint64(len(data)-8) < fstLen {
		return nil, false, kgerrors.StorageError(kgerrors.ErrCodeCorruption, "names.fst truncated", nil)
	}
	fstBytes := data[8 : 8+fstLen]
	chainsBytes := data[8+fstLen:]

	idx, err := nameindex.Load(fstBytes, chainsBytes)
	if err != nil {
		return nil, false, err
	}
	return idx, true, nil
}
