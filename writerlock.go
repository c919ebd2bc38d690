package kgraph

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	kgerrors "github.com/uforge/kgraph/internal/errors"
)

// writerLock guards a db_path against being opened by two engine instances
// at once. The graph store's in-process mutex handles the single-writer
// discipline within one process; this file lock extends that guarantee
// across processes sharing the same directory.
type writerLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

func acquireWriterLock(dbPath string) (*writerLock, error) {
	if err := os.MkdirAll(dbPath, 0o755); err != nil {
		return nil, kgerrors.StorageError(kgerrors.ErrCodeIO, "create db_path", err)
	}

	path := filepath.Join(dbPath, ".writer.lock")
	wl := &writerLock{path: path, flock: flock.New(path)}

	acquired, err := wl.flock.TryLock()
	if err != nil {
		return nil, kgerrors.StorageError(kgerrors.ErrCodeIO, "acquire writer lock", err)
	}
	if !acquired {
		return nil, kgerrors.StorageError(kgerrors.ErrCodeAlreadyOpen, fmt.Sprintf("db_path %s is already open by another process", dbPath), nil)
	}
	wl.locked = true
	return wl, nil
}

// Unlock releases the lock. Safe to call more than once.
func (wl *writerLock) Unlock() error {
	if !wl.locked {
		return nil
	}
	if err := wl.flock.Unlock(); err != nil {
		return kgerrors.StorageError(kgerrors.ErrCodeIO, "release writer lock", err)
	}
	wl.locked = false
	return nil
}
