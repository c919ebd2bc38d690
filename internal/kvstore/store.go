// Package kvstore provides typed access to an ordered key-value store with
// named column families, atomic write batches, and snapshot reads, backed by
// modernc.org/sqlite (pure Go, no CGO).
//
// Column families are realized as separate tables (kv_<family>); a write
// batch is a single *sql.Tx; a snapshot is a long-lived read transaction
// opened against the WAL, giving it a consistent point-in-time view immune
// to writes committed after it was opened.
package kvstore

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	kgerrors "github.com/uforge/kgraph/internal/errors"
)

// ColumnFamilies is the fixed set of column families the graph engine opens.
// The set is declared at open time and is immutable for the database's
// lifetime, matching the KV adapter contract.
var ColumnFamilies = []string{"nodes", "chunks", "edges", "adjacency", "names", "schemas"}

// Store wraps a single SQLite database file, exposing column-family-scoped
// key-value access with atomic write batches and snapshot reads.
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	closed bool
}

// Open opens (creating if necessary) the KV store at path, declaring the
// fixed column families. WAL mode and a busy timeout are applied so that
// concurrent readers never block on a single in-flight writer.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, kgerrors.StorageError(kgerrors.ErrCodeIO, "open kv store", err)
	}
	// single connection: the graph engine is single-writer per process, and
	// a shared connection keeps the WAL-backed snapshot semantics simple.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=OFF",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, kgerrors.StorageError(kgerrors.ErrCodeIO, fmt.Sprintf("apply pragma %q", p), err)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.createColumnFamilies(); err != nil {
		db.Close()
		return nil, err
	}
	slog.Info("kv store opened", slog.String("path", path), slog.Int("column_families", len(ColumnFamilies)))
	return s, nil
}

// createColumnFamilies issues the schema DDL under a short retry: a sibling
// process opening the same fresh db_path for the first time can transiently
// hold the write lock SQLite needs for CREATE TABLE, even with WAL mode and
// a busy_timeout, during the brief window before that timeout kicks in.
func (s *Store) createColumnFamilies() error {
	retryCfg := kgerrors.DefaultRetryConfig()
	retryCfg.MaxRetries = 3
	retryCfg.InitialDelay = 50 * time.Millisecond
	retryCfg.MaxDelay = 500 * time.Millisecond

	attempt := 0
	return kgerrors.Retry(context.Background(), retryCfg, func() error {
		attempt++
		for _, cf := range ColumnFamilies {
			ddl := fmt.Sprintf(
				"CREATE TABLE IF NOT EXISTS %s (key BLOB PRIMARY KEY, value BLOB NOT NULL)",
				tableName(cf),
			)
			if _, err := s.db.Exec(ddl); err != nil {
				if attempt > 1 {
					slog.Warn("retrying column family creation", slog.Int("attempt", attempt), slog.String("column_family", cf), slog.String("error", err.Error()))
				}
				return kgerrors.StorageError(kgerrors.ErrCodeIO, fmt.Sprintf("create column family %q", cf), err)
			}
		}
		return nil
	})
}

func tableName(cf string) string {
	return "kv_" + cf
}

func isKnownCF(cf string) bool {
	for _, known := range ColumnFamilies {
		if known == cf {
			return true
		}
	}
	return false
}

// Get reads a single value from a column family. Returns ErrCodeNotFound if
// the key is absent.
func (s *Store) Get(cf string, key []byte) ([]byte, error) {
	if !isKnownCF(cf) {
		return nil, kgerrors.StorageError(kgerrors.ErrCodeIO, fmt.Sprintf("unknown column family %q", cf), nil)
	}
	row := s.db.QueryRow(fmt.Sprintf("SELECT value FROM %s WHERE key = ?", tableName(cf)), key)
	var value []byte
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return nil, kgerrors.NotFound(fmt.Sprintf("key not found in %q", cf), nil)
		}
		return nil, kgerrors.StorageError(kgerrors.ErrCodeIO, "get", err)
	}
	return value, nil
}

// Iterate scans a column family in key order, restricted to keys with the
// given prefix (nil or empty prefix scans the whole family). fn is invoked
// for each entry; returning a non-nil error from fn stops the scan early and
// that error is returned from Iterate.
func (s *Store) Iterate(cf string, prefix []byte, fn func(key, value []byte) error) error {
	if !isKnownCF(cf) {
		return kgerrors.StorageError(kgerrors.ErrCodeIO, fmt.Sprintf("unknown column family %q", cf), nil)
	}
	rows, err := s.db.Query(fmt.Sprintf("SELECT key, value FROM %s ORDER BY key", tableName(cf)))
	if err != nil {
		return kgerrors.StorageError(kgerrors.ErrCodeIO, "iterate", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return kgerrors.StorageError(kgerrors.ErrCodeIO, "scan row", err)
		}
		if len(prefix) > 0 && !bytes.HasPrefix(key, prefix) {
			continue
		}
		if err := fn(key, value); err != nil {
			return err
		}
	}
	return rows.Err()
}

// NewBatch opens a write batch: a set of put/delete operations across any
// column family that commit atomically.
func (s *Store) NewBatch() (*WriteBatch, error) {
	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return nil, kgerrors.StorageError(kgerrors.ErrCodeIO, "begin write batch", err)
	}
	return &WriteBatch{tx: tx}, nil
}

// Snapshot opens a read-only, point-in-time consistent view of the store.
// Writes committed after Snapshot returns are not visible to it.
func (s *Store) Snapshot() (*Snapshot, error) {
	tx, err := s.db.BeginTx(context.Background(), &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, kgerrors.StorageError(kgerrors.ErrCodeIO, "open snapshot", err)
	}
	return &Snapshot{tx: tx}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.db.Close(); err != nil {
		return kgerrors.StorageError(kgerrors.ErrCodeIO, "close kv store", err)
	}
	slog.Info("kv store closed", slog.String("path", s.path))
	return nil
}

// WriteBatch accumulates put/delete operations across column families for
// atomic commit.
type WriteBatch struct {
	tx *sql.Tx
	// staged operations, counted in the log line when a commit fails.
	ops []string
}

// Put stages an upsert of key -> value in the given column family.
func (b *WriteBatch) Put(cf string, key, value []byte) error {
	if !isKnownCF(cf) {
		return kgerrors.StorageError(kgerrors.ErrCodeIO, fmt.Sprintf("unknown column family %q", cf), nil)
	}
	_, err := b.tx.Exec(
		fmt.Sprintf("INSERT INTO %s(key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value", tableName(cf)),
		key, value,
	)
	if err != nil {
		return kgerrors.StorageError(kgerrors.ErrCodeIO, "batch put", err)
	}
	b.ops = append(b.ops, fmt.Sprintf("put:%s", cf))
	return nil
}

// Delete stages a removal of key from the given column family. Deleting an
// absent key is not an error.
func (b *WriteBatch) Delete(cf string, key []byte) error {
	if !isKnownCF(cf) {
		return kgerrors.StorageError(kgerrors.ErrCodeIO, fmt.Sprintf("unknown column family %q", cf), nil)
	}
	_, err := b.tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE key = ?", tableName(cf)), key)
	if err != nil {
		return kgerrors.StorageError(kgerrors.ErrCodeIO, "batch delete", err)
	}
	b.ops = append(b.ops, fmt.Sprintf("delete:%s", cf))
	return nil
}

// Commit atomically applies every staged operation.
func (b *WriteBatch) Commit() error {
	if err := b.tx.Commit(); err != nil {
		slog.Warn("write batch commit failed", slog.Int("ops", len(b.ops)), slog.String("error", err.Error()))
		return kgerrors.StorageError(kgerrors.ErrCodeCorruption, "commit write batch", err)
	}
	return nil
}

// Abort discards the batch without applying any staged operation.
func (b *WriteBatch) Abort() error {
	return b.tx.Rollback()
}

// Snapshot is a read-only, point-in-time consistent view of the store.
type Snapshot struct {
	tx *sql.Tx
}

// Get reads a value as of the snapshot's creation time.
func (sn *Snapshot) Get(cf string, key []byte) ([]byte, error) {
	if !isKnownCF(cf) {
		return nil, kgerrors.StorageError(kgerrors.ErrCodeIO, fmt.Sprintf("unknown column family %q", cf), nil)
	}
	row := sn.tx.QueryRow(fmt.Sprintf("SELECT value FROM %s WHERE key = ?", tableName(cf)), key)
	var value []byte
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return nil, kgerrors.NotFound(fmt.Sprintf("key not found in %q", cf), nil)
		}
		return nil, kgerrors.StorageError(kgerrors.ErrCodeIO, "snapshot get", err)
	}
	return value, nil
}

// Iterate scans a column family within the snapshot, in key order.
func (sn *Snapshot) Iterate(cf string, prefix []byte, fn func(key, value []byte) error) error {
	if !isKnownCF(cf) {
		return kgerrors.StorageError(kgerrors.ErrCodeIO, fmt.Sprintf("unknown column family %q", cf), nil)
	}
	rows, err := sn.tx.Query(fmt.Sprintf("SELECT key, value FROM %s ORDER BY key", tableName(cf)))
	if err != nil {
		return kgerrors.StorageError(kgerrors.ErrCodeIO, "snapshot iterate", err)
	}
	defer rows.Close()

	// Buffer keys/values so fn can't interleave with the live cursor in a
	// way that depends on driver-specific row-lock behaviour.
	type kv struct{ key, value []byte }
	var entries []kv
	for rows.Next() {
		var key, value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return kgerrors.StorageError(kgerrors.ErrCodeIO, "scan snapshot row", err)
		}
		if len(prefix) > 0 && !bytes.HasPrefix(key, prefix) {
			continue
		}
		entries = append(entries, kv{key, value})
	}
	if err := rows.Err(); err != nil {
		return kgerrors.StorageError(kgerrors.ErrCodeIO, "snapshot rows", err)
	}
	sort.Slice(entries, func(i, j int) bool { return bytes.Compare(entries[i].key, entries[j].key) < 0 })
	for _, e := range entries {
		if err := fn(e.key, e.value); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the snapshot's underlying read transaction.
func (sn *Snapshot) Close() error {
	return sn.tx.Rollback()
}
