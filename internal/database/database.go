// Package database implements the on-disk search database: immutable
// segments published through an atomically replaced manifest, a
// single-writer lock, and point-in-time snapshots for readers.
package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/resilience"
)

// Database is a read-only handle. It serves the state committed when it was
// opened or last reopened; commits made afterwards become visible through
// Reopen.
type Database struct {
	path      string
	mu        sync.Mutex
	st        atomic.Pointer[state]
	gen       atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
	logger    *slog.Logger
}

// Open opens the database at path for reading.
func Open(path string) (*Database, error) {
	if fi, err := os.Stat(path); err != nil || !fi.IsDir() {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrDatabaseNotFound, path)
	}
	db := &Database{
		path:   path,
		logger: slog.Default().With("component", "database", "path", path),
	}
	st, err := db.load(nil)
	if err != nil {
		return nil, err
	}
	db.st.Store(st)
	db.logger.Info("database opened",
		"revision", st.manifest.Revision,
		"segments", len(st.segments),
		"docs", st.stats.DocCount,
	)
	return db, nil
}

// load reads the manifest and its segments. A segment removed by a
// concurrent merge between reading the manifest and opening the segment
// makes the attempt fail, so the whole load is retried.
func (db *Database) load(prev *state) (*state, error) {
	var st *state
	err := resilience.Retry(context.Background(), "load database", resilience.RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 20 * time.Millisecond,
		MaxDelay:     200 * time.Millisecond,
		Multiplier:   2,
		Retryable: func(err error) bool {
			return errors.Is(err, apperrors.ErrDatabaseOpening)
		},
	}, func() error {
		m, err := loadManifest(db.path)
		if err != nil {
			return err
		}
		st, err = loadState(db.path, m, prev, db.logger)
		return err
	})
	return st, err
}

// Reopen switches to the latest committed revision. It reports whether the
// revision changed; when it did, snapshots and result sets taken earlier
// are invalidated.
func (db *Database) Reopen() (bool, error) {
	if db.closed.Load() {
		return false, apperrors.ErrDatabaseClosed
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	cur := db.st.Load()
	m, err := loadManifest(db.path)
	if err != nil {
		return false, err
	}
	if m.Revision == cur.manifest.Revision && m.UUID == cur.manifest.UUID {
		return false, nil
	}
	st, err := db.load(cur)
	if err != nil {
		return false, err
	}
	db.st.Store(st)
	db.gen.Add(1)
	db.logger.Info("database reopened", "revision", st.manifest.Revision, "docs", st.stats.DocCount)
	return true, nil
}

func (db *Database) generation() uint64 { return db.gen.Load() }

func (db *Database) isClosed() bool { return db.closed.Load() }

// Snapshot pins the current state.
func (db *Database) Snapshot() (*Snapshot, error) {
	if db.closed.Load() {
		return nil, apperrors.ErrDatabaseClosed
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	st := db.st.Load()
	return &Snapshot{owner: db, gen: db.gen.Load(), st: st, stats: st.stats}, nil
}

func (db *Database) Path() string { return db.path }

// Revision is the committed revision currently served.
func (db *Database) Revision() uint64 { return db.st.Load().manifest.Revision }

// DocCount is the number of live documents currently served.
func (db *Database) DocCount() uint32 { return db.st.Load().stats.DocCount }

// Document fetches a document from the current state.
func (db *Database) Document(id uint32) (*Document, error) {
	s, err := db.Snapshot()
	if err != nil {
		return nil, err
	}
	return s.Document(id)
}

// CorruptSegments lists the segments left out of the current state because
// they failed validation. Each error wraps ErrDatabaseCorrupt.
func (db *Database) CorruptSegments() []error {
	return db.st.Load().corrupt
}

// Check returns the corruption found at the last open or reopen, if any.
func (db *Database) Check() error {
	return errors.Join(db.CorruptSegments()...)
}

// Close invalidates the handle and everything derived from it. Closing
// twice is a no-op.
func (db *Database) Close() error {
	db.closeOnce.Do(func() {
		db.closed.Store(true)
		db.gen.Add(1)
		db.logger.Info("database closed")
	})
	return nil
}
