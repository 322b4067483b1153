package database

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/segment"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/metrics"
)

// Options tune a WritableDatabase.
type Options struct {
	// AutoCommitSize commits automatically once the uncommitted buffer
	// reaches this many bytes. Zero disables automatic commits.
	AutoCommitSize int64
	// MaxSegmentsBeforeMerge merges all healthy segments into one when a
	// commit leaves more than this many. Zero disables merging.
	MaxSegmentsBeforeMerge int
}

func DefaultOptions() Options {
	return Options{
		AutoCommitSize:         64 << 20,
		MaxSegmentsBeforeMerge: 8,
	}
}

// CommitInfo describes a successful commit.
type CommitInfo struct {
	Revision uint64
	Added    int
	Deleted  uint64
	Merged   bool
	DocCount uint32
}

// WritableDatabase is the exclusive writer for a database path. Changes are
// visible through its own Snapshot immediately and to other handles only
// after Commit. It is safe for concurrent use, but all operations are
// serialised.
type WritableDatabase struct {
	mu        sync.Mutex
	path      string
	opts      Options
	lock      *fileLock
	st        *state
	buf       *index.MemoryIndex
	stats     Stats
	writer    *segment.Writer
	gen       atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
	logger    *slog.Logger
}

// OpenWritable opens or creates the database at path according to mode and
// takes the writer lock. A second writer on the same path fails with
// ErrDatabaseLock.
func OpenWritable(path string, mode OpenMode, opts Options) (*WritableDatabase, error) {
	if !mode.valid() {
		return nil, fmt.Errorf("%w: open mode %d", apperrors.ErrInvalidArgument, int(mode))
	}
	logger := slog.Default().With("component", "database", "path", path)

	exists := manifestExists(path)
	switch {
	case mode == ModeOpen && !exists:
		return nil, fmt.Errorf("%w: %s", apperrors.ErrDatabaseNotFound, path)
	case mode == ModeCreate && exists:
		return nil, fmt.Errorf("%w: database already exists at %s", apperrors.ErrDatabaseOpening, path)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating directory: %v", apperrors.ErrDatabaseOpening, err)
	}
	lock, err := acquireLock(filepath.Join(path, LockFilename))
	if err != nil {
		return nil, err
	}

	w := &WritableDatabase{
		path:   path,
		opts:   opts,
		lock:   lock,
		buf:    index.NewMemoryIndex(),
		writer: segment.NewWriter(path),
		logger: logger,
	}
	if err := w.init(mode); err != nil {
		lock.release()
		return nil, err
	}
	logger.Info("writable database opened",
		"mode", mode.String(),
		"revision", w.st.manifest.Revision,
		"docs", w.stats.DocCount,
	)
	return w, nil
}

func (w *WritableDatabase) init(mode OpenMode) error {
	// Re-check under the lock: another writer may have created the
	// database since the unlocked check.
	exists := manifestExists(w.path)
	if mode == ModeCreate && exists {
		return fmt.Errorf("%w: database already exists at %s", apperrors.ErrDatabaseOpening, w.path)
	}
	var m *Manifest
	if exists && mode != ModeCreateOrOverwrite {
		var err error
		if m, err = loadManifest(w.path); err != nil {
			return err
		}
	} else {
		m = newManifest()
		if exists {
			if old, err := loadManifest(w.path); err == nil {
				m.Revision = old.Revision + 1
			}
		}
		if err := m.save(w.path); err != nil {
			return fmt.Errorf("%w: %v", apperrors.ErrDatabaseOpening, err)
		}
	}
	st, err := loadState(w.path, m, nil, w.logger)
	if err != nil {
		return err
	}
	for _, c := range st.corrupt {
		w.logger.Error("database has corrupt segment", "error", c)
	}
	w.st = st
	w.stats = st.stats
	w.removeOrphans()
	return nil
}

// removeOrphans deletes segment files the manifest does not reference:
// leftovers of commits that crashed before publishing, and segments
// replaced by merges.
func (w *WritableDatabase) removeOrphans() {
	live := make(map[string]bool, len(w.st.manifest.Segments))
	for _, s := range w.st.manifest.Segments {
		live[s.Name] = true
	}
	entries, err := os.ReadDir(w.path)
	if err != nil {
		w.logger.Warn("listing database directory", "error", err)
		return
	}
	for _, e := range entries {
		name := e.Name()
		orphan := strings.HasSuffix(name, segment.FileSuffix+".tmp") ||
			(strings.HasSuffix(name, segment.FileSuffix) && !live[name])
		if !orphan {
			continue
		}
		if err := os.Remove(filepath.Join(w.path, name)); err != nil {
			w.logger.Warn("removing orphaned segment", "file", name, "error", err)
			continue
		}
		w.logger.Info("removed orphaned segment", "file", name)
	}
}

func (w *WritableDatabase) generation() uint64 { return w.gen.Load() }

func (w *WritableDatabase) isClosed() bool { return w.closed.Load() }

func (w *WritableDatabase) snapshotLocked() *Snapshot {
	return &Snapshot{owner: w, gen: w.gen.Load(), st: w.st, buf: w.buf, stats: w.stats}
}

// Snapshot pins the writer's current view, including uncommitted changes.
// Any later mutation invalidates it.
func (w *WritableDatabase) Snapshot() (*Snapshot, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed.Load() {
		return nil, apperrors.ErrDatabaseClosed
	}
	return w.snapshotLocked(), nil
}

func (w *WritableDatabase) checkOpen() error {
	if w.closed.Load() {
		return apperrors.ErrDatabaseClosed
	}
	return nil
}

// AddDocument stores doc under a new document id and returns it.
func (w *WritableDatabase) AddDocument(doc *Document) (uint32, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.checkOpen(); err != nil {
		return 0, err
	}
	if err := doc.validate(); err != nil {
		return 0, err
	}
	if w.stats.LastDocID >= MaxDocID {
		return 0, fmt.Errorf("%w: document ids exhausted", apperrors.ErrInvalidOperation)
	}
	id := w.stats.LastDocID + 1
	w.addLocked(id, doc)
	return id, w.afterMutationLocked()
}

// ReplaceDocument stores doc in place of the documents indexed by
// uniqueTerm. The first such document keeps its id; any others are
// deleted. When no document has the term, doc is added under a new id.
// It returns the id doc was stored under.
func (w *WritableDatabase) ReplaceDocument(uniqueTerm string, doc *Document) (uint32, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.checkOpen(); err != nil {
		return 0, err
	}
	if uniqueTerm == "" {
		return 0, fmt.Errorf("%w: empty unique term", apperrors.ErrInvalidArgument)
	}
	if err := doc.validate(); err != nil {
		return 0, err
	}
	pl, err := w.snapshotLocked().PostingList(uniqueTerm)
	if err != nil {
		return 0, err
	}
	var id uint32
	if len(pl) == 0 {
		if w.stats.LastDocID >= MaxDocID {
			return 0, fmt.Errorf("%w: document ids exhausted", apperrors.ErrInvalidOperation)
		}
		id = w.stats.LastDocID + 1
	} else {
		id = pl[0].DocID
		for _, p := range pl {
			w.deleteLocked(p.DocID)
		}
	}
	w.addLocked(id, doc)
	return id, w.afterMutationLocked()
}

// ReplaceDocumentByID stores doc under id, replacing any existing document.
func (w *WritableDatabase) ReplaceDocumentByID(id uint32, doc *Document) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.checkOpen(); err != nil {
		return err
	}
	if id == 0 || id > MaxDocID {
		return fmt.Errorf("%w: docid %d is out of range", apperrors.ErrInvalidArgument, id)
	}
	if err := doc.validate(); err != nil {
		return err
	}
	w.deleteLocked(id)
	w.addLocked(id, doc)
	return w.afterMutationLocked()
}

// DeleteDocument deletes every document indexed by term and returns how
// many were deleted.
func (w *WritableDatabase) DeleteDocument(term string) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.checkOpen(); err != nil {
		return 0, err
	}
	if term == "" {
		return 0, fmt.Errorf("%w: empty term", apperrors.ErrInvalidArgument)
	}
	pl, err := w.snapshotLocked().PostingList(term)
	if err != nil {
		return 0, err
	}
	for _, p := range pl {
		w.deleteLocked(p.DocID)
	}
	if len(pl) == 0 {
		return 0, nil
	}
	return len(pl), w.afterMutationLocked()
}

// DeleteDocumentByID deletes one document. A missing id yields
// ErrDocNotFound.
func (w *WritableDatabase) DeleteDocumentByID(id uint32) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.checkOpen(); err != nil {
		return err
	}
	if !w.deleteLocked(id) {
		return fmt.Errorf("%w: docid %d", apperrors.ErrDocNotFound, id)
	}
	return w.afterMutationLocked()
}

func (w *WritableDatabase) deleteLocked(id uint32) bool {
	length, ok := w.snapshotLocked().docLength(id)
	if !ok {
		return false
	}
	w.buf.Delete(id)
	w.stats.DocCount--
	w.stats.TotalLength -= uint64(length)
	return true
}

func (w *WritableDatabase) addLocked(id uint32, doc *Document) {
	rec, postings := doc.toRecord(id)
	w.buf.AddDocument(rec, postings)
	w.stats.DocCount++
	w.stats.TotalLength += uint64(rec.Length)
	if id > w.stats.LastDocID {
		w.stats.LastDocID = id
	}
}

func (w *WritableDatabase) afterMutationLocked() error {
	w.gen.Add(1)
	if w.opts.AutoCommitSize > 0 && w.buf.Size() >= w.opts.AutoCommitSize {
		w.logger.Debug("buffer full, committing", "size", w.buf.Size())
		if _, err := w.commitLocked(); err != nil {
			return err
		}
	}
	return nil
}

// InTransaction reports whether there are uncommitted changes.
func (w *WritableDatabase) InTransaction() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.buf.Empty()
}

// Abort discards uncommitted changes.
func (w *WritableDatabase) Abort() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.checkOpen(); err != nil {
		return err
	}
	w.abortLocked()
	return nil
}

func (w *WritableDatabase) abortLocked() {
	w.buf.Reset()
	w.stats = w.st.stats
	w.gen.Add(1)
}

// Commit makes all changes durable and visible to newly opened or reopened
// readers. On failure the transaction is aborted and the previous commit
// stays intact.
func (w *WritableDatabase) Commit() (CommitInfo, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.checkOpen(); err != nil {
		return CommitInfo{}, err
	}
	return w.commitLocked()
}

func (w *WritableDatabase) commitLocked() (CommitInfo, error) {
	if w.buf.Empty() && w.stats.LastDocID == w.st.stats.LastDocID {
		return CommitInfo{Revision: w.st.manifest.Revision, DocCount: w.stats.DocCount}, nil
	}
	timer := prometheus.NewTimer(metrics.CommitDuration)
	m := w.st.manifest.Clone()
	m.Revision++
	m.LastDocID = w.stats.LastDocID

	var created []string
	fail := func(err error) (CommitInfo, error) {
		for _, name := range created {
			os.Remove(filepath.Join(w.path, name))
		}
		w.abortLocked()
		metrics.CommitsTotal.WithLabelValues("error").Inc()
		w.logger.Error("commit failed, transaction aborted", "error", err)
		return CommitInfo{}, fmt.Errorf("commit: %w", err)
	}

	pending := w.buf.Deleted()
	info := CommitInfo{Revision: m.Revision}
	kept := m.Segments[:0]
	for _, meta := range m.Segments {
		sv, ok := w.st.healthy(meta)
		if ok && !pending.IsEmpty() {
			deleted := sv.deleted.Clone()
			for _, id := range pending.ToArray() {
				if sv.reader.HasDoc(id) && !deleted.Contains(id) {
					deleted.Add(id)
					info.Deleted++
					length, _ := sv.reader.DocLength(id)
					meta.NumDeleted++
					meta.DeletedLength += uint64(length)
				}
			}
			if err := meta.setDeleted(deleted); err != nil {
				return fail(err)
			}
		}
		if ok && meta.NumDeleted == meta.NumDocs {
			continue
		}
		kept = append(kept, meta)
	}
	m.Segments = kept

	if w.buf.DocCount() > 0 {
		id := m.NextSegmentID
		m.NextSegmentID++
		seg, err := w.writer.Write(id, w.buf.Snapshot(), w.buf.Documents())
		if err != nil {
			return fail(err)
		}
		created = append(created, seg.Name)
		m.Segments = append(m.Segments, &SegmentMeta{
			ID:          id,
			Name:        seg.Name,
			NumDocs:     uint32(seg.DocCount),
			TotalLength: seg.TotalLength,
		})
		info.Added = seg.DocCount
	}

	st, err := loadState(w.path, m, w.st, w.logger)
	if err != nil {
		return fail(err)
	}
	if w.opts.MaxSegmentsBeforeMerge > 0 && len(st.segments) > w.opts.MaxSegmentsBeforeMerge {
		if st, err = w.mergeLocked(m, st, &created); err != nil {
			return fail(err)
		}
		info.Merged = true
	}
	if err := m.save(w.path); err != nil {
		return fail(err)
	}

	w.st = st
	w.stats = st.stats
	w.buf.Reset()
	w.gen.Add(1)
	w.removeOrphans()
	info.DocCount = st.stats.DocCount

	metrics.CommitsTotal.WithLabelValues("ok").Inc()
	timer.ObserveDuration()
	metrics.DocumentsIndexed.Add(float64(info.Added))
	metrics.SegmentCount.Set(float64(len(st.segments)))
	w.logger.Info("committed",
		"revision", m.Revision,
		"added", info.Added,
		"deleted", info.Deleted,
		"segments", len(st.segments),
		"merged", info.Merged,
	)
	return info, nil
}

// mergeLocked rewrites every healthy segment of m into one. Corrupt
// segments are left in place.
func (w *WritableDatabase) mergeLocked(m *Manifest, st *state, created *[]string) (*state, error) {
	sources := make([]segment.Source, 0, len(st.segments))
	merged := make(map[string]bool, len(st.segments))
	for _, sv := range st.segments {
		sources = append(sources, segment.Source{Reader: sv.reader, Deleted: sv.deleted})
		merged[sv.meta.Name] = true
	}
	id := m.NextSegmentID
	m.NextSegmentID++
	seg, err := w.writer.Merge(id, sources)
	if err != nil {
		return nil, fmt.Errorf("merging segments: %w", err)
	}
	kept := m.Segments[:0]
	for _, meta := range m.Segments {
		if !merged[meta.Name] {
			kept = append(kept, meta)
		}
	}
	if seg.DocCount > 0 {
		*created = append(*created, seg.Name)
		kept = append(kept, &SegmentMeta{
			ID:          id,
			Name:        seg.Name,
			NumDocs:     uint32(seg.DocCount),
			TotalLength: seg.TotalLength,
		})
	}
	m.Segments = kept
	metrics.MergesTotal.Inc()
	w.logger.Info("merged segments", "inputs", len(sources), "output", seg.Name, "docs", seg.DocCount)
	return loadState(w.path, m, st, w.logger)
}

func (w *WritableDatabase) Path() string { return w.path }

// Stats returns the writer's current statistics, including uncommitted
// changes.
func (w *WritableDatabase) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *WritableDatabase) DocCount() uint32 { return w.Stats().DocCount }

// Revision is the last committed revision.
func (w *WritableDatabase) Revision() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.st.manifest.Revision
}

// Document fetches a document, including uncommitted ones.
func (w *WritableDatabase) Document(id uint32) (*Document, error) {
	s, err := w.Snapshot()
	if err != nil {
		return nil, err
	}
	return s.Document(id)
}

// CorruptSegments lists segments that failed validation. They are kept in
// the manifest and never merged.
func (w *WritableDatabase) CorruptSegments() []error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.st.corrupt
}

// Close commits pending changes, releases the writer lock and invalidates
// everything derived from the handle. Only the first call does any work;
// later calls return its result.
func (w *WritableDatabase) Close() error {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		var errs []error
		if !w.buf.Empty() {
			if _, err := w.commitLocked(); err != nil {
				errs = append(errs, err)
			}
		}
		w.closed.Store(true)
		w.gen.Add(1)
		if err := w.lock.release(); err != nil {
			errs = append(errs, fmt.Errorf("releasing lock: %w", err))
		}
		w.closeErr = errors.Join(errs...)
		w.logger.Info("writable database closed", "revision", w.st.manifest.Revision)
	})
	return w.closeErr
}
