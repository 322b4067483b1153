package database

import (
	"fmt"
	"iter"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
)

// Reader is implemented by both database handles. Query evaluation pins a
// Snapshot so that every read in one evaluation sees the same state.
type Reader interface {
	Snapshot() (*Snapshot, error)
}

type owner interface {
	generation() uint64
	isClosed() bool
}

// Snapshot is a point-in-time view of a database. For a writable handle it
// includes the uncommitted buffer. A Snapshot is invalidated when its
// handle is closed, reopened or (for a writer) mutated; reads then fail
// with ErrDatabaseClosed or ErrIteratorInvalidated.
type Snapshot struct {
	owner owner
	gen   uint64
	st    *state
	buf   *index.MemoryIndex
	stats Stats
}

// Valid reports whether the snapshot may still be read.
func (s *Snapshot) Valid() error {
	if s.owner.isClosed() {
		return apperrors.ErrDatabaseClosed
	}
	if s.owner.generation() != s.gen {
		return apperrors.ErrIteratorInvalidated
	}
	return nil
}

// Generation identifies the handle state this snapshot was taken from.
func (s *Snapshot) Generation() uint64 { return s.gen }

func (s *Snapshot) Stats() Stats { return s.stats }

func (s *Snapshot) DocCount() uint32 { return s.stats.DocCount }

func (s *Snapshot) LastDocID() uint32 { return s.stats.LastDocID }

func (s *Snapshot) AvgLength() float64 { return s.stats.AvgLength() }

// Revision is the committed revision the snapshot is based on.
func (s *Snapshot) Revision() uint64 { return s.st.manifest.Revision }

func (s *Snapshot) UUID() string { return s.st.manifest.UUID }

func (s *Snapshot) pendingDeleted(id uint32) bool {
	return s.buf != nil && s.buf.IsDeleted(id)
}

// PostingList returns the live postings for term, sorted by docid. An
// absent term yields an empty list.
func (s *Snapshot) PostingList(term string) (index.PostingList, error) {
	if err := s.Valid(); err != nil {
		return nil, err
	}
	lists := make([]index.PostingList, 0, len(s.st.segments)+1)
	for _, sv := range s.st.segments {
		pl, err := sv.reader.Search(term)
		if err != nil {
			return nil, err
		}
		if len(pl) == 0 {
			continue
		}
		if !sv.deleted.IsEmpty() || s.buf != nil {
			kept := pl[:0]
			for _, p := range pl {
				if !sv.deleted.Contains(p.DocID) && !s.pendingDeleted(p.DocID) {
					kept = append(kept, p)
				}
			}
			pl = kept
		}
		if len(pl) > 0 {
			lists = append(lists, pl)
		}
	}
	if s.buf != nil {
		if pl := s.buf.Search(term); len(pl) > 0 {
			lists = append(lists, pl)
		}
	}
	return index.Merge(lists...), nil
}

// TermFreq is the number of live documents indexed by term.
func (s *Snapshot) TermFreq(term string) (uint32, error) {
	pl, err := s.PostingList(term)
	if err != nil {
		return 0, err
	}
	return uint32(len(pl)), nil
}

// CollectionFreq is the total wdf of term across live documents.
func (s *Snapshot) CollectionFreq(term string) (uint64, error) {
	pl, err := s.PostingList(term)
	if err != nil {
		return 0, err
	}
	return index.TermEntry{Term: term, Postings: pl}.CollectionFreq(), nil
}

// TermExists reports whether term indexes at least one live document.
func (s *Snapshot) TermExists(term string) bool {
	if s.buf != nil && len(s.buf.Search(term)) > 0 {
		return true
	}
	for _, sv := range s.st.segments {
		if _, ok := sv.reader.Stats(term); !ok {
			continue
		}
		if sv.deleted.IsEmpty() && s.buf == nil {
			return true
		}
		pl, err := sv.reader.Search(term)
		if err != nil {
			continue
		}
		for _, p := range pl {
			if !sv.deleted.Contains(p.DocID) && !s.pendingDeleted(p.DocID) {
				return true
			}
		}
	}
	return false
}

// Terms yields the dictionary terms starting with prefix in sorted order
// with their document frequency. Frequencies count documents deleted since
// the last merge, so they are upper bounds.
func (s *Snapshot) Terms(prefix string) iter.Seq2[string, uint32] {
	sources := make([]iter.Seq[index.TermStats], 0, len(s.st.segments)+1)
	for _, sv := range s.st.segments {
		sources = append(sources, sv.reader.Terms(prefix))
	}
	if s.buf != nil {
		sources = append(sources, slices.Values(s.buf.Terms(prefix)))
	}
	return func(yield func(string, uint32) bool) {
		for ts := range mergeTerms(sources) {
			if !yield(ts.Term, ts.DocFreq) {
				return
			}
		}
	}
}

// mergeTerms merges sorted term sequences, summing the statistics of terms
// present in more than one.
func mergeTerms(sources []iter.Seq[index.TermStats]) iter.Seq[index.TermStats] {
	return func(yield func(index.TermStats) bool) {
		type cursor struct {
			next func() (index.TermStats, bool)
			stop func()
			cur  index.TermStats
			ok   bool
		}
		cursors := make([]*cursor, 0, len(sources))
		for _, src := range sources {
			next, stop := iter.Pull(src)
			c := &cursor{next: next, stop: stop}
			c.cur, c.ok = next()
			cursors = append(cursors, c)
		}
		defer func() {
			for _, c := range cursors {
				c.stop()
			}
		}()
		for {
			var lo *index.TermStats
			for _, c := range cursors {
				if c.ok && (lo == nil || c.cur.Term < lo.Term) {
					lo = &c.cur
				}
			}
			if lo == nil {
				return
			}
			out := index.TermStats{Term: lo.Term}
			for _, c := range cursors {
				if c.ok && c.cur.Term == out.Term {
					out.DocFreq += c.cur.DocFreq
					out.CollFreq += c.cur.CollFreq
					c.cur, c.ok = c.next()
				}
			}
			if !yield(out) {
				return
			}
		}
	}
}

// DocIDs returns every live document id in ascending order.
func (s *Snapshot) DocIDs() ([]uint32, error) {
	if err := s.Valid(); err != nil {
		return nil, err
	}
	ids := make([]uint32, 0, s.stats.DocCount)
	for _, sv := range s.st.segments {
		for id := range sv.reader.DocIDs() {
			if !sv.deleted.Contains(id) && !s.pendingDeleted(id) {
				ids = append(ids, id)
			}
		}
	}
	if s.buf != nil {
		for _, rec := range s.buf.Documents() {
			ids = append(ids, rec.ID)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// Document fetches a stored document. A missing id yields ErrDocNotFound.
func (s *Snapshot) Document(id uint32) (*Document, error) {
	if err := s.Valid(); err != nil {
		return nil, err
	}
	if s.buf != nil {
		if rec, ok := s.buf.Document(id); ok {
			return documentFromRecord(rec.Clone()), nil
		}
	}
	if !s.pendingDeleted(id) {
		for _, sv := range s.st.segments {
			if sv.live(id) {
				rec, err := sv.reader.Document(id)
				if err != nil {
					return nil, err
				}
				return documentFromRecord(rec), nil
			}
		}
	}
	return nil, fmt.Errorf("%w: docid %d", apperrors.ErrDocNotFound, id)
}

// DocLength returns the length of a live document.
func (s *Snapshot) DocLength(id uint32) (uint32, error) {
	if err := s.Valid(); err != nil {
		return 0, err
	}
	if n, ok := s.docLength(id); ok {
		return n, nil
	}
	return 0, fmt.Errorf("%w: docid %d", apperrors.ErrDocNotFound, id)
}

func (s *Snapshot) docLength(id uint32) (uint32, bool) {
	if s.buf != nil {
		if rec, ok := s.buf.Document(id); ok {
			return rec.Length, true
		}
		if s.buf.IsDeleted(id) {
			return 0, false
		}
	}
	for _, sv := range s.st.segments {
		if sv.live(id) {
			return sv.reader.DocLength(id)
		}
	}
	return 0, false
}

// Value returns the value stored in slot for a live document, or nil when
// the slot is empty.
func (s *Snapshot) Value(id uint32, slot uint32) ([]byte, error) {
	if err := s.Valid(); err != nil {
		return nil, err
	}
	if s.buf != nil {
		if rec, ok := s.buf.Document(id); ok {
			return rec.Value(slot), nil
		}
		if s.buf.IsDeleted(id) {
			return nil, fmt.Errorf("%w: docid %d", apperrors.ErrDocNotFound, id)
		}
	}
	for _, sv := range s.st.segments {
		if sv.live(id) {
			rec, err := sv.reader.Document(id)
			if err != nil {
				return nil, err
			}
			return rec.Value(slot), nil
		}
	}
	return nil, fmt.Errorf("%w: docid %d", apperrors.ErrDocNotFound, id)
}
