package index

import (
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/docstore"
)

// MemoryIndex buffers the uncommitted part of a write transaction: postings
// and stored records of added documents, plus the ids whose committed
// versions have been deleted or replaced.
type MemoryIndex struct {
	mu      sync.RWMutex
	index   map[string]map[uint32]*Posting
	docs    *docstore.Table
	deleted *roaring.Bitmap
	size    int64
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		index:   make(map[string]map[uint32]*Posting),
		docs:    docstore.NewTable(),
		deleted: roaring.New(),
	}
}

// AddDocument buffers rec together with its postings. terms maps each term
// to the document's posting for it; rec.Terms and rec.Length are filled in.
// Any buffered document with the same id is replaced.
func (m *MemoryIndex) AddDocument(rec *docstore.Record, terms map[string]Posting) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.removeLocked(rec.ID)

	rec.Terms = slices.Sorted(maps.Keys(terms))
	rec.Length = 0
	for _, term := range rec.Terms {
		p := terms[term]
		p.DocID = rec.ID
		rec.Length += p.Frequency
		if _, exists := m.index[term]; !exists {
			m.index[term] = make(map[uint32]*Posting)
		}
		m.index[term][rec.ID] = &p
		m.size += int64(len(term) + len(p.Positions)*4 + 32)
	}
	m.docs.Put(rec)
	m.size += int64(len(rec.Data) + 64)
	for _, v := range rec.Values {
		m.size += int64(len(v) + 8)
	}
}

// Delete drops any buffered version of id and records that committed
// versions of id are deleted. It reports whether a buffered version existed.
func (m *MemoryIndex) Delete(id uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted.Add(id)
	return m.removeLocked(id)
}

func (m *MemoryIndex) removeLocked(id uint32) bool {
	rec, ok := m.docs.Delete(id)
	if !ok {
		return false
	}
	for _, term := range rec.Terms {
		docs := m.index[term]
		if p, ok := docs[id]; ok {
			m.size -= int64(len(term) + len(p.Positions)*4 + 32)
			delete(docs, id)
		}
		if len(docs) == 0 {
			delete(m.index, term)
		}
	}
	m.size -= int64(len(rec.Data) + 64)
	for _, v := range rec.Values {
		m.size -= int64(len(v) + 8)
	}
	return true
}

// Search returns the buffered postings for term.
func (m *MemoryIndex) Search(term string) PostingList {
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs, exists := m.index[term]
	if !exists {
		return nil
	}
	result := make(PostingList, 0, len(docs))
	for _, posting := range docs {
		result = append(result, *posting)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].DocID < result[j].DocID
	})
	return result
}

// Document returns a buffered record.
func (m *MemoryIndex) Document(id uint32) (*docstore.Record, bool) {
	return m.docs.Get(id)
}

// IsDeleted reports whether committed versions of id are shadowed.
func (m *MemoryIndex) IsDeleted(id uint32) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.deleted.Contains(id)
}

// Deleted returns a copy of the pending deletions.
func (m *MemoryIndex) Deleted() *roaring.Bitmap {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.deleted.Clone()
}

// Terms returns the buffered terms starting with prefix, sorted, with their
// buffered statistics.
func (m *MemoryIndex) Terms(prefix string) []TermStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]TermStats, 0)
	for term, docs := range m.index {
		if !strings.HasPrefix(term, prefix) {
			continue
		}
		ts := TermStats{Term: term, DocFreq: uint32(len(docs))}
		for _, p := range docs {
			ts.CollFreq += uint64(p.Frequency)
		}
		out = append(out, ts)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Term < out[j].Term
	})
	return out
}

// Snapshot returns every buffered term with its postings, sorted by term,
// ready to be sealed into a segment.
func (m *MemoryIndex) Snapshot() []TermEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make([]TermEntry, 0, len(m.index))
	for term, docs := range m.index {
		postings := make(PostingList, 0, len(docs))
		for _, posting := range docs {
			postings = append(postings, *posting)
		}
		sort.Slice(postings, func(i, j int) bool {
			return postings[i].DocID < postings[j].DocID
		})
		entries = append(entries, TermEntry{
			Term:     term,
			Postings: postings,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Term < entries[j].Term
	})
	return entries
}

// Documents returns the buffered records sorted by id.
func (m *MemoryIndex) Documents() []*docstore.Record {
	return m.docs.Sorted()
}

// Size is an approximation of the buffer's memory use in bytes.
func (m *MemoryIndex) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

func (m *MemoryIndex) DocCount() int {
	return m.docs.Len()
}

// Empty reports whether the buffer holds neither documents nor deletions.
func (m *MemoryIndex) Empty() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.docs.Len() == 0 && m.deleted.IsEmpty()
}

func (m *MemoryIndex) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index = make(map[string]map[uint32]*Posting)
	m.docs.Reset()
	m.deleted = roaring.New()
	m.size = 0
}
