// Package docstore holds the stored side of a document: its opaque payload,
// its value slots and the bookkeeping needed to remove it again.
package docstore

import (
	"maps"
	"slices"
	"sync"
)

// Record is what the store keeps for each document.
type Record struct {
	ID     uint32            `json:"id"`
	Data   []byte            `json:"data,omitempty"`
	Values map[uint32][]byte `json:"values,omitempty"`
	// Length is the sum of wdf over all terms (the document length used
	// by length-normalised weighting).
	Length uint32 `json:"len"`
	// Terms lists every term indexed for the document, sorted.
	Terms []string `json:"terms,omitempty"`
}

// Value returns the value in slot, or nil if the slot is empty.
func (r *Record) Value(slot uint32) []byte {
	return r.Values[slot]
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	c := &Record{
		ID:     r.ID,
		Data:   slices.Clone(r.Data),
		Length: r.Length,
		Terms:  slices.Clone(r.Terms),
	}
	if r.Values != nil {
		c.Values = make(map[uint32][]byte, len(r.Values))
		for slot, v := range r.Values {
			c.Values[slot] = slices.Clone(v)
		}
	}
	return c
}

// Table is an in-memory docid -> Record map.
type Table struct {
	mu      sync.RWMutex
	records map[uint32]*Record
}

func NewTable() *Table {
	return &Table{records: make(map[uint32]*Record)}
}

// Put stores rec, replacing any record with the same ID.
func (t *Table) Put(rec *Record) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records[rec.ID] = rec
}

func (t *Table) Get(id uint32) (*Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.records[id]
	return rec, ok
}

// Delete removes id and returns the removed record, if any.
func (t *Table) Delete(id uint32) (*Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[id]
	if ok {
		delete(t.records, id)
	}
	return rec, ok
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.records)
}

// Sorted returns every record in ascending ID order.
func (t *Table) Sorted() []*Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := slices.Sorted(maps.Keys(t.records))
	out := make([]*Record, len(ids))
	for i, id := range ids {
		out[i] = t.records[id]
	}
	return out
}

func (t *Table) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = make(map[uint32]*Record)
}
