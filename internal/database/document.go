package database

import (
	"fmt"
	"iter"
	"maps"
	"math"
	"slices"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/docstore"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
)

const (
	// MaxTermLength is the longest term a document may carry.
	MaxTermLength = 245
	// BadValueSlot is never a valid value slot.
	BadValueSlot uint32 = math.MaxUint32
	// MaxDocID is the largest assignable document id. MaxUint32 is kept
	// free as the end marker of posting cursors.
	MaxDocID uint32 = math.MaxUint32 - 1
)

type termInfo struct {
	wdf       uint32
	positions []uint32
}

// Document is a document being built for indexing, or one read back from a
// database. A Document read back carries its id, payload, values and term
// names; wdf and positions are only available through posting lists.
type Document struct {
	id     uint32
	data   []byte
	values map[uint32][]byte
	terms  map[string]*termInfo
	length uint32
}

func NewDocument() *Document {
	return &Document{
		values: make(map[uint32][]byte),
		terms:  make(map[string]*termInfo),
	}
}

func documentFromRecord(rec *docstore.Record) *Document {
	d := NewDocument()
	d.id = rec.ID
	d.data = rec.Data
	for slot, v := range rec.Values {
		d.values[slot] = v
	}
	for _, t := range rec.Terms {
		d.terms[t] = &termInfo{}
	}
	d.length = rec.Length
	return d
}

// ID is the document id, or 0 for a document not read from a database.
func (d *Document) ID() uint32 { return d.id }

func (d *Document) Data() []byte { return d.data }

func (d *Document) SetData(data []byte) {
	d.data = slices.Clone(data)
}

// Length is the sum of wdf over all terms.
func (d *Document) Length() uint32 {
	if d.id != 0 {
		return d.length
	}
	var n uint32
	for _, ti := range d.terms {
		n += ti.wdf
	}
	return n
}

func (d *Document) AddValue(slot uint32, value []byte) {
	d.values[slot] = slices.Clone(value)
}

func (d *Document) AddString(slot uint32, s string) {
	d.values[slot] = []byte(s)
}

// AddFloat stores v in slot using the sortable encoding, so that value
// ranges and sorting compare numerically.
func (d *Document) AddFloat(slot uint32, v float64) {
	d.values[slot] = docstore.SortableSerialise(v)
}

func (d *Document) AddInt(slot uint32, v int64) {
	d.AddFloat(slot, float64(v))
}

func (d *Document) RemoveValue(slot uint32) {
	delete(d.values, slot)
}

func (d *Document) ClearValues() {
	clear(d.values)
}

// Value returns the value in slot, or nil.
func (d *Document) Value(slot uint32) []byte {
	return d.values[slot]
}

// FloatValue decodes a value stored with AddFloat or AddInt.
func (d *Document) FloatValue(slot uint32) (float64, error) {
	v, ok := d.values[slot]
	if !ok {
		return 0, fmt.Errorf("%w: slot %d is empty", apperrors.ErrSerialisation, slot)
	}
	return docstore.SortableUnserialise(v)
}

// Values yields the non-empty slots in ascending order.
func (d *Document) Values() iter.Seq2[uint32, []byte] {
	return func(yield func(uint32, []byte) bool) {
		for _, slot := range slices.Sorted(maps.Keys(d.values)) {
			if !yield(slot, d.values[slot]) {
				return
			}
		}
	}
}

// AddTerm adds wdfInc to term's wdf without recording a position.
func (d *Document) AddTerm(term string, wdfInc uint32) {
	ti := d.term(term)
	ti.wdf += wdfInc
}

// AddPosting records term at position pos and adds wdfInc to its wdf.
func (d *Document) AddPosting(term string, pos uint32, wdfInc uint32) {
	ti := d.term(term)
	ti.wdf += wdfInc
	i, found := slices.BinarySearch(ti.positions, pos)
	if !found {
		ti.positions = slices.Insert(ti.positions, i, pos)
	}
}

// AddBooleanTerm adds a term with wdf 0 and no positions, for filtering
// and unique ids.
func (d *Document) AddBooleanTerm(term string) {
	d.term(term)
}

func (d *Document) term(term string) *termInfo {
	ti, ok := d.terms[term]
	if !ok {
		ti = &termInfo{}
		d.terms[term] = ti
	}
	return ti
}

// RemoveTerm removes term and its postings.
func (d *Document) RemoveTerm(term string) error {
	if _, ok := d.terms[term]; !ok {
		return fmt.Errorf("%w: term %q not in document", apperrors.ErrInvalidArgument, term)
	}
	delete(d.terms, term)
	return nil
}

func (d *Document) ClearTerms() {
	clear(d.terms)
}

func (d *Document) TermCount() int {
	return len(d.terms)
}

// HasTerm reports whether the document carries term.
func (d *Document) HasTerm(term string) bool {
	_, ok := d.terms[term]
	return ok
}

// Terms yields the document's terms in sorted order.
func (d *Document) Terms() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, t := range slices.Sorted(maps.Keys(d.terms)) {
			if !yield(t) {
				return
			}
		}
	}
}

// Wdf returns the within-document frequency of term.
func (d *Document) Wdf(term string) uint32 {
	if ti, ok := d.terms[term]; ok {
		return ti.wdf
	}
	return 0
}

func (d *Document) validate() error {
	for t := range d.terms {
		if t == "" {
			return fmt.Errorf("%w: empty term", apperrors.ErrInvalidArgument)
		}
		if len(t) > MaxTermLength {
			return fmt.Errorf("%w: term %s... exceeds %d bytes",
				apperrors.ErrInvalidArgument, strconv.Quote(t[:16]), MaxTermLength)
		}
	}
	if _, ok := d.values[BadValueSlot]; ok {
		return fmt.Errorf("%w: value slot %d is reserved", apperrors.ErrInvalidArgument, BadValueSlot)
	}
	return nil
}

// toRecord converts d into the stored record and postings for docid id.
func (d *Document) toRecord(id uint32) (*docstore.Record, map[string]index.Posting) {
	rec := &docstore.Record{
		ID:   id,
		Data: slices.Clone(d.data),
	}
	if len(d.values) > 0 {
		rec.Values = make(map[uint32][]byte, len(d.values))
		for slot, v := range d.values {
			rec.Values[slot] = slices.Clone(v)
		}
	}
	postings := make(map[string]index.Posting, len(d.terms))
	for t, ti := range d.terms {
		postings[t] = index.Posting{
			Frequency: ti.wdf,
			Positions: slices.Clone(ti.positions),
		}
	}
	return rec, postings
}
