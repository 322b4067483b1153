// Package matchspy collects statistics over every document that matches a
// query, not only the returned page.
package matchspy

import (
	"cmp"
	"iter"
	"maps"
	"slices"
)

// Document gives a spy access to a matching document's values.
type Document interface {
	ID() uint32
	Value(slot uint32) ([]byte, error)
}

// MatchSpy observes each matching document once per evaluation.
type MatchSpy interface {
	Observe(doc Document, weight float64) error
}

// ValueCount is one entry of a frequency table.
type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// ValueCountMatchSpy counts the values of one slot across the matches it
// observes. Documents with an empty slot are counted in Total but not in
// the table. It is not safe for concurrent use.
type ValueCountMatchSpy struct {
	slot   uint32
	total  int
	counts map[string]int
}

func NewValueCountMatchSpy(slot uint32) *ValueCountMatchSpy {
	return &ValueCountMatchSpy{slot: slot, counts: make(map[string]int)}
}

func (s *ValueCountMatchSpy) Slot() uint32 { return s.slot }

func (s *ValueCountMatchSpy) Observe(doc Document, _ float64) error {
	s.total++
	v, err := doc.Value(s.slot)
	if err != nil {
		return err
	}
	if len(v) > 0 {
		s.counts[string(v)]++
	}
	return nil
}

// Total is the number of documents observed.
func (s *ValueCountMatchSpy) Total() int { return s.total }

// Count returns how many observed documents had value in the slot.
func (s *ValueCountMatchSpy) Count(value string) int { return s.counts[value] }

// Values yields each distinct value and its count in ascending value
// order.
func (s *ValueCountMatchSpy) Values() iter.Seq2[string, int] {
	keys := slices.Sorted(maps.Keys(s.counts))
	return func(yield func(string, int) bool) {
		for _, k := range keys {
			if !yield(k, s.counts[k]) {
				return
			}
		}
	}
}

// TopValues returns up to n values with the highest counts. Equal counts
// are ordered by value.
func (s *ValueCountMatchSpy) TopValues(n int) []ValueCount {
	out := make([]ValueCount, 0, len(s.counts))
	for v, c := range s.counts {
		out = append(out, ValueCount{Value: v, Count: c})
	}
	slices.SortFunc(out, func(a, b ValueCount) int {
		if a.Count != b.Count {
			return cmp.Compare(b.Count, a.Count)
		}
		return cmp.Compare(a.Value, b.Value)
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Reset clears the counts so the spy can observe another evaluation.
func (s *ValueCountMatchSpy) Reset() {
	s.total = 0
	clear(s.counts)
}
