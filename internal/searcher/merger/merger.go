// Package merger keeps the best K results of a query evaluation in a
// bounded heap.
package merger

import (
	"bytes"
	"container/heap"
)

// Item is one scored candidate.
type Item struct {
	DocID  uint32
	Weight float64
	// Key is the sort key when results are ordered by value.
	Key []byte
}

// Better reports whether a ranks before b.
type Better func(a, b Item) bool

// Order describes a ranking. Items compare by descending weight (when
// Relevance is set), then by sort key (when Key is set), then by docid.
type Order struct {
	Relevance       bool
	Key             bool
	ReverseKey      bool
	DocIDDescending bool
}

// Better returns the comparison for o.
func (o Order) Better() Better {
	return func(a, b Item) bool {
		if o.Relevance && a.Weight != b.Weight {
			return a.Weight > b.Weight
		}
		if o.Key {
			if c := bytes.Compare(a.Key, b.Key); c != 0 {
				return (c < 0) != o.ReverseKey
			}
		}
		if o.DocIDDescending {
			return a.DocID > b.DocID
		}
		return a.DocID < b.DocID
	}
}

// ByRelevance orders by descending weight, then ascending docid.
var ByRelevance = Order{Relevance: true}.Better()

// ByKey orders by sort key (descending when reverse is set), then
// ascending docid.
func ByKey(reverse bool) Better {
	return Order{Key: true, ReverseKey: reverse}.Better()
}

// TopK retains the limit best items pushed into it. The root of the
// underlying heap is the worst retained item.
type TopK struct {
	h     itemHeap
	limit int
}

func NewTopK(limit int, better Better) *TopK {
	return &TopK{
		h:     itemHeap{better: better, items: make([]Item, 0, min(limit, 1024))},
		limit: limit,
	}
}

// Push offers an item and reports whether it was retained.
func (t *TopK) Push(it Item) bool {
	if t.limit <= 0 {
		return false
	}
	if len(t.h.items) < t.limit {
		heap.Push(&t.h, it)
		return true
	}
	if !t.h.better(it, t.h.items[0]) {
		return false
	}
	t.h.items[0] = it
	heap.Fix(&t.h, 0)
	return true
}

func (t *TopK) Len() int { return len(t.h.items) }

// Full reports whether limit items are retained.
func (t *TopK) Full() bool { return len(t.h.items) >= t.limit }

// Worst returns the lowest-ranked retained item.
func (t *TopK) Worst() (Item, bool) {
	if len(t.h.items) == 0 {
		return Item{}, false
	}
	return t.h.items[0], true
}

// Sorted drains the heap and returns the items best first.
func (t *TopK) Sorted() []Item {
	result := make([]Item, len(t.h.items))
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(&t.h).(Item)
	}
	return result
}

// Merge combines already-ranked result lists into the limit best.
func Merge(lists [][]Item, limit int, better Better) []Item {
	t := NewTopK(limit, better)
	for _, list := range lists {
		for _, it := range list {
			t.Push(it)
		}
	}
	return t.Sorted()
}

type itemHeap struct {
	items  []Item
	better Better
}

func (h itemHeap) Len() int { return len(h.items) }

// Less puts the worst item at the root.
func (h itemHeap) Less(i, j int) bool { return h.better(h.items[j], h.items[i]) }

func (h itemHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *itemHeap) Push(x any) {
	h.items = append(h.items, x.(Item))
}

func (h *itemHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}
