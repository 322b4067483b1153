package merger

import (
	"testing"
)

func ids(items []Item) []uint32 {
	out := make([]uint32, len(items))
	for i, it := range items {
		out[i] = it.DocID
	}
	return out
}

func equal(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestTopKKeepsBest(t *testing.T) {
	tk := NewTopK(3, ByRelevance)
	for i, w := range []float64{0.5, 2, 1, 3, 0.1, 2} {
		tk.Push(Item{DocID: uint32(i + 1), Weight: w})
	}
	worst, _ := tk.Worst()
	if worst.Weight != 2 || worst.DocID != 6 {
		t.Fatalf("worst = %+v", worst)
	}
	got := ids(tk.Sorted())
	if want := []uint32{4, 2, 6}; !equal(got, want) {
		t.Fatalf("sorted = %v, want %v", got, want)
	}
}

func TestTiesBreakByDocID(t *testing.T) {
	tk := NewTopK(2, ByRelevance)
	for _, id := range []uint32{9, 3, 7, 1} {
		tk.Push(Item{DocID: id, Weight: 1})
	}
	if got := ids(tk.Sorted()); !equal(got, []uint32{1, 3}) {
		t.Fatalf("sorted = %v, want [1 3]", got)
	}
}

func TestByKey(t *testing.T) {
	items := []Item{
		{DocID: 1, Key: []byte("b")},
		{DocID: 2, Key: []byte("a")},
		{DocID: 3, Key: []byte("c")},
		{DocID: 4, Key: []byte("a")},
	}
	got := ids(Merge([][]Item{items}, 10, ByKey(false)))
	if want := []uint32{2, 4, 1, 3}; !equal(got, want) {
		t.Fatalf("ascending = %v, want %v", got, want)
	}
	got = ids(Merge([][]Item{items}, 10, ByKey(true)))
	if want := []uint32{3, 1, 2, 4}; !equal(got, want) {
		t.Fatalf("descending = %v, want %v", got, want)
	}
}

func TestMergeLists(t *testing.T) {
	a := []Item{{DocID: 1, Weight: 5}, {DocID: 2, Weight: 1}}
	b := []Item{{DocID: 3, Weight: 4}, {DocID: 4, Weight: 3}}
	if got := ids(Merge([][]Item{a, b}, 3, ByRelevance)); !equal(got, []uint32{1, 3, 4}) {
		t.Fatalf("merged = %v", got)
	}
}

func TestZeroLimit(t *testing.T) {
	tk := NewTopK(0, ByRelevance)
	if tk.Push(Item{DocID: 1}) || tk.Len() != 0 {
		t.Fatal("zero-limit TopK retained an item")
	}
}

func BenchmarkTopK(b *testing.B) {
	for b.Loop() {
		tk := NewTopK(10, ByRelevance)
		for i := range 10000 {
			tk.Push(Item{DocID: uint32(i), Weight: float64(i % 97)})
		}
		tk.Sorted()
	}
}
