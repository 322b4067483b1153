package segment

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/docstore"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
)

func buildSegment(t *testing.T, dir string, id uint64, docs map[uint32][]string) Info {
	t.Helper()
	m := index.NewMemoryIndex()
	for docID, terms := range docs {
		postings := make(map[string]index.Posting)
		for pos, term := range terms {
			p := postings[term]
			p.Frequency++
			p.Positions = append(p.Positions, uint32(pos))
			postings[term] = p
		}
		rec := &docstore.Record{
			ID:     docID,
			Data:   []byte("payload"),
			Values: map[uint32][]byte{0: docstore.SortableSerialise(float64(docID))},
		}
		m.AddDocument(rec, postings)
	}
	info, err := NewWriter(dir).Write(id, m.Snapshot(), m.Documents())
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	return info
}

func TestWriteAndRead(t *testing.T) {
	dir := t.TempDir()
	info := buildSegment(t, dir, 1, map[uint32][]string{
		1: {"red", "car"},
		2: {"blue", "car", "car"},
		7: {"red", "bicycle"},
	})
	if info.Name != "seg_000001.spdx" || info.DocCount != 3 || info.TotalLength != 7 {
		t.Fatalf("info = %+v", info)
	}

	r, err := OpenReader(filepath.Join(dir, info.Name))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	pl, err := r.Search("car")
	if err != nil {
		t.Fatal(err)
	}
	if len(pl) != 2 || pl[0].DocID != 1 || pl[1].DocID != 2 {
		t.Fatalf("car postings = %+v", pl)
	}
	if pl[1].Frequency != 2 || len(pl[1].Positions) != 2 || pl[1].Positions[1] != 2 {
		t.Errorf("doc 2 posting = %+v", pl[1])
	}
	if stats, ok := r.Stats("car"); !ok || stats.DocFreq != 2 || stats.CollFreq != 3 {
		t.Errorf("Stats(car) = %+v, %v", stats, ok)
	}
	if pl, _ := r.Search("train"); pl != nil {
		t.Errorf("missing term returned %+v", pl)
	}

	rec, err := r.Document(7)
	if err != nil {
		t.Fatal(err)
	}
	if string(rec.Data) != "payload" || rec.Length != 2 {
		t.Errorf("record = %+v", rec)
	}
	if v, _ := docstore.SortableUnserialise(rec.Value(0)); v != 7 {
		t.Errorf("value slot 0 = %v", v)
	}
	if _, err := r.Document(3); !errors.Is(err, apperrors.ErrDocNotFound) {
		t.Errorf("Document(3) err = %v", err)
	}
	if l, ok := r.DocLength(2); !ok || l != 3 {
		t.Errorf("DocLength(2) = %d, %v", l, ok)
	}

	var terms []string
	for ts := range r.Terms("b") {
		terms = append(terms, ts.Term)
	}
	if len(terms) != 2 || terms[0] != "bicycle" || terms[1] != "blue" {
		t.Errorf("Terms(b) = %v", terms)
	}
}

func TestCorruptSegment(t *testing.T) {
	dir := t.TempDir()
	info := buildSegment(t, dir, 1, map[uint32][]string{1: {"red"}})
	path := filepath.Join(dir, info.Name)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	data[HeaderSize+1] ^= 0xff
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenReader(path); !errors.Is(err, apperrors.ErrDatabaseCorrupt) {
		t.Fatalf("err = %v, want ErrDatabaseCorrupt", err)
	}

	if err := os.WriteFile(path, []byte("short"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenReader(path); !errors.Is(err, apperrors.ErrDatabaseCorrupt) {
		t.Fatalf("truncated err = %v, want ErrDatabaseCorrupt", err)
	}
}

func TestWriteEmptyFails(t *testing.T) {
	if _, err := NewWriter(t.TempDir()).Write(1, nil, nil); err == nil {
		t.Fatal("expected error for empty segment")
	}
}

func TestSyncDir(t *testing.T) {
	dir := t.TempDir()
	info := buildSegment(t, dir, 1, map[uint32][]string{1: {"a"}})
	if err := SyncDir(dir); err != nil {
		t.Fatalf("SyncDir: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, info.Name)); err != nil {
		t.Fatalf("segment missing after write: %v", err)
	}
	if err := SyncDir(filepath.Join(dir, "missing")); err == nil {
		t.Fatal("expected error for a missing directory")
	}
}

func TestMerge(t *testing.T) {
	dir := t.TempDir()
	a := buildSegment(t, dir, 1, map[uint32][]string{1: {"red", "car"}, 2: {"blue", "car"}})
	b := buildSegment(t, dir, 2, map[uint32][]string{3: {"red", "bicycle"}, 2: {"green", "car"}})
	ra, err := OpenReader(filepath.Join(dir, a.Name))
	if err != nil {
		t.Fatal(err)
	}
	rb, err := OpenReader(filepath.Join(dir, b.Name))
	if err != nil {
		t.Fatal(err)
	}
	// doc 2 was replaced by segment b.
	deleted := roaring.BitmapOf(2)

	info, err := NewWriter(dir).Merge(3, []Source{{Reader: ra, Deleted: deleted}, {Reader: rb}})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if info.DocCount != 3 {
		t.Fatalf("DocCount = %d", info.DocCount)
	}
	merged, err := OpenReader(filepath.Join(dir, info.Name))
	if err != nil {
		t.Fatal(err)
	}
	if pl, _ := merged.Search("blue"); pl != nil {
		t.Errorf("deleted doc's term survived: %+v", pl)
	}
	pl, _ := merged.Search("car")
	if len(pl) != 2 || pl[0].DocID != 1 || pl[1].DocID != 2 {
		t.Errorf("car postings = %+v", pl)
	}
	rec, err := merged.Document(2)
	if err != nil || rec.Terms[0] != "car" || rec.Terms[1] != "green" {
		t.Errorf("doc 2 = %+v, %v", rec, err)
	}

	empty, err := NewWriter(dir).Merge(4, []Source{{Reader: ra, Deleted: roaring.BitmapOf(1, 2)}})
	if err != nil || empty.DocCount != 0 || empty.Name != "" {
		t.Errorf("fully deleted merge = %+v, %v", empty, err)
	}
}
