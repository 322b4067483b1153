package executor

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/database"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/docstore"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/matchspy"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
)

type testDoc struct {
	text  string
	year  int
	genre string
}

// buildDB indexes docs as Q1, Q2, ... and commits them.
func buildDB(t *testing.T, docs []testDoc) *database.WritableDatabase {
	t.Helper()
	w, err := database.OpenWritable(t.TempDir(), database.ModeCreateOrOpen, database.Options{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { w.Close() })
	g := indexer.New()
	for i, d := range docs {
		doc := database.NewDocument()
		doc.SetData([]byte(d.text))
		g.SetDocument(doc)
		if err := g.IndexText(d.text); err != nil {
			t.Fatal(err)
		}
		unique := fmt.Sprintf("Q%d", i+1)
		doc.AddBooleanTerm(unique)
		if d.year != 0 {
			doc.AddInt(0, int64(d.year))
		}
		if d.genre != "" {
			doc.AddString(1, d.genre)
		}
		if _, err := w.ReplaceDocument(unique, doc); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := w.Commit(); err != nil {
		t.Fatal(err)
	}
	return w
}

func docIDs(t *testing.T, ms *MSet) []uint32 {
	t.Helper()
	var out []uint32
	for m, err := range ms.All() {
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, m.DocID)
	}
	return out
}

func search(t *testing.T, db database.Reader, q *query.Query, first, max int) *MSet {
	t.Helper()
	e := New(db)
	e.SetQuery(q)
	ms, err := e.GetMSet(first, max)
	if err != nil {
		t.Fatalf("GetMSet(%s): %v", q.Description(), err)
	}
	return ms
}

var carDocs = []testDoc{
	{text: "red car"},
	{text: "blue car"},
	{text: "red bicycle"},
}

func TestRedCarScenario(t *testing.T) {
	w := buildDB(t, carDocs)

	ms := search(t, w, query.Term("car"), 0, 10)
	if got := docIDs(t, ms); !slices.Equal(got, []uint32{1, 2}) {
		t.Fatalf("car = %v, want [1 2]", got)
	}
	if ms.MatchesEstimated() != 2 || ms.MatchesLowerBound() != 2 || ms.MatchesUpperBound() != 2 {
		t.Fatalf("counts = %d/%d/%d", ms.MatchesLowerBound(), ms.MatchesEstimated(), ms.MatchesUpperBound())
	}

	ms = search(t, w, query.Must(query.OpAnd, query.Term("red"), query.Term("car")), 0, 10)
	if got := docIDs(t, ms); !slices.Equal(got, []uint32{1}) {
		t.Fatalf("red AND car = %v, want [1]", got)
	}

	ms = search(t, w, query.Must(query.OpOr, query.Term("red"), query.Term("car")), 0, 10)
	got := docIDs(t, ms)
	if len(got) != 3 || got[0] != 1 {
		t.Fatalf("red OR car = %v, want doc 1 first of 3", got)
	}
	m, _ := ms.At(0)
	if m.Percent != 100 || m.Rank != 0 {
		t.Fatalf("top match = %+v", m)
	}
}

func TestAbsentTermMatchesNothing(t *testing.T) {
	w := buildDB(t, carDocs)
	ms := search(t, w, query.Term("train"), 0, 10)
	if ms.Size() != 0 || ms.MatchesEstimated() != 0 {
		t.Fatalf("absent term matched %d", ms.Size())
	}
	ms = search(t, w, nil, 0, 10)
	if ms.Size() != 0 {
		t.Fatal("nil query matched documents")
	}
}

func TestBooleanOperators(t *testing.T) {
	w := buildDB(t, carDocs)
	red, car, blue := query.Term("red"), query.Term("car"), query.Term("blue")
	tests := []struct {
		name string
		q    *query.Query
		want []uint32
	}{
		{"and_not", query.Must(query.OpAndNot, red, car), []uint32{3}},
		{"xor", query.Must(query.OpXor, red, car), []uint32{2, 3}},
		{"xor3", query.Must(query.OpXor, red, car, blue), []uint32{3}},
		{"filter", query.Must(query.OpFilter, car, query.Term("Q2")), []uint32{2}},
		{"match_all", query.MatchAll(), []uint32{1, 2, 3}},
		{"and_match_nothing", query.Must(query.OpAnd, car, query.MatchNothing()), nil},
		{"synonym", query.Must(query.OpSynonym, blue, query.Term("bicycle")), []uint32{2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := docIDs(t, search(t, w, tt.q, 0, 10))
			slices.Sort(got)
			if !slices.Equal(got, tt.want) {
				t.Fatalf("%s = %v, want %v", tt.q.Description(), got, tt.want)
			}
		})
	}
}

func TestAndMaybeAddsWeightOnly(t *testing.T) {
	w := buildDB(t, carDocs)
	ms := search(t, w, query.Must(query.OpAndMaybe, query.Term("car"), query.Term("blue")), 0, 10)
	if got := docIDs(t, ms); !slices.Equal(got, []uint32{2, 1}) {
		t.Fatalf("car AND_MAYBE blue = %v, want [2 1]", got)
	}
}

func TestScaleWeightAndFilterWeights(t *testing.T) {
	w := buildDB(t, carDocs)
	plain := search(t, w, query.Term("car"), 0, 1)
	scaled, _ := query.ScaleWeight(query.Term("car"), 2)
	doubled := search(t, w, scaled, 0, 1)
	pm, _ := plain.At(0)
	dm, _ := doubled.At(0)
	if diff := dm.Weight - 2*pm.Weight; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("scaled weight %v, want %v", dm.Weight, 2*pm.Weight)
	}
	filtered := search(t, w, query.Must(query.OpFilter, query.Term("car"), query.Term("red")), 0, 1)
	fm, _ := filtered.At(0)
	if fm.Weight != pm.Weight {
		t.Fatalf("filter changed weight: %v vs %v", fm.Weight, pm.Weight)
	}
}

func TestPhraseAndNear(t *testing.T) {
	w := buildDB(t, []testDoc{
		{text: "new york city"},
		{text: "york is new"},
		{text: "new shiny york"},
	})
	phrase, err := query.Positional(query.OpPhrase, 0, query.Term("new"), query.Term("york"))
	if err != nil {
		t.Fatal(err)
	}
	if got := docIDs(t, search(t, w, phrase, 0, 10)); !slices.Equal(got, []uint32{1}) {
		t.Fatalf("phrase = %v, want [1]", got)
	}
	near, _ := query.Positional(query.OpNear, 3, query.Term("new"), query.Term("york"))
	got := docIDs(t, search(t, w, near, 0, 10))
	slices.Sort(got)
	if !slices.Equal(got, []uint32{1, 2, 3}) {
		t.Fatalf("near = %v, want [1 2 3]", got)
	}
	wide, _ := query.Positional(query.OpPhrase, 3, query.Term("new"), query.Term("york"))
	got = docIDs(t, search(t, w, wide, 0, 10))
	slices.Sort(got)
	if !slices.Equal(got, []uint32{1, 3}) {
		t.Fatalf("phrase window 3 = %v, want [1 3]", got)
	}
}

func TestValueRange(t *testing.T) {
	var docs []testDoc
	for year := 1968; year <= 1980; year++ {
		docs = append(docs, testDoc{text: "film", year: year})
	}
	w := buildDB(t, docs)

	q := query.ValueRange(0, docstore.SortableSerialise(1972), docstore.SortableSerialise(1975))
	ms := search(t, w, q, 0, 100)
	var years []int
	for i := range ms.Size() {
		doc, err := ms.Document(i)
		if err != nil {
			t.Fatal(err)
		}
		y, _ := doc.FloatValue(0)
		years = append(years, int(y))
	}
	slices.Sort(years)
	if !slices.Equal(years, []int{1972, 1973, 1974, 1975}) {
		t.Fatalf("years = %v", years)
	}

	ge := search(t, w, query.ValueGE(0, docstore.SortableSerialise(1979)), 0, 100)
	if ge.Size() != 2 {
		t.Fatalf("VALUE_GE 1979 matched %d, want 2", ge.Size())
	}
	le := search(t, w, query.Must(query.OpAnd, query.Term("film"), query.ValueLE(0, docstore.SortableSerialise(1969))), 0, 100)
	if le.Size() != 2 {
		t.Fatalf("film AND VALUE_LE 1969 matched %d, want 2", le.Size())
	}
}

func TestValueCountMatchSpySeesAllMatches(t *testing.T) {
	w := buildDB(t, []testDoc{
		{text: "explosion", genre: "action"},
		{text: "explosion chase", genre: "action"},
		{text: "explosion tears", genre: "drama"},
		{text: "romance", genre: "romance"},
	})
	spy := matchspy.NewValueCountMatchSpy(1)
	e := New(w)
	e.SetQuery(query.Term("explosion"))
	e.AddMatchSpy(spy)
	ms, err := e.GetMSet(0, 1)
	if err != nil {
		t.Fatal(err)
	}
	if ms.Size() != 1 {
		t.Fatalf("page size = %d", ms.Size())
	}
	got := map[string]int{}
	for v, n := range spy.Values() {
		got[v] = n
	}
	if len(got) != 2 || got["action"] != 2 || got["drama"] != 1 {
		t.Fatalf("genres = %v, want {action:2 drama:1}", got)
	}
	if spy.Total() != 3 {
		t.Fatalf("Total = %d, want 3", spy.Total())
	}
}

func TestPaginationConcatenates(t *testing.T) {
	words := []string{"alpha", "beta", "gamma", "delta"}
	var docs []testDoc
	for i := range 40 {
		var parts []string
		for j, w := range words {
			for range (i + j) % 4 {
				parts = append(parts, w)
			}
		}
		parts = append(parts, strings.Repeat("pad ", i%7))
		docs = append(docs, testDoc{text: strings.Join(parts, " ")})
	}
	w := buildDB(t, docs)
	q := query.Must(query.OpOr, query.Term("alpha"), query.Term("beta"), query.Term("gamma"))

	full := docIDs(t, search(t, w, q, 0, 25))
	page1 := docIDs(t, search(t, w, q, 0, 10))
	page2 := docIDs(t, search(t, w, q, 10, 15))
	joined := append(slices.Clone(page1), page2...)
	if !slices.Equal(full, joined) {
		t.Fatalf("pages %v + %v != %v", page1, page2, full)
	}
	seen := map[uint32]bool{}
	for _, id := range joined {
		if seen[id] {
			t.Fatalf("duplicate docid %d", id)
		}
		seen[id] = true
	}
	ms := search(t, w, q, 10, 15)
	if ms.FirstItem() != 10 {
		t.Fatalf("FirstItem = %d", ms.FirstItem())
	}
	if m, _ := ms.At(0); m.Rank != 10 {
		t.Fatalf("rank of first item = %d, want 10", m.Rank)
	}
}

func TestEarlyTerminationEstimates(t *testing.T) {
	var docs []testDoc
	for range 100 {
		docs = append(docs, testDoc{text: "common"})
	}
	w := buildDB(t, docs)
	e := New(w)
	e.SetQuery(query.Term("common"))
	e.SetWeightingScheme(ranker.Bool{})

	ms, err := e.GetMSet(0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if ms.Size() != 10 {
		t.Fatalf("Size = %d", ms.Size())
	}
	lo, est, hi := ms.MatchesLowerBound(), ms.MatchesEstimated(), ms.MatchesUpperBound()
	if lo > est || est > hi || lo < 10 || hi != 100 {
		t.Fatalf("bounds %d <= %d <= %d", lo, est, hi)
	}

	ms, err = e.GetMSetCheckAtLeast(0, 10, 100)
	if err != nil {
		t.Fatal(err)
	}
	if ms.MatchesLowerBound() != 100 || ms.MatchesEstimated() != 100 || ms.MatchesUpperBound() != 100 {
		t.Fatalf("check_at_least counts = %d/%d/%d", ms.MatchesLowerBound(), ms.MatchesEstimated(), ms.MatchesUpperBound())
	}
}

func TestSortByValue(t *testing.T) {
	w := buildDB(t, []testDoc{
		{text: "film", year: 1990, genre: "b"},
		{text: "film film", year: 1970, genre: "a"},
		{text: "film", year: 1980, genre: "a"},
	})
	e := New(w)
	e.SetQuery(query.Term("film"))
	e.SetSortByValue(0, false)
	ms, _ := e.GetMSet(0, 10)
	if got := docIDs(t, ms); !slices.Equal(got, []uint32{2, 3, 1}) {
		t.Fatalf("ascending year = %v", got)
	}
	e.SetSortByValue(0, true)
	ms, _ = e.GetMSet(0, 10)
	if got := docIDs(t, ms); !slices.Equal(got, []uint32{1, 3, 2}) {
		t.Fatalf("descending year = %v", got)
	}

	km := NewMultiValueKeyMaker().AddValue(1, false).AddValue(0, true)
	e.SetSortByKey(km, false)
	ms, _ = e.GetMSet(0, 10)
	if got := docIDs(t, ms); !slices.Equal(got, []uint32{3, 2, 1}) {
		t.Fatalf("genre asc, year desc = %v", got)
	}

	e.SetSortByRelevance()
	if err := e.SetDocIDOrder(DocIDDescending); err != nil {
		t.Fatal(err)
	}
	ms, _ = e.GetMSet(0, 10)
	if got := docIDs(t, ms); got[1] != 3 || got[2] != 1 {
		t.Fatalf("descending docid ties = %v", got)
	}
	if err := e.SetDocIDOrder(7); !errors.Is(err, apperrors.ErrInvalidArgument) {
		t.Fatalf("bad docid order: err = %v", err)
	}
}

func TestDeletedDocumentDisappears(t *testing.T) {
	w := buildDB(t, carDocs)
	if n, err := w.DeleteDocument("Q1"); err != nil || n != 1 {
		t.Fatalf("DeleteDocument = %d, %v", n, err)
	}
	if _, err := w.Commit(); err != nil {
		t.Fatal(err)
	}
	if ms := search(t, w, query.Term("Q1"), 0, 10); ms.Size() != 0 {
		t.Fatalf("deleted unique term still matches %v", docIDs(t, ms))
	}
	if _, err := w.Document(1); !errors.Is(err, apperrors.ErrDocNotFound) {
		t.Fatalf("Document(1) err = %v", err)
	}
	if got := docIDs(t, search(t, w, query.Term("car"), 0, 10)); !slices.Equal(got, []uint32{2}) {
		t.Fatalf("car = %v", got)
	}
}

func TestCloseInvalidatesIterators(t *testing.T) {
	w := buildDB(t, carDocs)
	db, err := database.Open(w.Path())
	if err != nil {
		t.Fatal(err)
	}
	ms := search(t, db, query.Term("car"), 0, 10)
	it := ms.Iterator()
	if !it.Next() {
		t.Fatal("no first match")
	}
	db.Close()

	if it.Next() {
		t.Fatal("Next succeeded after Close")
	}
	if !errors.Is(it.Err(), apperrors.ErrDatabaseClosed) {
		t.Fatalf("Err = %v, want ErrDatabaseClosed", it.Err())
	}
	if _, err := ms.Document(0); !errors.Is(err, apperrors.ErrDatabaseClosed) {
		t.Fatalf("Document after close: err = %v", err)
	}
	for _, err := range ms.All() {
		if !errors.Is(err, apperrors.ErrDatabaseClosed) {
			t.Fatalf("All after close yielded err = %v", err)
		}
	}
	if _, err := New(db).GetMSet(0, 10); !errors.Is(err, apperrors.ErrDatabaseClosed) {
		t.Fatalf("GetMSet after close: err = %v", err)
	}
}

func TestWriterMutationInvalidatesMSet(t *testing.T) {
	w := buildDB(t, carDocs)
	ms := search(t, w, query.Term("car"), 0, 10)
	doc := database.NewDocument()
	doc.AddTerm("car", 1)
	if _, err := w.AddDocument(doc); err != nil {
		t.Fatal(err)
	}
	it := ms.Iterator()
	if it.Next() || !errors.Is(it.Err(), apperrors.ErrIteratorInvalidated) {
		t.Fatalf("Err = %v, want ErrIteratorInvalidated", it.Err())
	}
}

func TestSnippet(t *testing.T) {
	w := buildDB(t, carDocs)
	stem, _ := tokenizer.NewStemmer("en")
	ms := search(t, w, query.Must(query.OpOr, query.Term("Zrace"), query.Term("car")), 0, 10)
	text := "Long before the start, the drivers raced their cars through the hills and valleys."
	got := ms.Snippet(text, 40, stem, "<b>", "</b>", "...")
	if !strings.Contains(got, "<b>raced</b>") || !strings.Contains(got, "<b>cars</b>") {
		t.Fatalf("snippet = %q", got)
	}
	if !strings.HasPrefix(got, "...") || !strings.HasSuffix(got, "...") {
		t.Fatalf("snippet not marked as cut: %q", got)
	}
}
