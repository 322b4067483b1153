package indexer

import (
	"errors"
	"slices"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/database"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
)

func english(t *testing.T) *tokenizer.Stemmer {
	t.Helper()
	s, err := tokenizer.NewStemmer("en")
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestIndexTextNoStemmer(t *testing.T) {
	g := New()
	doc := database.NewDocument()
	g.SetDocument(doc)
	if err := g.IndexText("Red cars, red CARS"); err != nil {
		t.Fatal(err)
	}
	got := slices.Collect(doc.Terms())
	if !slices.Equal(got, []string{"cars", "red"}) {
		t.Fatalf("terms = %v", got)
	}
	if doc.Wdf("red") != 2 || doc.Length() != 4 {
		t.Fatalf("wdf(red) = %d, length = %d", doc.Wdf("red"), doc.Length())
	}
	if g.Termpos() != 4 {
		t.Fatalf("termpos = %d, want 4", g.Termpos())
	}
}

func TestStemStrategies(t *testing.T) {
	tests := []struct {
		strategy tokenizer.StemStrategy
		want     []string
	}{
		{tokenizer.StemNone, []string{"Trunning"}},
		{tokenizer.StemSome, []string{"Trunning", "ZTrun"}},
		{tokenizer.StemAll, []string{"Trun"}},
		{tokenizer.StemAllZ, []string{"ZTrun"}},
	}
	for _, tt := range tests {
		t.Run(tt.strategy.String(), func(t *testing.T) {
			g := New()
			g.SetStemmer(english(t))
			if err := g.SetStemmingStrategy(tt.strategy); err != nil {
				t.Fatal(err)
			}
			doc := database.NewDocument()
			g.SetDocument(doc)
			if err := g.IndexTextWithPrefix("running", "T"); err != nil {
				t.Fatal(err)
			}
			if got := slices.Collect(doc.Terms()); !slices.Equal(got, tt.want) {
				t.Fatalf("terms = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTermposContinuesAcrossCalls(t *testing.T) {
	g := New()
	doc := database.NewDocument()
	g.SetDocument(doc)
	g.IndexText("one two")
	g.IncreaseTermpos(DefaultTermposGap)
	g.IndexText("three")
	if g.Termpos() != 103 {
		t.Fatalf("termpos = %d, want 103", g.Termpos())
	}

	g.SetDocument(database.NewDocument())
	if g.Termpos() != 0 {
		t.Fatalf("SetDocument did not reset termpos")
	}
}

func TestIndexWithoutDocument(t *testing.T) {
	if err := New().IndexText("x"); !errors.Is(err, apperrors.ErrInvalidOperation) {
		t.Fatalf("err = %v, want ErrInvalidOperation", err)
	}
}

func TestSetFlags(t *testing.T) {
	g := New()
	if _, err := g.SetFlags(FlagCJKNgram, 0); err != nil {
		t.Fatal(err)
	}
	if g.Flags() != FlagCJKNgram {
		t.Fatalf("flags = %d", g.Flags())
	}
	if _, err := g.SetFlags(FlagSpelling, ^0); !errors.Is(err, apperrors.ErrUnimplemented) {
		t.Fatalf("spelling: err = %v, want ErrUnimplemented", err)
	}
	if _, err := g.SetFlags(1<<20, ^0); !errors.Is(err, apperrors.ErrInvalidArgument) {
		t.Fatalf("unknown flag: err = %v, want ErrInvalidArgument", err)
	}
	if g.Flags() != FlagCJKNgram {
		t.Fatalf("failed SetFlags changed flags to %d", g.Flags())
	}
	if err := g.SetStemmingStrategy(9); !errors.Is(err, apperrors.ErrInvalidArgument) {
		t.Fatalf("bad strategy: err = %v", err)
	}
}

func TestCJKNgramsAreNotStemmed(t *testing.T) {
	g := New()
	g.SetStemmer(english(t))
	g.SetFlags(FlagCJKNgram, 0)
	doc := database.NewDocument()
	g.SetDocument(doc)
	g.IndexText("東京タワー")
	for _, term := range []string{"東", "東京", "京", "タワ"} {
		if !doc.HasTerm(term) {
			t.Errorf("missing term %q", term)
		}
	}
	for term := range doc.Terms() {
		if term[0] == 'Z' {
			t.Errorf("CJK n-gram was stemmed: %q", term)
		}
	}
}

func TestStopper(t *testing.T) {
	g := New()
	g.SetStopper(tokenizer.NewStopList("the"))
	doc := database.NewDocument()
	g.SetDocument(doc)
	g.IndexText("the car")
	if doc.HasTerm("the") || !doc.HasTerm("car") {
		t.Fatalf("terms = %v", slices.Collect(doc.Terms()))
	}
	if g.Termpos() != 2 {
		t.Fatalf("stopped word did not consume a position")
	}
}

func TestIndexNumbers(t *testing.T) {
	g := New()
	doc := database.NewDocument()
	g.SetDocument(doc)
	g.IndexInt(1972, "Y")
	g.IndexLong(-5, "N")
	g.IndexDouble(2.5, "D")
	g.IndexDouble(1972, "E")
	for _, term := range []string{"Y1972", "N-5", "D2.5", "E1972"} {
		if !doc.HasTerm(term) {
			t.Errorf("missing term %q; have %v", term, slices.Collect(doc.Terms()))
		}
	}
}

func TestIndexedDocumentIsSearchable(t *testing.T) {
	w, err := database.OpenWritable(t.TempDir(), database.ModeCreateOrOpen, database.Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	g := New()
	g.SetStemmer(english(t))
	doc := database.NewDocument()
	doc.SetData([]byte(`{"title":"Running Man"}`))
	g.SetDocument(doc)
	g.IndexTextWithPrefix("Running Man", "T")
	g.IncreaseTermpos(DefaultTermposGap)
	g.IndexText("A man keeps running")
	id, err := w.AddDocument(doc)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Commit(); err != nil {
		t.Fatal(err)
	}

	snap, err := w.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	for _, term := range []string{"running", "man", "Tman", "Zrun", "ZTrun"} {
		pl, err := snap.PostingList(term)
		if err != nil || len(pl) != 1 || pl[0].DocID != id {
			t.Errorf("PostingList(%q) = %v, %v", term, pl, err)
		}
	}
	pl, _ := snap.PostingList("man")
	if !slices.Equal(pl[0].Positions, []uint32{104}) {
		t.Fatalf("positions of man = %v, want [104]", pl[0].Positions)
	}
}
