package ingestion

import (
	"slices"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/database"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/matchspy"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/config"
)

func released(y int, m time.Month, d int) int64 {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC).Unix()
}

var movies = []Movie{
	{ID: 238, Title: "The Godfather", Overview: "Spanning the years 1945 to 1955, a chronicle of the fictional Italian-American Corleone crime family and gangsters.", ReleaseDate: released(1972, time.March, 14), Genres: []string{"Drama", "Crime"}},
	{ID: 240, Title: "The Godfather Part II", Overview: "The continuing saga of the Corleone crime family of gangsters.", ReleaseDate: released(1974, time.December, 20), Genres: []string{"Drama", "Crime"}},
	{ID: 769, Title: "GoodFellas", Overview: "The true story of Henry Hill, a half-Irish half-Sicilian Brooklyn kid adopted by gangsters.", ReleaseDate: released(1990, time.September, 12), Genres: []string{"Drama", "Crime"}},
	{ID: 11, Title: "Star Wars", Overview: "Princess Leia is captured and held hostage by the evil Imperial forces.", ReleaseDate: released(1977, time.May, 25), Genres: []string{"Adventure", "Action", "Science Fiction"}},
}

func analysis(t *testing.T) *Analysis {
	t.Helper()
	a, err := NewAnalysis(config.IndexerConfig{Stemmer: "english", StemStrategy: "some"})
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func TestBuildDocument(t *testing.T) {
	g, err := analysis(t).TermGenerator()
	if err != nil {
		t.Fatal(err)
	}
	doc, idterm, err := BuildDocument(g, &movies[0])
	if err != nil {
		t.Fatal(err)
	}
	if idterm != "Q238" {
		t.Fatalf("unique term = %q", idterm)
	}
	for _, term := range []string{"Q238", "XGdrama", "XGcrime", "Tgodfather", "godfather", "Ogangsters", "ZOgangster", "Zgangster"} {
		if !doc.HasTerm(term) {
			t.Errorf("missing term %q", term)
		}
	}
	if got := string(doc.Value(SlotGenres)); got != "Drama,Crime" {
		t.Errorf("genres slot = %q", got)
	}
	if got := string(doc.Value(SlotDate)); got != "19720314" {
		t.Errorf("date slot = %q", got)
	}
	if len(doc.Value(SlotYear)) == 0 {
		t.Errorf("year slot is empty")
	}

	back, err := DecodeDocument(doc)
	if err != nil {
		t.Fatal(err)
	}
	if back.ID != 238 || back.Title != "The Godfather" || !slices.Equal(back.Genres, movies[0].Genres) {
		t.Fatalf("decoded %+v", back)
	}
}

func TestGenreTerm(t *testing.T) {
	if got := GenreTerm(" Science Fiction "); got != "XGscience_fiction" {
		t.Fatalf("GenreTerm = %q", got)
	}
}

func indexMovies(t *testing.T, a *Analysis) *database.WritableDatabase {
	t.Helper()
	w, err := database.OpenWritable(t.TempDir(), database.ModeCreateOrOpen, database.Options{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { w.Close() })
	g, err := a.TermGenerator()
	if err != nil {
		t.Fatal(err)
	}
	for i := range movies {
		doc, idterm, err := BuildDocument(g, &movies[i])
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.ReplaceDocument(idterm, doc); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := w.Commit(); err != nil {
		t.Fatal(err)
	}
	return w
}

func TestMovieSearch(t *testing.T) {
	a := analysis(t)
	w := indexMovies(t, a)
	qp, err := a.QueryParser(w, 100)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		query string
		want  []int64
	}{
		{"overview:gangsters year:1972..1975", []int64{238, 240}},
		{"gangsters", []int64{238, 240, 769}},
		{"title:godfather", []int64{238, 240}},
		{"id:769", []int64{769}},
		{"gangsters genre:drama date:19740101..19951231", []int64{240, 769}},
		{"genre:science_fiction", []int64{11}},
		{"godfath*", []int64{238, 240}},
		{"corleone -\"part ii\"", []int64{238}},
	}
	for _, tt := range tests {
		q, err := qp.Parse(tt.query, a.ParseFlags())
		if err != nil {
			t.Fatalf("Parse(%q): %v", tt.query, err)
		}
		enq := executor.New(w)
		enq.SetQuery(q)
		ms, err := enq.GetMSet(0, 10)
		if err != nil {
			t.Fatalf("%q: %v", tt.query, err)
		}
		var got []int64
		for i := range ms.Size() {
			doc, err := ms.Document(i)
			if err != nil {
				t.Fatal(err)
			}
			m, err := DecodeDocument(doc)
			if err != nil {
				t.Fatal(err)
			}
			got = append(got, m.ID)
		}
		slices.Sort(got)
		if !slices.Equal(got, tt.want) {
			t.Errorf("%q (%s) matched %v, want %v", tt.query, q.Description(), got, tt.want)
		}
	}
}

func TestGenreFacets(t *testing.T) {
	a := analysis(t)
	w := indexMovies(t, a)
	qp, err := a.QueryParser(w, 0)
	if err != nil {
		t.Fatal(err)
	}
	q, err := qp.Parse("gangsters", a.ParseFlags())
	if err != nil {
		t.Fatal(err)
	}
	spy := matchspy.NewValueCountMatchSpy(SlotGenres)
	enq := executor.New(w)
	enq.SetQuery(q)
	enq.AddMatchSpy(spy)
	if _, err := enq.GetMSet(0, 1); err != nil {
		t.Fatal(err)
	}
	if spy.Total() != 3 || spy.Count("Drama,Crime") != 3 {
		t.Fatalf("total = %d, Drama,Crime = %d", spy.Total(), spy.Count("Drama,Crime"))
	}
}
