package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/database"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/tracing"
)

func year(y int) int64 {
	return time.Date(y, time.June, 1, 0, 0, 0, 0, time.UTC).Unix()
}

var corpus = []ingestion.Movie{
	{ID: 238, Title: "The Godfather", Overview: "The aging patriarch of an organized crime dynasty of gangsters transfers control to his son.", ReleaseDate: year(1972), Genres: []string{"Drama", "Crime"}},
	{ID: 240, Title: "The Godfather Part II", Overview: "The early life of Vito Corleone and the gangsters around his son Michael.", ReleaseDate: year(1974), Genres: []string{"Drama", "Crime"}},
	{ID: 769, Title: "GoodFellas", Overview: "Henry Hill grows up among gangsters in Brooklyn.", ReleaseDate: year(1990), Genres: []string{"Drama", "Crime"}},
	{ID: 11, Title: "Star Wars", Overview: "Princess Leia is held hostage by the Empire.", ReleaseDate: year(1977), Genres: []string{"Adventure", "Action"}},
	{ID: 1891, Title: "The Empire Strikes Back", Overview: "The rebels scatter after the Empire attacks.", ReleaseDate: year(1980), Genres: []string{"Adventure", "Action"}},
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	New(newTestSearcher(t), nil).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestSearcher(t *testing.T) *Searcher {
	t.Helper()
	a, err := ingestion.NewAnalysis(config.IndexerConfig{Stemmer: "english", StemStrategy: "some"})
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	w, err := database.OpenWritable(dir, database.ModeCreateOrOpen, database.Options{})
	if err != nil {
		t.Fatal(err)
	}
	g, err := a.TermGenerator()
	if err != nil {
		t.Fatal(err)
	}
	for i := range corpus {
		doc, idterm, err := ingestion.BuildDocument(g, &corpus[i])
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.ReplaceDocument(idterm, doc); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	db, err := database.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	s := NewSearcher(db, a, nil, config.SearchConfig{
		DefaultLimit:         10,
		MaxResults:           100,
		Timeout:              2 * time.Second,
		MaxWildcardExpansion: 100,
	})
	return s
}

func get(t *testing.T, srv *httptest.Server, path string, params url.Values, out any) int {
	t.Helper()
	u := srv.URL + path
	if params != nil {
		u += "?" + params.Encode()
	}
	resp, err := http.Get(u)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode
}

func ids(resp Response) []int64 {
	var out []int64
	for _, r := range resp.Results {
		out = append(out, r.Movie.ID)
	}
	return out
}

func TestSearchWithRangeAndFacets(t *testing.T) {
	srv := newTestServer(t)
	var resp Response
	status := get(t, srv, "/v1/search", url.Values{
		"q":      {"overview:gangsters year:1972..1975"},
		"facets": {"genres"},
	}, &resp)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	got := ids(resp)
	slices.Sort(got)
	if !slices.Equal(got, []int64{238, 240}) {
		t.Fatalf("ids = %v (parsed %s)", got, resp.Parsed)
	}
	if resp.MatchesEstimated != 2 {
		t.Fatalf("estimated = %d", resp.MatchesEstimated)
	}
	genres := resp.Facets["genres"]
	if len(genres) != 1 || genres[0].Value != "Drama,Crime" || genres[0].Count != 2 {
		t.Fatalf("facets = %+v", resp.Facets)
	}
	for _, r := range resp.Results {
		if !strings.Contains(r.Snippet, "<b>") {
			t.Errorf("snippet %q has no highlight", r.Snippet)
		}
	}
}

func TestBrowseSortedByYear(t *testing.T) {
	srv := newTestServer(t)
	var resp Response
	if status := get(t, srv, "/v1/search", url.Values{"sort": {"-year"}, "limit": {"3"}}, &resp); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if got := ids(resp); !slices.Equal(got, []int64{769, 1891, 11}) {
		t.Fatalf("ids = %v", got)
	}
	if resp.MatchesEstimated != uint32(len(corpus)) {
		t.Fatalf("estimated = %d", resp.MatchesEstimated)
	}
}

func TestPagination(t *testing.T) {
	srv := newTestServer(t)
	var all Response
	get(t, srv, "/v1/search", url.Values{"q": {"the"}, "limit": {"10"}}, &all)
	var pages []int64
	for offset := 0; offset < len(all.Results); offset += 2 {
		var page Response
		get(t, srv, "/v1/search", url.Values{"q": {"the"}, "limit": {"2"}, "offset": {strconv.Itoa(offset)}}, &page)
		pages = append(pages, ids(page)...)
	}
	if !slices.Equal(pages, ids(all)) {
		t.Fatalf("pages %v != full %v", pages, ids(all))
	}
}

func TestSearchErrors(t *testing.T) {
	srv := newTestServer(t)
	var body map[string]any
	if status := get(t, srv, "/v1/search", url.Values{"q": {`red "car`}}, &body); status != http.StatusBadRequest {
		t.Fatalf("status = %d", status)
	}
	if body["position"] != float64(4) {
		t.Fatalf("body = %v", body)
	}
	for _, params := range []url.Values{
		{"q": {"x"}, "facets": {"colour"}},
		{"q": {"x"}, "sort": {"popularity"}},
		{"q": {"x"}, "limit": {"-1"}},
		{"q": {"x"}, "offset": {"99"}, "limit": {"10"}},
	} {
		body = nil
		if status := get(t, srv, "/v1/search", params, &body); status != http.StatusBadRequest {
			t.Errorf("%v: status = %d, body = %v", params, status, body)
		}
	}
}

func TestMovieAndStats(t *testing.T) {
	srv := newTestServer(t)
	var movie ingestion.Movie
	if status := get(t, srv, "/v1/movies/769", nil, &movie); status != http.StatusOK || movie.Title != "GoodFellas" {
		t.Fatalf("status = %d, movie = %+v", status, movie)
	}
	var body map[string]any
	if status := get(t, srv, "/v1/movies/4242", nil, &body); status != http.StatusNotFound {
		t.Fatalf("missing movie status = %d", status)
	}
	var stats Stats
	if status := get(t, srv, "/v1/stats", nil, &stats); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if stats.DocCount != uint32(len(corpus)) || stats.Revision != 1 || stats.UUID == "" {
		t.Fatalf("stats = %+v", stats)
	}
	var cacheStats map[string]string
	get(t, srv, "/v1/cache/stats", nil, &cacheStats)
	if cacheStats["status"] != "disabled" {
		t.Fatalf("cache stats = %v", cacheStats)
	}
}

func TestSearchSpans(t *testing.T) {
	s := newTestSearcher(t)
	ctx, root := tracing.StartSpan(context.Background(), "search", "req-1")
	if _, err := s.run(ctx, Request{Query: "gangsters", Limit: 10}); err != nil {
		t.Fatal(err)
	}
	root.End()

	var names []string
	for _, c := range root.Children {
		names = append(names, c.Name)
	}
	if !slices.Equal(names, []string{"parse", "match", "fetch"}) {
		t.Fatalf("spans = %v", names)
	}
	match := root.Children[1]
	if v, ok := match.Attr("estimated"); !ok || v != uint64(3) {
		t.Fatalf("estimated = %v (%T), %v", v, v, ok)
	}
	if match.Duration <= 0 {
		t.Fatalf("match span not ended")
	}
}
