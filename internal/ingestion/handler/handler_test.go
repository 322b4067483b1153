package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/kafka"
)

type recordingSink struct {
	events []kafka.Event
	err    error
}

func (s *recordingSink) Publish(ctx context.Context, e kafka.Event) error {
	return s.PublishBatch(ctx, []kafka.Event{e})
}

func (s *recordingSink) PublishBatch(_ context.Context, events []kafka.Event) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, events...)
	return nil
}

func newServer(sink *recordingSink) *httptest.Server {
	mux := http.NewServeMux()
	New(publisher.New(nil, sink)).Register(mux)
	return httptest.NewServer(mux)
}

func do(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	return resp, out
}

func TestUpsertPublishes(t *testing.T) {
	sink := &recordingSink{}
	srv := newServer(sink)
	defer srv.Close()

	resp, body := do(t, http.MethodPost, srv.URL+"/v1/movies",
		`{"id":238,"title":"The Godfather","overview":"Crime family.","release_date":69292800,"genres":["Drama","Crime"]}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}
	if body["status"] != "PENDING" || body["op"] != "upsert" {
		t.Fatalf("body = %v", body)
	}
	if len(sink.events) != 1 || sink.events[0].Key != "238" {
		t.Fatalf("events = %+v", sink.events)
	}
	ev := sink.events[0].Value.(ingestion.IngestEvent)
	if ev.Movie.Title != "The Godfather" || ev.IngestedAt.IsZero() {
		t.Fatalf("event = %+v", ev)
	}
}

func TestUpsertValidation(t *testing.T) {
	sink := &recordingSink{}
	srv := newServer(sink)
	defer srv.Close()

	resp, body := do(t, http.MethodPost, srv.URL+"/v1/movies", `{"id":0,"title":" "}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	fields, _ := body["fields"].(map[string]any)
	if fields["id"] == nil || fields["title"] == nil {
		t.Fatalf("fields = %v", body["fields"])
	}
	resp, _ = do(t, http.MethodPost, srv.URL+"/v1/movies", `not json`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if len(sink.events) != 0 {
		t.Fatalf("invalid submissions were published")
	}
}

func TestDelete(t *testing.T) {
	sink := &recordingSink{}
	srv := newServer(sink)
	defer srv.Close()

	resp, _ := do(t, http.MethodDelete, srv.URL+"/v1/movies/769", "")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ev := sink.events[0].Value.(ingestion.IngestEvent); ev.Op != ingestion.OpDelete || ev.Movie.ID != 769 {
		t.Fatalf("event = %+v", ev)
	}
	resp, _ = do(t, http.MethodDelete, srv.URL+"/v1/movies/abc", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestPublishFailure(t *testing.T) {
	srv := newServer(&recordingSink{err: errors.New("broker down")})
	defer srv.Close()
	resp, body := do(t, http.MethodPost, srv.URL+"/v1/movies", `{"id":1,"title":"x"}`)
	if resp.StatusCode != http.StatusInternalServerError || body["error"] != "submission failed" {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}
}

func TestStatusWithoutTracking(t *testing.T) {
	srv := newServer(&recordingSink{})
	defer srv.Close()
	resp, _ := do(t, http.MethodGet, srv.URL+"/v1/movies/1/status", "")
	if resp.StatusCode != http.StatusNotImplemented {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
