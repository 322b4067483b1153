package publisher

import (
	"context"
	"errors"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/postgres"
)

type fakeSink struct {
	events []kafka.Event
	err    error
}

func (s *fakeSink) Publish(_ context.Context, e kafka.Event) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, e)
	return nil
}

func (s *fakeSink) PublishBatch(ctx context.Context, events []kafka.Event) error {
	for _, e := range events {
		if err := s.Publish(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func TestSubmit(t *testing.T) {
	sink := &fakeSink{}
	p := New(nil, sink)
	resp, err := p.Submit(context.Background(), ingestion.IngestEvent{Op: ingestion.OpUpsert, Movie: ingestion.Movie{ID: 238, Title: "The Godfather"}})
	if err != nil {
		t.Fatal(err)
	}
	if resp.MovieID != 238 || resp.Status != postgres.StatusPending || resp.Op != string(ingestion.OpUpsert) {
		t.Fatalf("response = %+v", resp)
	}
	if len(sink.events) != 1 || sink.events[0].Key != "238" {
		t.Fatalf("events = %+v", sink.events)
	}
	e, ok := sink.events[0].Value.(ingestion.IngestEvent)
	if !ok || e.IngestedAt.IsZero() {
		t.Fatalf("value = %#v", sink.events[0].Value)
	}
}

func TestSubmitPublishFailure(t *testing.T) {
	boom := errors.New("broker down")
	p := New(nil, &fakeSink{err: boom})
	if _, err := p.Submit(context.Background(), ingestion.IngestEvent{Op: ingestion.OpDelete, Movie: ingestion.Movie{ID: 1}}); !errors.Is(err, boom) {
		t.Fatalf("Submit = %v", err)
	}
}

func TestSubmitBatch(t *testing.T) {
	sink := &fakeSink{}
	p := New(nil, sink)
	if err := p.SubmitBatch(context.Background(), nil); err != nil || len(sink.events) != 0 {
		t.Fatalf("empty batch: %v, %d events", err, len(sink.events))
	}
	events := []ingestion.IngestEvent{
		{Op: ingestion.OpUpsert, Movie: ingestion.Movie{ID: 1, Title: "A"}},
		{Op: ingestion.OpUpsert, Movie: ingestion.Movie{ID: 2, Title: "B"}},
	}
	if err := p.SubmitBatch(context.Background(), events); err != nil {
		t.Fatal(err)
	}
	if len(sink.events) != 2 || sink.events[1].Key != "2" {
		t.Fatalf("events = %+v", sink.events)
	}
}

func TestStatusWithoutDatabase(t *testing.T) {
	_, err := New(nil, &fakeSink{}).Status(context.Background(), 1)
	if !errors.Is(err, apperrors.ErrUnimplemented) {
		t.Fatalf("Status = %v", err)
	}
}
