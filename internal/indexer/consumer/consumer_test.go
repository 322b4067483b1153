package consumer

import (
	"context"
	"encoding/json"
	"slices"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/database"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/postgres"
)

type statusCall struct {
	ids      []int64
	status   string
	revision uint64
}

type fakeStatus struct {
	committed []statusCall
	failed    map[int64]string
}

func (f *fakeStatus) MarkCommitted(_ context.Context, ids []int64, status string, revision uint64) error {
	if len(ids) > 0 {
		f.committed = append(f.committed, statusCall{slices.Clone(ids), status, revision})
	}
	return nil
}

func (f *fakeStatus) MarkFailed(_ context.Context, id int64, reason string) error {
	if f.failed == nil {
		f.failed = make(map[int64]string)
	}
	f.failed[id] = reason
	return nil
}

type fakeNotifier struct{ events []kafka.Event }

func (f *fakeNotifier) Publish(_ context.Context, e kafka.Event) error {
	f.events = append(f.events, e)
	return nil
}

func setup(t *testing.T) (*IndexConsumer, *database.WritableDatabase, *fakeStatus, *fakeNotifier) {
	t.Helper()
	w, err := database.OpenWritable(t.TempDir(), database.ModeCreateOrOpen, database.Options{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { w.Close() })
	a, err := ingestion.NewAnalysis(config.IndexerConfig{Stemmer: "en"})
	if err != nil {
		t.Fatal(err)
	}
	status, notifier := &fakeStatus{}, &fakeNotifier{}
	c, err := New(w, a, Options{Status: status, Notifier: notifier})
	if err != nil {
		t.Fatal(err)
	}
	return c, w, status, notifier
}

func upsert(id int64, title string) ingestion.IngestEvent {
	return ingestion.IngestEvent{Op: ingestion.OpUpsert, Movie: ingestion.Movie{ID: id, Title: title, Genres: []string{"Drama"}}}
}

func message(t *testing.T, e ingestion.IngestEvent) kafka.Message {
	t.Helper()
	b, err := json.Marshal(e)
	if err != nil {
		t.Fatal(err)
	}
	return kafka.Message{Value: b}
}

func TestHandleAndFlush(t *testing.T) {
	c, w, status, notifier := setup(t)
	ctx := context.Background()

	for _, e := range []ingestion.IngestEvent{upsert(1, "Heat"), upsert(2, "Ronin"), upsert(1, "Heat")} {
		if err := c.Handle(ctx, message(t, e)); err != nil {
			t.Fatal(err)
		}
	}
	if err := c.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	if w.DocCount() != 2 {
		t.Fatalf("doc count = %d, replaying an upsert must not duplicate", w.DocCount())
	}
	if len(status.committed) != 1 || status.committed[0].status != postgres.StatusIndexed ||
		!slices.Equal(status.committed[0].ids, []int64{1, 2, 1}) || status.committed[0].revision != 1 {
		t.Fatalf("status calls = %+v", status.committed)
	}
	if len(notifier.events) != 1 {
		t.Fatalf("events = %+v", notifier.events)
	}
	done := notifier.events[0].Value.(ingestion.IndexCompleteEvent)
	if done.Revision != 1 || done.DocCount != 2 || done.DatabaseUUID == "" {
		t.Fatalf("index complete = %+v", done)
	}

	if err := c.Apply(ctx, ingestion.IngestEvent{Op: ingestion.OpDelete, Movie: ingestion.Movie{ID: 2}}); err != nil {
		t.Fatal(err)
	}
	if err := c.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	snap, err := w.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if snap.TermExists(ingestion.UniqueTerm(2)) || !snap.TermExists(ingestion.UniqueTerm(1)) {
		t.Fatal("delete was not applied")
	}
	if last := status.committed[len(status.committed)-1]; last.status != postgres.StatusDeleted || last.revision != 2 {
		t.Fatalf("last status call = %+v", last)
	}
}

func TestFlushWithoutChangesIsQuiet(t *testing.T) {
	c, w, _, notifier := setup(t)
	if err := c.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	if w.Revision() != 0 || len(notifier.events) != 0 {
		t.Fatalf("revision = %d, events = %d", w.Revision(), len(notifier.events))
	}
}

func TestRejectedEvents(t *testing.T) {
	c, w, status, _ := setup(t)
	ctx := context.Background()
	if err := c.Handle(ctx, kafka.Message{Key: []byte("k"), Value: []byte("{not json")}); err != nil {
		t.Fatalf("undecodable event returned %v", err)
	}
	if err := c.Apply(ctx, upsert(5, "")); err != nil {
		t.Fatalf("invalid event returned %v", err)
	}
	if _, ok := status.failed[5]; !ok {
		t.Fatalf("failed = %v", status.failed)
	}
	if w.InTransaction() {
		t.Fatal("rejected events changed the database")
	}
}
