// Package publisher records movie submissions in PostgreSQL and publishes
// ingest events to Kafka for the indexer. A submission whose publish fails
// stays PENDING until it is submitted again.
package publisher

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/postgres"
)

// Response reports where a submission stands.
type Response struct {
	MovieID int64  `json:"movie_id"`
	Op      string `json:"op"`
	Status  string `json:"status"`
}

// EventSink is where ingest events go. *kafka.Producer satisfies it.
type EventSink interface {
	Publish(ctx context.Context, event kafka.Event) error
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

type Publisher struct {
	db     *postgres.Client
	sink   EventSink
	logger *slog.Logger
}

// New returns a Publisher. db may be nil, in which case submissions are
// only published.
func New(db *postgres.Client, sink EventSink) *Publisher {
	return &Publisher{
		db:     db,
		sink:   sink,
		logger: slog.Default().With("component", "publisher"),
	}
}

// Event builds the Kafka event for e. Events are keyed by movie id so all
// changes to one movie land on one partition in order.
func Event(e ingestion.IngestEvent) kafka.Event {
	if e.IngestedAt.IsZero() {
		e.IngestedAt = time.Now().UTC()
	}
	return kafka.Event{Key: strconv.FormatInt(e.Movie.ID, 10), Value: e}
}

// Submit records the submission as PENDING and publishes it.
func (p *Publisher) Submit(ctx context.Context, e ingestion.IngestEvent) (*Response, error) {
	if err := p.record(ctx, e); err != nil {
		return nil, err
	}
	if err := p.sink.Publish(ctx, Event(e)); err != nil {
		p.logger.Error("failed to publish ingest event, movie stays PENDING",
			"movie_id", e.Movie.ID,
			"op", e.Op,
			"error", err,
		)
		return nil, fmt.Errorf("publishing movie %d: %w", e.Movie.ID, err)
	}
	return &Response{MovieID: e.Movie.ID, Op: string(e.Op), Status: postgres.StatusPending}, nil
}

// SubmitBatch publishes events in one write. Status rows are recorded
// first, in one transaction.
func (p *Publisher) SubmitBatch(ctx context.Context, events []ingestion.IngestEvent) error {
	if len(events) == 0 {
		return nil
	}
	if p.db != nil {
		err := p.db.InTx(ctx, func(tx *sql.Tx) error {
			for _, e := range events {
				if err := postgres.MarkPending(ctx, tx, e.Movie.ID, e.Movie.Title, string(e.Op)); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("recording %d submissions: %w", len(events), err)
		}
	}
	batch := make([]kafka.Event, 0, len(events))
	for _, e := range events {
		batch = append(batch, Event(e))
	}
	if err := p.sink.PublishBatch(ctx, batch); err != nil {
		return fmt.Errorf("publishing %d events: %w", len(events), err)
	}
	p.logger.Debug("batch submitted", "count", len(events))
	return nil
}

func (p *Publisher) record(ctx context.Context, e ingestion.IngestEvent) error {
	if p.db == nil {
		return nil
	}
	err := p.db.InTx(ctx, func(tx *sql.Tx) error {
		return postgres.MarkPending(ctx, tx, e.Movie.ID, e.Movie.Title, string(e.Op))
	})
	if err != nil {
		return fmt.Errorf("recording movie %d: %w", e.Movie.ID, err)
	}
	return nil
}

// Status returns the recorded status of a movie.
func (p *Publisher) Status(ctx context.Context, id int64) (*postgres.MovieStatus, error) {
	if p.db == nil {
		return nil, apperrors.New(apperrors.ErrUnimplemented, http.StatusNotImplemented, "status tracking is disabled")
	}
	return p.db.MovieStatus(ctx, id)
}
