// Package consumer applies ingest events from Kafka to the writable
// database. Changes are committed in batches when the Kafka consumer
// flushes; after each commit the affected movies are marked in PostgreSQL
// and an index-complete event tells searchers to reopen.
package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/database"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/postgres"
)

// StatusStore records per-movie indexing outcomes. *postgres.Client
// satisfies it.
type StatusStore interface {
	MarkCommitted(ctx context.Context, ids []int64, status string, revision uint64) error
	MarkFailed(ctx context.Context, id int64, reason string) error
}

// Notifier announces commits. *kafka.Producer satisfies it.
type Notifier interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Options carries the optional collaborators of an IndexConsumer.
type Options struct {
	Status   StatusStore
	Notifier Notifier
}

// IndexConsumer is a kafka.Handler. It is safe for concurrent use.
type IndexConsumer struct {
	mu       sync.Mutex
	db       *database.WritableDatabase
	gen      *indexer.TermGenerator
	opts     Options
	upserted []int64
	deleted  []int64
	logger   *slog.Logger
}

func New(db *database.WritableDatabase, analysis *ingestion.Analysis, opts Options) (*IndexConsumer, error) {
	gen, err := analysis.TermGenerator()
	if err != nil {
		return nil, fmt.Errorf("configuring term generator: %w", err)
	}
	return &IndexConsumer{
		db:     db,
		gen:    gen,
		opts:   opts,
		logger: slog.Default().With("component", "index-consumer"),
	}, nil
}

// Handle decodes and applies one ingest event. Undecodable and invalid
// events are dropped after being recorded; database errors are returned.
func (c *IndexConsumer) Handle(ctx context.Context, msg kafka.Message) error {
	event, err := kafka.DecodeJSON[ingestion.IngestEvent](msg.Value)
	if err != nil {
		metrics.IngestEventsTotal.WithLabelValues("unknown", "rejected").Inc()
		logger.FromContext(ctx).Error("failed to decode ingest event",
			"error", err,
			"key", string(msg.Key),
		)
		return nil
	}
	return c.Apply(ctx, event)
}

// Apply applies one event to the uncommitted state of the database.
func (c *IndexConsumer) Apply(ctx context.Context, event ingestion.IngestEvent) error {
	log := logger.FromContext(ctx)
	if err := validator.ValidateEvent(&event); err != nil {
		metrics.IngestEventsTotal.WithLabelValues(string(event.Op), "rejected").Inc()
		log.Warn("rejected ingest event", "movie_id", event.Movie.ID, "error", err)
		c.markFailed(ctx, event.Movie.ID, err.Error())
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	var err error
	switch event.Op {
	case ingestion.OpUpsert:
		err = c.upsertLocked(&event.Movie)
		if err == nil {
			c.upserted = append(c.upserted, event.Movie.ID)
		}
	case ingestion.OpDelete:
		_, err = c.db.DeleteDocument(ingestion.UniqueTerm(event.Movie.ID))
		if err == nil {
			c.deleted = append(c.deleted, event.Movie.ID)
		}
	}
	if err != nil {
		metrics.IngestEventsTotal.WithLabelValues(string(event.Op), "error").Inc()
		return fmt.Errorf("applying %s of movie %d: %w", event.Op, event.Movie.ID, err)
	}
	metrics.IngestEventsTotal.WithLabelValues(string(event.Op), "applied").Inc()
	log.Debug("ingest event applied", "movie_id", event.Movie.ID, "op", event.Op)
	return nil
}

func (c *IndexConsumer) upsertLocked(m *ingestion.Movie) error {
	doc, idterm, err := ingestion.BuildDocument(c.gen, m)
	if err != nil {
		return err
	}
	_, err = c.db.ReplaceDocument(idterm, doc)
	return err
}

// Flush commits the applied events, records their outcome and announces
// the new revision.
func (c *IndexConsumer) Flush(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.upserted) == 0 && len(c.deleted) == 0 && !c.db.InTransaction() {
		return nil
	}
	info, err := c.db.Commit()
	if err != nil {
		// The failed commit discarded the batch. Forget it so the
		// uncommitted offsets replay it.
		c.upserted, c.deleted = c.upserted[:0], c.deleted[:0]
		return err
	}
	if c.opts.Status != nil {
		if err := c.opts.Status.MarkCommitted(ctx, c.upserted, postgres.StatusIndexed, info.Revision); err != nil {
			c.logger.Error("failed to record indexed movies", "error", err)
		}
		if err := c.opts.Status.MarkCommitted(ctx, c.deleted, postgres.StatusDeleted, info.Revision); err != nil {
			c.logger.Error("failed to record deleted movies", "error", err)
		}
	}
	c.notifyLocked(ctx, info)
	c.logger.Info("batch committed",
		"revision", info.Revision,
		"upserts", len(c.upserted),
		"deletes", len(c.deleted),
		"doc_count", info.DocCount,
	)
	c.upserted, c.deleted = c.upserted[:0], c.deleted[:0]
	return nil
}

func (c *IndexConsumer) notifyLocked(ctx context.Context, info database.CommitInfo) {
	if c.opts.Notifier == nil {
		return
	}
	snap, err := c.db.Snapshot()
	if err != nil {
		c.logger.Error("failed to read database identity", "error", err)
		return
	}
	event := ingestion.IndexCompleteEvent{
		DatabaseUUID: snap.UUID(),
		Revision:     info.Revision,
		DocCount:     info.DocCount,
		Added:        info.Added,
		Deleted:      info.Deleted,
		CommittedAt:  time.Now().UTC(),
	}
	if err := c.opts.Notifier.Publish(ctx, kafka.Event{Key: event.DatabaseUUID, Value: event}); err != nil {
		c.logger.Error("failed to announce commit", "revision", info.Revision, "error", err)
	}
}

func (c *IndexConsumer) markFailed(ctx context.Context, id int64, reason string) {
	if c.opts.Status == nil || id <= 0 {
		return
	}
	if err := c.opts.Status.MarkFailed(ctx, id, reason); err != nil {
		c.logger.Error("failed to record rejected movie", "movie_id", id, "error", err)
	}
}
