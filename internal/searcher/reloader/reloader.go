// Package reloader keeps a searcher's database on the latest committed
// revision. Reopens are triggered by a timer, by manifest changes on disk
// and by index.complete events from the indexer.
package reloader

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/database"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/metrics"
)

const (
	TriggerInterval = "interval"
	TriggerWatch    = "watch"
	TriggerEvent    = "event"
	TriggerManual   = "manual"
)

// debounce coalesces the burst of events a single manifest swap produces.
const debounce = 50 * time.Millisecond

type Reloader struct {
	db     *database.Database
	cache  *cache.QueryCache
	mu     sync.Mutex
	logger *slog.Logger
}

// New returns a Reloader for db. queryCache may be nil.
func New(db *database.Database, queryCache *cache.QueryCache) *Reloader {
	return &Reloader{
		db:     db,
		cache:  queryCache,
		logger: slog.Default().With("component", "reloader"),
	}
}

// Reopen moves the database to its latest revision and drops cached
// results of the revision it left. It reports whether the revision changed.
func (r *Reloader) Reopen(ctx context.Context, trigger string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var prevUUID string
	if snap, err := r.db.Snapshot(); err == nil {
		prevUUID = snap.UUID()
	}
	prevRevision := r.db.Revision()
	advanced, err := r.db.Reopen()
	if err != nil {
		metrics.ReopensTotal.WithLabelValues(trigger, "error").Inc()
		return false, fmt.Errorf("reopening database: %w", err)
	}
	if !advanced {
		metrics.ReopensTotal.WithLabelValues(trigger, "unchanged").Inc()
		return false, nil
	}
	metrics.ReopensTotal.WithLabelValues(trigger, "advanced").Inc()
	r.logger.Info("serving new revision",
		"trigger", trigger,
		"from", prevRevision,
		"to", r.db.Revision(),
	)
	if r.cache != nil && prevUUID != "" {
		if err := r.cache.Invalidate(ctx, prevUUID); err != nil {
			r.logger.Warn("cache invalidation failed", "error", err)
		}
	}
	return true, nil
}

func (r *Reloader) reopen(ctx context.Context, trigger string) {
	if _, err := r.Reopen(ctx, trigger); err != nil {
		r.logger.Error("reopen failed", "trigger", trigger, "error", err)
	}
}

// Run reopens every interval, and whenever the manifest in dir changes if
// watch is set, until ctx is cancelled. A zero interval disables polling.
func (r *Reloader) Run(ctx context.Context, interval time.Duration, dir string, watch bool) error {
	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	var (
		changes <-chan fsnotify.Event
		errs    <-chan error
	)
	if watch {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("creating watcher: %w", err)
		}
		defer watcher.Close()
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
		changes, errs = watcher.Events, watcher.Errors
		r.logger.Info("watching manifest", "dir", dir)
	}

	var settle *time.Timer
	var settled <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if settle != nil {
				settle.Stop()
			}
			return nil
		case <-tick:
			r.reopen(ctx, TriggerInterval)
		case ev, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			if filepath.Base(ev.Name) != database.ManifestFilename || !ev.Has(fsnotify.Create|fsnotify.Write|fsnotify.Rename) {
				continue
			}
			if settle == nil {
				settle = time.NewTimer(debounce)
			} else {
				settle.Reset(debounce)
			}
			settled = settle.C
		case <-settled:
			settled = nil
			r.reopen(ctx, TriggerWatch)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			r.logger.Warn("watcher error", "error", err)
		}
	}
}

// Handler returns a kafka.Handler for index.complete events. Events for a
// revision already served are ignored.
func (r *Reloader) Handler() kafka.Handler {
	return kafka.HandlerFunc(func(ctx context.Context, msg kafka.Message) error {
		event, err := kafka.DecodeJSON[ingestion.IndexCompleteEvent](msg.Value)
		if err != nil {
			r.logger.Warn("dropping undecodable index event", "offset", msg.Offset, "error", err)
			return nil
		}
		if event.Revision <= r.db.Revision() {
			if snap, err := r.db.Snapshot(); err == nil && snap.UUID() == event.DatabaseUUID {
				return nil
			}
		}
		r.reopen(msg.Context(ctx), TriggerEvent)
		return nil
	})
}
