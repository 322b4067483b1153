// Command indexer owns the writable database. It accepts movie submissions
// over HTTP, consumes them from Kafka, commits them in batches and
// announces each commit to the searchers.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/database"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion"
	ingesthandler "github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/indexer.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if err := run(cfg); err != nil {
		slog.Error("indexer service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("indexer service stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mode, err := database.ParseOpenMode(cfg.Database.Mode)
	if err != nil {
		return err
	}
	db, err := database.OpenWritable(cfg.Database.Path, mode, database.Options{
		AutoCommitSize:         cfg.Indexer.SegmentMaxSize,
		MaxSegmentsBeforeMerge: cfg.Indexer.MaxSegmentsBeforeMerge,
	})
	if err != nil {
		return fmt.Errorf("opening %s: %w", cfg.Database.Path, err)
	}
	defer func() {
		// Close commits whatever the consumer applied after its last flush.
		if err := db.Close(); err != nil {
			slog.Error("closing database", "error", err)
		}
	}()
	slog.Info("database opened",
		"path", cfg.Database.Path,
		"mode", mode,
		"revision", db.Revision(),
		"doc_count", db.DocCount(),
	)

	analysis, err := ingestion.NewAnalysis(cfg.Indexer)
	if err != nil {
		return err
	}

	checker := health.NewChecker()
	checker.Register("database", health.DatabaseCheck(db))

	var opts consumer.Options
	var pg *postgres.Client
	if cfg.Postgres.Enabled {
		if pg, err = postgres.New(ctx, cfg.Postgres); err != nil {
			return err
		}
		defer pg.Close()
		opts.Status = pg
		checker.Register("postgres", health.Ping(pg.Ping, false))
	} else {
		checker.Register("postgres", health.Disabled())
	}

	var notifier *kafka.Producer
	if cfg.Kafka.Enabled {
		notifier = kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
		defer notifier.Close()
		opts.Notifier = notifier
	}
	indexConsumer, err := consumer.New(db, analysis, opts)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	var sink publisher.EventSink
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest)
		defer producer.Close()
		sink = producer
		kc := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest, indexConsumer, kafka.ConsumerOptions{
			FlushInterval: cfg.Indexer.CommitInterval,
		})
		g.Go(func() error { return kc.Start(ctx) })
		checker.Register("kafka", health.Ping(kafka.Ping(cfg.Kafka), false))
		slog.Info("consuming ingest events",
			"topic", cfg.Kafka.Topics.DocumentIngest,
			"group", cfg.Kafka.ConsumerGroup,
			"commit_interval", cfg.Indexer.CommitInterval,
		)
	} else {
		sink = directSink{c: indexConsumer}
		g.Go(func() error { return commitLoop(ctx, indexConsumer, cfg.Indexer.CommitInterval) })
		checker.Register("kafka", health.Disabled())
		slog.Warn("kafka disabled, submissions are applied directly")
	}

	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	mux := http.NewServeMux()
	ingesthandler.New(publisher.New(pg, sink)).Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Metrics(chain)
	if cfg.Server.RateLimit > 0 {
		limiter := middleware.NewLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst, 10*time.Minute)
		go limiter.Run(ctx)
		chain = middleware.RateLimit(limiter)(chain)
	}
	chain = middleware.CORS(cfg.Server.CORSOrigins)(chain)
	chain = middleware.RequestID(chain)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	g.Go(func() error {
		slog.Info("indexer service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// directSink applies submissions in-process when there is no Kafka.
type directSink struct {
	c *consumer.IndexConsumer
}

func (s directSink) Publish(ctx context.Context, event kafka.Event) error {
	e, ok := event.Value.(ingestion.IngestEvent)
	if !ok {
		return fmt.Errorf("unexpected event value %T", event.Value)
	}
	return s.c.Apply(ctx, e)
}

func (s directSink) PublishBatch(ctx context.Context, events []kafka.Event) error {
	for _, e := range events {
		if err := s.Publish(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func commitLoop(ctx context.Context, c *consumer.IndexConsumer, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return c.Flush(context.Background())
		case <-ticker.C:
			if err := c.Flush(ctx); err != nil {
				slog.Error("commit failed", "error", err)
			}
		}
	}
}
