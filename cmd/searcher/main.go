// Command searcher serves read-only queries over a database written by the
// indexer, following its commits.
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

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/database"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/reloader"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/searcher.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if err := run(cfg); err != nil {
		slog.Error("searcher service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("searcher service stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", cfg.Database.Path, err)
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.Database.Path, "revision", db.Revision(), "doc_count", db.DocCount())

	analysis, err := ingestion.NewAnalysis(cfg.Indexer)
	if err != nil {
		return err
	}

	checker := health.NewChecker()
	checker.Register("database", health.DatabaseCheck(db))

	var queryCache *cache.QueryCache
	if cfg.Redis.Enabled {
		client, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, caching disabled", "error", err)
			checker.Register("redis", health.Disabled())
		} else {
			defer client.Close()
			queryCache = cache.New(client, cfg.Redis)
			checker.Register("redis", health.Ping(client.Ping, true))
		}
	} else {
		checker.Register("redis", health.Disabled())
	}

	searcher := handler.NewSearcher(db, analysis, queryCache, cfg.Search)
	reload := reloader.New(db, queryCache)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return reload.Run(ctx, cfg.Search.ReopenInterval, cfg.Database.Path, cfg.Search.WatchManifest)
	})
	if cfg.Kafka.Enabled {
		// Every replica needs every commit notice, so each gets its own group.
		events := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete, reload.Handler(), kafka.ConsumerOptions{
			GroupID:       cfg.Kafka.ConsumerGroup + "-searcher-" + uuid.NewString(),
			StartAtLatest: true,
		})
		g.Go(func() error { return events.Start(ctx) })
		checker.Register("kafka", health.Ping(kafka.Ping(cfg.Kafka), true))
	} else {
		checker.Register("kafka", health.Disabled())
	}

	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	mux := http.NewServeMux()
	handler.New(searcher, queryCache).Register(mux)
	mux.HandleFunc("POST /v1/reopen", func(w http.ResponseWriter, r *http.Request) {
		advanced, err := reload.Reopen(r.Context(), reloader.TriggerManual)
		if err != nil {
			http.Error(w, `{"error":"reopen failed"}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"advanced":%t,"revision":%d}`+"\n", advanced, db.Revision())
	})
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
		slog.Info("searcher service listening", "addr", server.Addr)
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
