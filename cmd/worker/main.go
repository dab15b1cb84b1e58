// Command worker clusters review batches published on the review-batches
// Kafka topic, stores every result in PostgreSQL and announces outcomes on
// the theme-runs topic.
//
// Usage:
//
//	go run ./cmd/worker [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/events"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/language"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/runcache"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/store"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/worker"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting theme worker",
		"topic", cfg.Kafka.Topics.ReviewBatches,
		"group", cfg.Kafka.ConsumerGroup,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := language.LoadFiles(cfg.Language.StopwordsPath, cfg.Language.LemmasPath)
	if err != nil {
		slog.Error("failed to load language resource", "error", err)
		os.Exit(1)
	}
	m := metrics.New()
	p, err := pipeline.New(res, pipeline.ParamsFromConfig(cfg.Pipeline), pipeline.WithRecorder(m))
	if err != nil {
		slog.Error("invalid pipeline configuration", "error", err)
		os.Exit(1)
	}

	// The worker exists to persist results, so PostgreSQL is required.
	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	runStore := store.New(db)
	if err := runStore.EnsureSchema(ctx); err != nil {
		slog.Error("failed to apply schema", "error", err)
		os.Exit(1)
	}

	checker := health.NewChecker()
	checker.Register("postgres", health.PingCheck(db))
	checker.Register("kafka", health.PingCheck(kafka.Pinger(cfg.Kafka.Brokers)))

	var cache *runcache.Cache
	redisClient, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, batch results not cached", "error", err)
	} else {
		defer redisClient.Close()
		cache = runcache.New(redisClient, cfg.Redis.CacheTTL, m)
		checker.RegisterOptional("redis", health.PingCheck(redisClient))
		checker.RegisterOptional("run_cache", cache.HealthCheck)
	}

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.ThemeRuns)
	defer producer.Close()
	publisher := events.NewPublisher(producer, resilience.RetryConfig{
		MaxAttempts:  5,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
	}, m)

	handler := worker.HandleBatch(p, worker.Options{
		Cache:      cache,
		Store:      runStore,
		Events:     publisher,
		RunTimeout: cfg.Server.RunTimeout,
		StoreRetry: resilience.RetryConfig{MaxAttempts: 5, InitialDelay: 200 * time.Millisecond},
	})
	consumer := worker.NewBatchConsumer(
		kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.ReviewBatches, handler).
			OnGiveUp(worker.AnnounceGiveUp(publisher)),
	)

	shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, "theme worker", map[string]http.Handler{
		"/health/live":  checker.LiveHandler(),
		"/health/ready": checker.ReadyHandler(),
	})

	if err := consumer.Start(ctx); err != nil {
		slog.Error("consumer error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := shutdownMetrics(shutdownCtx); err != nil {
		slog.Error("metrics server shutdown error", "error", err)
	}
	slog.Info("theme worker stopped")
}
