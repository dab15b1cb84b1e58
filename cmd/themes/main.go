// Command themes serves the review theme pipeline over HTTP.
//
// Runs are cached in Redis (or in process memory when Redis is down),
// stored in PostgreSQL when it is reachable and announced on the
// theme-runs Kafka topic.
//
// Usage:
//
//	go run ./cmd/themes [-config configs/development.yaml]
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

	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/api"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/events"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/language"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/runcache"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/store"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/middleware"
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
	slog.Info("starting themes service", "port", cfg.Server.Port, "strategy", cfg.Pipeline.Strategy, "k", cfg.Pipeline.K)

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

	checker := health.NewChecker()
	checker.Register("language", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d stopwords", len(res.StopWords()))}
	})

	var runStore api.RunStore
	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, run storage disabled", "error", err)
	} else {
		defer db.Close()
		rs := store.New(db)
		if err := rs.EnsureSchema(ctx); err != nil {
			slog.Error("failed to apply schema", "error", err)
			os.Exit(1)
		}
		runStore = rs
		checker.Register("postgres", health.PingCheck(db))
		slog.Info("run storage enabled", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	}

	var backend runcache.Backend
	redisClient, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, caching runs in memory", "error", err)
		backend = runcache.NewMemoryBackend()
	} else {
		defer redisClient.Close()
		backend = redisClient
		checker.RegisterOptional("redis", health.PingCheck(redisClient))
		slog.Info("run cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
	}
	cache := runcache.New(backend, cfg.Redis.CacheTTL, m)
	checker.RegisterOptional("run_cache", cache.HealthCheck)

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.ThemeRuns)
	defer producer.Close()
	publisher := events.NewPublisher(producer, resilience.RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     2 * time.Second,
	}, m)
	checker.RegisterOptional("kafka", health.PingCheck(kafka.Pinger(cfg.Kafka.Brokers)))

	h := api.New(p, api.Options{
		Cache:        cache,
		Store:        runStore,
		Events:       publisher,
		RunTimeout:   cfg.Server.RunTimeout,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		MaxSweepSize: cfg.Pipeline.MaxSweepSize,
		StoreRetry:   resilience.RetryConfig{MaxAttempts: 3, InitialDelay: 100 * time.Millisecond},
	})

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	mux.Handle("GET /metrics", metrics.Handler())

	// Pipeline requests carry their own RunTimeout; lookups get the read
	// timeout.
	lookups := middleware.Timeout(cfg.Server.ReadTimeout)(mux)
	var chain http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			lookups.ServeHTTP(w, r)
			return
		}
		mux.ServeHTTP(w, r)
	})
	if cfg.Server.RunsPerMinute > 0 {
		limiter := middleware.NewClientLimiter(cfg.Server.RunsPerMinute, cfg.Server.RunBurst, 10*time.Minute)
		chain = middleware.RateLimit(limiter)(chain)
		go func() {
			ticker := time.NewTicker(5 * time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					limiter.Sweep()
				}
			}
		}()
	}
	chain = middleware.Metrics(m)(chain)
	chain = middleware.CORS(cfg.Server.AllowOrigins)(chain)
	chain = middleware.RequestID(chain)

	// Runs are bounded by RunTimeout inside the handler; the server write
	// timeout has to leave room for it.
	writeTimeout := cfg.Server.WriteTimeout
	if cfg.Server.RunTimeout+5*time.Second > writeTimeout {
		writeTimeout = cfg.Server.RunTimeout + 5*time.Second
	}
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: writeTimeout,
	}

	var shutdownMetrics func(context.Context) error
	if cfg.Metrics.Enabled && cfg.Metrics.Port != cfg.Server.Port {
		shutdownMetrics = metrics.StartServer(cfg.Metrics.Port, "themes", nil)
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		if shutdownMetrics != nil {
			if err := shutdownMetrics(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}
	}()

	slog.Info("themes service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("themes service stopped")
}
