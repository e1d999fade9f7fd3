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

	"github.com/Adithya-Monish-Kumar-K/semantic-search/internal/posts"
	"github.com/Adithya-Monish-Kumar-K/semantic-search/internal/semantic/cache"
	"github.com/Adithya-Monish-Kumar-K/semantic-search/internal/semantic/consumer"
	"github.com/Adithya-Monish-Kumar-K/semantic-search/internal/semantic/handler"
	"github.com/Adithya-Monish-Kumar-K/semantic-search/internal/semantic/index"
	"github.com/Adithya-Monish-Kumar-K/semantic-search/internal/semantic/reload"
	"github.com/Adithya-Monish-Kumar-K/semantic-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/semantic-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/semantic-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/semantic-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/semantic-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/semantic-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/semantic-search/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/semantic-search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/semantic-search/pkg/resilience"
)

const cacheCallTimeout = 100 * time.Millisecond

func main() {
	configPath := flag.String("config", "", "path to config file (defaults and SP_* env vars apply without one)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting semantic search service", "port", cfg.Server.Port)

	if err := run(cfg); err != nil {
		slog.Error("semantic search service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("semantic search service stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	pg, err := postgres.New(cfg.Postgres)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer pg.Close()
	store := posts.NewStore(pg.DB)
	slog.Info("post store connected", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)

	var redisClient *pkgredis.Client
	var guarded *cache.GuardedBackend
	var hitCache *cache.HitCache
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, semantic caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			breaker := resilience.NewCircuitBreaker("redis", resilience.CircuitBreakerConfig{})
			guarded = cache.NewGuardedBackend(redisClient, breaker, cacheCallTimeout)
			hitCache = cache.New(guarded, cfg.Redis.CacheTTL, m)
			slog.Info("semantic cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	ix := index.New(index.WithLogger(logger.WithComponent("semantic-index")))

	reloadOpts := []reload.Option{
		reload.WithMetrics(m),
		reload.WithLoadTimeout(cfg.Semantic.LoadTimeout),
		reload.WithRetry(resilience.RetryConfig{
			MaxAttempts:  cfg.Semantic.LoadRetries,
			InitialDelay: 500 * time.Millisecond,
		}),
	}
	var applier *consumer.Applier
	if hitCache != nil {
		reloadOpts = append(reloadOpts, reload.WithCache(hitCache))
		applier = consumer.NewApplier(ix, store, hitCache, m)
	} else {
		applier = consumer.NewApplier(ix, store, nil, m)
	}
	reloader := reload.New(ix, store, reloadOpts...)

	// An empty index still serves; the periodic reload or post events fill it.
	if _, err := reloader.Reload(ctx); err != nil {
		slog.Error("initial index load failed", "error", err)
	}

	checker := health.NewChecker()
	checker.Register("semantic_index", func(ctx context.Context) health.ComponentHealth {
		stats := ix.Stats()
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d documents, %d terms", stats.Documents, stats.Terms),
		}
	})
	checker.Register("postgres", health.PingCheck(pg.Ping, health.StatusDown))
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if state := guarded.State(); state == resilience.StateOpen {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "circuit " + state.String()}
		}
		return health.PingCheck(redisClient.Ping, health.StatusDegraded)(ctx)
	})

	h := handler.New(ix, reloader, hitCache, m, handler.Limits{
		Default: cfg.Semantic.DefaultLimit,
		Max:     cfg.Semantic.MaxResults,
		Related: cfg.Semantic.RelatedLimit,
	})

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownMetrics(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("semantic search service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return reloader.Run(gctx, cfg.Semantic.RebuildInterval)
	})

	if len(cfg.Kafka.Brokers) > 0 {
		groupID := consumerGroup(cfg.Kafka.ConsumerGroup)
		kafkaConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.PostEvents, groupID, applier.HandleMessage())
		postConsumer := consumer.New(kafkaConsumer)
		slog.Info("consuming post events", "topic", cfg.Kafka.Topics.PostEvents, "group", groupID)
		g.Go(func() error {
			return postConsumer.Start(gctx)
		})
	} else {
		slog.Info("no kafka brokers configured, post events disabled")
	}

	return g.Wait()
}

// consumerGroup suffixes the configured group with the host name. Every
// replica holds a full index and must see every post event.
func consumerGroup(base string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return base
	}
	return base + "-" + host
}
