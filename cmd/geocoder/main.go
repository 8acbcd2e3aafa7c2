// Command geocoder serves forward geocoding over HTTP.
//
// Queries arrive on GET /geocode/v1/{query}. Responses are cached in Redis
// when enabled and the cache is dropped whenever an indexer announces a
// flush on the cache-invalidate topic. With -embed-indexer the process also
// consumes feature events and indexes them into its own stores, which is
// the single-node deployment. With analytics enabled every query is
// reported to the query-events topic, or aggregated in process and served
// on GET /api/v1/analytics when Kafka is off.
//
// Usage:
//
//	go run ./cmd/geocoder [-config configs/development.yaml] [-embed-indexer]
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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/analytics/collector"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/coalesce"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/features"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/geocoder"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/geocoder/cache"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/geocoder/handler"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/indexer/router"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/spatialmatch"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/store"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/geocoder/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	embedIndexer := flag.Bool("embed-indexer", false, "consume feature events and index them in process")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging)
	slog.Info("starting geocoder service", "port", cfg.Server.Port, "sources", len(cfg.Sources))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, reg)
		defer shutdownMetrics(context.Background())
	}

	stores, err := store.OpenAll(ctx, cfg.Store, cfg.Sources, m)
	if err != nil {
		slog.Error("failed to open source stores", "error", err)
		os.Exit(1)
	}
	defer func() {
		for _, st := range stores {
			st.Close()
		}
	}()

	registry, err := geocoder.NewRegistry(cfg.Sources, stores)
	if err != nil {
		slog.Error("invalid source configuration", "error", err)
		os.Exit(1)
	}

	featureStore, err := features.Open(ctx, cfg.Postgres)
	if err != nil {
		slog.Error("failed to open feature store", "error", err)
		os.Exit(1)
	}
	defer featureStore.Close()

	checker := health.NewChecker()
	checker.Register("feature_store", health.PingCheck(featureStore.Ping, true))
	for name, st := range stores {
		checker.Register("store_"+name, health.PingCheck(st.Ping, true))
	}

	var coalescer spatialmatch.Coalescer
	if cfg.Geocoder.RemoteCoalesce != "" {
		rpc, err := grpc.Dial(cfg.Geocoder.RemoteCoalesce, cfg.Geocoder.Timeout)
		if err != nil {
			slog.Error("failed to reach gridserver", "addr", cfg.Geocoder.RemoteCoalesce, "error", err)
			os.Exit(1)
		}
		defer rpc.Close()
		client := coalesce.NewClient(rpc)
		coalescer = client
		checker.Register("gridserver", health.PingCheck(client.Ping, true))
		slog.Info("coalescing remotely", "addr", cfg.Geocoder.RemoteCoalesce)
	} else {
		engine := coalesce.NewEngine()
		for _, src := range registry.Sources() {
			engine.Register(src.Idx, src.Store)
		}
		coalescer = engine
	}

	g := geocoder.New(registry, coalescer, featureStore, cfg.Geocoder, m)

	var queryCache *cache.QueryCache
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, geocode caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis, m)
			checker.Register("redis", health.PingCheck(redisClient.Ping, false))
			slog.Info("geocode cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	if cfg.Kafka.Enabled {
		if queryCache != nil {
			invalidations := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.CacheInvalidate, cache.HandleIndexEvent(queryCache), kafka.WithMetrics(m))
			defer invalidations.Close()
			go func() {
				if err := invalidations.Start(ctx); err != nil {
					slog.Error("cache invalidation consumer error", "error", err)
				}
			}()
			slog.Info("cache invalidation consumer started", "topic", cfg.Kafka.Topics.CacheInvalidate)
		}
		if *embedIndexer {
			stopIndexer := startEmbeddedIndexer(ctx, cfg, stores, featureStore, queryCache, m)
			defer stopIndexer()
		}
	} else if *embedIndexer {
		slog.Warn("embedded indexer needs kafka, skipping")
	}

	h := handler.New(g, queryCache, m)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /geocode/v1/{query}", h.Geocode)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	var invalidate http.Handler = http.HandlerFunc(h.CacheInvalidate)
	if cfg.Auth.Enabled {
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect api key store", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		invalidate = apikey.Require(apikey.NewValidator(db), apikey.ScopeAdmin)(invalidate)
	}
	mux.Handle("POST /api/v1/cache/invalidate", invalidate)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	if cfg.Analytics.Enabled {
		if cfg.Kafka.Enabled {
			queryEvents := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.QueryEvents)
			defer queryEvents.Close()
			qc := collector.NewBatchCollector(queryEvents, cfg.Analytics.BatchSize, cfg.Analytics.FlushInterval)
			qc.Start(ctx)
			defer qc.Close()
			h.TrackWith(qc)
			slog.Info("query analytics publishing", "topic", cfg.Kafka.Topics.QueryEvents)
		} else {
			agg := analytics.NewAggregator(cfg.Analytics.TopN)
			h.TrackWith(agg)
			mux.HandleFunc("GET /api/v1/analytics", analytics.NewHandler(agg, nil).Stats)
			slog.Info("query analytics aggregated in process")
		}
	}

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	if cfg.Server.RateLimit > 0 {
		limiter := middleware.NewLimiter(cfg.Server.RateLimit, time.Minute)
		limiter.StartSweeper(ctx, time.Minute)
		chain = middleware.RateLimit(limiter)(chain)
	}
	chain = middleware.Metrics(m)(chain)
	if cfg.Tracing.Enabled {
		chain = middleware.Tracing(cfg.Tracing.SampleRate)(chain)
	}
	chain = middleware.CORS(middleware.DefaultCORSConfig())(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("geocoder service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("geocoder service stopped")
}

// startEmbeddedIndexer indexes feature events into the serving stores. Each
// flush drops the local cache directly and is announced on index-complete.
func startEmbeddedIndexer(
	ctx context.Context,
	cfg *config.Config,
	stores map[string]*store.Store,
	marker features.StatusMarker,
	queryCache *cache.QueryCache,
	m *metrics.Metrics,
) (stop func()) {
	r, err := router.New(cfg.Sources, stores, cfg.Indexer, m)
	if err != nil {
		slog.Error("failed to create embedded indexer", "error", err)
		os.Exit(1)
	}
	completed := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
	hook := consumer.NotifyFlush(completed)
	r.OnFlush(func(ctx context.Context, source string, st index.Stats) {
		hook(ctx, source, st)
		if queryCache != nil {
			if _, err := queryCache.Invalidate(ctx); err != nil {
				slog.Error("cache drop after flush failed", "source", source, "error", err)
			}
		}
	})
	r.StartFlushLoops(ctx)

	ingest := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.FeatureIngest, consumer.HandleMessage(r, marker),
		kafka.FromFirstOffset(), kafka.WithMetrics(m))
	go func() {
		if err := consumer.New(ingest).Start(ctx); err != nil {
			slog.Error("embedded indexer consumer error", "error", err)
		}
	}()
	slog.Info("embedded indexer consuming", "topic", cfg.Kafka.Topics.FeatureIngest)

	return func() {
		ingest.Close()
		if err := r.Close(); err != nil {
			slog.Error("embedded indexer close failed", "error", err)
		}
		completed.Close()
	}
}
