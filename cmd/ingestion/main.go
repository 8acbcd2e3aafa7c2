// Command ingestion starts the feature ingestion HTTP service.
//
// The service accepts features via POST /api/v1/features, validates them
// against the configured sources, stores them in the feature store and
// publishes them to Kafka for the indexer. Stored features can be read back
// with GET /api/v1/features/{source}/{id}. With auth enabled, writes need
// an API key carrying the ingest scope.
//
// Usage:
//
//	go run ./cmd/ingestion [-config configs/development.yaml]
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

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/features"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging)
	slog.Info("starting ingestion service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, reg)
		defer shutdownMetrics(context.Background())
	}

	featureStore, err := features.Open(ctx, cfg.Postgres)
	if err != nil {
		slog.Error("failed to open feature store", "error", err)
		os.Exit(1)
	}
	defer featureStore.Close()

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.FeatureIngest)
	defer producer.Close()
	slog.Info("kafka producer initialized", "topic", cfg.Kafka.Topics.FeatureIngest)

	known := make(map[string]bool, len(cfg.Sources))
	for _, s := range cfg.Sources {
		known[s.Name] = true
	}
	pub := publisher.New(featureStore, producer)
	h := handler.New(pub, featureStore, func(source string) bool { return known[source] })

	checker := health.NewChecker()
	checker.Register("feature_store", health.PingCheck(featureStore.Ping, true))

	var ingest http.Handler = http.HandlerFunc(h.Ingest)
	if cfg.Auth.Enabled {
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect api key store", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		keys := apikey.NewValidator(db)
		if err := keys.Migrate(ctx); err != nil {
			slog.Error("failed to migrate api keys", "error", err)
			os.Exit(1)
		}
		ingest = apikey.Require(keys, apikey.ScopeIngest)(ingest)
		slog.Info("api key auth enabled for ingestion")
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/v1/features", ingest)
	mux.HandleFunc("GET /api/v1/features/{source}/{id}", h.Get)
	mux.HandleFunc("GET /health", h.Health)
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

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()
	slog.Info("ingestion service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("ingestion service stopped")
}
