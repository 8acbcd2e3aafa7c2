// Command analytics aggregates geocode activity.
//
// It consumes query events published by geocoders and flush announcements
// published by indexers, keeps running totals in memory (query volume,
// latency percentiles, cache hit rate, zero-result and low-relevance
// queries, flushes per source) and serves them on GET /api/v1/analytics.
// With postgres enabled the totals are snapshotted periodically and listed
// on GET /api/v1/analytics/snapshots.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
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

	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/analytics/aggregator"
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
	slog.Info("starting analytics service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, reg)
		defer shutdownMetrics(context.Background())
	}

	agg := analytics.NewAggregator(cfg.Analytics.TopN)
	checker := health.NewChecker()

	var snapshots analytics.SnapshotLister
	if cfg.Postgres.Enabled {
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		st := aggregator.NewStore(db)
		if err := st.Migrate(ctx); err != nil {
			slog.Error("failed to migrate snapshot table", "error", err)
			os.Exit(1)
		}
		if latest, err := st.LatestSnapshot(ctx); err != nil {
			slog.Warn("could not read latest snapshot", "error", err)
		} else if latest != nil {
			slog.Info("previous snapshot found",
				"captured_at", latest.CapturedAt,
				"total_queries", latest.Stats.TotalQueries,
			)
		}
		st.StartPeriodicSave(ctx, agg, cfg.Analytics.SnapshotInterval)
		checker.Register("postgres", health.PingCheck(db.DB.PingContext, false))
		snapshots = st
	}

	if cfg.Kafka.Enabled {
		queries := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.QueryEvents, analytics.HandleQueryEvent(agg), kafka.WithMetrics(m))
		defer queries.Close()
		flushes := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete, analytics.HandleIndexEvent(agg), kafka.FromFirstOffset(), kafka.WithMetrics(m))
		defer flushes.Close()
		for _, c := range []*kafka.Consumer{queries, flushes} {
			go func() {
				if err := c.Start(ctx); err != nil {
					slog.Error("analytics consumer error", "error", err)
				}
			}()
		}
		slog.Info("analytics consumers started",
			"queries", cfg.Kafka.Topics.QueryEvents,
			"flushes", cfg.Kafka.Topics.IndexComplete,
		)
	} else {
		slog.Warn("kafka disabled, no events will arrive")
	}

	h := analytics.NewHandler(agg, snapshots)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", h.Stats)
	mux.HandleFunc("GET /api/v1/analytics/snapshots", h.Snapshots)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
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

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("analytics service stopped")
}
