// Command indexer consumes feature events from Kafka and writes them into
// the grid stores of their sources. Every flush is announced on both the
// index-complete and cache-invalidate topics.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/features"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/indexer/router"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/store"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/metrics"
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
	slog.Info("starting indexer service", "sources", len(cfg.Sources), "workers", cfg.Indexer.Workers)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
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

	featureStore, err := features.Open(ctx, cfg.Postgres)
	if err != nil {
		slog.Error("failed to open feature store", "error", err)
		os.Exit(1)
	}
	defer featureStore.Close()

	r, err := router.New(cfg.Sources, stores, cfg.Indexer, m)
	if err != nil {
		slog.Error("failed to create source router", "error", err)
		os.Exit(1)
	}

	completed := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
	defer completed.Close()
	invalidate := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.CacheInvalidate)
	defer invalidate.Close()
	r.OnFlush(consumer.NotifyFlush(completed, invalidate))
	r.StartFlushLoops(ctx)

	kafkaConsumer := kafka.NewConsumer(
		cfg.Kafka,
		cfg.Kafka.Topics.FeatureIngest,
		consumer.HandleMessage(r, featureStore),
		kafka.FromFirstOffset(),
		kafka.WithMetrics(m),
	)
	indexConsumer := consumer.New(kafkaConsumer)

	slog.Info("indexer service ready, consuming from kafka",
		"topic", cfg.Kafka.Topics.FeatureIngest,
		"group", cfg.Kafka.ConsumerGroup,
	)

	if err := indexConsumer.Start(ctx); err != nil {
		slog.Error("consumer error", "error", err)
	}
	kafkaConsumer.Close()

	slog.Info("flushing all sources before shutdown")
	if err := r.Close(); err != nil {
		slog.Error("final flush failed", "error", err)
	}

	slog.Info("indexer service stopped")
}
