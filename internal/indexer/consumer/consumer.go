// Package consumer reads feature events from Kafka and indexes them through
// the source router, recording the outcome on the feature store.
package consumer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/features"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/kafka"
)

// Router resolves the engine of a source.
type Router interface {
	Route(source string) (*indexer.Engine, error)
}

// IndexConsumer wraps a Kafka consumer to drive the indexing pipeline.
type IndexConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// New creates an IndexConsumer backed by the given Kafka consumer.
func New(kafkaConsumer *kafka.Consumer) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("index consumer starting")
	return ic.consumer.Start(ctx)
}

// HandleMessage returns a Kafka MessageHandler that indexes each feature
// event into the engine of its source. Undecodable events come back as
// ErrInvalidInput for the consumer to skip; invalid features are marked
// failed and acknowledged. marker may be nil.
func HandleMessage(router Router, marker features.StatusMarker) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ingestion.FeatureEvent](value)
		if err != nil {
			return err
		}
		f := event.Feature
		if err := validator.ValidateFeature(&f, nil); err != nil {
			logger.Warn("skipping invalid feature event",
				"source", f.Source,
				"feature_id", f.ID,
				"error", err,
			)
			markStatus(ctx, marker, f, features.StatusFailed, logger)
			return nil
		}

		engine, err := router.Route(f.Source)
		if err != nil {
			logger.Warn("skipping feature of unknown source", "source", f.Source, "feature_id", f.ID)
			markStatus(ctx, marker, f, features.StatusFailed, logger)
			return nil
		}

		logger.Debug("processing feature event",
			"source", f.Source,
			"feature_id", f.ID,
		)
		if err := engine.IndexFeature(ctx, f); err != nil {
			markStatus(ctx, marker, f, features.StatusFailed, logger)
			return fmt.Errorf("indexing feature %s.%d: %w", f.Source, f.ID, err)
		}

		markStatus(ctx, marker, f, features.StatusIndexed, logger)
		logger.Info("feature indexed",
			"source", f.Source,
			"feature_id", f.ID,
		)
		return nil
	}
}

func markStatus(ctx context.Context, marker features.StatusMarker, f features.Feature, status string, logger *slog.Logger) {
	if marker == nil {
		return
	}
	if err := marker.MarkIndexed(ctx, f.Source, f.ID, status); err != nil {
		logger.Error("failed to update feature status",
			"source", f.Source,
			"feature_id", f.ID,
			"status", status,
			"error", err,
		)
	}
}
