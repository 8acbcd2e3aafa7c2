// Package publisher persists features to the feature store and publishes
// feature events to Kafka for downstream indexing. Events are keyed by
// source so one source's features keep their order on a partition.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/features"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/kafka"
)

// EventPublisher is the Kafka surface the Publisher needs.
type EventPublisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Publisher coordinates feature persistence and Kafka event production.
type Publisher struct {
	store    features.Store
	producer EventPublisher
	logger   *slog.Logger
}

// New creates a Publisher with the given feature store and producer.
func New(store features.Store, producer EventPublisher) *Publisher {
	return &Publisher{
		store:    store,
		producer: producer,
		logger:   slog.Default().With("component", "publisher"),
	}
}

// Ingest upserts the feature and publishes a FeatureEvent. A publish
// failure leaves the feature stored in PENDING and is logged, not returned.
func (p *Publisher) Ingest(ctx context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error) {
	f := req.Feature
	if err := p.store.Put(ctx, f); err != nil {
		return nil, fmt.Errorf("storing feature: %w", err)
	}

	event := kafka.Event{
		Key: f.Source,
		Value: ingestion.FeatureEvent{
			Feature:    f,
			IngestedAt: time.Now().UTC(),
		},
	}
	if err := p.producer.Publish(ctx, event); err != nil {
		p.logger.Error("failed to publish to kafka, feature stuck in PENDING",
			"source", f.Source,
			"feature_id", f.ID,
			"error", err,
		)
	}
	return &ingestion.IngestResponse{
		Source:    f.Source,
		FeatureID: f.ID,
		GridID:    f.GridID(),
		Status:    features.StatusPending,
	}, nil
}
