package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/kafka"
)

// NotifyFlush returns a flush hook announcing every flush as an IndexEvent
// on each of pubs. Publish failures are logged; the flush already stands.
func NotifyFlush(pubs ...publisher.EventPublisher) indexer.FlushHook {
	logger := slog.Default().With("component", "flush-notifier")
	return func(ctx context.Context, source string, st index.Stats) {
		event := kafka.Event{
			Key: source,
			Value: ingestion.IndexEvent{
				Source:    source,
				Phrases:   st.Phrases,
				Features:  st.Features,
				FlushedAt: time.Now().UTC(),
			},
		}
		for _, p := range pubs {
			if err := p.Publish(ctx, event); err != nil {
				logger.Error("index event publish failed", "source", source, "error", err)
			}
		}
	}
}
