package publisher

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/features"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/kafka"
)

type fakeProducer struct {
	events []kafka.Event
	err    error
}

func (p *fakeProducer) Publish(_ context.Context, event kafka.Event) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func TestIngestStoresAndPublishes(t *testing.T) {
	ctx := context.Background()
	store := features.NewMemoryStore()
	prod := &fakeProducer{}
	pub := New(store, prod)

	f := features.Feature{ID: 42, Source: "place", Text: "Springfield"}
	resp, err := pub.Ingest(ctx, &ingestion.IngestRequest{Feature: f})
	require.NoError(t, err)
	assert.Equal(t, "place", resp.Source)
	assert.Equal(t, int64(42), resp.FeatureID)
	assert.Equal(t, f.GridID(), resp.GridID)
	assert.Equal(t, features.StatusPending, resp.Status)

	stored, err := store.Get(ctx, "place", 42)
	require.NoError(t, err)
	assert.Equal(t, "Springfield", stored.Text)

	require.Len(t, prod.events, 1)
	assert.Equal(t, "place", prod.events[0].Key)
	event, ok := prod.events[0].Value.(ingestion.FeatureEvent)
	require.True(t, ok)
	assert.Equal(t, int64(42), event.Feature.ID)
	assert.False(t, event.IngestedAt.IsZero())
}

func TestIngestPublishFailureKeepsFeature(t *testing.T) {
	ctx := context.Background()
	store := features.NewMemoryStore()
	pub := New(store, &fakeProducer{err: errors.New("broker down")})

	resp, err := pub.Ingest(ctx, &ingestion.IngestRequest{
		Feature: features.Feature{ID: 7, Source: "place", Text: "Shelbyville"},
	})
	require.NoError(t, err)
	assert.Equal(t, features.StatusPending, resp.Status)
	assert.Equal(t, features.StatusPending, store.Status("place", 7))
}
