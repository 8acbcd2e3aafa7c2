package router

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/features"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/store"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/geocoder/pkg/errors"
)

func newTestRouter(t *testing.T) (*Router, map[string]*store.Store) {
	t.Helper()
	sources := []config.SourceConfig{
		{Name: "place", Zoom: 6},
		{Name: "address", Zoom: 14, Address: true},
	}
	stores := map[string]*store.Store{
		"place":   store.New("place", store.NewMemoryBackend(), store.Options{}),
		"address": store.New("address", store.NewMemoryBackend(), store.Options{}),
	}
	r, err := New(sources, stores, config.IndexerConfig{Workers: 2, FlushInterval: time.Hour}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r, stores
}

func TestRoute(t *testing.T) {
	r, _ := newTestRouter(t)

	e, err := r.Route("place")
	require.NoError(t, err)
	assert.Equal(t, "place", e.Source().Name)

	_, err = r.Route("poi")
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)

	assert.Len(t, r.Engines(), 2)
}

func TestNewFailsWithoutStore(t *testing.T) {
	_, err := New([]config.SourceConfig{{Name: "place"}}, map[string]*store.Store{}, config.IndexerConfig{}, nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
}

func TestFlushAllRunsHooks(t *testing.T) {
	ctx := context.Background()
	r, stores := newTestRouter(t)

	flushed := make(map[string]int)
	r.OnFlush(func(_ context.Context, source string, st index.Stats) {
		flushed[source] += st.Features
	})

	e, err := r.Route("place")
	require.NoError(t, err)
	require.NoError(t, e.IndexFeature(ctx, features.Feature{ID: 1, Source: "place", Text: "Springfield"}))
	require.NoError(t, r.FlushAll(ctx))

	assert.Equal(t, map[string]int{"place": 1}, flushed)
	ok, err := stores["place"].HasPhrase(ctx, "springfield")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = stores["address"].HasPhrase(ctx, "springfield")
	require.NoError(t, err)
	assert.False(t, ok)
}
