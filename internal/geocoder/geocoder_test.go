package geocoder

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/coalesce"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/features"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/geo"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/spatialmatch"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/store"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/geocoder/pkg/errors"
)

var testSources = []config.SourceConfig{
	{Name: "place", Type: "place", Zoom: 6},
	{Name: "street", Type: "street", Zoom: 14},
}

var testFeatures = []features.Feature{
	{ID: 1, Source: "place", Text: "Springfield", Center: [2]float64{-89.65, 39.78}, Score: 100},
	{ID: 2, Source: "street", Text: "Main St", Center: [2]float64{-89.65, 39.78}},
	{ID: 3, Source: "street", Text: "Main St", Center: [2]float64{-100, 40}},
}

// newTestGeocoder indexes testFeatures into in-memory stores and wires a
// local coalesce engine over them.
func newTestGeocoder(t testing.TB) *Geocoder {
	return buildGeocoder(t, testSources, testFeatures)
}

func buildGeocoder(t testing.TB, sources []config.SourceConfig, feats []features.Feature) *Geocoder {
	t.Helper()
	ctx := context.Background()

	fs := features.NewMemoryStore()
	stores := make(map[string]*store.Store, len(sources))
	engine := coalesce.NewEngine()
	for i, src := range sources {
		st := store.New(src.Name, store.NewMemoryBackend(), store.Options{})
		idx, err := indexer.NewEngine(src, st, config.IndexerConfig{Workers: 2, BatchSize: 10, FlushInterval: time.Hour}, nil)
		require.NoError(t, err)
		for _, f := range feats {
			if f.Source != src.Name {
				continue
			}
			require.NoError(t, fs.Put(ctx, f))
			require.NoError(t, idx.IndexFeature(ctx, f))
		}
		require.NoError(t, idx.Flush(ctx))
		require.NoError(t, idx.Close())
		stores[src.Name] = st
		engine.Register(i, st)
	}

	reg, err := NewRegistry(sources, stores)
	require.NoError(t, err)
	return New(reg, engine, fs, config.GeocoderConfig{Timeout: 5 * time.Second}, nil)
}

func ids(resp *Response) []string {
	out := make([]string, 0, len(resp.Features))
	for _, f := range resp.Features {
		out = append(out, f.ID)
	}
	return out
}

func TestForward(t *testing.T) {
	g := newTestGeocoder(t)

	resp, err := g.Forward(context.Background(), "Main St Springfield", Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"main", "st", "springfield"}, resp.Query)
	// springfield alone covers a third of the query, under the 0.5 floor.
	require.Equal(t, []string{"street.2", "street.3"}, ids(resp))

	best := resp.Features[0]
	assert.Equal(t, "Main St, Springfield", best.PlaceName)
	assert.Equal(t, []Context{{ID: "place.1", Text: "Springfield"}}, best.Context)
	assert.InDelta(t, 1.0, best.Relevance, 1e-6)
	assert.InDelta(t, 0.666667, resp.Features[1].Relevance, 1e-6)
}

func TestForwardLowRelevance(t *testing.T) {
	sources := []config.SourceConfig{{Name: "country", Type: "country", Zoom: 6}}
	feats := []features.Feature{
		{ID: 1, Source: "country", Text: "czech republic", Center: [2]float64{0, 0}},
		{ID: 2, Source: "country", Text: "fake country two", Center: [2]float64{0, 0}},
	}
	g := buildGeocoder(t, sources, feats)
	ctx := context.Background()

	resp, err := g.Forward(ctx, "czech", Options{Limit: 1})
	require.NoError(t, err)
	require.Equal(t, []string{"country.1"}, ids(resp))
	assert.Equal(t, "czech republic", resp.Features[0].PlaceName)

	resp, err = g.Forward(ctx, "czech republic", Options{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"country.1"}, ids(resp))

	resp, err = g.Forward(ctx, "fake blah blah", Options{Limit: 1})
	require.NoError(t, err)
	assert.Empty(t, resp.Features)
}

func TestForwardOptions(t *testing.T) {
	g := newTestGeocoder(t)
	ctx := context.Background()

	t.Run("limit", func(t *testing.T) {
		resp, err := g.Forward(ctx, "main st springfield", Options{Limit: 1})
		require.NoError(t, err)
		assert.Equal(t, []string{"street.2"}, ids(resp))
	})

	t.Run("bbox", func(t *testing.T) {
		resp, err := g.Forward(ctx, "main st springfield", Options{BBox: &geo.BBox{-101, 39, -99, 41}})
		require.NoError(t, err)
		assert.Equal(t, []string{"street.3"}, ids(resp))
	})

	t.Run("types", func(t *testing.T) {
		resp, err := g.Forward(ctx, "springfield", Options{Types: []string{"place"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"place.1"}, ids(resp))

		resp, err = g.Forward(ctx, "main st", Options{Types: []string{"place"}})
		require.NoError(t, err)
		assert.Empty(t, resp.Features)
	})

	t.Run("types below floor", func(t *testing.T) {
		resp, err := g.Forward(ctx, "main st springfield", Options{Types: []string{"place"}})
		require.NoError(t, err)
		assert.Empty(t, resp.Features)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := g.Forward(ctx, "main st", Options{Types: []string{"country"}})
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})
}

func TestForwardEdgeCases(t *testing.T) {
	g := newTestGeocoder(t)
	ctx := context.Background()

	t.Run("coordinates", func(t *testing.T) {
		_, err := g.Forward(ctx, "-89.65, 39.78", Options{})
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("too long", func(t *testing.T) {
		_, err := g.Forward(ctx, strings.Repeat("a", 257), Options{})
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("punctuation only", func(t *testing.T) {
		resp, err := g.Forward(ctx, "!!! ???", Options{})
		require.NoError(t, err)
		assert.Empty(t, resp.Query)
		assert.Empty(t, resp.Features)
	})

	t.Run("no match", func(t *testing.T) {
		resp, err := g.Forward(ctx, "atlantis", Options{})
		require.NoError(t, err)
		assert.Empty(t, resp.Features)
	})

	t.Run("feature reference", func(t *testing.T) {
		resp, err := g.Forward(ctx, "place.1", Options{})
		require.NoError(t, err)
		require.Len(t, resp.Features, 1)
		assert.Equal(t, "Springfield", resp.Features[0].PlaceName)
		assert.Equal(t, 1.0, resp.Features[0].Relevance)
	})

	t.Run("missing feature reference", func(t *testing.T) {
		resp, err := g.Forward(ctx, "place.99", Options{})
		require.NoError(t, err)
		assert.Empty(t, resp.Features)
	})

	t.Run("cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := g.Forward(cctx, "main st", Options{})
		assert.Error(t, err)
	})
}

func TestLimit(t *testing.T) {
	g := New(&Registry{}, nil, nil, config.GeocoderConfig{DefaultLimit: 5, MaxLimit: 10}, nil)
	assert.Equal(t, 5, g.Limit(0))
	assert.Equal(t, 3, g.Limit(3))
	assert.Equal(t, 10, g.Limit(50))
}

type stalledCoalescer struct{}

func (stalledCoalescer) Coalesce(context.Context, spatialmatch.Stack, spatialmatch.CoalesceOptions) ([]spatialmatch.CoalesceMatch, error) {
	return nil, context.DeadlineExceeded
}

func TestForwardCoalesceDeadline(t *testing.T) {
	reg := newTestGeocoder(t).Registry()
	g := New(reg, stalledCoalescer{}, features.NewMemoryStore(), config.GeocoderConfig{Timeout: 5 * time.Second}, nil)

	_, err := g.Forward(context.Background(), "springfield", Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrTimeout)
	assert.ErrorIs(t, err, apperrors.ErrCoalesce)
	assert.Equal(t, http.StatusGatewayTimeout, apperrors.HTTPStatusCode(err))
}
