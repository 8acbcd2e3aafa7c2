package geocoder

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/store"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/termops"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/geocoder/pkg/errors"
)

func memStores(names ...string) map[string]*store.Store {
	out := make(map[string]*store.Store, len(names))
	for _, n := range names {
		out[n] = store.New(n, store.NewMemoryBackend(), store.Options{})
	}
	return out
}

func TestNewRegistry(t *testing.T) {
	cfgs := []config.SourceConfig{
		{Name: "country", Type: "country", Zoom: 6},
		{Name: "region", Type: "region", Zoom: 8, BMask: []string{"country"}},
		{Name: "address", Type: "address", Zoom: 14, Address: true, Version: 3},
	}
	reg, err := NewRegistry(cfgs, memStores("country", "region", "address"))
	require.NoError(t, err)

	assert.Equal(t, 3, reg.Len())
	assert.Equal(t, []string{"address", "country", "region"}, reg.Names())
	assert.True(t, reg.Known("region"))
	assert.False(t, reg.Known("poi"))

	region, ok := reg.ByName("region")
	require.True(t, ok)
	assert.Equal(t, 1, region.Idx)
	assert.Equal(t, []bool{true, false, false}, region.BMask)

	country, ok := reg.ByIdx(0)
	require.True(t, ok)
	assert.Equal(t, []bool{false, true, false}, country.BMask, "bmask applies both ways")
	assert.Equal(t, termops.MinNumTokenVersion, country.Config.Version)

	_, ok = reg.ByIdx(3)
	assert.False(t, ok)
}

func TestNewRegistryErrors(t *testing.T) {
	t.Run("missing store", func(t *testing.T) {
		_, err := NewRegistry([]config.SourceConfig{{Name: "place"}}, memStores())
		assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
	})
	t.Run("unknown bmask", func(t *testing.T) {
		_, err := NewRegistry([]config.SourceConfig{{Name: "place", BMask: []string{"nowhere"}}}, memStores("place"))
		assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
	})
	t.Run("too many sources", func(t *testing.T) {
		var cfgs []config.SourceConfig
		stores := make(map[string]*store.Store)
		for i := 0; i <= config.MaxSources; i++ {
			name := fmt.Sprintf("place-%d", i)
			cfgs = append(cfgs, config.SourceConfig{Name: name})
			stores[name] = store.New(name, store.NewMemoryBackend(), store.Options{CacheSize: 1})
		}
		_, err := NewRegistry(cfgs, stores)
		assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)

		reg, err := NewRegistry(cfgs[:config.MaxSources], stores)
		require.NoError(t, err)
		assert.Equal(t, config.MaxSources, reg.Len())
	})
}

func TestAllowed(t *testing.T) {
	cfgs := []config.SourceConfig{
		{Name: "place-us", Type: "place"},
		{Name: "place-ca", Type: "place"},
		{Name: "poi", Type: "poi"},
	}
	reg, err := NewRegistry(cfgs, memStores("place-us", "place-ca", "poi"))
	require.NoError(t, err)

	allowed, err := reg.Allowed(nil)
	require.NoError(t, err)
	assert.Nil(t, allowed)

	allowed, err = reg.Allowed([]string{"place"})
	require.NoError(t, err)
	assert.Equal(t, map[int]bool{0: true, 1: true}, allowed)

	allowed, err = reg.Allowed([]string{" poi ", "place-ca"})
	require.NoError(t, err)
	assert.Equal(t, map[int]bool{1: true, 2: true}, allowed)

	_, err = reg.Allowed([]string{"country"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestScoreFactor(t *testing.T) {
	ctx := context.Background()
	st := store.New("place", store.NewMemoryBackend(), store.Options{})
	src := &Source{Config: config.SourceConfig{Name: "place"}, Store: st}

	sf, err := src.ScoreFactor(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1.0, sf)

	require.NoError(t, st.AddFreq(ctx, termops.Freq{termops.MaxKey: 250}))
	sf, err = src.ScoreFactor(ctx)
	require.NoError(t, err)
	assert.Equal(t, 250.0, sf)

	src.Config.ScoreFactor = 40
	sf, err = src.ScoreFactor(ctx)
	require.NoError(t, err)
	assert.Equal(t, 40.0, sf)
}

func TestPhrasematch(t *testing.T) {
	g := newTestGeocoder(t)
	ctx := context.Background()
	query := []string{"main", "st", "springfield"}

	street, ok := g.Registry().ByName("street")
	require.True(t, ok)
	res, err := street.Phrasematch(ctx, query)
	require.NoError(t, err)
	require.Len(t, res.Phrasematches, 1)
	pm := res.Phrasematches[0]
	assert.Equal(t, "main st", pm.Phrase)
	assert.Equal(t, uint32(0b011), pm.Mask)
	assert.InDelta(t, 2.0/3.0, pm.Weight, 1e-9)
	assert.Equal(t, 14, pm.Zoom)
	assert.Equal(t, 1, pm.Idx)

	empty, err := street.Phrasematch(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty.Phrasematches)
}

func TestPhrasematchPrefix(t *testing.T) {
	g := newTestGeocoder(t)
	ctx := context.Background()
	street, ok := g.Registry().ByName("street")
	require.True(t, ok)

	tests := []struct {
		name   string
		query  []string
		prefix bool
	}{
		{"partial word", []string{"mai"}, true},
		{"leading word", []string{"main"}, true},
		{"whole phrase", []string{"main", "st"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := street.Phrasematch(ctx, tt.query)
			require.NoError(t, err)
			var full []bool
			for _, pm := range res.Phrasematches {
				if pm.Mask == uint32(1)<<len(tt.query)-1 {
					assert.Equal(t, "main st", pm.Phrase)
					assert.Equal(t, 1.0, pm.Weight)
					full = append(full, pm.Prefix)
				}
			}
			assert.Equal(t, []bool{tt.prefix}, full)
		})
	}

	t.Run("inner phrase stays exact", func(t *testing.T) {
		res, err := street.Phrasematch(ctx, []string{"mai", "springfield"})
		require.NoError(t, err)
		assert.Empty(t, res.Phrasematches)
	})
}
