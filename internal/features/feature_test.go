package features

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/geo"
	apperrors "github.com/Adithya-Monish-Kumar-K/geocoder/pkg/errors"
)

func TestSynonymsAndName(t *testing.T) {
	f := Feature{Text: " Main St, Main Street,, "}
	assert.Equal(t, []string{"Main St", "Main Street"}, f.Synonyms())
	assert.Equal(t, "Main St", f.Name())
	assert.Empty(t, Feature{}.Name())
}

func TestTilesCenterOnly(t *testing.T) {
	f := Feature{Center: [2]float64{0, 0}}
	assert.Equal(t, []Tile{{X: 0, Y: 0}}, f.Tiles(0))
}

func TestTilesExpandSmallBBox(t *testing.T) {
	bbox := geo.BBox{-10, -10, 10, 10}
	f := Feature{Center: [2]float64{0, 0}, BBox: &bbox}
	assert.Equal(t, []Tile{{0, 0}, {1, 0}, {0, 1}, {1, 1}}, f.Tiles(1))
	assert.True(t, f.CoversTile(1, 0, 1))
	assert.False(t, f.CoversTile(1, 2, 2))
}

func TestTilesLargeBBoxFallsBackToCenter(t *testing.T) {
	bbox := geo.BBox{-180, -85, 180, 85}
	f := Feature{Center: [2]float64{0, 0}, BBox: &bbox}
	x, y := geo.TileOf(0, 0, 14)
	assert.Equal(t, []Tile{{X: x, Y: y}}, f.Tiles(14))
}

func TestTilesIncludeAddressPoints(t *testing.T) {
	f := Feature{
		Center:         [2]float64{0, 0},
		AddressNumbers: [][]string{{"1"}},
		AddressPoints:  [][][2]float64{{{-90, 45}}},
	}
	tiles := f.Tiles(2)
	require.Len(t, tiles, 2)
	x, y := geo.TileOf(-90, 45, 2)
	assert.Contains(t, tiles, Tile{X: x, Y: y})
}

func TestAddressPoint(t *testing.T) {
	f := Feature{
		AddressNumbers: [][]string{{"100", "102A"}},
		AddressPoints:  [][][2]float64{{{1, 2}, {3, 4}}},
	}
	p, ok := f.AddressPoint("102a")
	require.True(t, ok)
	assert.Equal(t, [2]float64{3, 4}, p)
	_, ok = f.AddressPoint("104")
	assert.False(t, ok)
	assert.True(t, f.IsAddress())
}

func TestHousenumDocGeometries(t *testing.T) {
	f := Feature{
		RangeType: "tiger",
		LFromHN:   [][]string{{"1"}, {"11"}},
		LToHN:     [][]string{{"9"}, {"19"}},
		RFromHN:   [][]string{{"2"}},
		RToHN:     [][]string{{"10"}},
	}
	doc := f.HousenumDoc()
	assert.Equal(t, 2, doc.Geometries)
	assert.Equal(t, "tiger", doc.RangeType)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	a := Feature{ID: 5, Source: "place", Text: "A"}
	b := Feature{ID: 5 + 1<<20, Source: "place", Text: "B"}
	other := Feature{ID: 5, Source: "address", Text: "C"}
	for _, f := range []Feature{b, a, other} {
		require.NoError(t, s.Put(ctx, f))
	}
	assert.Equal(t, 3, s.Len())

	got, err := s.Get(ctx, "place", 5)
	require.NoError(t, err)
	assert.Equal(t, "A", got.Text)

	_, err = s.Get(ctx, "place", 6)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	byGrid, err := s.ByGridID(ctx, "place", []uint32{5, 5, 9})
	require.NoError(t, err)
	require.Len(t, byGrid, 1)
	require.Len(t, byGrid[5], 2)
	assert.Equal(t, "A", byGrid[5][0].Text, "grid collisions are ordered by feature id")
	assert.Equal(t, "B", byGrid[5][1].Text)

	assert.Equal(t, StatusPending, s.Status("place", 5))
	require.NoError(t, s.MarkIndexed(ctx, "place", 5, StatusIndexed))
	assert.Equal(t, StatusIndexed, s.Status("place", 5))
	assert.ErrorIs(t, s.MarkIndexed(ctx, "place", 6, StatusIndexed), apperrors.ErrNotFound)

	require.NoError(t, s.Delete(ctx, "place", 5))
	byGrid, err = s.ByGridID(ctx, "place", []uint32{5})
	require.NoError(t, err)
	require.Len(t, byGrid[5], 1)
	assert.Equal(t, "B", byGrid[5][0].Text)
	assert.ErrorIs(t, s.Delete(ctx, "place", 5), apperrors.ErrNotFound)
	assert.Empty(t, s.Status("place", 5))
}
