package coalesce

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/geo"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/spatialmatch"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/geocoder/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/grid"
)

func TestTmpIDUnique(t *testing.T) {
	tests := []struct {
		name string
		idx  int
		id   uint32
	}{
		{"first source", 0, 1},
		{"last source", config.MaxSources - 1, 1},
		{"largest feature id", config.MaxSources - 1, grid.MaxID - 1},
	}
	seen := map[uint32]bool{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmp := TmpID(tt.idx, tt.id)
			assert.Equal(t, tt.id, tmp&(1<<tmpIDShift-1))
			assert.Equal(t, uint32(tt.idx), tmp>>tmpIDShift)
			assert.False(t, seen[tmp])
			seen[tmp] = true
		})
	}
}

type gridMap map[string][]uint64

func (g gridMap) Grids(_ context.Context, phrase string) ([]uint64, error) {
	return g[phrase], nil
}

type brokenSource struct{}

func (brokenSource) Grids(context.Context, string) ([]uint64, error) {
	return nil, errors.New("shard missing")
}

func enc(id, x, y uint32, relev float64, score int) uint64 {
	return grid.MustEncode(grid.Cell{ID: id, X: x, Y: y, Relev: relev, Score: score})
}

func member(idx int, phrase string, zoom int, weight float64) spatialmatch.Phrasematch {
	return spatialmatch.Phrasematch{Idx: idx, Phrase: phrase, Mask: 1 << idx, Weight: weight, Zoom: zoom, ScoreFactor: 1}
}

func stackOf(members ...spatialmatch.Phrasematch) spatialmatch.Stack {
	return spatialmatch.Stack{Members: members}
}

func placeEngine() *Engine {
	e := NewEngine()
	e.Register(2, gridMap{"paris": {
		enc(1, 10, 10, 1, 3),
		enc(2, 11, 10, 0.8, 7),
		enc(1, 10, 11, 1, 3),
	}})
	return e
}

func TestCoalesceSingle(t *testing.T) {
	matches, err := placeEngine().Coalesce(context.Background(),
		stackOf(member(2, "paris", 6, 0.5)), spatialmatch.CoalesceOptions{})
	require.NoError(t, err)
	require.Len(t, matches, 2, "one match per feature")

	first := matches[0]
	assert.InDelta(t, 0.5, first.Relev, 1e-9)
	require.Len(t, first.Covers, 1)
	c := first.Covers[0]
	assert.Equal(t, uint32(1), c.ID)
	assert.Equal(t, 2, c.Idx)
	assert.Equal(t, TmpID(2, 1), c.TmpID)
	assert.Equal(t, uint32(2<<25|1), c.TmpID)
	assert.Equal(t, 3, c.Score)
	assert.InDelta(t, 3.0, c.ScoreDist, 1e-9)
	assert.Zero(t, c.Distance)

	assert.Equal(t, uint32(2), matches[1].Covers[0].ID)
	assert.InDelta(t, 0.4, matches[1].Relev, 1e-9)
}

func TestCoalesceSingleBBox(t *testing.T) {
	bbox := geo.TileBBox{Z: 6, MinX: 10, MinY: 10, MaxX: 10, MaxY: 10}
	matches, err := placeEngine().Coalesce(context.Background(),
		stackOf(member(2, "paris", 6, 1)), spatialmatch.CoalesceOptions{BBox: &bbox})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, uint32(10), matches[0].Covers[0].X)
	assert.Equal(t, uint32(10), matches[0].Covers[0].Y)
}

func TestCoalesceSingleProximity(t *testing.T) {
	e := NewEngine()
	e.Register(0, gridMap{"cafe": {enc(1, 11, 10, 1, 7), enc(2, 10, 10, 1, 7)}})
	center := geo.ZXY{Z: 6, X: 10.5, Y: 10.5}

	matches, err := e.Coalesce(context.Background(), stackOf(member(0, "cafe", 6, 1)),
		spatialmatch.CoalesceOptions{Center: &center, Radius: 200})
	require.NoError(t, err)
	require.Len(t, matches, 2)

	near, far := matches[0].Covers[0], matches[1].Covers[0]
	assert.Equal(t, uint32(2), near.ID)
	assert.InDelta(t, 0, near.Distance, 1e-6)
	assert.InDelta(t, 700, near.ScoreDist, 1e-6)
	assert.Greater(t, far.Distance, near.Distance)
	assert.Less(t, far.ScoreDist, near.ScoreDist)
}

func TestCoalesceMulti(t *testing.T) {
	e := NewEngine()
	e.Register(0, gridMap{"main st": {enc(5, 2620, 6334, 1, 2), enc(6, 100, 100, 1, 7)}})
	e.Register(1, gridMap{"springfield": {enc(9, 655, 1583, 1, 5), enc(10, 655, 1583, 0.6, 7)}})

	stack := stackOf(member(1, "springfield", 12, 0.5), member(0, "main st", 14, 0.5))
	matches, err := e.Coalesce(context.Background(), stack, spatialmatch.CoalesceOptions{})
	require.NoError(t, err)
	require.Len(t, matches, 1)

	m := matches[0]
	assert.InDelta(t, 1.0, m.Relev, 1e-9)
	require.Len(t, m.Covers, 2)
	assert.Equal(t, 0, m.Covers[0].Idx, "deepest member leads")
	assert.Equal(t, uint32(5), m.Covers[0].ID)
	assert.Equal(t, 1, m.Covers[1].Idx)
	assert.Equal(t, uint32(9), m.Covers[1].ID, "best parent cell wins")
}

func TestCoalesceMultiNoOverlapIsEmpty(t *testing.T) {
	e := NewEngine()
	e.Register(0, gridMap{"main st": {enc(5, 2620, 6334, 1, 2)}})
	e.Register(1, gridMap{"springfield": {enc(9, 1, 1, 1, 5)}})

	matches, err := e.Coalesce(context.Background(),
		stackOf(member(1, "springfield", 12, 0.5), member(0, "main st", 14, 0.5)),
		spatialmatch.CoalesceOptions{})
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestCoalesceMissingPhraseIsEmpty(t *testing.T) {
	matches, err := placeEngine().Coalesce(context.Background(),
		stackOf(member(2, "london", 6, 1)), spatialmatch.CoalesceOptions{})
	require.NoError(t, err)
	assert.Empty(t, matches)

	matches, err = placeEngine().Coalesce(context.Background(), spatialmatch.Stack{}, spatialmatch.CoalesceOptions{})
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestCoalesceTruncates(t *testing.T) {
	var grids []uint64
	for i := uint32(0); i < 60; i++ {
		grids = append(grids, enc(i+1, i, 0, 1, int(i%8)))
	}
	e := NewEngine()
	e.Register(0, gridMap{"main": grids})

	matches, err := e.Coalesce(context.Background(), stackOf(member(0, "main", 6, 1)), spatialmatch.CoalesceOptions{})
	require.NoError(t, err)
	require.Len(t, matches, MaxMatches)
	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].Covers[0].ScoreDist, matches[i].Covers[0].ScoreDist)
	}
}

func TestCoalesceErrors(t *testing.T) {
	e := NewEngine()
	_, err := e.Coalesce(context.Background(), stackOf(member(3, "x", 6, 1)), spatialmatch.CoalesceOptions{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)

	e.Register(3, brokenSource{})
	_, err = e.Coalesce(context.Background(), stackOf(member(3, "x", 6, 1)), spatialmatch.CoalesceOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shard missing")
}

func TestInTileBBox(t *testing.T) {
	b := geo.TileBBox{Z: 6, MinX: 8, MinY: 8, MaxX: 11, MaxY: 11}
	tests := []struct {
		name string
		c    cell
		want bool
	}{
		{"same zoom inside", cell{Cell: grid.Cell{X: 9, Y: 10}, zoom: 6}, true},
		{"same zoom outside", cell{Cell: grid.Cell{X: 12, Y: 10}, zoom: 6}, false},
		{"deeper zoom inside", cell{Cell: grid.Cell{X: 40, Y: 44}, zoom: 8}, true},
		{"deeper zoom outside", cell{Cell: grid.Cell{X: 48, Y: 44}, zoom: 8}, false},
		{"shallower zoom overlapping", cell{Cell: grid.Cell{X: 2, Y: 2}, zoom: 4}, true},
		{"shallower zoom disjoint", cell{Cell: grid.Cell{X: 3, Y: 2}, zoom: 4}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, inTileBBox(tt.c, b))
		})
	}
}
