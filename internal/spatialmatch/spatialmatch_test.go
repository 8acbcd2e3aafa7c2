package spatialmatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/geo"
	apperrors "github.com/Adithya-Monish-Kumar-K/geocoder/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/metrics"
)

type fakeLoader struct {
	mu    sync.Mutex
	calls [][]string
	err   error
}

func (l *fakeLoader) LoadAll(_ context.Context, typ string, ids []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if typ != GridType {
		return fmt.Errorf("unexpected type %q", typ)
	}
	l.calls = append(l.calls, ids)
	return l.err
}

type fakeCoalescer struct {
	mu      sync.Mutex
	matches map[string][]CoalesceMatch
	opts    map[string]CoalesceOptions
	err     error
}

func newFakeCoalescer() *fakeCoalescer {
	return &fakeCoalescer{
		matches: make(map[string][]CoalesceMatch),
		opts:    make(map[string]CoalesceOptions),
	}
}

func (c *fakeCoalescer) Coalesce(_ context.Context, stack Stack, opts CoalesceOptions) ([]CoalesceMatch, error) {
	key := fmt.Sprint(stackIdxs(stack))
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opts[key] = opts
	if c.err != nil {
		return nil, c.err
	}
	return c.matches[key], nil
}

type fixture struct {
	query   []string
	results []PhrasematchResult
	street  *fakeLoader
	place   *fakeLoader
}

func newFixture() *fixture {
	f := &fixture{
		query:  []string{"main", "st", "springfield"},
		street: &fakeLoader{},
		place:  &fakeLoader{},
	}
	street := pm(0, 3, 2.0/3, 14, "main", "st")
	street.ScoreFactor = 10
	f.results = []PhrasematchResult{
		{Idx: 0, Phrasematches: []Phrasematch{street}, BMask: []bool{false, false}, Loader: f.street},
		{Idx: 1, Phrasematches: []Phrasematch{pm(1, 4, 1.0/3, 12, "springfield")}, BMask: []bool{false, false}, Loader: f.place},
	}
	return f
}

const placeTmpID = 1<<25 | 9

func pairMatch() CoalesceMatch {
	return CoalesceMatch{Relev: 1, Covers: []CoalesceCover{
		{X: 2620, Y: 6334, Relev: 0.5, ID: 5, Idx: 0, TmpID: 5, Score: 7, ScoreDist: 14},
		{X: 655, Y: 1583, Relev: 0.5, ID: 9, Idx: 1, TmpID: placeTmpID, Score: 3, ScoreDist: 3},
	}}
}

func TestPrepareOrdersAndRebalances(t *testing.T) {
	f := newFixture()
	m := NewMatcher(newFakeCoalescer(), Config{}, nil)

	stacks := m.Prepare(f.query, f.results, nil)
	require.Len(t, stacks, 2)

	pair := stacks[0]
	require.Len(t, pair.Members, 2)
	assert.InDelta(t, 1.0, pair.Relev, 1e-9)
	assert.Equal(t, 12, pair.Members[0].Zoom)
	assert.Equal(t, 14, pair.Members[1].Zoom)
	assert.InDelta(t, 0.5, pair.Members[0].Weight, 1e-9)

	single := stacks[1]
	require.Len(t, single.Members, 1)
	assert.InDelta(t, 0.5, single.Relev, 1e-9)

	// input weights are untouched
	assert.InDelta(t, 2.0/3, f.results[0].Phrasematches[0].Weight, 1e-9)
}

func TestPrepareStackLimit(t *testing.T) {
	f := newFixture()
	m := NewMatcher(newFakeCoalescer(), Config{StackLimit: 1}, nil)
	stacks := m.Prepare(f.query, f.results, nil)
	require.Len(t, stacks, 1)
	assert.Len(t, stacks[0].Members, 2)
}

func TestSpatialmatchDirectionalDedupe(t *testing.T) {
	f := newFixture()
	c := newFakeCoalescer()
	c.matches["[0 1]"] = []CoalesceMatch{pairMatch()}
	c.matches["[0]"] = []CoalesceMatch{{Relev: 0.5, Covers: []CoalesceCover{
		{X: 2620, Y: 6334, Relev: 0.4, ID: 5, Idx: 0, TmpID: 5, Score: 7, ScoreDist: 7},
	}}}

	reg := prometheus.NewRegistry()
	m := NewMatcher(c, Config{}, metrics.New(reg))

	res, err := m.Spatialmatch(context.Background(), f.query, f.results, Options{})
	require.NoError(t, err)

	require.Len(t, res.Results, 1)
	top := res.Results[0]
	assert.InDelta(t, 1.0, top.Relev, 1e-9)
	require.Len(t, top.Covers, 2)

	lead := top.Covers[0]
	assert.Equal(t, "main st", lead.Text)
	assert.Equal(t, uint32(3), lead.Mask)
	assert.Equal(t, 14, lead.Zoom)
	assert.InDelta(t, 10.0, lead.Score, 1e-9)
	assert.InDelta(t, 20.0, lead.ScoreDist, 1e-9)
	assert.Equal(t, "springfield", top.Covers[1].Text)

	require.Len(t, res.Sets, 2)
	assert.InDelta(t, 0.5, res.Sets[5].Relev, 1e-9)
	assert.Equal(t, uint32(9), res.Sets[placeTmpID].ID)
	assert.Empty(t, res.Waste)

	assert.Equal(t, [][]string{{"main st"}}, f.street.calls)
	assert.Equal(t, [][]string{{"springfield"}}, f.place.calls)
}

func TestSpatialmatchWaste(t *testing.T) {
	f := newFixture()
	c := newFakeCoalescer()
	c.matches["[0 1]"] = []CoalesceMatch{pairMatch()}

	res, err := NewMatcher(c, Config{Concurrency: 1}, nil).
		Spatialmatch(context.Background(), f.query, f.results, Options{})
	require.NoError(t, err)
	assert.Len(t, res.Results, 1)
	assert.Equal(t, [][]int{{0}}, res.Waste)
}

func TestSpatialmatchNoStacks(t *testing.T) {
	res, err := NewMatcher(newFakeCoalescer(), Config{}, nil).
		Spatialmatch(context.Background(), []string{"x"}, nil, Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Results)
	assert.Empty(t, res.Sets)
	assert.Empty(t, res.Waste)
}

func TestSpatialmatchAllowedIdx(t *testing.T) {
	f := newFixture()
	c := newFakeCoalescer()
	c.matches["[0 1]"] = []CoalesceMatch{pairMatch()}

	res, err := NewMatcher(c, Config{}, nil).Spatialmatch(context.Background(), f.query, f.results,
		Options{AllowedIdx: map[int]bool{0: true}})
	require.NoError(t, err)
	assert.Empty(t, res.Results)
	assert.Equal(t, [][]int{{0}}, res.Waste)
	_, coalesced := c.opts["[0 1]"]
	assert.False(t, coalesced)
}

func TestSpatialmatchPassesTileFilters(t *testing.T) {
	f := newFixture()
	c := newFakeCoalescer()
	prox := [2]float64{-89.65, 39.78}
	bbox := geo.BBox{-90, 39, -89, 40}

	_, err := NewMatcher(c, Config{}, nil).Spatialmatch(context.Background(), f.query, f.results,
		Options{Proximity: &prox, BBox: &bbox})
	require.NoError(t, err)

	opts := c.opts["[0 1]"]
	require.NotNil(t, opts.Center)
	assert.Equal(t, 14, opts.Center.Z)
	assert.InDelta(t, DefaultProximityRadius, opts.Radius, 1e-9)
	require.NotNil(t, opts.BBox)
	assert.Equal(t, 12, opts.BBox.Z)

	single := c.opts["[0]"]
	require.NotNil(t, single.BBox)
	assert.Equal(t, 14, single.BBox.Z)
}

func TestSpatialmatchShardLoadError(t *testing.T) {
	tests := []struct {
		name  string
		cause error
	}{
		{"backend", errors.New("disk gone")},
		{"cancelled", context.Canceled},
		{"deadline", context.DeadlineExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.place.err = tt.cause

			_, err := NewMatcher(newFakeCoalescer(), Config{}, nil).
				Spatialmatch(context.Background(), f.query, f.results, Options{})
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrShardLoad)
			assert.ErrorIs(t, err, tt.cause)
		})
	}
}

func TestSpatialmatchCoalesceError(t *testing.T) {
	tests := []struct {
		name  string
		cause error
	}{
		{"backend", errors.New("boom")},
		{"deadline", context.DeadlineExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			c := newFakeCoalescer()
			c.err = tt.cause

			_, err := NewMatcher(c, Config{}, nil).
				Spatialmatch(context.Background(), f.query, f.results, Options{})
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrCoalesce)
			assert.ErrorIs(t, err, tt.cause)
		})
	}
}

func TestFinalizeKeepsBothDirections(t *testing.T) {
	asc := Spatialmatch{Relev: 1, Covers: []Cover{{TmpID: 1, Idx: 0, Relev: 0.5}, {TmpID: 2, Idx: 1, Relev: 0.5}}}
	desc := Spatialmatch{Relev: 0.9, Covers: []Cover{{TmpID: 1, Idx: 2, Relev: 0.6}, {TmpID: 3, Idx: 0, Relev: 0.3}}}
	dupe := Spatialmatch{Relev: 0.8, Covers: []Cover{{TmpID: 1, Idx: 0, Relev: 0.4}, {TmpID: 4, Idx: 3, Relev: 0.4}}}
	single := Spatialmatch{Relev: 0.7, Covers: []Cover{{TmpID: 1, Idx: 0, Relev: 0.7}}}
	other := Spatialmatch{Relev: 0.6, Covers: []Cover{{TmpID: 7, Idx: 0, Relev: 0.6}}}

	res := finalize([][]Spatialmatch{{single, dupe}, {other, asc, desc}})
	require.Len(t, res.Results, 3)
	assert.Equal(t, asc, res.Results[0])
	assert.Equal(t, desc, res.Results[1])
	assert.Equal(t, other, res.Results[2])

	assert.Len(t, res.Sets, 5)
	assert.InDelta(t, 0.7, res.Sets[1].Relev, 1e-9)
}
