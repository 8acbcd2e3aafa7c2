package spatialmatch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/geo"
	apperrors "github.com/Adithya-Monish-Kumar-K/geocoder/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/tracing"
)

const (
	// DefaultStackLimit is how many stacks survive to be coalesced.
	DefaultStackLimit = 30
	// DefaultProximityRadius is the proximity decay radius in miles.
	DefaultProximityRadius = 200.0
	// GridType is the store type grids are loaded under.
	GridType = "grid"
)

// Options filter one Spatialmatch call.
type Options struct {
	Proximity  *[2]float64
	BBox       *geo.BBox
	AllowedIdx map[int]bool
}

// Config tunes a Matcher. Zero values take the defaults.
type Config struct {
	StackableLimit int
	StackLimit     int
	Radius         float64
	Concurrency    int
}

// Matcher runs stackable and coalesces the surviving stacks.
type Matcher struct {
	coalescer Coalescer
	cfg       Config
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewMatcher returns a Matcher coalescing through c. m may be nil.
func NewMatcher(c Coalescer, cfg Config, m *metrics.Metrics) *Matcher {
	if cfg.StackableLimit <= 0 {
		cfg.StackableLimit = DefaultStackableLimit
	}
	if cfg.StackLimit <= 0 {
		cfg.StackLimit = DefaultStackLimit
	}
	if cfg.Radius <= 0 {
		cfg.Radius = DefaultProximityRadius
	}
	return &Matcher{
		coalescer: c,
		cfg:       cfg,
		metrics:   m,
		logger:    slog.Default().With("component", "spatialmatch"),
	}
}

// Prepare builds, filters, orders, truncates and rebalances the stacks for
// query without any I/O.
func (m *Matcher) Prepare(query []string, results []PhrasematchResult, allowed map[int]bool) []Stack {
	stacks := Stackable(results, m.cfg.StackableLimit)
	if m.metrics != nil {
		m.metrics.StacksBuilt.Observe(float64(len(stacks)))
	}
	stacks = Allowed(stacks, allowed)
	for i := range stacks {
		members := append([]Phrasematch(nil), stacks[i].Members...)
		SortByZoomIdx(members)
		stacks[i].Members = members
	}
	SortByRelevLengthIdx(stacks)
	if len(stacks) > m.cfg.StackLimit {
		stacks = stacks[:m.cfg.StackLimit]
	}
	for i := range stacks {
		stacks[i] = Rebalance(query, stacks[i])
	}
	return stacks
}

// Spatialmatch coalesces the stacks of results into ranked spatial matches.
// Any shard load or coalesce error fails the whole call.
func (m *Matcher) Spatialmatch(ctx context.Context, query []string, results []PhrasematchResult, opts Options) (*Result, error) {
	start := time.Now()
	ctx, span := tracing.StartChildSpan(ctx, "spatialmatch")
	defer span.End()

	stacks := m.Prepare(query, results, opts.AllowedIdx)
	span.SetAttr("stacks", len(stacks))

	if err := m.load(ctx, stacks, results); err != nil {
		return nil, err
	}

	perStack := make([][]Spatialmatch, len(stacks))
	wasted := make([]bool, len(stacks))
	g, gctx := errgroup.WithContext(ctx)
	if m.cfg.Concurrency > 0 {
		g.SetLimit(m.cfg.Concurrency)
	}
	for i, stack := range stacks {
		g.Go(func() error {
			raw, err := m.coalescer.Coalesce(gctx, stack, m.coalesceOptions(stack, opts))
			if err != nil {
				return fmt.Errorf("%w: stack %v: %w", apperrors.ErrCoalesce, stackIdxs(stack), err)
			}
			if len(raw) == 0 {
				wasted[i] = true
				return nil
			}
			byIdx := make(map[int]Phrasematch, len(stack.Members))
			for j := len(stack.Members) - 1; j >= 0; j-- {
				byIdx[stack.Members[j].Idx] = stack.Members[j]
			}
			matches := make([]Spatialmatch, 0, len(raw))
			for _, r := range raw {
				sm := Spatialmatch{Relev: r.Relev, Covers: make([]Cover, 0, len(r.Covers))}
				for _, c := range r.Covers {
					sm.Covers = append(sm.Covers, newCover(c, byIdx[c.Idx]))
				}
				matches = append(matches, sm)
			}
			perStack[i] = matches
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := finalize(perStack)
	for i, w := range wasted {
		if w {
			res.Waste = append(res.Waste, stackIdxs(stacks[i]))
		}
	}

	if m.metrics != nil {
		m.metrics.StacksCoalesced.Add(float64(len(stacks)))
		m.metrics.WasteStacksTotal.Add(float64(len(res.Waste)))
		m.metrics.SpatialmatchLatency.Observe(time.Since(start).Seconds())
	}
	m.logger.Debug("spatialmatch complete",
		"stacks", len(stacks),
		"results", len(res.Results),
		"waste", len(res.Waste),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

func (m *Matcher) coalesceOptions(stack Stack, opts Options) CoalesceOptions {
	var co CoalesceOptions
	if opts.Proximity != nil {
		c := geo.Center2ZXY(opts.Proximity[0], opts.Proximity[1], stack.MaxZoom())
		co.Center = &c
		co.Radius = m.cfg.Radius
	}
	if opts.BBox != nil && len(stack.Members) > 0 {
		b := geo.InsideTile(*opts.BBox, stack.Members[0].Zoom)
		co.BBox = &b
	}
	return co
}

// load issues one deduplicated LoadAll per source for every phrase the
// stacks need.
func (m *Matcher) load(ctx context.Context, stacks []Stack, results []PhrasematchResult) error {
	ctx, span := tracing.StartChildSpan(ctx, "shard_load")
	defer span.End()

	loaders := make(map[int]ShardLoader, len(results))
	for _, r := range results {
		if r.Loader != nil {
			loaders[r.Idx] = r.Loader
		}
	}
	wanted := make(map[int]map[string]bool)
	for _, s := range stacks {
		for _, p := range s.Members {
			if loaders[p.Idx] == nil {
				continue
			}
			if wanted[p.Idx] == nil {
				wanted[p.Idx] = make(map[string]bool)
			}
			wanted[p.Idx][p.Phrase] = true
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for idx, phrases := range wanted {
		ids := make([]string, 0, len(phrases))
		for p := range phrases {
			ids = append(ids, p)
		}
		sort.Strings(ids)
		loader := loaders[idx]
		g.Go(func() error {
			if err := loader.LoadAll(gctx, GridType, ids); err != nil {
				return fmt.Errorf("%w: source %d: %w", apperrors.ErrShardLoad, idx, err)
			}
			return nil
		})
	}
	err := g.Wait()
	if m.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		m.metrics.ShardLoadsTotal.WithLabelValues(status).Add(float64(len(wanted)))
	}
	span.SetAttr("sources", len(wanted))
	return err
}

// finalize merges the per-stack matches, orders them and keeps one match
// per leading cover and stacking direction.
func finalize(perStack [][]Spatialmatch) *Result {
	var combined []Spatialmatch
	for _, ms := range perStack {
		combined = append(combined, ms...)
	}
	sortByRelev(combined)

	res := &Result{Results: []Spatialmatch{}, Sets: make(map[uint32]Cover)}
	doneAsc := make(map[uint32]bool)
	doneDesc := make(map[uint32]bool)
	doneSingle := make(map[uint32]bool)
	for _, sm := range combined {
		covers := sm.Covers
		for _, c := range covers {
			if prev, ok := res.Sets[c.TmpID]; !ok || prev.Relev < c.Relev {
				res.Sets[c.TmpID] = c
			}
		}
		if len(covers) == 0 {
			continue
		}
		lead := covers[0].TmpID
		switch {
		case len(covers) > 1 && covers[0].Idx > covers[1].Idx && !doneDesc[lead]:
			doneDesc[lead] = true
			res.Results = append(res.Results, sm)
		case len(covers) > 1 && covers[0].Idx < covers[1].Idx && !doneAsc[lead]:
			doneAsc[lead] = true
			res.Results = append(res.Results, sm)
		case len(covers) == 1 && !doneAsc[lead] && !doneDesc[lead] && !doneSingle[lead]:
			doneSingle[lead] = true
			res.Results = append(res.Results, sm)
		}
	}
	return res
}

func stackIdxs(s Stack) []int {
	idxs := make([]int, len(s.Members))
	for i, p := range s.Members {
		idxs[i] = p.Idx
	}
	sort.Ints(idxs)
	return idxs
}
