// Package coalesce intersects the grids of a stack's phrases into located
// candidate matches. Engine runs in process over the shard stores; Client
// forwards the same call to a remote gridserver.
package coalesce

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/geo"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/spatialmatch"
	apperrors "github.com/Adithya-Monish-Kumar-K/geocoder/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/grid"
)

// MaxMatches caps the matches returned per stack.
const MaxMatches = 40

// GridSource returns the grids indexed for a phrase.
type GridSource interface {
	Grids(ctx context.Context, phrase string) ([]uint64, error)
}

// Engine coalesces against registered sources keyed by source index.
type Engine struct {
	mu      sync.RWMutex
	sources map[int]GridSource
	logger  *slog.Logger
}

var _ spatialmatch.Coalescer = (*Engine)(nil)

// NewEngine returns an Engine with no sources.
func NewEngine() *Engine {
	return &Engine{
		sources: make(map[int]GridSource),
		logger:  slog.Default().With("component", "coalesce"),
	}
}

// Register makes src answer for source index idx.
func (e *Engine) Register(idx int, src GridSource) {
	e.mu.Lock()
	e.sources[idx] = src
	e.mu.Unlock()
}

// tmpIDShift leaves 25 bits for the feature id, so idx must stay below
// config.MaxSources.
const tmpIDShift = 25

// TmpID packs a source index and feature id into the id that is unique
// across sources.
func TmpID(idx int, id uint32) uint32 {
	return uint32(idx)<<tmpIDShift | id
}

type cell struct {
	grid.Cell
	zoom int
}

type proximity struct {
	lon, lat float64
	radius   float64
}

// Coalesce returns the matches of stack, best first, one per leading
// feature, at most MaxMatches.
func (e *Engine) Coalesce(ctx context.Context, stack spatialmatch.Stack, opts spatialmatch.CoalesceOptions) ([]spatialmatch.CoalesceMatch, error) {
	if len(stack.Members) == 0 {
		return nil, nil
	}
	members := append([]spatialmatch.Phrasematch(nil), stack.Members...)
	spatialmatch.SortByZoomIdx(members)

	cells := make([][]cell, len(members))
	for i, m := range members {
		c, err := e.load(ctx, m, opts.BBox)
		if err != nil {
			return nil, err
		}
		if len(c) == 0 {
			return nil, nil
		}
		cells[i] = c
	}

	var prox *proximity
	if opts.Center != nil {
		lon, lat := geo.TileCorner(opts.Center.X, opts.Center.Y, opts.Center.Z)
		prox = &proximity{lon: lon, lat: lat, radius: opts.Radius}
	}

	var matches []spatialmatch.CoalesceMatch
	if len(members) == 1 {
		matches = coalesceSingle(members[0], cells[0], prox)
	} else {
		matches = coalesceMulti(members, cells, prox)
	}
	matches = finish(matches)
	e.logger.Debug("stack coalesced", "members", len(members), "matches", len(matches))
	return matches, nil
}

func (e *Engine) load(ctx context.Context, m spatialmatch.Phrasematch, bbox *geo.TileBBox) ([]cell, error) {
	e.mu.RLock()
	src, ok := e.sources[m.Idx]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no grid source for index %d", apperrors.ErrInvalidArgument, m.Idx)
	}
	grids, err := src.Grids(ctx, m.Phrase)
	if err != nil {
		return nil, fmt.Errorf("loading grids for %q: %w", m.Phrase, err)
	}
	out := make([]cell, 0, len(grids))
	for _, g := range grids {
		c := cell{Cell: grid.Decode(g), zoom: m.Zoom}
		if bbox != nil && !inTileBBox(c, *bbox) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// inTileBBox compares tile ranges at the coarser of the two zooms.
func inTileBBox(c cell, b geo.TileBBox) bool {
	x, y := int(c.X), int(c.Y)
	if c.zoom >= b.Z {
		shift := c.zoom - b.Z
		return b.Contains(x>>shift, y>>shift)
	}
	shift := b.Z - c.zoom
	minX, minY := x<<shift, y<<shift
	maxX, maxY := ((x+1)<<shift)-1, ((y+1)<<shift)-1
	return minX <= b.MaxX && maxX >= b.MinX && minY <= b.MaxY && maxY >= b.MinY
}

func newCover(m spatialmatch.Phrasematch, c cell, prox *proximity) spatialmatch.CoalesceCover {
	cover := spatialmatch.CoalesceCover{
		X:         c.X,
		Y:         c.Y,
		Relev:     c.Relev * m.Weight,
		ID:        c.ID,
		Idx:       m.Idx,
		TmpID:     TmpID(m.Idx, c.ID),
		Score:     c.Score,
		ScoreDist: float64(c.Score),
	}
	if prox != nil {
		cover.Distance = geo.Distance(prox.lon, prox.lat, geo.Cover{X: c.X, Y: c.Y, Z: c.zoom})
		cover.ScoreDist = geo.ScoreDist(float64(c.Score), cover.Distance, c.zoom, prox.radius)
	}
	return cover
}

func coalesceSingle(m spatialmatch.Phrasematch, cells []cell, prox *proximity) []spatialmatch.CoalesceMatch {
	out := make([]spatialmatch.CoalesceMatch, 0, len(cells))
	for _, c := range cells {
		cover := newCover(m, c, prox)
		out = append(out, spatialmatch.CoalesceMatch{
			Relev:  cover.Relev,
			Covers: []spatialmatch.CoalesceCover{cover},
		})
	}
	return out
}

type tileKey struct {
	x, y uint32
}

// coalesceMulti anchors on the deepest member and joins each anchor cell
// with the best cell of every shallower member whose tile contains it.
// Members must be ordered by zoom ascending.
func coalesceMulti(members []spatialmatch.Phrasematch, cells [][]cell, prox *proximity) []spatialmatch.CoalesceMatch {
	last := len(members) - 1
	parents := make([]map[tileKey]cell, last)
	for i := 0; i < last; i++ {
		byTile := make(map[tileKey]cell, len(cells[i]))
		for _, c := range cells[i] {
			k := tileKey{c.X, c.Y}
			if prev, ok := byTile[k]; !ok || better(c, prev) {
				byTile[k] = c
			}
		}
		parents[i] = byTile
	}

	anchor := members[last]
	var out []spatialmatch.CoalesceMatch
	for _, a := range cells[last] {
		lead := newCover(anchor, a, prox)
		covers := []spatialmatch.CoalesceCover{lead}
		relev := lead.Relev
		for i := last - 1; i >= 0; i-- {
			shift := anchor.Zoom - members[i].Zoom
			p, ok := parents[i][tileKey{a.X >> shift, a.Y >> shift}]
			if !ok {
				break
			}
			c := newCover(members[i], p, prox)
			covers = append(covers, c)
			relev += c.Relev
		}
		if len(covers) != len(members) {
			continue
		}
		out = append(out, spatialmatch.CoalesceMatch{Relev: relev, Covers: covers})
	}
	return out
}

func better(a, b cell) bool {
	if a.Relev != b.Relev {
		return a.Relev > b.Relev
	}
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.ID < b.ID
}

// finish orders matches best first, keeps the first match per leading tmpid
// and truncates to MaxMatches.
func finish(matches []spatialmatch.CoalesceMatch) []spatialmatch.CoalesceMatch {
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i].Covers[0], matches[j].Covers[0]
		if matches[i].Relev != matches[j].Relev {
			return matches[i].Relev > matches[j].Relev
		}
		if a.ScoreDist != b.ScoreDist {
			return a.ScoreDist > b.ScoreDist
		}
		if a.Distance != b.Distance {
			return a.Distance < b.Distance
		}
		return a.TmpID < b.TmpID
	})
	seen := make(map[uint32]bool, len(matches))
	out := make([]spatialmatch.CoalesceMatch, 0, min(len(matches), MaxMatches))
	for _, m := range matches {
		lead := m.Covers[0].TmpID
		if seen[lead] {
			continue
		}
		seen[lead] = true
		out = append(out, m)
		if len(out) == MaxMatches {
			break
		}
	}
	return out
}
