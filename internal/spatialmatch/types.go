// Package spatialmatch assembles phrase matches from several sources into
// stacks and coalesces them into geographically consistent results.
package spatialmatch

import (
	"context"
	"math/bits"

	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/geo"
)

// Phrasematch is one phrase hit within one source.
type Phrasematch struct {
	Idx         int      `json:"idx"`
	Phrase      string   `json:"phrase"`
	Mask        uint32   `json:"mask"`
	Weight      float64  `json:"weight"`
	Zoom        int      `json:"zoom"`
	Subquery    []string `json:"subquery"`
	ScoreFactor float64  `json:"scorefactor"`
	Prefix      bool     `json:"prefix,omitempty"`
	Address     string   `json:"address,omitempty"`
}

// Clone returns a deep copy of p.
func (p Phrasematch) Clone() Phrasematch {
	p.Subquery = append([]string(nil), p.Subquery...)
	return p
}

// ShardLoader warms the grid shards a source needs before coalescing.
type ShardLoader interface {
	LoadAll(ctx context.Context, typ string, ids []string) error
}

// PhrasematchResult groups every phrase hit of one source. BMask[i] set
// means the source cannot stack with source i; sources sharing an NMask bit
// cannot stack with each other.
type PhrasematchResult struct {
	Idx           int
	Phrasematches []Phrasematch
	BMask         []bool
	NMask         uint32
	Loader        ShardLoader
}

func (r PhrasematchResult) excludes(idx int) bool {
	return idx >= 0 && idx < len(r.BMask) && r.BMask[idx]
}

// Stack is a legal combination of at most one phrase match per source.
type Stack struct {
	Members []Phrasematch `json:"members"`
	Relev   float64       `json:"relev"`
}

// Mask is the union of the member masks.
func (s Stack) Mask() uint32 {
	var m uint32
	for _, p := range s.Members {
		m |= p.Mask
	}
	return m
}

// Len returns the number of members.
func (s Stack) Len() int { return len(s.Members) }

// MaxZoom is the deepest zoom among the members.
func (s Stack) MaxZoom() int {
	z := 0
	for _, p := range s.Members {
		z = max(z, p.Zoom)
	}
	return z
}

// MaxIdx is the highest source index among the members.
func (s Stack) MaxIdx() int {
	idx := 0
	for _, p := range s.Members {
		idx = max(idx, p.Idx)
	}
	return idx
}

// Covers reports how many query token positions the stack accounts for.
func (s Stack) Covers() int { return bits.OnesCount32(s.Mask()) }

// CoalesceOptions carries the tile-space filters for one coalesce call.
type CoalesceOptions struct {
	Center *geo.ZXY      `json:"center,omitempty"`
	Radius float64       `json:"radius,omitempty"`
	BBox   *geo.TileBBox `json:"bbox,omitempty"`
}

// CoalesceCover is one grid cell of a raw coalesce match.
type CoalesceCover struct {
	X         uint32  `json:"x"`
	Y         uint32  `json:"y"`
	Relev     float64 `json:"relev"`
	ID        uint32  `json:"id"`
	Idx       int     `json:"idx"`
	TmpID     uint32  `json:"tmpid"`
	Distance  float64 `json:"distance"`
	Score     int     `json:"score"`
	ScoreDist float64 `json:"scoredist"`
}

// CoalesceMatch is one raw coalesce result, leading cover first.
type CoalesceMatch struct {
	Relev  float64         `json:"relev"`
	Covers []CoalesceCover `json:"covers"`
}

// Coalescer intersects the grids of a stack's phrases.
type Coalescer interface {
	Coalesce(ctx context.Context, stack Stack, opts CoalesceOptions) ([]CoalesceMatch, error)
}

// Cover is a coalesced grid cell annotated with the phrase that produced it.
type Cover struct {
	X           uint32  `json:"x"`
	Y           uint32  `json:"y"`
	Relev       float64 `json:"relev"`
	ID          uint32  `json:"id"`
	Idx         int     `json:"idx"`
	TmpID       uint32  `json:"tmpid"`
	Distance    float64 `json:"distance"`
	Score       float64 `json:"score"`
	ScoreDist   float64 `json:"scoredist"`
	ScoreFactor float64 `json:"scorefactor"`
	Prefix      bool    `json:"prefix,omitempty"`
	Mask        uint32  `json:"mask"`
	Text        string  `json:"text"`
	Zoom        int     `json:"zoom"`
	Address     string  `json:"address,omitempty"`
}

// Spatialmatch is one coalesced stack.
type Spatialmatch struct {
	Relev  float64 `json:"relev"`
	Covers []Cover `json:"covers"`
}

// Result is the outcome of one Spatialmatch call. Sets holds the best cover
// seen per tmpid; Waste lists the source indexes of stacks that coalesced to
// nothing.
type Result struct {
	Results []Spatialmatch   `json:"results"`
	Sets    map[uint32]Cover `json:"sets"`
	Waste   [][]int          `json:"waste"`
}
