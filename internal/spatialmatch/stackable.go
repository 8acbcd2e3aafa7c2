package spatialmatch

import (
	"math/bits"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/termops"
)

// DefaultStackableLimit bounds how many stacks tie at the best relevance
// before lower ones stop being kept.
const DefaultStackableLimit = 100

// stacks at or below this relevance are never kept.
const stackRelevFloor = 0.5

type stackAccumulator struct {
	limit     int
	stacks    []Stack
	maxStacks []Stack
	maxRelev  float64
}

func (a *stackAccumulator) offer(s Stack) {
	if s.Relev <= stackRelevFloor {
		return
	}
	switch {
	case s.Relev > a.maxRelev:
		if len(a.maxStacks) >= a.limit {
			a.stacks = a.maxStacks
			a.maxStacks = []Stack{s}
		} else {
			a.maxStacks = append(a.maxStacks, s)
		}
		a.maxRelev = s.Relev
	case s.Relev == a.maxRelev:
		a.maxStacks = append(a.maxStacks, s)
	case len(a.maxStacks) < a.limit:
		a.stacks = append(a.stacks, s)
	}
}

func (a *stackAccumulator) result() []Stack {
	out := make([]Stack, 0, len(a.stacks)+len(a.maxStacks))
	out = append(out, a.stacks...)
	return append(out, a.maxStacks...)
}

type stackState struct {
	mask    uint32
	nmask   uint32
	members []Phrasematch
	relev   float64
}

// Stackable returns every legal stack of the phrase matches in results whose
// relevance exceeds 0.5. Results must be in source order. Members of a stack
// never share mask bits, are never excluded by each other's bmask or nmask,
// and keep one direction of source order. A limit of 0 uses
// DefaultStackableLimit.
func Stackable(results []PhrasematchResult, limit int) []Stack {
	if len(results) == 0 {
		return nil
	}
	if limit <= 0 {
		limit = DefaultStackableLimit
	}
	acc := &stackAccumulator{limit: limit}
	stackable(results, 0, stackState{}, acc)
	return acc.result()
}

func stackable(results []PhrasematchResult, idx int, state stackState, acc *stackAccumulator) {
	hasNext := idx+1 < len(results)
	if hasNext {
		stackable(results, idx+1, state, acc)
	}

	result := results[idx]
	for _, m := range state.members {
		if result.excludes(m.Idx) {
			return
		}
	}

	for _, next := range result.Phrasematches {
		if state.mask&next.Mask != 0 {
			continue
		}
		if state.nmask&result.NMask != 0 {
			continue
		}
		// members must keep a single direction of source order
		if len(state.members) > 0 && state.members[0].Idx >= next.Idx && state.mask != 0 && state.mask < next.Mask {
			continue
		}

		members := make([]Phrasematch, 0, len(state.members)+1)
		if next.Mask < state.mask {
			members = append(members, next)
			members = append(members, state.members...)
		} else {
			members = append(members, state.members...)
			members = append(members, next)
		}
		target := stackState{
			mask:    state.mask | next.Mask,
			nmask:   state.nmask | result.NMask,
			members: members,
			relev:   state.relev + next.Weight,
		}
		acc.offer(Stack{Members: members, Relev: target.relev})

		if hasNext {
			stackable(results, idx+1, target, acc)
		}
	}
}

// Allowed keeps the stacks whose highest source index is in allowed. A nil
// set keeps everything.
func Allowed(stacks []Stack, allowed map[int]bool) []Stack {
	if allowed == nil {
		return stacks
	}
	out := make([]Stack, 0, len(stacks))
	for _, s := range stacks {
		if allowed[s.MaxIdx()] {
			out = append(out, s)
		}
	}
	return out
}

// Rebalance gives every member of stack the same weight. When the stack
// leaves query tokens unmatched the leftovers count as one extra member, so
// a partial stack can never reach relevance 1. Members are cloned.
func Rebalance(query []string, stack Stack) Stack {
	garbage := 0
	if bits.OnesCount32(stack.Mask()) != len(query) {
		garbage = 1
	}
	weight := 1 / float64(garbage+len(stack.Members))
	out := Stack{
		Members: make([]Phrasematch, len(stack.Members)),
		Relev:   weight * float64(len(stack.Members)),
	}
	for i, m := range stack.Members {
		c := m.Clone()
		c.Weight = weight
		out.Members[i] = c
	}
	return out
}

func newCover(raw CoalesceCover, pm Phrasematch) Cover {
	scoredist := raw.ScoreDist
	if scoredist > 7 {
		scoredist = pm.ScoreFactor / 7 * scoredist
	} else {
		scoredist = termops.Decode3BitLogScale(scoredist, pm.ScoreFactor)
	}
	return Cover{
		X:           raw.X,
		Y:           raw.Y,
		Relev:       raw.Relev,
		ID:          raw.ID,
		Idx:         raw.Idx,
		TmpID:       raw.TmpID,
		Distance:    raw.Distance,
		Score:       termops.Decode3BitLogScale(float64(raw.Score), pm.ScoreFactor),
		ScoreDist:   scoredist,
		ScoreFactor: pm.ScoreFactor,
		Prefix:      pm.Prefix,
		Mask:        pm.Mask,
		Text:        strings.Join(pm.Subquery, " "),
		Zoom:        pm.Zoom,
		Address:     pm.Address,
	}
}
