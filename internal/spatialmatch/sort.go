package spatialmatch

import "sort"

// SortByZoomIdx orders stack members by zoom, then source index, then
// widest mask first.
func SortByZoomIdx(members []Phrasematch) {
	sort.SliceStable(members, func(i, j int) bool {
		a, b := members[i], members[j]
		if a.Zoom != b.Zoom {
			return a.Zoom < b.Zoom
		}
		if a.Idx != b.Idx {
			return a.Idx < b.Idx
		}
		return a.Mask > b.Mask
	})
}

// lessByRelevLengthIdx ranks stacks by relevance, then fewer members, then
// the scorefactor of the last member, then source indexes from the tail.
func lessByRelevLengthIdx(a, b Stack) bool {
	if a.Relev != b.Relev {
		return a.Relev > b.Relev
	}
	if len(a.Members) != len(b.Members) {
		return len(a.Members) < len(b.Members)
	}
	if len(a.Members) == 0 {
		return false
	}
	last := len(a.Members) - 1
	if a.Members[last].ScoreFactor != b.Members[last].ScoreFactor {
		return a.Members[last].ScoreFactor > b.Members[last].ScoreFactor
	}
	for end := last; end >= 0; end-- {
		if a.Members[end].Idx != b.Members[end].Idx {
			return a.Members[end].Idx < b.Members[end].Idx
		}
	}
	return false
}

// SortByRelevLengthIdx orders stacks best first.
func SortByRelevLengthIdx(stacks []Stack) {
	sort.SliceStable(stacks, func(i, j int) bool {
		return lessByRelevLengthIdx(stacks[i], stacks[j])
	})
}

func sortByRelev(matches []Spatialmatch) {
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Relev != b.Relev {
			return a.Relev > b.Relev
		}
		if len(a.Covers) == 0 || len(b.Covers) == 0 {
			return len(a.Covers) > len(b.Covers)
		}
		if a.Covers[0].ScoreDist != b.Covers[0].ScoreDist {
			return a.Covers[0].ScoreDist > b.Covers[0].ScoreDist
		}
		return a.Covers[0].Idx < b.Covers[0].Idx
	})
}
