// Package ranker orders verified geocode candidates. Relevance comes from
// how much of the query a candidate's covers account for; ties fall back to
// the proximity-adjusted score and then to spatialmatch order.
package ranker

import (
	"container/heap"
	"math"
	"math/bits"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/spatialmatch"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/usagerelev"
)

// Ranked is one candidate with the keys it is ordered by.
type Ranked[T any] struct {
	Item      T
	Relevance float64
	ScoreDist float64
	Position  int
}

// Less reports whether a ranks below b.
func Less[T any](a, b Ranked[T]) bool {
	if a.Relevance != b.Relevance {
		return a.Relevance < b.Relevance
	}
	if a.ScoreDist != b.ScoreDist {
		return a.ScoreDist < b.ScoreDist
	}
	return a.Position > b.Position
}

// Relevance scores covers against query. Each cover's grid relevance is
// recovered from its rebalanced weight and credited for the query tokens
// it claims first.
func Relevance(query []string, covers []spatialmatch.Cover) float64 {
	if len(query) == 0 || len(covers) == 0 {
		return 0
	}
	var mask uint32
	for _, c := range covers {
		mask |= c.Mask
	}
	members := len(covers)
	if bits.OnesCount32(mask) != len(query) {
		members++
	}
	weight := 1 / float64(members)

	reasons := make([]usagerelev.Reason, 0, len(covers))
	for _, c := range covers {
		reasons = append(reasons, usagerelev.Reason{
			Relev: c.Relev / weight,
			Mask:  c.Mask,
			DB:    strconv.Itoa(c.Idx),
		})
	}
	return math.Round(usagerelev.Usagerelev(query, reasons)*1e6) / 1e6
}

// TopK returns the best k candidates, best first. k <= 0 means 10.
func TopK[T any](candidates []Ranked[T], k int) []Ranked[T] {
	if k <= 0 {
		k = 10
	}
	h := &rankedHeap[T]{}
	for _, c := range candidates {
		heap.Push(h, c)
		if h.Len() > k {
			heap.Pop(h)
		}
	}
	out := make([]Ranked[T], h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(Ranked[T])
	}
	return out
}

type rankedHeap[T any] []Ranked[T]

func (h rankedHeap[T]) Len() int           { return len(h) }
func (h rankedHeap[T]) Less(i, j int) bool { return Less(h[i], h[j]) }
func (h rankedHeap[T]) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *rankedHeap[T]) Push(x any) {
	*h = append(*h, x.(Ranked[T]))
}

func (h *rankedHeap[T]) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
