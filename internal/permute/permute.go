// Package permute generates the token bitmasks used to enumerate phrase
// permutations. Results are cached per length and must not be mutated.
package permute

import (
	"math/bits"
	"sort"
	"sync"
)

var (
	mu         sync.RWMutex
	allCache   = make(map[int][]uint32)
	contiCache = make(map[int][]uint32)
)

// All returns every non-empty subset mask of length bits, ordered by number
// of set bits descending, then by mask value ascending.
func All(length int) []uint32 {
	return cached(allCache, length, all)
}

// Continuous returns the masks of every contiguous run of length bits: the
// full mask first, then each shorter run from the low bits upward.
func Continuous(length int) []uint32 {
	return cached(contiCache, length, continuous)
}

func cached(cache map[int][]uint32, length int, build func(int) []uint32) []uint32 {
	mu.RLock()
	masks, ok := cache[length]
	mu.RUnlock()
	if ok {
		return masks
	}
	masks = build(length)
	mu.Lock()
	cache[length] = masks
	mu.Unlock()
	return masks
}

func all(length int) []uint32 {
	if length <= 0 {
		return []uint32{}
	}
	masks := make([]uint32, 0, 1<<length-1)
	for m := uint32(1)<<length - 1; m > 0; m-- {
		masks = append(masks, m)
	}
	sort.Slice(masks, func(i, j int) bool {
		a, b := bits.OnesCount32(masks[i]), bits.OnesCount32(masks[j])
		if a != b {
			return a > b
		}
		return masks[i] < masks[j]
	})
	return masks
}

func continuous(length int) []uint32 {
	if length <= 0 {
		return []uint32{}
	}
	cover := uint32(1)<<length - 1
	masks := []uint32{cover}
	for i := 1; i < length; i++ {
		cover >>= 1
		for j := 0; j <= i; j++ {
			masks = append(masks, cover<<j)
		}
	}
	return masks
}
