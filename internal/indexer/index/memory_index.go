// Package index stages phrase grids and token counts in memory between
// flushes of an indexing engine.
package index

import (
	"math"
	"sort"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/termops"
)

type MemoryIndex struct {
	mu       sync.RWMutex
	phrases  map[string]map[uint64]struct{}
	freq     termops.Freq
	features int
	size     int64
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		phrases: make(map[string]map[uint64]struct{}),
		freq:    make(termops.Freq),
	}
}

// AddFeature stages the phrase grids of one feature.
func (m *MemoryIndex) AddFeature(grids map[string][]uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for phrase, gs := range grids {
		set, ok := m.phrases[phrase]
		if !ok {
			set = make(map[uint64]struct{}, len(gs))
			m.phrases[phrase] = set
			m.size += int64(len(phrase) + 48)
		}
		for _, g := range gs {
			if _, dup := set[g]; !dup {
				set[g] = struct{}{}
				m.size += 8
			}
		}
	}
	m.features++
}

// AddFreq stages token counts. MaxKey keeps the larger value, every other
// key is summed.
func (m *MemoryIndex) AddFreq(counts termops.Freq) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range counts {
		if k == termops.MaxKey {
			m.freq[k] = math.Max(m.freq[k], v)
			continue
		}
		if _, ok := m.freq[k]; !ok {
			m.size += int64(len(k) + 16)
		}
		m.freq[k] += v
	}
}

// Freq returns a copy of the staged counts.
func (m *MemoryIndex) Freq() termops.Freq {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(termops.Freq, len(m.freq))
	for k, v := range m.freq {
		out[k] = v
	}
	return out
}

// Grids returns the staged grids of phrase, sorted descending.
func (m *MemoryIndex) Grids(phrase string) []uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedGrids(m.phrases[phrase])
}

// Snapshot returns every staged phrase sorted by phrase.
func (m *MemoryIndex) Snapshot() []PhraseEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make([]PhraseEntry, 0, len(m.phrases))
	for phrase, set := range m.phrases {
		entries = append(entries, PhraseEntry{Phrase: phrase, Grids: sortedGrids(set)})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Phrase < entries[j].Phrase
	})
	return entries
}

// Drain returns the staged phrases, counts and stats and resets the index
// in one step.
func (m *MemoryIndex) Drain() ([]PhraseEntry, termops.Freq, Stats) {
	m.mu.Lock()
	phrases, freq := m.phrases, m.freq
	st := Stats{Phrases: len(phrases), Features: m.features, Size: m.size}
	m.phrases = make(map[string]map[uint64]struct{})
	m.freq = make(termops.Freq)
	m.features = 0
	m.size = 0
	m.mu.Unlock()

	entries := make([]PhraseEntry, 0, len(phrases))
	for phrase, set := range phrases {
		st.Grids += len(set)
		entries = append(entries, PhraseEntry{Phrase: phrase, Grids: sortedGrids(set)})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Phrase < entries[j].Phrase
	})
	return entries, freq, st
}

// Restore puts back what a failed flush drained.
func (m *MemoryIndex) Restore(entries []PhraseEntry, freq termops.Freq, features int) {
	grids := make(map[string][]uint64, len(entries))
	for _, e := range entries {
		grids[e.Phrase] = e.Grids
	}
	m.AddFeature(grids)
	m.AddFreq(freq)
	m.mu.Lock()
	m.features += features - 1
	m.mu.Unlock()
}

func (m *MemoryIndex) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := Stats{Phrases: len(m.phrases), Features: m.features, Size: m.size}
	for _, set := range m.phrases {
		st.Grids += len(set)
	}
	return st
}

func (m *MemoryIndex) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

func (m *MemoryIndex) FeatureCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.features
}

func (m *MemoryIndex) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phrases = make(map[string]map[uint64]struct{})
	m.freq = make(termops.Freq)
	m.features = 0
	m.size = 0
}

func sortedGrids(set map[uint64]struct{}) []uint64 {
	if len(set) == 0 {
		return nil
	}
	out := make([]uint64, 0, len(set))
	for g := range set {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] > out[j] })
	return out
}
