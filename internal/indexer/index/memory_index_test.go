package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/termops"
)

func TestAddFeatureDedupesGrids(t *testing.T) {
	m := NewMemoryIndex()
	m.AddFeature(map[string][]uint64{"main st": {3, 1}})
	m.AddFeature(map[string][]uint64{"main st": {1, 2}, "elm st": {5}})

	assert.Equal(t, []uint64{3, 2, 1}, m.Grids("main st"))
	assert.Nil(t, m.Grids("oak st"))

	st := m.Stats()
	assert.Equal(t, Stats{Phrases: 2, Grids: 4, Features: 2, Size: m.Size()}, st)

	snap := m.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "elm st", snap[0].Phrase)
	assert.Equal(t, "main st", snap[1].Phrase)
}

func TestAddFreq(t *testing.T) {
	m := NewMemoryIndex()
	m.AddFreq(termops.Freq{"main": 1, termops.CountKey: 2, termops.MaxKey: 10})
	m.AddFreq(termops.Freq{"main": 2, termops.CountKey: 3, termops.MaxKey: 4})

	freq := m.Freq()
	assert.Equal(t, 3.0, freq["main"])
	assert.Equal(t, 5.0, freq[termops.CountKey])
	assert.Equal(t, 10.0, freq[termops.MaxKey])

	freq["main"] = 100
	assert.Equal(t, 3.0, m.Freq()["main"], "Freq returns a copy")
}

func TestDrainAndRestore(t *testing.T) {
	m := NewMemoryIndex()
	m.AddFeature(map[string][]uint64{"main st": {1}})
	m.AddFeature(map[string][]uint64{"main st": {2}})
	m.AddFreq(termops.Freq{"main": 2})

	entries, freq, st := m.Drain()
	assert.Equal(t, []PhraseEntry{{Phrase: "main st", Grids: []uint64{2, 1}}}, entries)
	assert.Equal(t, 2.0, freq["main"])
	assert.Equal(t, 2, st.Features)
	assert.Equal(t, 2, st.Grids)

	assert.Zero(t, m.FeatureCount())
	assert.Zero(t, m.Size())
	assert.Empty(t, m.Freq())

	m.Restore(entries, freq, st.Features)
	assert.Equal(t, 2, m.FeatureCount())
	assert.Equal(t, []uint64{2, 1}, m.Grids("main st"))
	assert.Equal(t, 2.0, m.Freq()["main"])

	m.Reset()
	assert.Equal(t, Stats{}, m.Stats())
}
