package index

// PhraseEntry is one staged phrase and the grids written under it, sorted
// descending.
type PhraseEntry struct {
	Phrase string
	Grids  []uint64
}

// Stats summarises the staged content of a MemoryIndex.
type Stats struct {
	Phrases  int
	Grids    int
	Features int
	Size     int64
}
