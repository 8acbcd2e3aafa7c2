package store

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/termops"
	apperrors "github.com/Adithya-Monish-Kumar-K/geocoder/pkg/errors"
)

// EncodeGrids packs grid integers as little-endian 8-byte words.
func EncodeGrids(grids []uint64) []byte {
	out := make([]byte, 8*len(grids))
	for i, g := range grids {
		binary.LittleEndian.PutUint64(out[8*i:], g)
	}
	return out
}

// DecodeGrids reverses EncodeGrids.
func DecodeGrids(data []byte) ([]uint64, error) {
	if len(data)%8 != 0 {
		return nil, fmt.Errorf("%w: grid payload of %d bytes", apperrors.ErrOutOfRange, len(data))
	}
	grids := make([]uint64, len(data)/8)
	for i := range grids {
		grids[i] = binary.LittleEndian.Uint64(data[8*i:])
	}
	return grids, nil
}

// MergeGrids returns the union of a and b, highest first. Relevance and score
// occupy the top bits, so the order is best grid first.
func MergeGrids(a, b []uint64) []uint64 {
	seen := make(map[uint64]bool, len(a)+len(b))
	out := make([]uint64, 0, len(a)+len(b))
	for _, list := range [][]uint64{a, b} {
		for _, g := range list {
			if !seen[g] {
				seen[g] = true
				out = append(out, g)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] > out[j] })
	return out
}

// Grids returns the grids stored for phrase, nil when the phrase is unknown.
func (s *Store) Grids(ctx context.Context, phrase string) ([]uint64, error) {
	data, found, err := s.Get(ctx, TypeGrid, phrase)
	if err != nil || !found {
		return nil, err
	}
	return DecodeGrids(data)
}

// HasPhrase reports whether phrase has grids.
func (s *Store) HasPhrase(ctx context.Context, phrase string) (bool, error) {
	_, found, err := s.Get(ctx, TypeGrid, phrase)
	return found, err
}

var errEnough = errors.New("enough phrases")

// PhrasesWithPrefix returns up to limit phrases with grids that start with
// prefix, in key order. The prefix itself is included when indexed.
func (s *Store) PhrasesWithPrefix(ctx context.Context, prefix string, limit int) ([]string, error) {
	var out []string
	err := s.backend.ScanPrefix(TypeGrid, prefix, func(id string, _ []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		out = append(out, id)
		if limit > 0 && len(out) >= limit {
			return errEnough
		}
		return nil
	})
	if err != nil && !errors.Is(err, errEnough) {
		return nil, fmt.Errorf("scanning phrases %q: %w", prefix, err)
	}
	return out, nil
}

// AddGrids merges grids into those already stored for phrase.
func (s *Store) AddGrids(ctx context.Context, phrase string, grids []uint64) error {
	existing, err := s.Grids(ctx, phrase)
	if err != nil {
		return err
	}
	return s.Set(ctx, TypeGrid, phrase, EncodeGrids(MergeGrids(existing, grids)))
}

func encodeFloat(v float64) []byte {
	out := make([]byte, 8)
	binary.LittleEndian.PutUint64(out, math.Float64bits(v))
	return out
}

func decodeFloat(data []byte) (float64, error) {
	if len(data) != 8 {
		return 0, fmt.Errorf("%w: freq payload of %d bytes", apperrors.ErrOutOfRange, len(data))
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(data)), nil
}

// Freq reads the count and max entries plus the count of every token.
// Unknown tokens are left out.
func (s *Store) Freq(ctx context.Context, tokens []string) (termops.Freq, error) {
	keys := append([]string{termops.CountKey, termops.MaxKey}, tokens...)
	freq := make(termops.Freq, len(keys))
	for _, k := range keys {
		if _, ok := freq[k]; ok {
			continue
		}
		data, found, err := s.Get(ctx, TypeFreq, k)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		v, err := decodeFloat(data)
		if err != nil {
			return nil, fmt.Errorf("freq %q: %w", k, err)
		}
		freq[k] = v
	}
	return freq, nil
}

// AddFreq adds counts to the stored token counts. The max key keeps the
// larger of the stored and given values. Callers serialise writers.
func (s *Store) AddFreq(ctx context.Context, counts termops.Freq) error {
	for k, v := range counts {
		current := 0.0
		data, found, err := s.Get(ctx, TypeFreq, k)
		if err != nil {
			return err
		}
		if found {
			if current, err = decodeFloat(data); err != nil {
				return fmt.Errorf("freq %q: %w", k, err)
			}
		}
		next := current + v
		if k == termops.MaxKey {
			next = math.Max(current, v)
		}
		if err := s.Set(ctx, TypeFreq, k, encodeFloat(next)); err != nil {
			return err
		}
	}
	return nil
}
