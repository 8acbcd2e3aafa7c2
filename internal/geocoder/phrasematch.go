package geocoder

import (
	"context"
	"fmt"
	"math/bits"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/spatialmatch"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/termops"
)

// maxPrefixMatches caps the indexed phrases one query phrase expands to.
const maxPrefixMatches = 16

// Phrasematch finds every permutation of query that source has grids for.
// Address sources also try the waffled housenumber variants and sources
// with an intersection token try the cross-street form.
func (s *Source) Phrasematch(ctx context.Context, query []string) (spatialmatch.PhrasematchResult, error) {
	result := spatialmatch.PhrasematchResult{
		Idx:    s.Idx,
		BMask:  s.BMask,
		NMask:  s.Config.NMask,
		Loader: s.Store,
	}
	if len(query) == 0 {
		return result, nil
	}

	perms, err := s.permutations(query)
	if err != nil {
		return result, err
	}
	scoreFactor, err := s.ScoreFactor(ctx)
	if err != nil {
		return result, err
	}

	seen := make(map[string]bool, len(perms))
	for _, p := range perms {
		if len(p.Tokens) == 0 {
			continue
		}
		phrase := termops.NormalizeText(p.Text())
		matched, err := s.lookup(ctx, phrase, p.Ender)
		if err != nil {
			return result, fmt.Errorf("phrasematch %s %q: %w", s.Name(), phrase, err)
		}
		for _, m := range matched {
			key := fmt.Sprintf("%s/%d", m, p.Mask)
			if seen[key] {
				continue
			}
			seen[key] = true
			pm := spatialmatch.Phrasematch{
				Idx:         s.Idx,
				Phrase:      m,
				Mask:        p.Mask,
				Weight:      float64(bits.OnesCount32(p.Mask)) / float64(len(query)),
				Zoom:        s.Config.Zoom,
				Subquery:    append([]string(nil), p.Tokens...),
				ScoreFactor: scoreFactor,
				Prefix:      m != phrase,
			}
			if p.Address != nil {
				pm.Address = p.Address.Number
			}
			result.Phrasematches = append(result.Phrasematches, pm)
		}
	}
	return result, nil
}

// lookup returns the indexed phrases phrase matches. Phrases ending the
// query also match the indexed phrases they prefix; waffled housenumbers
// only match exactly.
func (s *Source) lookup(ctx context.Context, phrase string, ender bool) ([]string, error) {
	if ender && !strings.Contains(phrase, "#") {
		return s.Store.PhrasesWithPrefix(ctx, phrase, maxPrefixMatches)
	}
	ok, err := s.Store.HasPhrase(ctx, phrase)
	if err != nil || !ok {
		return nil, err
	}
	return []string{phrase}, nil
}

func (s *Source) permutations(query []string) ([]termops.Permutation, error) {
	perms := termops.Permutations(query, termops.PermuteOptions{})
	if s.Config.Address {
		variants, err := termops.NumTokenize(query, s.Config.Version)
		if err != nil {
			return nil, err
		}
		variants = append(variants, termops.NumTokenizePrefix(query, s.Config.Version)...)
		for _, v := range variants {
			addr := v.Address
			perms = append(perms, termops.Permutations(v.Tokens, termops.PermuteOptions{Address: &addr})...)
		}
		perms = termops.AddressPermutations(perms)
	}
	if s.Config.Intersection != "" {
		perms = append(perms, termops.IntersectionPermutations(query, s.Config.Intersection)...)
	}
	return perms, nil
}
