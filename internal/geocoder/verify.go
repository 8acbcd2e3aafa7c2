package geocoder

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/features"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/geo"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/geocoder/ranker"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/spatialmatch"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/tracing"
)

// verify hydrates the best spatial matches into features. A cover is kept
// only when a feature with its grid id really covers the cover's tile; the
// lead cover becomes the result and the rest its context.
func (g *Geocoder) verify(ctx context.Context, query []string, matches []spatialmatch.Spatialmatch, opts Options, limit int) ([]Feature, error) {
	ctx, span := tracing.StartChildSpan(ctx, "hydrate")
	defer span.End()

	if len(matches) > verifyLimit {
		matches = matches[:verifyLimit]
	}
	loaded, err := g.loadFeatures(ctx, matches)
	if err != nil {
		return nil, err
	}

	candidates := make([]ranker.Ranked[Feature], 0, len(matches))
	seen := make(map[string]bool, len(matches))
	for pos, sm := range matches {
		if len(sm.Covers) == 0 {
			continue
		}
		hydrated := make([]features.Feature, 0, len(sm.Covers))
		ok := true
		for _, c := range sm.Covers {
			f, found := g.pick(loaded, c)
			if !found {
				ok = false
				break
			}
			hydrated = append(hydrated, f)
		}
		if !ok {
			continue
		}

		lead, leadCover := hydrated[0], sm.Covers[0]
		out := Feature{
			ID:         featureKey(lead),
			Source:     lead.Source,
			Text:       lead.Name(),
			Center:     lead.Center,
			BBox:       lead.BBox,
			ScoreDist:  leadCover.ScoreDist,
			Properties: lead.Properties,
		}
		if leadCover.Address != "" {
			if pt, found := lead.AddressPoint(leadCover.Address); found {
				out.Center = pt
				out.Address = leadCover.Address
				out.BBox = nil
			}
		}
		if opts.BBox != nil && !geo.Inside(out.Center[0], out.Center[1], *opts.BBox) {
			continue
		}
		if seen[out.ID] {
			continue
		}
		seen[out.ID] = true

		names := []string{out.Text}
		if out.Address != "" {
			names[0] = out.Address + " " + out.Text
		}
		for _, f := range hydrated[1:] {
			out.Context = append(out.Context, Context{ID: featureKey(f), Text: f.Name()})
			names = append(names, f.Name())
		}
		out.PlaceName = strings.Join(names, ", ")
		out.Relevance = ranker.Relevance(query, sm.Covers)

		candidates = append(candidates, ranker.Ranked[Feature]{
			Item:      out,
			Relevance: out.Relevance,
			ScoreDist: out.ScoreDist,
			Position:  pos,
		})
	}

	top := ranker.TopK(candidates, limit)
	result := make([]Feature, 0, len(top))
	for _, r := range top {
		result = append(result, r.Item)
	}
	span.SetAttr("candidates", len(candidates))
	return result, nil
}

// loadFeatures fetches the features behind every cover, one lookup per
// source.
func (g *Geocoder) loadFeatures(ctx context.Context, matches []spatialmatch.Spatialmatch) (map[int]map[uint32][]features.Feature, error) {
	ids := make(map[int]map[uint32]bool)
	for _, sm := range matches {
		for _, c := range sm.Covers {
			if ids[c.Idx] == nil {
				ids[c.Idx] = make(map[uint32]bool)
			}
			ids[c.Idx][c.ID] = true
		}
	}

	loaded := make(map[int]map[uint32][]features.Feature, len(ids))
	results := make([]map[uint32][]features.Feature, g.registry.Len())
	eg, egctx := errgroup.WithContext(ctx)
	for idx, set := range ids {
		src, ok := g.registry.ByIdx(idx)
		if !ok {
			return nil, fmt.Errorf("cover references unknown source %d", idx)
		}
		list := make([]uint32, 0, len(set))
		for id := range set {
			list = append(list, id)
		}
		eg.Go(func() error {
			byID, err := g.features.ByGridID(egctx, src.Name(), list)
			if err != nil {
				return fmt.Errorf("hydrating %s: %w", src.Name(), err)
			}
			results[idx] = byID
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	for idx := range ids {
		loaded[idx] = results[idx]
	}
	return loaded, nil
}

// pick returns the first feature sharing the cover's grid id that covers
// the cover's tile.
func (g *Geocoder) pick(loaded map[int]map[uint32][]features.Feature, c spatialmatch.Cover) (features.Feature, bool) {
	for _, f := range loaded[c.Idx][c.ID] {
		if f.CoversTile(c.Zoom, c.X, c.Y) {
			return f, true
		}
	}
	return features.Feature{}, false
}
