package geocoder

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/store"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/termops"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/geocoder/pkg/errors"
)

// Source is one index as the geocoder sees it: its position in the source
// list, its definition and the shard store holding its grids.
type Source struct {
	Idx    int
	Config config.SourceConfig
	Store  *store.Store
	// BMask[i] set means this source never stacks with source i.
	BMask []bool
}

// Name returns the source name.
func (s *Source) Name() string { return s.Config.Name }

// ScoreFactor returns the highest feature score indexed into the source,
// or the configured override. It is never below 1.
func (s *Source) ScoreFactor(ctx context.Context) (float64, error) {
	if s.Config.ScoreFactor > 0 {
		return s.Config.ScoreFactor, nil
	}
	freq, err := s.Store.Freq(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("reading freq of %s: %w", s.Name(), err)
	}
	if max := freq.Max(); max > 1 {
		return max, nil
	}
	return 1, nil
}

// Registry holds every source in configuration order.
type Registry struct {
	sources []*Source
	byName  map[string]*Source
}

// NewRegistry pairs every source with its store. Source order defines the
// source index used throughout stacking and coalescing.
func NewRegistry(cfgs []config.SourceConfig, stores map[string]*store.Store) (*Registry, error) {
	if len(cfgs) > config.MaxSources {
		return nil, apperrors.InvalidArgumentf("%d sources, limit %d", len(cfgs), config.MaxSources)
	}
	r := &Registry{byName: make(map[string]*Source, len(cfgs))}
	for i, c := range cfgs {
		st, ok := stores[c.Name]
		if !ok || st == nil {
			return nil, apperrors.InvalidArgumentf("source %q has no store", c.Name)
		}
		if c.Version == 0 {
			c.Version = termops.MinNumTokenVersion
		}
		src := &Source{Idx: i, Config: c, Store: st}
		r.sources = append(r.sources, src)
		r.byName[c.Name] = src
	}
	for _, src := range r.sources {
		src.BMask = make([]bool, len(r.sources))
	}
	for _, src := range r.sources {
		for _, other := range src.Config.BMask {
			o, ok := r.byName[other]
			if !ok {
				return nil, apperrors.InvalidArgumentf("source %q bmask names unknown source %q", src.Name(), other)
			}
			src.BMask[o.Idx] = true
			o.BMask[src.Idx] = true
		}
	}
	return r, nil
}

// Sources returns every source in index order.
func (r *Registry) Sources() []*Source { return r.sources }

// Len returns the number of sources.
func (r *Registry) Len() int { return len(r.sources) }

// ByIdx returns the source at idx.
func (r *Registry) ByIdx(idx int) (*Source, bool) {
	if idx < 0 || idx >= len(r.sources) {
		return nil, false
	}
	return r.sources[idx], true
}

// ByName returns the source called name.
func (r *Registry) ByName(name string) (*Source, bool) {
	s, ok := r.byName[name]
	return s, ok
}

// Known reports whether name is a source.
func (r *Registry) Known(name string) bool {
	_, ok := r.byName[name]
	return ok
}

// Names returns the source names sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Allowed resolves a types filter to source indexes. A type matches a
// source by its type or its name. An empty filter allows everything and
// returns nil.
func (r *Registry) Allowed(types []string) (map[int]bool, error) {
	if len(types) == 0 {
		return nil, nil
	}
	allowed := make(map[int]bool)
	for _, t := range types {
		t = strings.TrimSpace(t)
		matched := false
		for _, s := range r.sources {
			if s.Config.Type == t || s.Config.Name == t {
				allowed[s.Idx] = true
				matched = true
			}
		}
		if !matched {
			return nil, fmt.Errorf("%w: unknown type %q", apperrors.ErrInvalidInput, t)
		}
	}
	return allowed, nil
}
