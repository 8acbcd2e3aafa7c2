// Package geocoder runs forward geocoding over a set of sources: it matches
// query phrases against every source, stacks and coalesces them, loads the
// matched features and ranks the result.
package geocoder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/features"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/geo"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/spatialmatch"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/termops"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/geocoder/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/tracing"
)

// verifyLimit caps how many spatialmatch results are hydrated per query.
const verifyLimit = 20

// Options filter and size one forward query.
type Options struct {
	Proximity *[2]float64 `json:"proximity,omitempty"`
	BBox      *geo.BBox   `json:"bbox,omitempty"`
	Types     []string    `json:"types,omitempty"`
	Limit     int         `json:"limit,omitempty"`
}

// Context is one feature the result sits inside.
type Context struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Feature is one ranked geocode result.
type Feature struct {
	ID         string         `json:"id"`
	Source     string         `json:"source"`
	Text       string         `json:"text"`
	PlaceName  string         `json:"place_name"`
	Address    string         `json:"address,omitempty"`
	Center     [2]float64     `json:"center"`
	BBox       *geo.BBox      `json:"bbox,omitempty"`
	Relevance  float64        `json:"relevance"`
	ScoreDist  float64        `json:"scoredist"`
	Context    []Context      `json:"context,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Response is the outcome of Forward.
type Response struct {
	Query    []string  `json:"query"`
	Features []Feature `json:"features"`
}

type Geocoder struct {
	registry *Registry
	matcher  *spatialmatch.Matcher
	features features.Store
	cfg      config.GeocoderConfig
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New returns a Geocoder over the sources in registry, coalescing through
// c and hydrating from fs. m may be nil.
func New(registry *Registry, c spatialmatch.Coalescer, fs features.Store, cfg config.GeocoderConfig, m *metrics.Metrics) *Geocoder {
	if cfg.MaxQueryChars <= 0 {
		cfg.MaxQueryChars = 256
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 5
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = 10
	}
	return &Geocoder{
		registry: registry,
		matcher: spatialmatch.NewMatcher(c, spatialmatch.Config{
			StackableLimit: cfg.StackableLimit,
			StackLimit:     cfg.StackLimit,
			Radius:         cfg.ProximityRadius,
			Concurrency:    cfg.Concurrency,
		}, m),
		features: fs,
		cfg:      cfg,
		metrics:  m,
		logger:   slog.Default().With("component", "geocoder"),
	}
}

// Registry returns the sources the geocoder queries.
func (g *Geocoder) Registry() *Registry { return g.registry }

// Limit clamps a requested result count into [1, MaxLimit]; 0 takes the
// default.
func (g *Geocoder) Limit(requested int) int {
	switch {
	case requested <= 0:
		return g.cfg.DefaultLimit
	case requested > g.cfg.MaxLimit:
		return g.cfg.MaxLimit
	default:
		return requested
	}
}

// Forward geocodes query. Coordinate queries and queries over the length
// limit fail with ErrInvalidInput; a query that tokenizes to nothing
// returns an empty response.
func (g *Geocoder) Forward(ctx context.Context, query string, opts Options) (*Response, error) {
	var resp *Response
	err := resilience.WithTimeout(ctx, g.cfg.Timeout, "forward geocode", func(ctx context.Context) error {
		var err error
		resp, err = g.forward(ctx, query, opts)
		return err
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, apperrors.ErrTimeout) {
			err = fmt.Errorf("%w: %w", apperrors.ErrTimeout, err)
		}
		g.countOutcome("error")
		return nil, err
	}
	return resp, nil
}

func (g *Geocoder) forward(ctx context.Context, query string, opts Options) (*Response, error) {
	start := time.Now()
	ctx, span := tracing.StartChildSpan(ctx, "forward")
	defer span.End()

	if n := utf8.RuneCountInString(query); n > g.cfg.MaxQueryChars {
		return nil, fmt.Errorf("%w: query is %d characters, limit %d", apperrors.ErrInvalidInput, n, g.cfg.MaxQueryChars)
	}
	if _, ok := termops.AsReverse(query, true); ok {
		g.countOutcome("reverse")
		return nil, fmt.Errorf("%w: coordinate queries are not forward geocoded", apperrors.ErrInvalidInput)
	}
	limit := g.Limit(opts.Limit)

	if ref, ok := termops.ParseFeatureRef(strings.TrimSpace(query), g.registry.Known); ok {
		return g.byID(ctx, query, ref)
	}

	tq, err := termops.Tokenize(query, false)
	if err != nil {
		return nil, err
	}
	if tq, err = termops.NormalizeQuery(tq); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	tokens := tq.Tokens
	if g.cfg.MaxQueryTokens > 0 && len(tokens) > g.cfg.MaxQueryTokens {
		tokens = tokens[:g.cfg.MaxQueryTokens]
	}
	resp := &Response{Query: tokens, Features: []Feature{}}
	if len(tokens) == 0 {
		g.countOutcome("empty")
		return resp, nil
	}

	allowed, err := g.registry.Allowed(opts.Types)
	if err != nil {
		return nil, err
	}

	results, err := g.phrasematch(ctx, tokens)
	if err != nil {
		return nil, err
	}
	span.SetAttr("phrasematches", countPhrasematches(results))

	sm, err := g.matcher.Spatialmatch(ctx, tokens, results, spatialmatch.Options{
		Proximity:  opts.Proximity,
		BBox:       opts.BBox,
		AllowedIdx: allowed,
	})
	if err != nil {
		return nil, err
	}

	resp.Features, err = g.verify(ctx, tokens, sm.Results, opts, limit)
	if err != nil {
		return nil, err
	}

	if len(resp.Features) == 0 {
		g.countOutcome("empty")
	} else {
		g.countOutcome("hit")
	}
	if g.metrics != nil {
		g.metrics.GeocodeResultsCount.Observe(float64(len(resp.Features)))
	}
	g.logger.Debug("forward geocode",
		"tokens", len(tokens),
		"spatialmatches", len(sm.Results),
		"results", len(resp.Features),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return resp, nil
}

// phrasematch queries every source concurrently. Results keep source order.
func (g *Geocoder) phrasematch(ctx context.Context, tokens []string) ([]spatialmatch.PhrasematchResult, error) {
	ctx, span := tracing.StartChildSpan(ctx, "phrasematch")
	defer span.End()

	sources := g.registry.Sources()
	results := make([]spatialmatch.PhrasematchResult, len(sources))
	eg, egctx := errgroup.WithContext(ctx)
	if g.cfg.Concurrency > 0 {
		eg.SetLimit(g.cfg.Concurrency)
	}
	for i, src := range sources {
		eg.Go(func() error {
			r, err := src.Phrasematch(egctx, tokens)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func countPhrasematches(results []spatialmatch.PhrasematchResult) int {
	n := 0
	for _, r := range results {
		n += len(r.Phrasematches)
	}
	return n
}

func (g *Geocoder) byID(ctx context.Context, query string, ref termops.FeatureRef) (*Response, error) {
	resp := &Response{Query: []string{strings.TrimSpace(query)}, Features: []Feature{}}
	f, err := g.features.Get(ctx, ref.Source, ref.ID)
	if errors.Is(err, apperrors.ErrNotFound) {
		g.countOutcome("empty")
		return resp, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s.%d: %w", ref.Source, ref.ID, err)
	}
	resp.Features = append(resp.Features, Feature{
		ID:         featureKey(f),
		Source:     f.Source,
		Text:       f.Name(),
		PlaceName:  f.Name(),
		Center:     f.Center,
		BBox:       f.BBox,
		Relevance:  1,
		Properties: f.Properties,
	})
	g.countOutcome("feature_ref")
	return resp, nil
}

func (g *Geocoder) countOutcome(outcome string) {
	if g.metrics != nil {
		g.metrics.GeocodeQueriesTotal.WithLabelValues(outcome).Inc()
	}
}

func featureKey(f features.Feature) string {
	return fmt.Sprintf("%s.%d", f.Source, f.ID)
}
