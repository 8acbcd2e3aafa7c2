// Package indexer turns features into phrase grids and token counts for one
// source and flushes them into the source's shard store.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/features"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/store"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/termops"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/geocoder/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/grid"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/metrics"
)

// FlushHook runs after every successful non-empty flush.
type FlushHook func(ctx context.Context, source string, st index.Stats)

type Engine struct {
	source   config.SourceConfig
	store    *store.Store
	staged   *index.MemoryIndex
	frequent map[string]bool
	cfg      config.IndexerConfig
	pool     *ants.Pool
	metrics  *metrics.Metrics
	onFlush  FlushHook
	logger   *slog.Logger

	// flushMu orders freq reads against flushes so staged and stored
	// counts are never both missing a batch.
	flushMu sync.Mutex
}

// NewEngine returns an Engine writing src's features into st. m may be nil.
func NewEngine(src config.SourceConfig, st *store.Store, cfg config.IndexerConfig, m *metrics.Metrics) (*Engine, error) {
	if st == nil {
		return nil, apperrors.InvalidArgumentf("source %q has no store", src.Name)
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("creating index worker pool: %w", err)
	}
	if src.Version == 0 {
		src.Version = termops.MinNumTokenVersion
	}
	frequent := make(map[string]bool, len(src.Frequent))
	for _, w := range src.Frequent {
		frequent[termops.NormalizeText(strings.ToLower(w))] = true
	}
	return &Engine{
		source:   src,
		store:    st,
		staged:   index.NewMemoryIndex(),
		frequent: frequent,
		cfg:      cfg,
		pool:     pool,
		metrics:  m,
		logger:   slog.Default().With("component", "indexer", "source", src.Name),
	}, nil
}

// Source returns the source definition the engine indexes.
func (e *Engine) Source() config.SourceConfig { return e.source }

// Store returns the shard store flushes write into.
func (e *Engine) Store() *store.Store { return e.store }

// OnFlush installs a hook run after each successful flush.
func (e *Engine) OnFlush(h FlushHook) { e.onFlush = h }

// Staged reports what is waiting for the next flush.
func (e *Engine) Staged() index.Stats { return e.staged.Stats() }

// IndexFeature stages one feature.
func (e *Engine) IndexFeature(ctx context.Context, f features.Feature) error {
	_, err := e.IndexBatch(ctx, []features.Feature{f})
	return err
}

// IndexBatch counts the tokens of every feature first, so weights and score
// scaling see the whole batch, then builds the grids of each feature on the
// worker pool. It returns how many features were staged; failed features
// are reported together in the error.
func (e *Engine) IndexBatch(ctx context.Context, feats []features.Feature) (int, error) {
	if len(feats) == 0 {
		return 0, nil
	}
	start := time.Now()
	docs := make([]doc, 0, len(feats))
	var errs []error
	for _, f := range feats {
		if f.Source != "" && f.Source != e.source.Name {
			errs = append(errs, apperrors.InvalidArgumentf("feature %d belongs to %q, not %q", f.ID, f.Source, e.source.Name))
			continue
		}
		docs = append(docs, e.tokenize(f))
	}

	freq, err := e.countAndLoadFreq(ctx, docs)
	if err != nil {
		return 0, err
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		indexed int
	)
	for _, d := range docs {
		if ctx.Err() != nil {
			mu.Lock()
			errs = append(errs, ctx.Err())
			mu.Unlock()
			break
		}
		wg.Add(1)
		submitErr := e.pool.Submit(func() {
			defer wg.Done()
			grids, err := e.featureGrids(d, freq)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("feature %d: %w", d.feature.ID, err))
				return
			}
			e.staged.AddFeature(grids)
			indexed++
		})
		if submitErr != nil {
			wg.Done()
			mu.Lock()
			errs = append(errs, fmt.Errorf("submitting feature %d: %w", d.feature.ID, submitErr))
			mu.Unlock()
		}
	}
	wg.Wait()

	if e.metrics != nil {
		e.metrics.FeaturesIndexedTotal.WithLabelValues(e.source.Name).Add(float64(indexed))
	}
	e.logger.Debug("batch staged",
		"features", indexed,
		"failed", len(feats)-indexed,
		"staged_size", e.staged.Size(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return indexed, errors.Join(errs...)
}

type doc struct {
	feature  features.Feature
	synonyms [][]string
}

func (e *Engine) tokenize(f features.Feature) doc {
	d := doc{feature: f}
	for _, syn := range f.Synonyms() {
		if e.cfg.MaxSynonyms > 0 && len(d.synonyms) >= e.cfg.MaxSynonyms {
			break
		}
		if tokens := termops.Normalize(syn); len(tokens) > 0 {
			d.synonyms = append(d.synonyms, tokens)
		}
	}
	return d
}

// countAndLoadFreq stages the token counts of docs and returns the source's
// freq over every token they use: stored counts plus everything staged.
func (e *Engine) countAndLoadFreq(ctx context.Context, docs []doc) (termops.Freq, error) {
	counts := make(termops.Freq)
	var tokens []string
	for _, d := range docs {
		for _, syn := range d.synonyms {
			for _, t := range syn {
				if counts[t] == 0 {
					tokens = append(tokens, t)
				}
				counts[t]++
			}
			counts[termops.CountKey] += float64(len(syn))
		}
		counts[termops.MaxKey] = math.Max(counts[termops.MaxKey], d.feature.Score)
	}

	e.flushMu.Lock()
	defer e.flushMu.Unlock()
	e.staged.AddFreq(counts)
	stored, err := e.store.Freq(ctx, tokens)
	if err != nil {
		return nil, fmt.Errorf("loading freq: %w", err)
	}
	staged := e.staged.Freq()
	freq := make(termops.Freq, len(tokens)+2)
	for _, k := range append(tokens, termops.CountKey) {
		freq[k] = stored[k] + staged[k]
	}
	freq[termops.MaxKey] = math.Max(stored[termops.MaxKey], staged[termops.MaxKey])
	return freq, nil
}

// featureGrids builds one grid per covered tile for every indexable phrase
// of the feature, plus housenumber and intersection phrases.
func (e *Engine) featureGrids(d doc, freq termops.Freq) (map[string][]uint64, error) {
	f := d.feature
	tiles := f.Tiles(e.source.Zoom)
	score := termops.Encode3BitLogScale(f.Score, freq.Max())
	id := f.GridID()

	out := make(map[string][]uint64)
	add := func(phrase string, relev float64) error {
		for _, t := range tiles {
			g, err := grid.Encode(grid.Cell{ID: id, X: t.X, Y: t.Y, Relev: grid.RoundRelev(relev), Score: score})
			if err != nil {
				return err
			}
			out[phrase] = append(out[phrase], g)
		}
		return nil
	}

	var ranges []string
	if e.source.Address && f.IsAddress() {
		ranges = termops.GetHousenumRangeV3(f.HousenumDoc())
	}
	for _, syn := range d.synonyms {
		for _, p := range termops.GetIndexablePhrases(syn, freq, e.frequent) {
			if err := add(p.Phrase, p.Relev); err != nil {
				return nil, err
			}
			for _, r := range ranges {
				if err := add(r+" "+p.Phrase, p.Relev); err != nil {
					return nil, err
				}
			}
		}
		if e.source.Intersection == "" {
			continue
		}
		for _, cross := range f.Intersections {
			crossTokens := termops.Normalize(cross)
			if len(crossTokens) == 0 {
				continue
			}
			tokens := append([]string{termops.IntersectionToken}, syn...)
			tokens = append(append(tokens, ","), crossTokens...)
			for _, p := range termops.GetIndexablePhrases(tokens, freq, e.frequent) {
				if err := add(p.Phrase, p.Relev); err != nil {
					return nil, err
				}
			}
		}
	}
	return out, nil
}

// Flush merges the staged grids and counts into the shard store. On failure
// everything drained is staged again: grids merge idempotently, while freq
// keys written before the failure are counted twice.
func (e *Engine) Flush(ctx context.Context) error {
	e.flushMu.Lock()
	defer e.flushMu.Unlock()

	entries, freq, st := e.staged.Drain()
	if len(entries) == 0 && len(freq) == 0 {
		return nil
	}
	start := time.Now()
	err := e.write(ctx, entries, freq)
	if err != nil {
		e.staged.Restore(entries, freq, st.Features)
		if e.metrics != nil {
			e.metrics.IndexFlushesTotal.WithLabelValues("error").Inc()
		}
		return fmt.Errorf("flushing %s: %w", e.source.Name, err)
	}
	if e.metrics != nil {
		e.metrics.IndexFlushesTotal.WithLabelValues("ok").Inc()
		e.metrics.PhrasesWrittenTotal.WithLabelValues(e.source.Name).Add(float64(len(entries)))
	}
	e.logger.Info("index flushed",
		"phrases", st.Phrases,
		"grids", st.Grids,
		"features", st.Features,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	if e.onFlush != nil {
		e.onFlush(ctx, e.source.Name, st)
	}
	return nil
}

func (e *Engine) write(ctx context.Context, entries []index.PhraseEntry, freq termops.Freq) error {
	for _, en := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.store.AddGrids(ctx, en.Phrase, en.Grids); err != nil {
			return fmt.Errorf("writing grids for %q: %w", en.Phrase, err)
		}
	}
	if len(freq) > 0 {
		if err := e.store.AddFreq(ctx, freq); err != nil {
			return fmt.Errorf("writing freq: %w", err)
		}
	}
	return nil
}

// StartFlushLoop flushes every FlushInterval while anything is staged, and
// once more when ctx ends.
func (e *Engine) StartFlushLoop(ctx context.Context) {
	interval := e.cfg.FlushInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				e.logger.Info("flush loop stopping, performing final flush")
				if err := e.Flush(context.Background()); err != nil {
					e.logger.Error("final flush failed", "error", err)
				}
				return
			case <-ticker.C:
				if e.staged.FeatureCount() > 0 {
					if err := e.Flush(ctx); err != nil {
						e.logger.Error("periodic flush failed", "error", err)
					}
				}
			}
		}
	}()
}

// Close flushes what is staged and releases the worker pool. The shard
// store stays open.
func (e *Engine) Close() error {
	err := e.Flush(context.Background())
	if err != nil {
		e.logger.Error("final flush on close failed", "error", err)
	}
	e.pool.Release()
	return err
}
