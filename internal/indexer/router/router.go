// Package router dispatches features to the indexing engine of their
// source. Each source owns an independent indexer.Engine over its own shard
// store.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/store"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/geocoder/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/metrics"
)

// Router maps source names to their indexer.Engine.
type Router struct {
	engines map[string]*indexer.Engine
	mu      sync.RWMutex
	logger  *slog.Logger
}

// New creates one engine per source over the matching store in stores.
func New(sources []config.SourceConfig, stores map[string]*store.Store, cfg config.IndexerConfig, m *metrics.Metrics) (*Router, error) {
	r := &Router{
		engines: make(map[string]*indexer.Engine, len(sources)),
		logger:  slog.Default().With("component", "source-router"),
	}
	for _, src := range sources {
		engine, err := indexer.NewEngine(src, stores[src.Name], cfg, m)
		if err != nil {
			r.closeAll()
			return nil, fmt.Errorf("creating engine for source %s: %w", src.Name, err)
		}
		r.engines[src.Name] = engine
		r.logger.Info("source engine initialized",
			"source", src.Name,
			"zoom", src.Zoom,
			"address", src.Address,
		)
	}
	r.logger.Info("source router ready", "sources", len(sources))
	return r, nil
}

// Route returns the Engine of source.
func (r *Router) Route(source string) (*indexer.Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	engine, ok := r.engines[source]
	if !ok {
		return nil, apperrors.InvalidArgumentf("unknown source %q (known: %v)", source, r.names())
	}
	return engine, nil
}

// Engines returns a snapshot map of every engine.
func (r *Router) Engines() map[string]*indexer.Engine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make(map[string]*indexer.Engine, len(r.engines))
	for name, engine := range r.engines {
		result[name] = engine
	}
	return result
}

// OnFlush installs h on every engine.
func (r *Router) OnFlush(h indexer.FlushHook) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, engine := range r.engines {
		engine.OnFlush(h)
	}
}

// StartFlushLoops starts the periodic flush of every engine.
func (r *Router) StartFlushLoops(ctx context.Context) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, engine := range r.engines {
		engine.StartFlushLoop(ctx)
	}
}

// FlushAll flushes every engine, returning the first error.
func (r *Router) FlushAll(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var firstErr error
	for name, engine := range r.engines {
		if err := engine.Flush(ctx); err != nil {
			r.logger.Error("flush failed", "source", name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Close flushes and closes every engine.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeAll()
}

func (r *Router) names() []string {
	names := make([]string, 0, len(r.engines))
	for name := range r.engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Router) closeAll() error {
	var firstErr error
	for name, engine := range r.engines {
		if err := engine.Close(); err != nil {
			r.logger.Error("close failed", "source", name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
