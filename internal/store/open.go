package store

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/resilience"
)

// badgerOpenRetry waits out the directory lock of a process still shutting
// down on the same data directory, as during a rolling restart.
var badgerOpenRetry = resilience.RetryConfig{
	MaxAttempts:  6,
	InitialDelay: 250 * time.Millisecond,
	MaxDelay:     4 * time.Second,
	Retryable:    lockHeld,
}

func lockHeld(err error) bool {
	return strings.Contains(err.Error(), "Cannot acquire directory lock")
}

// Open builds the store of source name as cfg selects: in memory, or a
// Badger database under cfg.DataDir/name.
func Open(ctx context.Context, cfg config.StoreConfig, name string, m *metrics.Metrics) (*Store, error) {
	opts := Options{Shards: cfg.Shards, CacheSize: cfg.CacheSize, Metrics: m}
	switch cfg.Backend {
	case "", "memory":
		return New(name, NewMemoryBackend(), opts), nil
	case "badger":
		var backend *BadgerBackend
		err := resilience.Retry(ctx, "open store "+name, badgerOpenRetry, func(context.Context) error {
			var err error
			backend, err = OpenBadger(filepath.Join(cfg.DataDir, name))
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("opening store %s: %w", name, err)
		}
		return New(name, backend, opts), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// OpenAll opens one store per source, closing the ones already opened if
// any fails.
func OpenAll(ctx context.Context, cfg config.StoreConfig, sources []config.SourceConfig, m *metrics.Metrics) (map[string]*Store, error) {
	stores := make(map[string]*Store, len(sources))
	for _, src := range sources {
		st, err := Open(ctx, cfg, src.Name, m)
		if err != nil {
			for _, opened := range stores {
				opened.Close()
			}
			return nil, err
		}
		stores[src.Name] = st
	}
	return stores, nil
}
