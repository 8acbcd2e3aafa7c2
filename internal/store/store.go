// Package store holds the per-source shard data the geocoder reads at query
// time: phrase grids, token frequencies and packed shard segments. Keys are
// (type, id) pairs; an id belongs to shard xxhash64(id) mod shardCount.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/ristretto/v2"

	apperrors "github.com/Adithya-Monish-Kumar-K/geocoder/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/metrics"
)

const (
	// DefaultShards is the shard count used when none is configured.
	DefaultShards = 16
	// DefaultCacheSize is the number of entries the read cache warmed by
	// LoadAll holds.
	DefaultCacheSize = 100_000

	TypeGrid = "grid"
	TypeFreq = "freq"
)

// Backend is the raw key/value persistence under a Store.
type Backend interface {
	Get(typ, id string) ([]byte, bool, error)
	Put(typ, id string, data []byte) error
	Scan(typ string, fn func(id string, data []byte) error) error
	ScanPrefix(typ, prefix string, fn func(id string, data []byte) error) error
	Close() error
}

// ShardOf returns the shard id belongs to.
func ShardOf(id string, shards uint32) uint32 {
	if shards == 0 {
		return 0
	}
	return uint32(xxhash.Sum64String(id) % uint64(shards))
}

type cacheEntry struct {
	data  []byte
	found bool
}

// Store is the shard store of one source. It is safe for concurrent use.
type Store struct {
	name    string
	backend Backend
	shards  uint32
	metrics *metrics.Metrics

	// cache holds at most Options.CacheSize entries, admitted by TinyLFU.
	cache *ristretto.Cache[string, cacheEntry]

	logger *slog.Logger
}

// Options configures a Store. Zero values take the defaults.
type Options struct {
	Shards    int
	CacheSize int
	Metrics   *metrics.Metrics
}

// New returns a Store named name over backend.
func New(name string, backend Backend, opts Options) *Store {
	if opts.Shards <= 0 {
		opts.Shards = DefaultShards
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, cacheEntry]{
		NumCounters:        int64(opts.CacheSize) * 10,
		MaxCost:            int64(opts.CacheSize),
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		// only reachable with non-positive sizes, which are defaulted above
		panic(fmt.Sprintf("store %s: read cache: %v", name, err))
	}
	return &Store{
		name:    name,
		backend: backend,
		shards:  uint32(opts.Shards),
		metrics: opts.Metrics,
		cache:   cache,
		logger:  slog.Default().With("component", "store", "source", name),
	}
}

// Name returns the source name the store was created for.
func (s *Store) Name() string { return s.name }

// Shards returns the shard count.
func (s *Store) Shards() uint32 { return s.shards }

func cacheKey(typ, id string) string { return typ + "\x00" + id }

// Get returns the value stored under (typ, id).
func (s *Store) Get(ctx context.Context, typ, id string) ([]byte, bool, error) {
	if e, ok := s.cache.Get(cacheKey(typ, id)); ok {
		return e.data, e.found, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	data, found, err := s.backend.Get(typ, id)
	if err != nil {
		return nil, false, fmt.Errorf("getting %s/%s: %w", typ, id, err)
	}
	return data, found, nil
}

// Set stores data under (typ, id) and drops any cached copy.
func (s *Store) Set(ctx context.Context, typ, id string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.backend.Put(typ, id, data); err != nil {
		return fmt.Errorf("setting %s/%s: %w", typ, id, err)
	}
	s.cache.Del(cacheKey(typ, id))
	return nil
}

// LoadAll warms the read cache with ids of typ. Ids with no value are cached
// as absent. Entries are visible to Get when LoadAll returns, though the
// cache may refuse or later evict any of them.
func (s *Store) LoadAll(ctx context.Context, typ string, ids []string) error {
	loaded := make(map[string]cacheEntry, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", apperrors.ErrShardLoad, err)
		}
		data, found, err := s.backend.Get(typ, id)
		if err != nil {
			return fmt.Errorf("%w: %s %s/%s: %w", apperrors.ErrShardLoad, s.name, typ, id, err)
		}
		loaded[cacheKey(typ, id)] = cacheEntry{data: data, found: found}
	}

	dropped := 0
	for k, e := range loaded {
		if !s.cache.Set(k, e, 1) {
			dropped++
		}
	}
	s.cache.Wait()
	if dropped > 0 {
		s.logger.Debug("read cache contended", "type", typ, "dropped", dropped)
	}
	return nil
}

// List returns the shards of typ holding at least one key, ascending.
func (s *Store) List(ctx context.Context, typ string) ([]uint32, error) {
	seen := make(map[uint32]bool)
	err := s.backend.Scan(typ, func(id string, _ []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		seen[ShardOf(id, s.shards)] = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", typ, err)
	}
	out := make([]uint32, 0, len(seen))
	for shard := range seen {
		out = append(out, shard)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// ListShard returns the ids of typ in shard, sorted.
func (s *Store) ListShard(ctx context.Context, typ string, shard uint32) ([]string, error) {
	var ids []string
	err := s.backend.Scan(typ, func(id string, _ []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if ShardOf(id, s.shards) == shard {
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing %s shard %d: %w", typ, shard, err)
	}
	sort.Strings(ids)
	return ids, nil
}

// Count returns the number of keys of typ and records it in the store_keys
// gauge.
func (s *Store) Count(ctx context.Context, typ string) (int, error) {
	n := 0
	err := s.backend.Scan(typ, func(string, []byte) error {
		n++
		return ctx.Err()
	})
	if err != nil {
		return 0, fmt.Errorf("counting %s: %w", typ, err)
	}
	if s.metrics != nil {
		s.metrics.StoreKeys.WithLabelValues(typ).Set(float64(n))
	}
	return n, nil
}

// Ping reports whether the backend answers reads.
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, _, err := s.backend.Get(TypeFreq, "__COUNT__")
	return err
}

// Close releases the read cache and closes the backend.
func (s *Store) Close() error {
	s.cache.Close()
	return s.backend.Close()
}
