// Package cache keeps forward geocode responses in Redis, keyed by the
// normalized query and its options.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/geocoder"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/geocoder/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/resilience"
)

const keyPrefix = "geocode:"

// Backend is the subset of the Redis client the cache needs.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type QueryCache struct {
	backend Backend
	cfg     config.RedisConfig
	breaker *resilience.CircuitBreaker
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New returns a cache over backend. Redis failures trip a circuit breaker,
// after which lookups go straight to the geocoder until it resets.
func New(backend Backend, cfg config.RedisConfig, m *metrics.Metrics) *QueryCache {
	bc := resilience.CircuitBreakerConfig{
		FailureThreshold:    5,
		ResetTimeout:        30 * time.Second,
		HalfOpenMaxRequests: 1,
	}
	if m != nil {
		bc.OnStateChange = func(name string, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		}
		m.CircuitBreakerState.WithLabelValues("query-cache").Set(float64(resilience.StateClosed))
	}
	return &QueryCache{
		backend: backend,
		cfg:     cfg,
		breaker: resilience.NewCircuitBreaker("query-cache", bc),
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

// Get returns the cached response for the query, if any.
func (c *QueryCache) Get(ctx context.Context, tokens []string, opts geocoder.Options) (*geocoder.Response, bool) {
	key := BuildKey(tokens, opts)
	var data []byte
	err := c.breaker.Execute(func() error {
		var err error
		data, err = c.backend.Get(ctx, key)
		if pkgredis.IsNilError(err) {
			return nil
		}
		return err
	})
	if err != nil {
		if !errors.Is(err, resilience.ErrCircuitOpen) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return nil, false
	}
	if data == nil {
		c.miss()
		return nil, false
	}
	var resp geocoder.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	c.logger.Debug("cache hit", "key", key)
	return &resp, true
}

// Set stores resp under the query key.
func (c *QueryCache) Set(ctx context.Context, tokens []string, opts geocoder.Options, resp *geocoder.Response) {
	key := BuildKey(tokens, opts)
	data, err := json.Marshal(resp)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.backend.Set(ctx, key, data, c.cfg.CacheTTL)
	})
	if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute serves from cache or runs compute once per key across
// concurrent callers. The bool reports a cache hit.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	tokens []string,
	opts geocoder.Options,
	compute func() (*geocoder.Response, error),
) (*geocoder.Response, bool, error) {
	if resp, ok := c.Get(ctx, tokens, opts); ok {
		return resp, true, nil
	}
	key := BuildKey(tokens, opts)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		resp, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, tokens, opts, resp)
		return resp, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*geocoder.Response), false, nil
}

// Invalidate drops every cached response.
func (c *QueryCache) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := c.backend.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// State returns the circuit breaker state guarding Redis.
func (c *QueryCache) State() resilience.State {
	return c.breaker.State()
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// BuildKey hashes the normalized tokens and every option that changes the
// response. Types are order independent.
func BuildKey(tokens []string, opts geocoder.Options) string {
	var b strings.Builder
	b.WriteString(strings.Join(tokens, " "))
	if opts.Proximity != nil {
		fmt.Fprintf(&b, "|prox=%.6f,%.6f", opts.Proximity[0], opts.Proximity[1])
	}
	if opts.BBox != nil {
		fmt.Fprintf(&b, "|bbox=%.6f,%.6f,%.6f,%.6f", opts.BBox[0], opts.BBox[1], opts.BBox[2], opts.BBox[3])
	}
	if len(opts.Types) > 0 {
		types := append([]string(nil), opts.Types...)
		sort.Strings(types)
		b.WriteString("|types=" + strings.Join(types, ","))
	}
	fmt.Fprintf(&b, "|limit=%d", opts.Limit)
	hash := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}

// HandleIndexEvent drops the cache whenever a source finishes a flush.
func HandleIndexEvent(c *QueryCache) kafka.MessageHandler {
	logger := slog.Default().With("component", "cache-invalidator")
	return func(ctx context.Context, _ []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ingestion.IndexEvent](value)
		if err != nil {
			return err
		}
		if _, err := c.Invalidate(ctx); err != nil {
			return err
		}
		logger.Info("cache dropped after index flush", "source", event.Source, "phrases", event.Phrases)
		return nil
	}
}
