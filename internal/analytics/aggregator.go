package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/geocoder/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/kafka"
)

const (
	maxLatencySamples = 10000
	// lowRelevance marks a top result that matched less than half the query.
	lowRelevance = 0.5
)

type AggregatedStats struct {
	TotalQueries      int64                 `json:"total_queries"`
	FailedQueries     int64                 `json:"failed_queries"`
	CacheHits         int64                 `json:"cache_hits"`
	CacheMisses       int64                 `json:"cache_misses"`
	ZeroResultCount   int64                 `json:"zero_result_count"`
	LowRelevanceCount int64                 `json:"low_relevance_count"`
	AvgTopRelevance   float64               `json:"avg_top_relevance"`
	AvgLatencyMs      float64               `json:"avg_latency_ms"`
	P50LatencyMs      int64                 `json:"p50_latency_ms"`
	P95LatencyMs      int64                 `json:"p95_latency_ms"`
	P99LatencyMs      int64                 `json:"p99_latency_ms"`
	TopQueries        []QueryCount          `json:"top_queries"`
	ZeroResultQueries []QueryCount          `json:"zero_result_queries"`
	TopSources        map[string]int64      `json:"top_sources"`
	Flushes           map[string]FlushStats `json:"flushes"`
	QueriesPerMinute  float64               `json:"queries_per_minute"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// FlushStats sums the index flushes of one source.
type FlushStats struct {
	Count     int64     `json:"count"`
	Features  int64     `json:"features"`
	Phrases   int64     `json:"phrases"`
	LastFlush time.Time `json:"last_flush"`
}

// Aggregator folds query and flush events into running totals. Latency
// percentiles cover the most recent maxLatencySamples queries.
type Aggregator struct {
	mu                sync.RWMutex
	totals            AggregatedStats
	relevanceSum      float64
	relevanceCount    int64
	latencies         []int64
	next              int
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	topSources        map[string]int64
	flushes           map[string]FlushStats
	topN              int
	startTime         time.Time
	logger            *slog.Logger
}

// NewAggregator reports the topN most frequent queries; topN <= 0 means 10.
func NewAggregator(topN int) *Aggregator {
	if topN <= 0 {
		topN = 10
	}
	return &Aggregator{
		latencies:         make([]int64, 0, 1024),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		topSources:        make(map[string]int64),
		flushes:           make(map[string]FlushStats),
		topN:              topN,
		startTime:         time.Now(),
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
}

// HandleQueryEvent records QueryEvents off Kafka.
func HandleQueryEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[QueryEvent](value)
		if err != nil {
			return err
		}
		agg.Record(event)
		return nil
	}
}

// HandleIndexEvent decodes index flush announcements off Kafka.
func HandleIndexEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ingestion.IndexEvent](value)
		if err != nil {
			return err
		}
		if event.Source == "" {
			return fmt.Errorf("%w: index event without source", apperrors.ErrInvalidInput)
		}
		agg.RecordFlush(event)
		return nil
	}
}

// Track records event in process; it lets an Aggregator stand in for a
// Kafka collector.
func (a *Aggregator) Track(event QueryEvent) { a.Record(event) }

// Record folds one query event into the totals.
func (a *Aggregator) Record(event QueryEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.totals.TotalQueries++
	if event.Status >= 400 {
		a.totals.FailedQueries++
		return
	}
	switch event.Cache {
	case "hit":
		a.totals.CacheHits++
	case "miss":
		a.totals.CacheMisses++
	}

	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, event.LatencyMs)
	} else {
		a.latencies[a.next] = event.LatencyMs
		a.next = (a.next + 1) % maxLatencySamples
	}

	query := queryKey(event)
	a.queryCounts[query]++
	if event.Returned == 0 {
		a.totals.ZeroResultCount++
		a.zeroResultQueries[query]++
		return
	}
	a.relevanceSum += event.TopRelevance
	a.relevanceCount++
	if event.TopRelevance < lowRelevance {
		a.totals.LowRelevanceCount++
	}
	if event.TopSource != "" {
		a.topSources[event.TopSource]++
	}
}

// RecordFlush adds one index flush of event.Source.
func (a *Aggregator) RecordFlush(event ingestion.IndexEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	fs := a.flushes[event.Source]
	fs.Count++
	fs.Features += int64(event.Features)
	fs.Phrases += int64(event.Phrases)
	if event.FlushedAt.After(fs.LastFlush) {
		fs.LastFlush = event.FlushedAt
	}
	a.flushes[event.Source] = fs
}

// queryKey groups queries by their tokens so spelling variants of one
// query count together.
func queryKey(event QueryEvent) string {
	if len(event.Tokens) > 0 {
		return strings.Join(event.Tokens, " ")
	}
	return strings.ToLower(strings.TrimSpace(event.Query))
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := a.totals
	if a.relevanceCount > 0 {
		stats.AvgTopRelevance = a.relevanceSum / float64(a.relevanceCount)
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, a.topN)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, a.topN)
	stats.TopSources = make(map[string]int64, len(a.topSources))
	for k, v := range a.topSources {
		stats.TopSources[k] = v
	}
	stats.Flushes = make(map[string]FlushStats, len(a.flushes))
	for k, v := range a.flushes {
		stats.Flushes[k] = v
	}
	if elapsed := time.Since(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalQueries) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN orders by count descending, then query ascending.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
