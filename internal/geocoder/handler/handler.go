package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/geocoder"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/geocoder/cache"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/termops"
	apperrors "github.com/Adithya-Monish-Kumar-K/geocoder/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/middleware"
)

// Forwarder runs forward geocodes.
type Forwarder interface {
	Forward(ctx context.Context, query string, opts geocoder.Options) (*geocoder.Response, error)
}

type Handler struct {
	geocoder Forwarder
	cache    *cache.QueryCache
	metrics  *metrics.Metrics
	tracker  analytics.Tracker
	logger   *slog.Logger
}

// New returns a Handler. queryCache and m may be nil.
func New(g Forwarder, queryCache *cache.QueryCache, m *metrics.Metrics) *Handler {
	return &Handler{
		geocoder: g,
		cache:    queryCache,
		metrics:  m,
		logger:   slog.Default().With("component", "geocode-handler"),
	}
}

// TrackWith reports every geocode request to t.
func (h *Handler) TrackWith(t analytics.Tracker) {
	h.tracker = t
}

// Geocode handles GET /geocode/v1/{query}.
func (h *Handler) Geocode(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := strings.TrimSpace(r.PathValue("query"))
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	opts, err := ParseOptions(r.URL.Query())
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var resp *geocoder.Response
	cacheStatus := "bypass"
	if h.cache != nil {
		var hit bool
		key := strings.Fields(strings.ToLower(termops.NormalizeText(query)))
		resp, hit, err = h.cache.GetOrCompute(ctx, key, opts, func() (*geocoder.Response, error) {
			return h.geocoder.Forward(ctx, query, opts)
		})
		cacheStatus = "miss"
		if hit {
			cacheStatus = "hit"
		}
	} else {
		resp, err = h.geocoder.Forward(ctx, query, opts)
	}

	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		h.track(r, query, opts, nil, cacheStatus, status, start)
		if status >= http.StatusInternalServerError {
			log.Error("geocode failed", "query", query, "error", err, "status_code", status)
			h.writeError(w, status, "geocode failed")
			return
		}
		h.writeError(w, status, err.Error())
		return
	}

	if h.metrics != nil {
		h.metrics.GeocodeLatency.WithLabelValues(cacheStatus).Observe(time.Since(start).Seconds())
	}
	log.Info("geocode completed",
		"query", query,
		"returned", len(resp.Features),
		"cache", cacheStatus,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	h.track(r, query, opts, resp, cacheStatus, http.StatusOK, start)
	w.Header().Set("X-Cache", cacheStatus)
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) track(r *http.Request, query string, opts geocoder.Options, resp *geocoder.Response, cacheStatus string, status int, start time.Time) {
	if h.tracker == nil {
		return
	}
	event := analytics.QueryEvent{
		Query:     query,
		Types:     opts.Types,
		Proximity: opts.Proximity != nil,
		Cache:     cacheStatus,
		Status:    status,
		LatencyMs: time.Since(start).Milliseconds(),
		RequestID: middleware.GetRequestID(r.Context()),
		Timestamp: start.UTC(),
	}
	if resp != nil {
		event.Tokens = resp.Query
		event.Returned = len(resp.Features)
		if len(resp.Features) > 0 {
			event.TopSource = resp.Features[0].Source
			event.TopRelevance = resp.Features[0].Relevance
		}
	}
	h.tracker.Track(event)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
		"breaker":  h.cache.State().String(),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}

	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
