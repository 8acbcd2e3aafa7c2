package coalesce

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/geo"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/spatialmatch"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/store"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/proto"
)

const (
	MethodCoalesce = "GridService.Coalesce"
	MethodStats    = "GridService.Stats"
	MethodHealth   = "GridService.Health"
)

// Caller is the RPC surface Client needs.
type Caller interface {
	Call(ctx context.Context, method string, params any, result any) error
}

// Client coalesces stacks on a remote gridserver.
type Client struct {
	rpc Caller
}

var _ spatialmatch.Coalescer = (*Client)(nil)

// NewClient returns a Client calling through rpc.
func NewClient(rpc Caller) *Client {
	return &Client{rpc: rpc}
}

func (c *Client) Coalesce(ctx context.Context, stack spatialmatch.Stack, opts spatialmatch.CoalesceOptions) ([]spatialmatch.CoalesceMatch, error) {
	var resp proto.CoalesceResponse
	if err := c.rpc.Call(ctx, MethodCoalesce, toRequest(stack, opts), &resp); err != nil {
		return nil, fmt.Errorf("remote coalesce: %w", err)
	}
	return fromResponse(resp), nil
}

// Stats asks the gridserver for its per-source key counts.
func (c *Client) Stats(ctx context.Context, source string) (*proto.StatsResponse, error) {
	var resp proto.StatsResponse
	if err := c.rpc.Call(ctx, MethodStats, &proto.StatsRequest{Source: source}, &resp); err != nil {
		return nil, fmt.Errorf("remote stats: %w", err)
	}
	return &resp, nil
}

// Ping checks that the gridserver answers.
func (c *Client) Ping(ctx context.Context) error {
	var resp proto.HealthCheckResponse
	if err := c.rpc.Call(ctx, MethodHealth, struct{}{}, &resp); err != nil {
		return err
	}
	if resp.Status != "SERVING" {
		return fmt.Errorf("gridserver status %s", resp.Status)
	}
	return nil
}

// Service exposes an Engine and its stores over pkg/grpc.
type Service struct {
	engine *Engine

	mu      sync.RWMutex
	sources map[int]*store.Store

	logger *slog.Logger
}

// NewService returns a Service over engine.
func NewService(engine *Engine) *Service {
	return &Service{
		engine:  engine,
		sources: make(map[int]*store.Store),
		logger:  slog.Default().With("component", "grid-service"),
	}
}

// AddSource serves st as source idx.
func (s *Service) AddSource(idx int, st *store.Store) {
	s.mu.Lock()
	s.sources[idx] = st
	s.mu.Unlock()
	s.engine.Register(idx, st)
}

// Register installs the GridService methods on srv.
func (s *Service) Register(srv *grpc.Server) {
	srv.Register(MethodCoalesce, s.handleCoalesce)
	srv.Register(MethodStats, s.handleStats)
	srv.Register(MethodHealth, func(context.Context, json.RawMessage) (any, error) {
		return &proto.HealthCheckResponse{Status: "SERVING"}, nil
	})
}

func (s *Service) handleCoalesce(ctx context.Context, raw json.RawMessage) (any, error) {
	var req proto.CoalesceRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("decoding coalesce request: %w", err)
	}
	stack, opts := fromRequest(req)
	matches, err := s.engine.Coalesce(ctx, stack, opts)
	if err != nil {
		s.logger.Warn("coalesce failed", "members", len(stack.Members), "error", err)
		return nil, err
	}
	return toResponse(matches), nil
}

func (s *Service) handleStats(ctx context.Context, raw json.RawMessage) (any, error) {
	var req proto.StatsRequest
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("decoding stats request: %w", err)
		}
	}
	s.mu.RLock()
	idxs := make([]int, 0, len(s.sources))
	for idx := range s.sources {
		idxs = append(idxs, idx)
	}
	s.mu.RUnlock()
	sort.Ints(idxs)

	resp := &proto.StatsResponse{Sources: []proto.SourceStat{}}
	for _, idx := range idxs {
		s.mu.RLock()
		st := s.sources[idx]
		s.mu.RUnlock()
		if req.Source != "" && st.Name() != req.Source {
			continue
		}
		stat, err := sourceStat(ctx, idx, st)
		if err != nil {
			return nil, err
		}
		resp.Sources = append(resp.Sources, stat)
	}
	return resp, nil
}

func sourceStat(ctx context.Context, idx int, st *store.Store) (proto.SourceStat, error) {
	grids, err := st.Count(ctx, store.TypeGrid)
	if err != nil {
		return proto.SourceStat{}, err
	}
	freqs, err := st.Count(ctx, store.TypeFreq)
	if err != nil {
		return proto.SourceStat{}, err
	}
	shards, err := st.List(ctx, store.TypeGrid)
	if err != nil {
		return proto.SourceStat{}, err
	}
	return proto.SourceStat{Source: st.Name(), Idx: idx, Grids: grids, Freqs: freqs, Shards: len(shards)}, nil
}

func toRequest(stack spatialmatch.Stack, opts spatialmatch.CoalesceOptions) *proto.CoalesceRequest {
	req := &proto.CoalesceRequest{
		Members: make([]proto.Phrasematch, len(stack.Members)),
		Relev:   stack.Relev,
		Radius:  opts.Radius,
	}
	for i, m := range stack.Members {
		req.Members[i] = proto.Phrasematch{
			Idx:         m.Idx,
			Phrase:      m.Phrase,
			Mask:        m.Mask,
			Weight:      m.Weight,
			Zoom:        m.Zoom,
			Subquery:    m.Subquery,
			ScoreFactor: m.ScoreFactor,
			Prefix:      m.Prefix,
			Address:     m.Address,
		}
	}
	if c := opts.Center; c != nil {
		req.Center = &proto.TileCenter{Z: c.Z, X: c.X, Y: c.Y}
	}
	if b := opts.BBox; b != nil {
		req.BBox = &proto.TileRange{Z: b.Z, MinX: b.MinX, MinY: b.MinY, MaxX: b.MaxX, MaxY: b.MaxY}
	}
	return req
}

func fromRequest(req proto.CoalesceRequest) (spatialmatch.Stack, spatialmatch.CoalesceOptions) {
	stack := spatialmatch.Stack{
		Members: make([]spatialmatch.Phrasematch, len(req.Members)),
		Relev:   req.Relev,
	}
	for i, m := range req.Members {
		stack.Members[i] = spatialmatch.Phrasematch{
			Idx:         m.Idx,
			Phrase:      m.Phrase,
			Mask:        m.Mask,
			Weight:      m.Weight,
			Zoom:        m.Zoom,
			Subquery:    m.Subquery,
			ScoreFactor: m.ScoreFactor,
			Prefix:      m.Prefix,
			Address:     m.Address,
		}
	}
	opts := spatialmatch.CoalesceOptions{Radius: req.Radius}
	if c := req.Center; c != nil {
		opts.Center = &geo.ZXY{Z: c.Z, X: c.X, Y: c.Y}
	}
	if b := req.BBox; b != nil {
		opts.BBox = &geo.TileBBox{Z: b.Z, MinX: b.MinX, MinY: b.MinY, MaxX: b.MaxX, MaxY: b.MaxY}
	}
	return stack, opts
}

func toResponse(matches []spatialmatch.CoalesceMatch) *proto.CoalesceResponse {
	resp := &proto.CoalesceResponse{Matches: make([]proto.CoalesceMatch, len(matches))}
	for i, m := range matches {
		covers := make([]proto.CoalesceCover, len(m.Covers))
		for j, c := range m.Covers {
			covers[j] = proto.CoalesceCover(c)
		}
		resp.Matches[i] = proto.CoalesceMatch{Relev: m.Relev, Covers: covers}
	}
	return resp
}

func fromResponse(resp proto.CoalesceResponse) []spatialmatch.CoalesceMatch {
	if len(resp.Matches) == 0 {
		return nil
	}
	out := make([]spatialmatch.CoalesceMatch, len(resp.Matches))
	for i, m := range resp.Matches {
		covers := make([]spatialmatch.CoalesceCover, len(m.Covers))
		for j, c := range m.Covers {
			covers[j] = spatialmatch.CoalesceCover(c)
		}
		out[i] = spatialmatch.CoalesceMatch{Relev: m.Relev, Covers: covers}
	}
	return out
}
