package features

import (
	"context"
	"fmt"
	"sort"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/geocoder/pkg/errors"
)

// Store persists features and answers the grid id lookups hydration needs.
type Store interface {
	Put(ctx context.Context, f Feature) error
	Get(ctx context.Context, source string, id int64) (Feature, error)
	// ByGridID returns the features of source whose grid id is in ids,
	// grouped by grid id and ordered by feature id within a group.
	ByGridID(ctx context.Context, source string, ids []uint32) (map[uint32][]Feature, error)
	Delete(ctx context.Context, source string, id int64) error
	Ping(ctx context.Context) error
	Close() error
}

// StatusMarker records whether a stored feature made it into the index.
type StatusMarker interface {
	MarkIndexed(ctx context.Context, source string, id int64, status string) error
}

const (
	StatusPending = "PENDING"
	StatusIndexed = "INDEXED"
	StatusFailed  = "FAILED"
)

type featureKey struct {
	source string
	id     int64
}

type gridKey struct {
	source string
	gridID uint32
}

// MemoryStore is a Store held in process.
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[featureKey]Feature
	byGrid map[gridKey]map[int64]bool
	status map[featureKey]string
}

var (
	_ Store        = (*MemoryStore)(nil)
	_ StatusMarker = (*MemoryStore)(nil)
)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[featureKey]Feature),
		byGrid: make(map[gridKey]map[int64]bool),
		status: make(map[featureKey]string),
	}
}

func (m *MemoryStore) Put(_ context.Context, f Feature) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := featureKey{f.Source, f.ID}
	m.byID[key] = f
	m.status[key] = StatusPending
	gk := gridKey{f.Source, f.GridID()}
	if m.byGrid[gk] == nil {
		m.byGrid[gk] = make(map[int64]bool)
	}
	m.byGrid[gk][f.ID] = true
	return nil
}

func (m *MemoryStore) Get(_ context.Context, source string, id int64) (Feature, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.byID[featureKey{source, id}]
	if !ok {
		return Feature{}, fmt.Errorf("%w: feature %s.%d", apperrors.ErrNotFound, source, id)
	}
	return f, nil
}

func (m *MemoryStore) ByGridID(_ context.Context, source string, ids []uint32) (map[uint32][]Feature, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[uint32][]Feature)
	for _, gid := range ids {
		if _, done := out[gid]; done {
			continue
		}
		members := m.byGrid[gridKey{source, gid}]
		if len(members) == 0 {
			continue
		}
		fids := make([]int64, 0, len(members))
		for id := range members {
			fids = append(fids, id)
		}
		sort.Slice(fids, func(i, j int) bool { return fids[i] < fids[j] })
		for _, id := range fids {
			out[gid] = append(out[gid], m.byID[featureKey{source, id}])
		}
	}
	return out, nil
}

func (m *MemoryStore) Delete(_ context.Context, source string, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := featureKey{source, id}
	f, ok := m.byID[key]
	if !ok {
		return fmt.Errorf("%w: feature %s.%d", apperrors.ErrNotFound, source, id)
	}
	delete(m.byID, key)
	delete(m.status, key)
	gk := gridKey{source, f.GridID()}
	delete(m.byGrid[gk], id)
	if len(m.byGrid[gk]) == 0 {
		delete(m.byGrid, gk)
	}
	return nil
}

func (m *MemoryStore) MarkIndexed(_ context.Context, source string, id int64, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := featureKey{source, id}
	if _, ok := m.byID[key]; !ok {
		return fmt.Errorf("%w: feature %s.%d", apperrors.ErrNotFound, source, id)
	}
	m.status[key] = status
	return nil
}

// Status returns the indexing status of a stored feature, or "".
func (m *MemoryStore) Status(source string, id int64) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status[featureKey{source, id}]
}

// Len returns the number of stored features.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
