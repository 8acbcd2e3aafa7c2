package store

import (
	"errors"
	"sort"
	"strings"
	"sync"
)

var errClosed = errors.New("store backend closed")

// MemoryBackend keeps every key in process memory.
type MemoryBackend struct {
	mu     sync.RWMutex
	data   map[string]map[string][]byte
	closed bool
}

var _ Backend = (*MemoryBackend)(nil)

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string]map[string][]byte)}
}

func (m *MemoryBackend) Get(typ, id string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, false, errClosed
	}
	v, ok := m.data[typ][id]
	return v, ok, nil
}

func (m *MemoryBackend) Put(typ, id string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errClosed
	}
	byID, ok := m.data[typ]
	if !ok {
		byID = make(map[string][]byte)
		m.data[typ] = byID
	}
	byID[id] = append([]byte(nil), data...)
	return nil
}

// Scan visits the ids of typ in sorted order.
func (m *MemoryBackend) Scan(typ string, fn func(id string, data []byte) error) error {
	return m.ScanPrefix(typ, "", fn)
}

// ScanPrefix visits the ids of typ starting with prefix in sorted order.
func (m *MemoryBackend) ScanPrefix(typ, prefix string, fn func(id string, data []byte) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return errClosed
	}
	snapshot := make(map[string][]byte)
	for id, v := range m.data[typ] {
		if strings.HasPrefix(id, prefix) {
			snapshot[id] = v
		}
	}
	m.mu.RUnlock()

	ids := make([]string, 0, len(snapshot))
	for id := range snapshot {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := fn(id, snapshot[id]); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
