package storage

import (
	"bytes"
	"context"
	"sync"
)

// MemoryCache is an in-memory ResourceCache, useful for tests and
// single-process deployments that do not need the cache to survive restarts.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

func NewMemory() *MemoryCache {
	return &MemoryCache{entries: make(map[string][]byte)}
}

func (m *MemoryCache) Close() error { return nil }

func (m *MemoryCache) Ping(ctx context.Context) error { return nil }

func (m *MemoryCache) IsCached(ctx context.Context, id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[id]
	return ok
}

func (m *MemoryCache) Read(ctx context.Context, id string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.entries[id]
	if !ok {
		return nil, ErrNotCached
	}
	return bytes.Clone(data), nil
}

func (m *MemoryCache) Write(ctx context.Context, id string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[id] = bytes.Clone(data)
	return nil
}

func (m *MemoryCache) Clear(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}
