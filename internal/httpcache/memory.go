package httpcache

import (
	"context"
	"sort"
	"sync"
)

// MemoryStorage keeps stores in process memory.
type MemoryStorage struct {
	mu     sync.Mutex
	stores map[string]*memoryStore
}

// NewMemoryStorage creates an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{stores: make(map[string]*memoryStore)}
}

func (m *MemoryStorage) Open(ctx context.Context, name string) (Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stores[name]
	if !ok {
		s = &memoryStore{entries: make(map[string]*Entry)}
		m.stores[name] = s
	}
	return s, nil
}

func (m *MemoryStorage) Keys(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.stores))
	for name := range m.stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemoryStorage) Delete(ctx context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.stores[name]
	delete(m.stores, name)
	return ok, nil
}

type memoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

func (s *memoryStore) Match(ctx context.Context, key string) (*Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	return e.clone(), true, nil
}

func (s *memoryStore) Put(ctx context.Context, key string, e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = e.clone()
	return nil
}
