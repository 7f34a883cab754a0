package memoryCacheStore

import (
	"context"
	"sync"
)

type MemoryCacheStore struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

func NewMemoryCacheStore() *MemoryCacheStore {
	return &MemoryCacheStore{
		entries: make(map[string][]byte),
	}
}

func (s *MemoryCacheStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte{}, value...), true, nil
}

// Put keeps the first value written for a key.
func (s *MemoryCacheStore) Put(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[key]; ok {
		return nil
	}
	s.entries[key] = append([]byte{}, value...)
	return nil
}

func (s *MemoryCacheStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *MemoryCacheStore) Close() error {
	return nil
}
