package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryStorage is an in-memory Storage implementation. It is the default
// backend for tests and single-process deployments.
type MemoryStorage struct {
	mu     sync.RWMutex
	stores map[string]*memoryStore
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		stores: make(map[string]*memoryStore),
	}
}

// Open returns the store for the tag, creating it if needed.
func (s *MemoryStorage) Open(_ context.Context, tag string) (Store, error) {
	if tag == "" {
		return nil, ErrInvalidTag
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stores[tag]
	if !ok {
		st = &memoryStore{entries: make(map[string]Snapshot)}
		s.stores[tag] = st
	}
	return st, nil
}

// Tags lists all generation tags holding a store, in sorted order.
func (s *MemoryStorage) Tags(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tags := make([]string, 0, len(s.stores))
	for tag := range s.stores {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags, nil
}

// Drop removes the store for the tag and all of its snapshots. Idempotent.
func (s *MemoryStorage) Drop(_ context.Context, tag string) error {
	s.mu.Lock()
	delete(s.stores, tag)
	s.mu.Unlock()
	return nil
}

// MatchAny looks the identity up across all generations. Tags are scanned in
// sorted order so the result is deterministic when several generations hold
// the identity.
func (s *MemoryStorage) MatchAny(ctx context.Context, id Identity) (Snapshot, bool) {
	tags, _ := s.Tags(ctx)

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, tag := range tags {
		st, ok := s.stores[tag]
		if !ok {
			continue
		}
		if snap, ok := st.get(id); ok {
			return snap, true
		}
	}
	return Snapshot{}, false
}

// memoryStore is one in-memory generation.
type memoryStore struct {
	mu      sync.RWMutex
	entries map[string]Snapshot
}

func (m *memoryStore) Get(_ context.Context, id Identity) (Snapshot, bool) {
	return m.get(id)
}

func (m *memoryStore) get(id Identity) (Snapshot, bool) {
	m.mu.RLock()
	snap, ok := m.entries[id.Key()]
	m.mu.RUnlock()
	if !ok {
		return Snapshot{}, false
	}
	return snap.Clone(), true
}

func (m *memoryStore) Put(_ context.Context, id Identity, snap Snapshot) error {
	if err := id.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	m.entries[id.Key()] = snap.Clone()
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) Delete(_ context.Context, id Identity) error {
	m.mu.Lock()
	delete(m.entries, id.Key())
	m.mu.Unlock()
	return nil
}

// Ensure MemoryStorage implements Storage
var (
	_ Storage = (*MemoryStorage)(nil)
	_ Store   = (*memoryStore)(nil)
)
