package mocks

import (
	"context"
	"errors"
	"sync"

	"github.com/avatarctic/offline-sync-engine/internal/core/domain/cache"
	"github.com/avatarctic/offline-sync-engine/internal/core/ports"
)

// ErrStoreDown is returned by MemoryCacheStore while Fail is set.
var ErrStoreDown = errors.New("cache store unavailable")

// MemoryCacheStore is an in-memory ports.CacheStore. Keys enumerate in
// first-insert order like the real backends.
type MemoryCacheStore struct {
	mu         sync.Mutex
	order      []string
	partitions map[string]*memoryPartition
	// Fail makes every call return ErrStoreDown.
	Fail bool
	// FailDrop lists partitions whose Drop fails.
	FailDrop map[string]bool
}

func NewMemoryCacheStore() *MemoryCacheStore {
	return &MemoryCacheStore{partitions: make(map[string]*memoryPartition)}
}

func (s *MemoryCacheStore) Open(ctx context.Context, name string) (ports.CachePartition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail {
		return nil, ErrStoreDown
	}
	p, ok := s.partitions[name]
	if !ok {
		p = &memoryPartition{store: s, name: name, entries: make(map[string]*cache.Entry)}
		s.partitions[name] = p
		s.order = append(s.order, name)
	}
	return p, nil
}

func (s *MemoryCacheStore) Partitions(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail {
		return nil, ErrStoreDown
	}
	return append([]string(nil), s.order...), nil
}

func (s *MemoryCacheStore) Drop(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail || s.FailDrop[name] {
		return false, ErrStoreDown
	}
	if _, ok := s.partitions[name]; !ok {
		return false, nil
	}
	delete(s.partitions, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true, nil
}

// Seed writes entries directly, bypassing eviction.
func (s *MemoryCacheStore) Seed(name string, entries ...*cache.Entry) {
	part, _ := s.Open(context.Background(), name)
	for _, e := range entries {
		_ = part.Put(context.Background(), e.Key, e)
	}
}

// Entry reads one entry; ok=false when the partition or key is missing.
func (s *MemoryCacheStore) Entry(name, key string) (*cache.Entry, bool) {
	s.mu.Lock()
	p, ok := s.partitions[name]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	e, ok, _ := p.Get(context.Background(), key)
	return e, ok
}

// Count returns the number of entries in a partition.
func (s *MemoryCacheStore) Count(name string) int {
	s.mu.Lock()
	p, ok := s.partitions[name]
	s.mu.Unlock()
	if !ok {
		return 0
	}
	keys, _ := p.Keys(context.Background())
	return len(keys)
}

type memoryPartition struct {
	store *MemoryCacheStore
	name  string

	mu      sync.Mutex
	keys    []string
	entries map[string]*cache.Entry
}

func (p *memoryPartition) Name() string { return p.name }

func (p *memoryPartition) Get(ctx context.Context, key string) (*cache.Entry, bool, error) {
	if p.failing() {
		return nil, false, ErrStoreDown
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[key]
	if !ok {
		return nil, false, nil
	}
	cp := *e
	cp.Payload = *e.Payload.Clone()
	return &cp, true, nil
}

func (p *memoryPartition) Put(ctx context.Context, key string, entry *cache.Entry) error {
	if p.failing() {
		return ErrStoreDown
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.entries[key]; !ok {
		p.keys = append(p.keys, key)
	}
	cp := *entry
	cp.Payload = *entry.Payload.Clone()
	p.entries[key] = &cp
	return nil
}

func (p *memoryPartition) Delete(ctx context.Context, key string) (bool, error) {
	if p.failing() {
		return false, ErrStoreDown
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.entries[key]; !ok {
		return false, nil
	}
	delete(p.entries, key)
	for i, k := range p.keys {
		if k == key {
			p.keys = append(p.keys[:i], p.keys[i+1:]...)
			break
		}
	}
	return true, nil
}

func (p *memoryPartition) Keys(ctx context.Context) ([]string, error) {
	if p.failing() {
		return nil, ErrStoreDown
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.keys...), nil
}

func (p *memoryPartition) failing() bool {
	p.store.mu.Lock()
	defer p.store.mu.Unlock()
	return p.store.Fail
}
