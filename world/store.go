package world

import (
	"context"
	"maps"
	"sync"
)

// Store is the key/value state of one world namespace.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Snapshot(ctx context.Context) (map[string]string, error)
}

// Backend hands out isolated stores per namespace. Persistent backends keep
// a namespace's state across processes, which lets a run resume against a
// partially migrated world.
type Backend interface {
	Store(namespace string) Store
	// Drop removes every key of namespace.
	Drop(ctx context.Context, namespace string) error
	Close() error
}

// MemoryBackend keeps all namespaces in process memory.
type MemoryBackend struct {
	mu     sync.Mutex
	spaces map[string]*memoryStore
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{spaces: make(map[string]*memoryStore)}
}

// Store returns the store for namespace, creating it on first use.
func (b *MemoryBackend) Store(namespace string) Store {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.spaces[namespace]
	if !ok {
		s = &memoryStore{data: make(map[string]string)}
		b.spaces[namespace] = s
	}
	return s
}

// Drop forgets namespace. A later Store call starts it empty.
func (b *MemoryBackend) Drop(_ context.Context, namespace string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.spaces, namespace)
	return nil
}

// Close is a no-op.
func (b *MemoryBackend) Close() error { return nil }

type memoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

func (s *memoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *memoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *memoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *memoryStore) Snapshot(_ context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.data), nil
}
