package cachegen

import (
	"context"
	"sync"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStorage keeps cache generations in process memory. It is the
// default backend for tests and for deployments that treat the shell cache
// as purely ephemeral.
type MemoryStorage struct {
	mu     sync.Mutex
	caches map[string]*memoryCache
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{caches: make(map[string]*memoryCache)}
}

func (s *MemoryStorage) Open(_ context.Context, name string) (Cache, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.caches[name]; ok {
		return c, nil
	}
	c := &memoryCache{entries: gocache.New(gocache.NoExpiration, 0)}
	s.caches[name] = c
	return c, nil
}

func (s *MemoryStorage) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.caches[name]; ok {
		c.entries.Flush()
		delete(s.caches, name)
	}
	return nil
}

func (s *MemoryStorage) Names(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.caches))
	for name := range s.caches {
		names = append(names, name)
	}
	return names, nil
}

// Seed creates an empty cache under the given name. Used by tests to stage
// stale generations.
func (s *MemoryStorage) Seed(name string) {
	_, _ = s.Open(context.Background(), name)
}

type memoryCache struct {
	entries *gocache.Cache
}

func (c *memoryCache) Put(_ context.Context, route string, body []byte) error {
	c.entries.Set(route, body, gocache.NoExpiration)
	return nil
}

func (c *memoryCache) Get(_ context.Context, route string) ([]byte, bool, error) {
	v, ok := c.entries.Get(route)
	if !ok {
		return nil, false, nil
	}
	return v.([]byte), true, nil
}
