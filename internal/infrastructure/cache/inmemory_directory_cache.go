package cache

import (
	"context"
	"maps"
	"sync"
	"time"

	appsettlement "github.com/erp/reconciler/internal/application/settlement"
)

// InMemoryDirectoryCache keeps one party directory snapshot in process memory.
// This is suitable for single-instance deployments and testing.
type InMemoryDirectoryCache struct {
	mu        sync.RWMutex
	inner     appsettlement.DirectoryProvider
	ttl       time.Duration
	names     map[string]string
	expiresAt time.Time
	now       func() time.Time
}

// NewInMemoryDirectoryCache wraps inner with an in-memory snapshot
func NewInMemoryDirectoryCache(inner appsettlement.DirectoryProvider, opts ...DirectoryCacheOption) *InMemoryDirectoryCache {
	o := defaultDirectoryCacheOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &InMemoryDirectoryCache{
		inner: inner,
		ttl:   o.ttl,
		now:   time.Now,
	}
}

// PartyNames implements application settlement.DirectoryProvider
func (c *InMemoryDirectoryCache) PartyNames(ctx context.Context) (map[string]string, error) {
	c.mu.RLock()
	if c.names != nil && c.now().Before(c.expiresAt) {
		names := maps.Clone(c.names)
		c.mu.RUnlock()
		return names, nil
	}
	c.mu.RUnlock()

	names, err := c.inner.PartyNames(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.names = maps.Clone(names)
	c.expiresAt = c.now().Add(c.ttl)
	c.mu.Unlock()

	return names, nil
}

// Invalidate drops the cached snapshot
func (c *InMemoryDirectoryCache) Invalidate(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names = nil
	return nil
}

// Close is a no-op; it lets both caches share the factory's return type
func (c *InMemoryDirectoryCache) Close() error {
	return nil
}

var _ appsettlement.DirectoryProvider = (*InMemoryDirectoryCache)(nil)
