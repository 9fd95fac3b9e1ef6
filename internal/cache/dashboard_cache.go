package cache

import (
	"context"
	"sync"
	"time"

	"github.com/aaronlmathis/kuptime/internal/metrics"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// Loader produces the value for a key on a cache miss.
type Loader[V any] func(ctx context.Context) (V, error)

// loadTimeout bounds a shared load once it is detached from its callers.
const loadTimeout = 30 * time.Second

// flight tracks one running load. stale is set when the key is invalidated
// while the load runs, so its result is returned but not stored.
type flight struct {
	stale bool
}

// DashboardCache is a bounded read-through cache with per-entry TTL. It is
// never authoritative: a miss always falls through to the loader, and loader
// errors are returned without being cached.
type DashboardCache[V any] struct {
	name  string
	lru   *expirable.LRU[string, V]
	group singleflight.Group

	mu       sync.Mutex
	inflight map[string]*flight
}

// NewDashboardCache creates a cache holding at most size entries for ttl each.
func NewDashboardCache[V any](name string, size int, ttl time.Duration) *DashboardCache[V] {
	if size <= 0 {
		size = 1024
	}
	return &DashboardCache[V]{
		name:     name,
		lru:      expirable.NewLRU[string, V](size, nil, ttl),
		inflight: make(map[string]*flight),
	}
}

// Get returns the cached value for key.
func (c *DashboardCache[V]) Get(key string) (V, bool) {
	v, ok := c.lru.Get(key)
	if ok {
		metrics.RecordCacheHit(c.name)
	} else {
		metrics.RecordCacheMiss(c.name)
	}
	return v, ok
}

// GetOrLoad returns the cached value or calls load, storing its result on
// success. Concurrent misses for the same key share one load, which runs
// detached from any single caller: a caller whose ctx ends gets ctx.Err()
// while the others still receive the loaded value.
func (c *DashboardCache[V]) GetOrLoad(ctx context.Context, key string, load Loader[V]) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	ch := c.group.DoChan(key, func() (interface{}, error) {
		f := &flight{}
		c.mu.Lock()
		c.inflight[key] = f
		c.mu.Unlock()

		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		v, err := load(loadCtx)

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.inflight[key] == f {
			delete(c.inflight, key)
		}
		if err == nil && !f.stale {
			c.lru.Add(key, v)
		}
		return v, err
	})

	select {
	case res := <-ch:
		v, _ := res.Val.(V)
		return v, res.Err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// Set stores value under key.
func (c *DashboardCache[V]) Set(key string, value V) {
	c.lru.Add(key, value)
}

// Invalidate drops key. A load running for key keeps serving its waiters but
// its result is not stored, and the next miss starts a fresh load.
func (c *DashboardCache[V]) Invalidate(key string) {
	c.mu.Lock()
	if f, ok := c.inflight[key]; ok {
		f.stale = true
	}
	c.lru.Remove(key)
	c.mu.Unlock()
	c.group.Forget(key)
}

// Purge drops every entry.
func (c *DashboardCache[V]) Purge() {
	c.mu.Lock()
	for _, f := range c.inflight {
		f.stale = true
	}
	c.lru.Purge()
	c.mu.Unlock()
}

// Len returns the number of live entries.
func (c *DashboardCache[V]) Len() int {
	return c.lru.Len()
}
