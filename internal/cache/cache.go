package cache

import (
	"sync"
	"time"
)

// Cache is a small in-process TTL map. Expired entries are dropped lazily on read.
type Cache[V any] struct {
	mu  sync.RWMutex
	ttl time.Duration
	m   map[string]entry[V]
	now func() time.Time
}

type entry[V any] struct {
	val V
	exp time.Time
}

func New[V any](ttl time.Duration) *Cache[V] {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}

	return &Cache[V]{
		ttl: ttl,
		m:   make(map[string]entry[V]),
		now: time.Now,
	}
}

func (c *Cache[V]) Get(key string) (V, bool) {
	now := c.now()
	c.mu.RLock()
	e, ok := c.m[key]
	c.mu.RUnlock()
	if !ok {
		var zero V
		return zero, false
	}

	if now.After(e.exp) {
		c.mu.Lock()
		// re-check: a concurrent Set may have refreshed it
		if cur, still := c.m[key]; still && now.After(cur.exp) {
			delete(c.m, key)
		}
		c.mu.Unlock()
		var zero V
		return zero, false
	}

	return e.val, true
}

func (c *Cache[V]) Set(key string, val V) {
	c.mu.Lock()
	c.m[key] = entry[V]{val: val, exp: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.m, key)
	c.mu.Unlock()
}

func (c *Cache[V]) Clear() {
	c.mu.Lock()
	c.m = make(map[string]entry[V])
	c.mu.Unlock()
}

func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}
