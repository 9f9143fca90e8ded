// Package rendercache memoizes resolved document content so repeated embed
// requests do not re-run the render pipeline. Entries live for a fixed TTL
// and are dropped eagerly when the underlying document is saved.
package rendercache

import (
	"context"
	"sync"
	"time"
)

const DefaultTTL = time.Hour

// ResolveFunc computes the content for a document id on a cache miss.
// Empty content with nil error means "not available" and is never cached,
// so a document published later becomes visible immediately.
type ResolveFunc func(ctx context.Context, id int64) (string, error)

type entry struct {
	content  string
	storedAt time.Time
}

type Cache struct {
	resolve ResolveFunc
	ttl     time.Duration
	now     func() time.Time

	mu      sync.RWMutex
	entries map[int64]entry

	// optional observation hooks (metrics)
	onHit        func()
	onMiss       func()
	onInvalidate func()
	onSize       func(n int)
}

type Option func(*Cache)

// WithTTL overrides the default one hour entry lifetime.
func WithTTL(d time.Duration) Option {
	return func(c *Cache) { c.ttl = d }
}

// WithClock injects a time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithHooks registers counters for hits, misses, and invalidations.
// Any of the three may be nil.
func WithHooks(onHit, onMiss, onInvalidate func()) Option {
	return func(c *Cache) {
		c.onHit = onHit
		c.onMiss = onMiss
		c.onInvalidate = onInvalidate
	}
}

// WithSizeHook registers an observer called with the entry count after
// every store and every invalidation. May be nil.
func WithSizeHook(fn func(n int)) Option {
	return func(c *Cache) { c.onSize = fn }
}

func New(resolve ResolveFunc, opts ...Option) *Cache {
	c := &Cache{
		resolve: resolve,
		ttl:     DefaultTTL,
		now:     time.Now,
		entries: make(map[int64]entry),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// GetOrCompute returns the cached content for id, resolving and storing it
// on a miss. An entry at or past its TTL is treated as absent. Concurrent
// misses for the same id may resolve twice; resolution is pure, so the
// duplicate work is waste, not a bug.
func (c *Cache) GetOrCompute(ctx context.Context, id int64) (string, error) {
	now := c.now()

	c.mu.RLock()
	e, ok := c.entries[id]
	c.mu.RUnlock()

	if ok && now.Sub(e.storedAt) < c.ttl {
		if c.onHit != nil {
			c.onHit()
		}
		return e.content, nil
	}

	if c.onMiss != nil {
		c.onMiss()
	}
	content, err := c.resolve(ctx, id)
	if err != nil {
		return "", err
	}
	if content == "" {
		// never cache the negative result
		return "", nil
	}

	c.mu.Lock()
	c.entries[id] = entry{content: content, storedAt: c.now()}
	n := len(c.entries)
	c.mu.Unlock()
	if c.onSize != nil {
		c.onSize(n)
	}
	return content, nil
}

// Invalidate drops any entry for id, regardless of age.
func (c *Cache) Invalidate(id int64) {
	c.mu.Lock()
	_, had := c.entries[id]
	delete(c.entries, id)
	n := len(c.entries)
	c.mu.Unlock()

	if had && c.onInvalidate != nil {
		c.onInvalidate()
	}
	if had && c.onSize != nil {
		c.onSize(n)
	}
}

// Len reports the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
