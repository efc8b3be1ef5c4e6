// Package ttlcache provides a small bounded last-seen cache used for
// signal deduplication and cooldown windows.
package ttlcache

import (
	"sync"
	"time"
)

// Cache maps a string key to the timestamp it was last seen. Entries older
// than ttl are treated as absent. When the cache grows past capacity the
// oldest entry is evicted; capacity <= 0 disables eviction, leaving pruning
// to the caller.
type Cache struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	entries  map[string]time.Time
	now      func() time.Time
}

func New(ttl time.Duration, capacity int) *Cache {
	return &Cache{
		ttl:      ttl,
		capacity: capacity,
		entries:  make(map[string]time.Time),
		now:      time.Now,
	}
}

// SetClock replaces the time source. Test hook.
func (c *Cache) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// Seen reports whether key was marked within the ttl window, and how long
// ago that was.
func (c *Cache) Seen(key string) (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts, ok := c.entries[key]
	if !ok {
		return 0, false
	}
	elapsed := c.now().Sub(ts)
	if elapsed > c.ttl {
		delete(c.entries, key)
		return 0, false
	}
	return elapsed, true
}

// Mark records key at the current time, evicting the oldest entry when the
// cache is over capacity.
func (c *Cache) Mark(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	c.entries[key] = now
	if c.capacity <= 0 || len(c.entries) <= c.capacity {
		return
	}
	var oldestKey string
	var oldest time.Time
	for k, ts := range c.entries {
		if oldestKey == "" || ts.Before(oldest) {
			oldestKey = k
			oldest = ts
		}
	}
	delete(c.entries, oldestKey)
}

// PruneOlderThan drops every entry last marked before the given age.
func (c *Cache) PruneOlderThan(age time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := c.now().Add(-age)
	for k, ts := range c.entries {
		if ts.Before(cutoff) {
			delete(c.entries, k)
		}
	}
}

// Len returns the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
