// Package cache is a time-boxed in-memory response cache with a hard
// capacity. Lookups lazily evict expired entries; insertion at capacity
// drops the oldest quartile by insertion time, which favours recency
// without the bookkeeping of strict LRU.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"
	"time"
)

type entry struct {
	value      any
	insertedAt time.Time
}

// Cache is a bounded key→value store. It is not observably fallible: a
// miss and an expired entry look the same to the caller.
type Cache struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	entries  map[string]entry
	now      func() time.Time
}

// New creates a Cache holding at most capacity entries, each valid for ttl.
func New(ttl time.Duration, capacity int) *Cache {
	if capacity < 1 {
		capacity = 1
	}
	return &Cache{
		ttl:      ttl,
		capacity: capacity,
		entries:  make(map[string]entry, capacity),
		now:      time.Now,
	}
}

// Key derives a cache key from the request triple that determines the
// response: method, URL, and body.
func Key(method, url string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(url))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the value stored under key, or false if the key is unknown
// or older than the TTL. An expired entry is deleted as a side effect.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.insertedAt) > c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

// Put stores value under key. At capacity, the oldest 25% of entries are
// evicted first so insertion stays amortized O(1) rather than evicting one
// entry on every subsequent Put.
func (c *Cache) Put(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.capacity {
		c.evictOldestQuartileLocked()
	}
	c.entries[key] = entry{value: value, insertedAt: c.now()}
}

// Len returns the current entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictOldestQuartileLocked removes the oldest quarter of entries (at least
// one) by insertion timestamp. Must be called with c.mu held.
func (c *Cache) evictOldestQuartileLocked() {
	type aged struct {
		key        string
		insertedAt time.Time
	}
	all := make([]aged, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, aged{key: k, insertedAt: e.insertedAt})
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].insertedAt.Before(all[j].insertedAt)
	})

	n := len(all) / 4
	if n < 1 {
		n = 1
	}
	for _, a := range all[:n] {
		delete(c.entries, a.key)
	}
}
