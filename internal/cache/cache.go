// Package cache provides a small versioned TTL cache used to keep per-station
// views warm between event deliveries. Stale entries expire on read; when the
// cache is full the oldest write is evicted.
package cache

import (
	"sync"
	"time"

	"github.com/antonio12761/roxy-bar-sub000/internal/models"
)

type entry[T any] struct {
	value     T
	version   int64
	writtenAt time.Time
}

// Cache is a bounded key/value cache with per-cache TTL and monotonic
// versions. An update carrying an older version than the stored entry is
// ignored, so out-of-order deliveries cannot roll a view backwards.
type Cache[T any] struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	entries  map[string]*entry[T]
	now      func() time.Time
}

// New creates a cache holding at most capacity entries, each valid for ttl.
func New[T any](ttl time.Duration, capacity int) *Cache[T] {
	return &Cache[T]{
		ttl:      ttl,
		capacity: capacity,
		entries:  make(map[string]*entry[T]),
		now:      time.Now,
	}
}

// Get returns the cached value and whether it was present and fresh.
// Expired entries are removed on the spot.
func (c *Cache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero T
		return zero, false
	}
	if c.now().Sub(e.writtenAt) > c.ttl {
		delete(c.entries, key)
		var zero T
		return zero, false
	}
	return e.value, true
}

// Set stores the value unconditionally with the given version.
func (c *Cache[T]) Set(key string, value T, version int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(key, value, version)
}

// UpdateIfNewer stores the value only when its version is strictly newer
// than the stored one. It reports whether the entry was written.
func (c *Cache[T]) UpdateIfNewer(key string, value T, version int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok && version <= e.version {
		return false
	}
	c.put(key, value, version)
	return true
}

// MergeUpdate applies merge to the current value (the zero value when the
// key is absent or expired) and stores the result, version permitting.
func (c *Cache[T]) MergeUpdate(key string, version int64, merge func(current T, present bool) T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	var current T
	present := false
	if e, ok := c.entries[key]; ok {
		if version <= e.version {
			return false
		}
		if c.now().Sub(e.writtenAt) <= c.ttl {
			current, present = e.value, true
		}
	}
	c.put(key, merge(current, present), version)
	return true
}

// Invalidate drops the key.
func (c *Cache[T]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// put stores the entry, evicting the oldest write when full.
// Called with the lock held.
func (c *Cache[T]) put(key string, value T, version int64) {
	if _, ok := c.entries[key]; !ok && c.capacity > 0 && len(c.entries) >= c.capacity {
		var oldestKey string
		var oldestAt time.Time
		for k, e := range c.entries {
			if oldestKey == "" || e.writtenAt.Before(oldestAt) {
				oldestKey, oldestAt = k, e.writtenAt
			}
		}
		delete(c.entries, oldestKey)
	}
	c.entries[key] = &entry[T]{value: value, version: version, writtenAt: c.now()}
}

// TTLForRole returns the view freshness window appropriate for a role.
// Prep stations need tight views of moving work; cashier and supervisory
// screens tolerate longer staleness.
func TTLForRole(role models.Role) time.Duration {
	switch role {
	case models.RoleBartender, models.RoleKitchen, models.RoleCounter:
		return 30 * time.Second
	case models.RoleCashier:
		return 2 * time.Minute
	default:
		return 5 * time.Minute
	}
}
