package inventory

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// CacheKey identifies one cached collection result. Scope is either a single
// region name or ScopeAll.
type CacheKey struct {
	AccountID uuid.UUID
	Kind      Kind
	Scope     string
}

type cacheEntry struct {
	records    []Resource
	capturedAt time.Time
}

// Cache is a TTL-bounded in-memory store for collection results. Expiry is
// lazy: entries are checked against the TTL on every Get rather than evicted
// in the background. Concurrent Put calls on the same key race last-write-wins,
// which is acceptable since there is no read-modify-write pattern.
type Cache struct {
	mu      sync.RWMutex
	entries map[CacheKey]cacheEntry
	ttl     time.Duration

	// Injected clock, overridable in tests.
	now func() time.Time
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[CacheKey]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached records and their age if the entry exists and is
// younger than the TTL. An entry at or past the TTL is treated as a miss and
// removed.
func (c *Cache) Get(key CacheKey) ([]Resource, time.Duration, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, 0, false
	}

	age := c.now().Sub(entry.capturedAt)
	if age >= c.ttl {
		c.mu.Lock()
		// Re-check under the write lock in case a fresh Put landed.
		if current, ok := c.entries[key]; ok && current.capturedAt.Equal(entry.capturedAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, 0, false
	}

	return entry.records, age, true
}

// Put stores records under key with the current time as capture timestamp.
func (c *Cache) Put(key CacheKey, records []Resource) {
	c.mu.Lock()
	c.entries[key] = cacheEntry{records: records, capturedAt: c.now()}
	c.mu.Unlock()
}

// Invalidate removes a single entry.
func (c *Cache) Invalidate(key CacheKey) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// InvalidateAccount removes every entry belonging to the account, used when
// the account's credentials or status change.
func (c *Cache) InvalidateAccount(accountID uuid.UUID) {
	c.mu.Lock()
	for key := range c.entries {
		if key.AccountID == accountID {
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()
}

// Clear drops all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[CacheKey]cacheEntry)
	c.mu.Unlock()
}

// Len reports the number of live entries, without TTL filtering.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
