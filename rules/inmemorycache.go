package rules

import (
	"sync"
	"time"
)

type cacheEntry struct {
	ruleset  *Ruleset
	cachedAt time.Time
}

// InMemoryRulesetCache is a simple in-memory implementation of RulesetCache
// Thread-safe for concurrent access
type InMemoryRulesetCache struct {
	entries map[string]cacheEntry
	config  CacheConfig
	now     func() time.Time
	mu      sync.RWMutex

	// clock advances on every invalidation; versions holds the clock value
	// of each id's last Invalidate and cleared the value of the last Clear
	clock    uint64
	versions map[string]uint64
	cleared  uint64
}

// NewInMemoryRulesetCache creates a new in-memory ruleset cache
func NewInMemoryRulesetCache(config CacheConfig) *InMemoryRulesetCache {
	return &InMemoryRulesetCache{
		entries:  make(map[string]cacheEntry),
		versions: make(map[string]uint64),
		config:   config,
		now:      time.Now,
	}
}

// Get retrieves a cached ruleset
// Returns false if the entry is absent or expired
func (c *InMemoryRulesetCache) Get(id string) (*Ruleset, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[id]
	if !ok {
		return nil, false
	}

	// Check TTL if configured
	if c.config.TTL > 0 && c.now().Sub(entry.cachedAt) > c.config.TTL {
		return nil, false
	}

	return entry.ruleset, true
}

// Set stores a ruleset in cache
func (c *InMemoryRulesetCache) Set(rs *Ruleset) {
	if rs == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[rs.ID] = cacheEntry{ruleset: rs, cachedAt: c.now()}
}

// Version returns the invalidation version of id
func (c *InMemoryRulesetCache) Version(id string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.version(id)
}

func (c *InMemoryRulesetCache) version(id string) uint64 {
	return max(c.versions[id], c.cleared)
}

// SetIfVersion stores rs unless id was invalidated after version was read
func (c *InMemoryRulesetCache) SetIfVersion(rs *Ruleset, version uint64) bool {
	if rs == nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.version(rs.ID) != version {
		return false
	}
	c.entries[rs.ID] = cacheEntry{ruleset: rs, cachedAt: c.now()}
	return true
}

// Invalidate drops a single entry
func (c *InMemoryRulesetCache) Invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.clock++
	c.versions[id] = c.clock
	delete(c.entries, id)
}

// Clear drops every entry
func (c *InMemoryRulesetCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.clock++
	c.cleared = c.clock
	c.versions = make(map[string]uint64)
	c.entries = make(map[string]cacheEntry)
}

// Len returns the number of entries, expired ones included
func (c *InMemoryRulesetCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}
