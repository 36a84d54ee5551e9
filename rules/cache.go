package rules

import (
	"context"
	"time"
)

// RulesetCache provides an abstraction for caching rulesets by id
// This allows swapping between in-memory, Redis, or other caching implementations
type RulesetCache interface {
	// Get retrieves a cached ruleset, returns false on miss or expiry
	Get(id string) (*Ruleset, bool)

	// Set stores a ruleset in cache
	Set(rs *Ruleset)

	// Version returns a counter for id that every Invalidate or Clear
	// touching id advances
	Version(id string) uint64

	// SetIfVersion stores rs only if its id is still at version.
	// Returns false when an invalidation happened in between.
	SetIfVersion(rs *Ruleset, version uint64) bool

	// Invalidate drops a single ruleset, forcing a refresh on next Get
	Invalidate(id string)

	// Clear drops every cached entry
	Clear()
}

// CacheConfig holds configuration for cache behavior
type CacheConfig struct {
	// TTL is the time-to-live for cached entries
	// Set to 0 for no expiration (manual invalidation only)
	TTL time.Duration
}

// DefaultCacheConfig returns sensible defaults for ruleset caching
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL: 0, // No TTL - only invalidate on mutations
	}
}

// CachedRulesetStore is a read-through cache in front of another RulesetStore.
// Writes go to the backing store and invalidate the cached entry.
type CachedRulesetStore struct {
	store RulesetStore
	cache RulesetCache
}

// NewCachedRulesetStore wraps store with cache
func NewCachedRulesetStore(store RulesetStore, cache RulesetCache) *CachedRulesetStore {
	return &CachedRulesetStore{store: store, cache: cache}
}

// Get serves from cache, falling back to the backing store on a miss.
// A value read while the id was invalidated is returned but not cached.
func (s *CachedRulesetStore) Get(ctx context.Context, id string) (*Ruleset, error) {
	if rs, ok := s.cache.Get(id); ok {
		return rs, nil
	}

	version := s.cache.Version(id)
	rs, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.SetIfVersion(rs, version)
	return rs, nil
}

// Put writes through to the backing store
func (s *CachedRulesetStore) Put(ctx context.Context, rs *Ruleset) error {
	if err := s.store.Put(ctx, rs); err != nil {
		return err
	}
	s.cache.Invalidate(rs.ID)
	return nil
}

// List always reads the backing store
func (s *CachedRulesetStore) List(ctx context.Context) ([]*Ruleset, error) {
	return s.store.List(ctx)
}

// Delete removes from the backing store, then drops the cached entry
func (s *CachedRulesetStore) Delete(ctx context.Context, id string) error {
	err := s.store.Delete(ctx, id)
	s.cache.Invalidate(id)
	return err
}
