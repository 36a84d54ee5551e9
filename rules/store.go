package rules

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// RulesetStore manages ruleset persistence and retrieval
type RulesetStore interface {
	// Get a ruleset by ID; returns ErrRulesetNotFound when absent
	Get(ctx context.Context, id string) (*Ruleset, error)

	// Put stores a ruleset under its ID, replacing any previous version
	Put(ctx context.Context, rs *Ruleset) error

	// List all rulesets ordered by creation time
	List(ctx context.Context) ([]*Ruleset, error)

	// Delete a ruleset; returns ErrRulesetNotFound when absent
	Delete(ctx context.Context, id string) error
}

// InMemoryRulesetStore implements RulesetStore using an in-memory map.
// Thread-safe with RWMutex.
type InMemoryRulesetStore struct {
	rulesets map[string]*Ruleset
	mu       sync.RWMutex
}

// NewInMemoryRulesetStore creates a new in-memory ruleset store
func NewInMemoryRulesetStore() *InMemoryRulesetStore {
	return &InMemoryRulesetStore{
		rulesets: make(map[string]*Ruleset),
	}
}

// Put stores rs, stamping CreatedAt when it is unset
func (s *InMemoryRulesetStore) Put(_ context.Context, rs *Ruleset) error {
	if rs == nil || rs.ID == "" {
		return fmt.Errorf("ruleset id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rs.CreatedAt.IsZero() {
		rs.CreatedAt = time.Now().UTC()
	}
	s.rulesets[rs.ID] = rs
	return nil
}

// Get retrieves a ruleset by ID
func (s *InMemoryRulesetStore) Get(_ context.Context, id string) (*Ruleset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rs, exists := s.rulesets[id]
	if !exists {
		return nil, fmt.Errorf("ruleset %s: %w", id, ErrRulesetNotFound)
	}
	return rs, nil
}

// List returns all rulesets, oldest first
func (s *InMemoryRulesetStore) List(_ context.Context) ([]*Ruleset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*Ruleset, 0, len(s.rulesets))
	for _, rs := range s.rulesets {
		list = append(list, rs)
	}
	sortRulesets(list)
	return list, nil
}

// Delete removes a ruleset from the store
func (s *InMemoryRulesetStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rulesets[id]; !exists {
		return fmt.Errorf("ruleset %s: %w", id, ErrRulesetNotFound)
	}

	delete(s.rulesets, id)
	return nil
}

// sortRulesets orders by creation time, then id
func sortRulesets(list []*Ruleset) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
}
