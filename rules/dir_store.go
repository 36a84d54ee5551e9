package rules

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/liamcoop/rulesets/internal/logger"
)

// reloadDebounce coalesces bursts of file events into one reload
const reloadDebounce = 100 * time.Millisecond

// DirRulesetStore is a read-only RulesetStore over a directory of ruleset
// files. Put and Delete return ErrReadOnlyStore.
type DirRulesetStore struct {
	dir      string
	validate func(*Ruleset) error
	rulesets map[string]*Ruleset
	mu       sync.RWMutex
}

// DirStoreOption configures a DirRulesetStore
type DirStoreOption func(*DirRulesetStore)

// WithValidator checks every loaded ruleset; a rejected file fails the load
func WithValidator(validate func(*Ruleset) error) DirStoreOption {
	return func(s *DirRulesetStore) {
		s.validate = validate
	}
}

// NewDirRulesetStore loads every ruleset file in dir
func NewDirRulesetStore(dir string, opts ...DirStoreOption) (*DirRulesetStore, error) {
	s := &DirRulesetStore{dir: dir}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the directory, replacing the loaded set atomically.
// Any unreadable or rejected file fails the whole reload and keeps the
// previous set.
func (s *DirRulesetStore) Reload() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to read ruleset directory: %w", err)
	}

	loaded := make(map[string]*Ruleset)
	for _, entry := range entries {
		if entry.IsDir() || !IsRulesetFile(entry.Name()) {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		rs, err := LoadRulesetFile(path)
		if err != nil {
			return err
		}
		if s.validate != nil {
			if err := s.validate(rs); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
		}
		if _, dup := loaded[rs.ID]; dup {
			return fmt.Errorf("%s: duplicate ruleset id %s", path, rs.ID)
		}
		if rs.CreatedAt.IsZero() {
			if info, err := entry.Info(); err == nil {
				rs.CreatedAt = info.ModTime().UTC()
			}
		}
		loaded[rs.ID] = rs
	}

	s.mu.Lock()
	s.rulesets = loaded
	s.mu.Unlock()

	logger.Debug("Rulesets loaded", "dir", s.dir, "count", len(loaded))
	return nil
}

// Get retrieves a ruleset by ID
func (s *DirRulesetStore) Get(_ context.Context, id string) (*Ruleset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rs, ok := s.rulesets[id]
	if !ok {
		return nil, fmt.Errorf("ruleset %s: %w", id, ErrRulesetNotFound)
	}
	return rs, nil
}

// List returns all loaded rulesets, oldest first
func (s *DirRulesetStore) List(_ context.Context) ([]*Ruleset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*Ruleset, 0, len(s.rulesets))
	for _, rs := range s.rulesets {
		list = append(list, rs)
	}
	sortRulesets(list)
	return list, nil
}

// Put is not supported
func (s *DirRulesetStore) Put(_ context.Context, _ *Ruleset) error {
	return ErrReadOnlyStore
}

// Delete is not supported
func (s *DirRulesetStore) Delete(_ context.Context, _ string) error {
	return ErrReadOnlyStore
}

// Watch reloads the store whenever a ruleset file in the directory changes.
// onReload, if non-nil, runs after each successful reload (e.g. to clear a
// cache). Blocks until ctx is cancelled.
func (s *DirRulesetStore) Watch(ctx context.Context, onReload func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(s.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", s.dir, err)
	}

	logger.Info("Ruleset directory watcher started", "dir", s.dir)

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !IsRulesetFile(event.Name) || event.Op == fsnotify.Chmod {
				continue
			}
			logger.Debug("Ruleset file event", "path", event.Name, "op", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			if err := s.Reload(); err != nil {
				logger.Error("Ruleset reload failed", "error", err)
				continue
			}
			if onReload != nil {
				onReload()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			logger.Error("Ruleset watcher error", "error", err)
		}
	}
}
