package rules

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const adultsYAML = `name: adults
rules:
  - id: c1
    type: condition
    path: user.age
    operator: ">="
    value: 18
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoadRulesetFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("yaml id from file name", func(t *testing.T) {
		rs, err := LoadRulesetFile(writeFile(t, dir, "adults.yaml", adultsYAML))
		if err != nil {
			t.Fatalf("LoadRulesetFile() failed: %v", err)
		}
		if rs.ID != "adults" || rs.Name != "adults" || len(rs.Rules) != 1 {
			t.Errorf("unexpected ruleset: %+v", rs)
		}
	})

	t.Run("json keeps explicit id", func(t *testing.T) {
		rs, err := LoadRulesetFile(writeFile(t, dir, "tiers.json",
			`{"id":"r_tiers","rules":[{"id":"c1","type":"condition","path":"tier","operator":"==","value":"gold"}]}`))
		if err != nil {
			t.Fatalf("LoadRulesetFile() failed: %v", err)
		}
		if rs.ID != "r_tiers" {
			t.Errorf("ID = %q, want r_tiers", rs.ID)
		}
	})

	t.Run("invalid document", func(t *testing.T) {
		if _, err := LoadRulesetFile(writeFile(t, dir, "broken.json", `{"rules": 5}`)); err == nil {
			t.Error("Expected error, got nil")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadRulesetFile(filepath.Join(dir, "absent.yaml")); err == nil {
			t.Error("Expected error, got nil")
		}
	})
}

func TestIsRulesetFile(t *testing.T) {
	tests := map[string]bool{
		"a.yaml":       true,
		"a.YML":        true,
		"dir/a.json":   true,
		"a.txt":        false,
		"a.yaml.swp":   false,
		"no-extension": false,
	}
	for path, want := range tests {
		if got := IsRulesetFile(path); got != want {
			t.Errorf("IsRulesetFile(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestDirRulesetStore(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "adults.yaml", adultsYAML)
	writeFile(t, dir, "notes.txt", "ignored")
	if err := os.Mkdir(filepath.Join(dir, "nested.yaml"), 0o755); err != nil {
		t.Fatal(err)
	}

	store, err := NewDirRulesetStore(dir)
	if err != nil {
		t.Fatalf("NewDirRulesetStore() failed: %v", err)
	}
	ctx := context.Background()

	rs, err := store.Get(ctx, "adults")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if rs.CreatedAt.IsZero() {
		t.Error("CreatedAt should default to the file modification time")
	}

	list, err := store.List(ctx)
	if err != nil || len(list) != 1 {
		t.Errorf("List() = %v, %v; want one ruleset", rulesetIDs(list), err)
	}

	if err := store.Put(ctx, &Ruleset{ID: "x"}); !errors.Is(err, ErrReadOnlyStore) {
		t.Errorf("Put() error = %v, want ErrReadOnlyStore", err)
	}
	if err := store.Delete(ctx, "adults"); !errors.Is(err, ErrReadOnlyStore) {
		t.Errorf("Delete() error = %v, want ErrReadOnlyStore", err)
	}
	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrRulesetNotFound) {
		t.Errorf("Get() error = %v, want ErrRulesetNotFound", err)
	}
}

func TestDirRulesetStore_ReloadKeepsPreviousOnError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "adults.yaml", adultsYAML)

	store, err := NewDirRulesetStore(dir)
	if err != nil {
		t.Fatalf("NewDirRulesetStore() failed: %v", err)
	}

	writeFile(t, dir, "dup.json", `{"id":"adults","rules":[]}`)
	if err := store.Reload(); err == nil {
		t.Fatal("Expected duplicate id error, got nil")
	}
	if _, err := store.Get(context.Background(), "adults"); err != nil {
		t.Errorf("previous set should survive a failed reload: %v", err)
	}
}

// rejectLeaf refuses rulesets with a root condition that has no path
func rejectLeaf(rs *Ruleset) error {
	for _, node := range rs.Rules {
		if c, ok := node.(*Condition); ok && c.Path == "" {
			return errors.New("condition without path")
		}
	}
	return nil
}

const pathlessJSON = `{"rules":[{"id":"c1","type":"condition","operator":"==","value":1}]}`

func TestNewDirRulesetStore_Validator(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "adults.yaml", adultsYAML)

	if _, err := NewDirRulesetStore(dir, WithValidator(rejectLeaf)); err != nil {
		t.Fatalf("NewDirRulesetStore() failed: %v", err)
	}

	writeFile(t, dir, "pathless.json", pathlessJSON)
	if _, err := NewDirRulesetStore(dir, WithValidator(rejectLeaf)); err == nil {
		t.Error("Expected rejected file to fail the load, got nil")
	}
	if _, err := NewDirRulesetStore(dir); err != nil {
		t.Errorf("without a validator the file should load: %v", err)
	}
}

func TestDirRulesetStore_ReloadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "adults.yaml", adultsYAML)

	store, err := NewDirRulesetStore(dir, WithValidator(rejectLeaf))
	if err != nil {
		t.Fatalf("NewDirRulesetStore() failed: %v", err)
	}

	writeFile(t, dir, "pathless.json", pathlessJSON)
	err = store.Reload()
	if err == nil {
		t.Fatal("Expected validation error, got nil")
	}
	if !strings.Contains(err.Error(), "pathless.json") {
		t.Errorf("error %q should name the rejected file", err)
	}

	ctx := context.Background()
	if _, err := store.Get(ctx, "adults"); err != nil {
		t.Errorf("previous set should survive a rejected reload: %v", err)
	}
	if _, err := store.Get(ctx, "pathless"); !errors.Is(err, ErrRulesetNotFound) {
		t.Errorf("Get() error = %v, rejected ruleset must not be served", err)
	}
}

func TestNewDirRulesetStore_MissingDir(t *testing.T) {
	if _, err := NewDirRulesetStore(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Error("Expected error for a missing directory, got nil")
	}
}

func TestDirRulesetStore_Watch(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "adults.yaml", adultsYAML)

	store, err := NewDirRulesetStore(dir)
	if err != nil {
		t.Fatalf("NewDirRulesetStore() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	reloaded := make(chan struct{}, 4)
	done := make(chan error, 1)
	go func() {
		done <- store.Watch(ctx, func() {
			select {
			case reloaded <- struct{}{}:
			default:
			}
		})
	}()

	// give the watcher time to register the directory
	time.Sleep(100 * time.Millisecond)
	writeFile(t, dir, "tiers.json", `{"rules":[{"id":"c1","type":"condition","path":"tier","operator":"==","value":"gold"}]}`)

	select {
	case <-reloaded:
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for reload")
	}

	if _, err := store.Get(context.Background(), "tiers"); err != nil {
		t.Errorf("new file not picked up: %v", err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch() returned %v, want nil on cancel", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("Watch() did not stop after cancel")
	}
}
