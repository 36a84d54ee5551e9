package rules

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/liamcoop/rulesets/internal/db"
)

// newSqliteStore returns a SQLRulesetStore on a migrated temporary database
func newSqliteStore(t *testing.T) *SQLRulesetStore {
	t.Helper()

	database, err := db.Open("sqlite://" + filepath.Join(t.TempDir(), "rulesets.db"))
	if err != nil {
		t.Fatalf("db.Open() failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := db.Migrate(database); err != nil {
		t.Fatalf("db.Migrate() failed: %v", err)
	}
	queries, err := db.LoadQueries(database)
	if err != nil {
		t.Fatalf("db.LoadQueries() failed: %v", err)
	}
	return NewSQLRulesetStore(queries)
}

func TestSQLRulesetStore_Sqlite(t *testing.T) {
	runStoreContract(t, newSqliteStore(t))
}

func TestSQLRulesetStore_EvaluatesStoredTree(t *testing.T) {
	store := newSqliteStore(t)
	ctx := context.Background()

	rs := &Ruleset{ID: "r_tree", Rules: Nodes{
		group("g1", LogicAnd,
			cond("c1", "age", OpGreaterOrEqual, 18),
			group("g2", LogicOr, cond("c2", "tier", OpEqual, "gold"), cond("c3", "tier", OpEqual, "platinum")),
		),
	}}
	if err := store.Put(ctx, rs); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	got, err := store.Get(ctx, "r_tree")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}

	result, err := EvaluateRuleset(got, map[string]any{"age": 20.0, "tier": "platinum"}, Options{})
	if err != nil {
		t.Fatalf("EvaluateRuleset() failed: %v", err)
	}
	if !result.Passed() {
		t.Errorf("Expected PASS, got %v", failureKeys(result.ValidationFailures))
	}
}

func TestSQLRulesetStore_PreservesCreatedAtOnReplace(t *testing.T) {
	store := newSqliteStore(t)
	ctx := context.Background()

	original := &Ruleset{ID: "r_keep"}
	if err := store.Put(ctx, original); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	if err := store.Put(ctx, &Ruleset{ID: "r_keep", Name: "again"}); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	got, err := store.Get(ctx, "r_keep")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if !got.CreatedAt.Equal(original.CreatedAt) {
		t.Errorf("CreatedAt = %v, want original %v", got.CreatedAt, original.CreatedAt)
	}
	if got.Name != "again" {
		t.Errorf("Name = %q, want again", got.Name)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	database, err := db.Open("sqlite://" + filepath.Join(t.TempDir(), "twice.db"))
	if err != nil {
		t.Fatalf("db.Open() failed: %v", err)
	}
	defer database.Close()

	for i := 0; i < 2; i++ {
		if err := db.Migrate(database); err != nil {
			t.Fatalf("Migrate() run %d failed: %v", i+1, err)
		}
	}
}
