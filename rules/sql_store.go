package rules

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/liamcoop/rulesets/internal/db"
)

// rulesetRow mirrors the rulesets table
type rulesetRow struct {
	ID                 string    `db:"id"`
	Name               string    `db:"name"`
	StopOnFirstFailure bool      `db:"stop_on_first_failure"`
	Document           []byte    `db:"document"`
	CreatedAt          time.Time `db:"created_at"`
}

// SQLRulesetStore implements RulesetStore on PostgreSQL or SQLite.
// The rule tree is stored as a JSON document; metadata lives in columns.
type SQLRulesetStore struct {
	queries *db.Queries
}

// NewSQLRulesetStore creates a SQL-backed RulesetStore
func NewSQLRulesetStore(queries *db.Queries) *SQLRulesetStore {
	return &SQLRulesetStore{queries: queries}
}

// Put inserts or replaces a ruleset
func (s *SQLRulesetStore) Put(ctx context.Context, rs *Ruleset) error {
	if rs == nil || rs.ID == "" {
		return fmt.Errorf("ruleset id is required")
	}

	doc, err := json.Marshal(rs.Rules)
	if err != nil {
		return fmt.Errorf("failed to encode ruleset %s: %w", rs.ID, err)
	}

	now := time.Now().UTC()
	if rs.CreatedAt.IsZero() {
		rs.CreatedAt = now
	}

	_, err = s.queries.Exec(ctx, "upsert-ruleset",
		rs.ID, rs.Name, rs.StopOnFirstFailure, string(doc), rs.CreatedAt, now)
	if err != nil {
		return fmt.Errorf("failed to store ruleset: %w", err)
	}
	return nil
}

// Get retrieves a ruleset by ID
func (s *SQLRulesetStore) Get(ctx context.Context, id string) (*Ruleset, error) {
	var row rulesetRow
	err := s.queries.Get(ctx, "get-ruleset", &row, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ruleset %s: %w", id, ErrRulesetNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ruleset: %w", err)
	}
	return row.toRuleset()
}

// List returns all rulesets, oldest first
func (s *SQLRulesetStore) List(ctx context.Context) ([]*Ruleset, error) {
	var rows []rulesetRow
	if err := s.queries.Select(ctx, "list-rulesets", &rows); err != nil {
		return nil, fmt.Errorf("failed to list rulesets: %w", err)
	}

	list := make([]*Ruleset, 0, len(rows))
	for _, row := range rows {
		rs, err := row.toRuleset()
		if err != nil {
			return nil, err
		}
		list = append(list, rs)
	}
	return list, nil
}

// Delete removes a ruleset from the database
func (s *SQLRulesetStore) Delete(ctx context.Context, id string) error {
	result, err := s.queries.Exec(ctx, "delete-ruleset", id)
	if err != nil {
		return fmt.Errorf("failed to delete ruleset: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("ruleset %s: %w", id, ErrRulesetNotFound)
	}
	return nil
}

func (r rulesetRow) toRuleset() (*Ruleset, error) {
	var nodes Nodes
	if err := json.Unmarshal(r.Document, &nodes); err != nil {
		return nil, fmt.Errorf("failed to decode ruleset %s: %w", r.ID, err)
	}
	return &Ruleset{
		ID:                 r.ID,
		Name:               r.Name,
		Rules:              nodes,
		StopOnFirstFailure: r.StopOnFirstFailure,
		CreatedAt:          r.CreatedAt.UTC(),
	}, nil
}
