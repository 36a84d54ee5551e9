// Package ruleservice orchestrates ruleset lifecycle: validation, id
// minting, persistence, evaluation and result fan-out.
package ruleservice

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/liamcoop/rulesets/internal/logger"
	"github.com/liamcoop/rulesets/rules"
)

// RulesetIDPrefix starts every minted ruleset id
const RulesetIDPrefix = "r_"

const (
	idLength      = 8
	idSpace       = 2821109907456 // 36^8
	mintAttempts  = 5
	slowThreshold = 100 * time.Millisecond
)

// Publisher receives serialized evaluation results keyed by ruleset id
type Publisher interface {
	Publish(rulesetID string, data []byte) bool
}

// Recorder receives evaluation measurements
type Recorder interface {
	RecordEvaluation(status string, elapsed time.Duration, failures int)
	RecordPublish()
}

// Manager ties a RulesetStore to an Evaluator
type Manager struct {
	store     rules.RulesetStore
	evaluator *rules.Evaluator
	publisher Publisher
	recorder  Recorder
	now       func() time.Time
}

// Option configures a Manager
type Option func(*Manager)

// WithPublisher sends every evaluation result to p
func WithPublisher(p Publisher) Option {
	return func(m *Manager) {
		m.publisher = p
	}
}

// WithRecorder reports evaluation measurements to r
func WithRecorder(r Recorder) Option {
	return func(m *Manager) {
		m.recorder = r
	}
}

// NewManager creates a manager; a nil evaluator uses rules.NewEvaluator()
func NewManager(store rules.RulesetStore, evaluator *rules.Evaluator, opts ...Option) *Manager {
	if evaluator == nil {
		evaluator = rules.NewEvaluator()
	}
	m := &Manager{
		store:     store,
		evaluator: evaluator,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Validate runs the validation gate with the evaluator's depth bound
func (m *Manager) Validate(rs *rules.Ruleset) error {
	return ValidateRuleset(rs, m.evaluator.MaxDepth())
}

// Create validates rs, assigns it a fresh id and creation time, and stores it.
// Any id already set on rs is replaced.
func (m *Manager) Create(ctx context.Context, rs *rules.Ruleset) (*rules.Ruleset, error) {
	if err := m.Validate(rs); err != nil {
		return nil, err
	}

	id, err := m.mintID(ctx)
	if err != nil {
		return nil, err
	}
	rs.ID = id
	rs.CreatedAt = m.now().UTC().Truncate(time.Millisecond)

	if err := m.store.Put(ctx, rs); err != nil {
		return nil, fmt.Errorf("failed to save ruleset: %w", err)
	}

	logger.Info("Ruleset created", "ruleset_id", rs.ID, "roots", len(rs.Rules))
	return rs, nil
}

// mintID returns an unused id of the form r_xxxxxxxx
func (m *Manager) mintID(ctx context.Context) (string, error) {
	for i := 0; i < mintAttempts; i++ {
		id := NewRulesetID()
		_, err := m.store.Get(ctx, id)
		if errors.Is(err, rules.ErrRulesetNotFound) {
			return id, nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to check ruleset id: %w", err)
		}
	}
	return "", fmt.Errorf("failed to mint a unique ruleset id after %d attempts", mintAttempts)
}

// NewRulesetID returns "r_" followed by 8 lowercase base-36 characters
// drawn from a random UUID
func NewRulesetID() string {
	u := uuid.New()
	n := binary.BigEndian.Uint64(u[:8]) % idSpace
	s := strconv.FormatUint(n, 36)
	return RulesetIDPrefix + strings.Repeat("0", idLength-len(s)) + s
}

// Get retrieves a ruleset by id
func (m *Manager) Get(ctx context.Context, id string) (*rules.Ruleset, error) {
	return m.store.Get(ctx, id)
}

// List returns every stored ruleset
func (m *Manager) List(ctx context.Context) ([]*rules.Ruleset, error) {
	return m.store.List(ctx)
}

// Delete removes a ruleset
func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	logger.Info("Ruleset deleted", "ruleset_id", id)
	return nil
}

// Evaluate runs the stored ruleset id against payload using the ruleset's
// stopOnFirstFailure setting, then publishes the result to subscribers.
// Publishing is best effort and never fails the evaluation.
func (m *Manager) Evaluate(ctx context.Context, id string, payload any) (*rules.EvaluationResult, error) {
	rs, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.EvaluateRuleset(ctx, rs, payload)
}

// EvaluateRuleset is Evaluate for a ruleset the caller already loaded.
// The result is published under rs.ID.
func (m *Manager) EvaluateRuleset(_ context.Context, rs *rules.Ruleset, payload any) (*rules.EvaluationResult, error) {
	id := rs.ID

	start := time.Now()
	result, err := m.evaluator.Evaluate(rs, payload)
	elapsed := time.Since(start)
	if err != nil {
		logger.Error("Ruleset evaluation aborted", "ruleset_id", id, "error", err)
		return nil, fmt.Errorf("evaluate ruleset %s: %w", id, err)
	}

	logger.CountEvaluation(result.Passed())
	if elapsed > slowThreshold {
		logger.WarnSlowEvaluation()
		logger.Warn("Slow ruleset evaluation", "ruleset_id", id, "elapsed_ms", elapsed.Milliseconds())
	}
	if m.recorder != nil {
		m.recorder.RecordEvaluation(string(result.Status), elapsed, len(result.ValidationFailures))
	}
	logger.Debug("Ruleset evaluated",
		"ruleset_id", id,
		"trigger_id", result.RuleTriggerUUID,
		"status", result.Status,
		"failures", len(result.ValidationFailures),
	)

	m.publish(id, result)
	return result, nil
}

func (m *Manager) publish(id string, result *rules.EvaluationResult) {
	if m.publisher == nil {
		return
	}

	data, err := json.Marshal(result)
	if err != nil {
		logger.Error("Failed to encode evaluation result", "ruleset_id", id, "error", err)
		return
	}
	if !m.publisher.Publish(id, data) {
		logger.Warn("Broadcast queue full, result dropped", "ruleset_id", id)
		return
	}
	if m.recorder != nil {
		m.recorder.RecordPublish()
	}
}
