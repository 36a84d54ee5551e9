package rules

import (
	"time"

	"github.com/google/uuid"
)

// Evaluator runs rulesets against payloads. The clock and identifier source
// are injectable so callers can produce deterministic envelopes.
// An Evaluator is immutable after construction and safe for concurrent use.
type Evaluator struct {
	now      func() time.Time
	newID    func() string
	maxDepth int
}

// EvaluatorOption configures an Evaluator
type EvaluatorOption func(*Evaluator)

// WithClock replaces time.Now as the evaluation clock
func WithClock(now func() time.Time) EvaluatorOption {
	return func(e *Evaluator) {
		e.now = now
	}
}

// WithIDGenerator replaces uuid.NewString as the trigger id source
func WithIDGenerator(newID func() string) EvaluatorOption {
	return func(e *Evaluator) {
		e.newID = newID
	}
}

// WithMaxDepth bounds group nesting for every evaluation run by the Evaluator
func WithMaxDepth(depth int) EvaluatorOption {
	return func(e *Evaluator) {
		e.maxDepth = depth
	}
}

// NewEvaluator creates an evaluator backed by the system clock and random UUIDs
func NewEvaluator(opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		now:      time.Now,
		newID:    uuid.NewString,
		maxDepth: DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MaxDepth returns the group nesting bound applied by e
func (e *Evaluator) MaxDepth() int {
	return e.maxDepth
}

var defaultEvaluator = NewEvaluator()

// EvaluateRuleset evaluates rs with the default evaluator
func EvaluateRuleset(rs *Ruleset, payload any, opts Options) (*EvaluationResult, error) {
	return defaultEvaluator.EvaluateWithOptions(rs, payload, opts)
}

// Evaluate evaluates rs using the ruleset's own stopOnFirstFailure setting
func (e *Evaluator) Evaluate(rs *Ruleset, payload any) (*EvaluationResult, error) {
	return e.EvaluateWithOptions(rs, payload, Options{StopOnFirstFailure: rs.StopOnFirstFailure})
}

// EvaluateWithOptions walks every root rule of rs in order and builds the
// result envelope. The only error it returns is a contract violation such as
// ErrMaxDepthExceeded; rule failures are reported in the envelope.
func (e *Evaluator) EvaluateWithOptions(rs *Ruleset, payload any, opts Options) (*EvaluationResult, error) {
	start := e.now()
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = e.maxDepth
	}

	failures := make(map[string]FailureDescriptor)
	passed := true

	var roots Nodes
	if rs != nil {
		roots = sortedNodes(rs.Rules)
	}
	for _, node := range roots {
		res, err := evaluateNode(node, payload, opts, 0)
		if err != nil {
			return nil, err
		}
		if res.Pass {
			continue
		}

		passed = false
		if res.Failure != nil {
			failures[node.NodeID()] = *res.Failure
		}
		for id, f := range res.Failures {
			failures[id] = f
		}
		if opts.StopOnFirstFailure {
			break
		}
	}

	elapsed := e.now().Sub(start)
	if elapsed < 0 {
		elapsed = 0
	}

	result := &EvaluationResult{
		RuleTriggerUUID:    e.newID(),
		Status:             StatusPass,
		ValidationFailures: map[string]FailureDescriptor{},
		EvaluatedAt:        start.UTC().Truncate(time.Millisecond),
		ElapsedMs:          float64(elapsed) / float64(time.Millisecond),
	}
	if !passed {
		result.Status = StatusFail
		result.ValidationFailures = failures
	}
	return result, nil
}
