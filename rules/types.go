package rules

import (
	"encoding/json"
	"time"
)

// Operator is a relational or equality operator applied by a Condition
type Operator string

const (
	OpGreater        Operator = ">"
	OpGreaterOrEqual Operator = ">="
	OpLess           Operator = "<"
	OpLessOrEqual    Operator = "<="
	OpEqual          Operator = "=="
	OpNotEqual       Operator = "!="
)

// IsValid reports whether op is one of the six supported operators
func (op Operator) IsValid() bool {
	switch op {
	case OpGreater, OpGreaterOrEqual, OpLess, OpLessOrEqual, OpEqual, OpNotEqual:
		return true
	default:
		return false
	}
}

// isOrdering reports whether op requires numeric operands
func (op Operator) isOrdering() bool {
	switch op {
	case OpGreater, OpGreaterOrEqual, OpLess, OpLessOrEqual:
		return true
	default:
		return false
	}
}

// Logic is the combinator applied by a Group
type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
)

// IsValid reports whether l is AND or OR
func (l Logic) IsValid() bool {
	return l == LogicAnd || l == LogicOr
}

// Status is the verdict of a ruleset evaluation
type Status string

const (
	StatusPass Status = "PASS"
	StatusFail Status = "FAIL"
)

// Node type discriminators used in the JSON and YAML forms
const (
	TypeCondition = "condition"
	TypeGroup     = "group"
)

// Node is an element of a ruleset tree: either a *Condition or a *Group
type Node interface {
	NodeID() string
	NodeOrder() int
	nodeType() string
}

// Condition is a leaf rule comparing a payload field against a value
type Condition struct {
	ID          string   `json:"id" yaml:"id"`
	Order       int      `json:"order,omitempty" yaml:"order,omitempty"`
	Path        string   `json:"path" yaml:"path"`
	Operator    Operator `json:"operator" yaml:"operator"`
	Value       any      `json:"value" yaml:"value"`
	ValueIsPath bool     `json:"valueIsPath,omitempty" yaml:"valueIsPath,omitempty"`
	Negate      bool     `json:"negate,omitempty" yaml:"negate,omitempty"`
}

func (c *Condition) NodeID() string   { return c.ID }
func (c *Condition) NodeOrder() int   { return c.Order }
func (c *Condition) nodeType() string { return TypeCondition }

// Group combines child nodes with AND/OR logic
type Group struct {
	ID       string `json:"id" yaml:"id"`
	Order    int    `json:"order,omitempty" yaml:"order,omitempty"`
	Logic    Logic  `json:"logic" yaml:"logic"`
	Children Nodes  `json:"children" yaml:"children"`
	Negate   bool   `json:"negate,omitempty" yaml:"negate,omitempty"`
}

func (g *Group) NodeID() string   { return g.ID }
func (g *Group) NodeOrder() int   { return g.Order }
func (g *Group) nodeType() string { return TypeGroup }

// logic returns the group's combinator, treating an unset value as AND
func (g *Group) logic() Logic {
	if g.Logic == "" {
		return LogicAnd
	}
	return g.Logic
}

// Ruleset is the top-level container of root nodes plus evaluation options
type Ruleset struct {
	ID                 string    `json:"id,omitempty" yaml:"id,omitempty"`
	Name               string    `json:"name,omitempty" yaml:"name,omitempty"`
	Rules              Nodes     `json:"rules" yaml:"rules"`
	StopOnFirstFailure bool      `json:"stopOnFirstFailure,omitempty" yaml:"stopOnFirstFailure,omitempty"`
	CreatedAt          time.Time `json:"createdAt,omitzero" yaml:"createdAt,omitempty"`
}

// FailureDescriptor explains why a condition or group did not hold.
// Condition failures fill Expected, Found and Operator; group failures fill
// ChildrenFailed.
type FailureDescriptor struct {
	Message        string
	Expected       string
	Found          any
	FoundMissing   bool
	Operator       Operator
	ChildrenFailed []string
}

type failureJSON struct {
	Message        string   `json:"message"`
	Expected       string   `json:"expected,omitempty"`
	Found          *any     `json:"found,omitempty"`
	Operator       Operator `json:"operator,omitempty"`
	ChildrenFailed []string `json:"childrenFailed,omitempty"`
}

// MarshalJSON omits "found" when the left operand was missing and keeps it
// (possibly as null) otherwise.
func (f FailureDescriptor) MarshalJSON() ([]byte, error) {
	out := failureJSON{
		Message:        f.Message,
		Expected:       f.Expected,
		Operator:       f.Operator,
		ChildrenFailed: f.ChildrenFailed,
	}
	if f.Operator != "" && !f.FoundMissing {
		found := f.Found
		out.Found = &found
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON
func (f *FailureDescriptor) UnmarshalJSON(data []byte) error {
	var raw struct {
		failureJSON
		Found json.RawMessage `json:"found"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*f = FailureDescriptor{
		Message:        raw.Message,
		Expected:       raw.Expected,
		Operator:       raw.Operator,
		ChildrenFailed: raw.ChildrenFailed,
	}
	if raw.Found == nil {
		f.FoundMissing = raw.Operator != ""
		return nil
	}
	return json.Unmarshal(raw.Found, &f.Found)
}

// EvaluationResult is the envelope produced by one ruleset evaluation
type EvaluationResult struct {
	RuleTriggerUUID    string                       `json:"ruleTriggerUuid"`
	Status             Status                       `json:"status"`
	ValidationFailures map[string]FailureDescriptor `json:"validationFailures"`
	EvaluatedAt        time.Time                    `json:"evaluatedAt"`
	ElapsedMs          float64                      `json:"elapsedMs"`
}

// Passed reports whether the evaluation produced a PASS verdict
func (r *EvaluationResult) Passed() bool {
	return r.Status == StatusPass
}

// Options are request-scoped evaluation policies
type Options struct {
	// StopOnFirstFailure stops evaluating siblings once the outcome of a
	// group or of the ruleset is decided
	StopOnFirstFailure bool

	// MaxDepth bounds group nesting; 0 means DefaultMaxDepth
	MaxDepth int
}

// DefaultMaxDepth is the group nesting bound applied when Options.MaxDepth is 0
const DefaultMaxDepth = 64

func (o Options) maxDepth() int {
	if o.MaxDepth <= 0 {
		return DefaultMaxDepth
	}
	return o.MaxDepth
}

// Outcome is the result of evaluating a single node
type Outcome struct {
	Pass    bool
	Failure *FailureDescriptor

	// Failures holds every failing condition below a group, keyed by node id
	Failures map[string]FailureDescriptor
}
