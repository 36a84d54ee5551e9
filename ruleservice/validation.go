package ruleservice

import (
	"errors"
	"fmt"

	"github.com/liamcoop/rulesets/rules"
)

// ErrInvalidRuleset is wrapped by every ValidationError
var ErrInvalidRuleset = errors.New("invalid ruleset")

// ValidationError describes why a ruleset was rejected.
// NodeID is empty when the problem is not tied to a single node.
type ValidationError struct {
	NodeID string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidRuleset
}

func invalid(nodeID, format string, args ...any) error {
	return &ValidationError{NodeID: nodeID, Reason: fmt.Sprintf(format, args...)}
}

// ValidateRuleset checks the structural preconditions the evaluator relies
// on: every node has an id unique across the whole tree, groups use AND or
// OR, conditions name a path and a supported operator, and group nesting
// stays within maxDepth (0 means rules.DefaultMaxDepth).
func ValidateRuleset(rs *rules.Ruleset, maxDepth int) error {
	if rs == nil || rs.Rules == nil {
		return invalid("", "rules must be an array")
	}
	if maxDepth <= 0 {
		maxDepth = rules.DefaultMaxDepth
	}

	// Checked first so that validateNodes never walks a cyclic tree
	if depth := rules.GroupDepth(rs.Rules, maxDepth); depth > maxDepth {
		return invalid("", "%s", rules.ErrMaxDepthExceeded.Error())
	}

	seen := make(map[string]struct{})
	return validateNodes(rs.Rules, seen)
}

func validateNodes(nodes rules.Nodes, seen map[string]struct{}) error {
	for _, n := range nodes {
		if n == nil {
			return invalid("", "unknown node type")
		}

		id := n.NodeID()
		if id == "" {
			return invalid("", "node id required")
		}
		if _, dup := seen[id]; dup {
			return invalid(id, "duplicate id %s", id)
		}
		seen[id] = struct{}{}

		switch v := n.(type) {
		case *rules.Group:
			if !v.Logic.IsValid() {
				return invalid(id, "invalid logic")
			}
			if err := validateNodes(v.Children, seen); err != nil {
				return err
			}
		case *rules.Condition:
			if v.Path == "" || v.Operator == "" {
				return invalid(id, "condition missing fields")
			}
			if !v.Operator.IsValid() {
				return invalid(id, "invalid operator")
			}
		default:
			return invalid(id, "unknown node type")
		}
	}
	return nil
}
