package rules

import (
	"errors"
	"fmt"
	"sort"
)

// EvaluateCondition checks a single condition against payload
func EvaluateCondition(c *Condition, payload any) Outcome {
	left, found := ResolvePath(payload, c.Path)
	if !found {
		left = Missing{}
	}

	right := c.Value
	if c.ValueIsPath {
		right = Missing{}
		if path, ok := c.Value.(string); ok {
			if v, ok := ResolvePath(payload, path); ok {
				right = v
			}
		}
	}

	matched, err := Compare(left, right, c.Operator)
	pass := matched && err == nil
	if c.Negate {
		pass = !pass
	}
	if pass {
		return Outcome{Pass: true}
	}

	failure := &FailureDescriptor{
		Expected:     fmt.Sprintf("%s %s", c.Operator, renderText(c.Value)),
		Found:        left,
		FoundMissing: !found,
		Operator:     c.Operator,
	}
	if !found {
		failure.Found = nil
	}
	if err != nil {
		failure.Message = err.Error()
	} else {
		failure.Message = fmt.Sprintf("%s expected %s %s but found %s",
			c.Path, c.Operator, renderText(c.Value), renderText(left))
	}
	return Outcome{Pass: false, Failure: failure}
}

// EvaluateGroup combines the group's children with its AND/OR logic. The
// returned Failures map holds every failing condition anywhere below g.
func EvaluateGroup(g *Group, payload any, opts Options) (Outcome, error) {
	return evaluateGroup(g, payload, opts, 1)
}

func evaluateGroup(g *Group, payload any, opts Options, depth int) (Outcome, error) {
	if depth > opts.maxDepth() {
		return Outcome{}, fmt.Errorf("group %s at depth %d: %w", g.ID, depth, ErrMaxDepthExceeded)
	}

	logic := g.logic()
	overall := logic == LogicAnd
	failures := make(map[string]FailureDescriptor)
	var childrenFailed []string

	for _, child := range sortedNodes(g.Children) {
		res, err := evaluateNode(child, payload, opts, depth)
		if err != nil {
			return Outcome{}, err
		}

		if _, isCondition := child.(*Condition); isCondition && !res.Pass {
			failures[child.NodeID()] = *res.Failure
		}
		for id, f := range res.Failures {
			failures[id] = f
		}
		if !res.Pass {
			childrenFailed = appendUnique(childrenFailed, child.NodeID())
		}

		if logic == LogicAnd {
			overall = overall && res.Pass
			if !overall && opts.StopOnFirstFailure {
				break
			}
		} else {
			overall = overall || res.Pass
			if overall && opts.StopOnFirstFailure {
				break
			}
		}
	}

	if g.Negate {
		overall = !overall
	}

	out := Outcome{Pass: overall, Failures: failures}
	if !overall {
		out.Failure = &FailureDescriptor{
			Message:        fmt.Sprintf("%s group failed", logic),
			ChildrenFailed: childrenFailed,
		}
	}
	return out, nil
}

// evaluateNode dispatches on the node variant
func evaluateNode(n Node, payload any, opts Options, depth int) (Outcome, error) {
	switch v := n.(type) {
	case *Condition:
		return EvaluateCondition(v, payload), nil
	case *Group:
		return evaluateGroup(v, payload, opts, depth+1)
	default:
		return Outcome{}, fmt.Errorf("unsupported node %T", n)
	}
}

// sortedNodes returns nodes ordered by Order, keeping array order for ties
func sortedNodes(nodes Nodes) Nodes {
	sorted := make(Nodes, 0, len(nodes))
	for _, n := range nodes {
		if n != nil {
			sorted = append(sorted, n)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].NodeOrder() < sorted[j].NodeOrder()
	})
	return sorted
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

// IsContractViolation reports whether err is a fatal evaluator error rather
// than an ordinary rule failure
func IsContractViolation(err error) bool {
	return errors.Is(err, ErrMaxDepthExceeded)
}

// GroupDepth returns the deepest group nesting level under nodes, where a root
// group is level 1. The walk stops once limit+1 is reached, so cyclic trees
// built in code still terminate.
func GroupDepth(nodes Nodes, limit int) int {
	return groupDepth(nodes, 0, limit)
}

func groupDepth(nodes Nodes, depth, limit int) int {
	if depth > limit {
		return depth
	}
	deepest := depth
	for _, n := range nodes {
		g, ok := n.(*Group)
		if !ok || g == nil {
			continue
		}
		if d := groupDepth(g.Children, depth+1, limit); d > deepest {
			deepest = d
		}
		if deepest > limit {
			break
		}
	}
	return deepest
}
