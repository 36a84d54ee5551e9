package rules

import "errors"

var (
	// ErrNonNumericComparison indicates an ordering operator received an
	// operand that is not a finite number
	ErrNonNumericComparison = errors.New("non-numeric comparison")

	// ErrUnknownOperator indicates a condition operator outside the supported set
	ErrUnknownOperator = errors.New("unknown operator")

	// ErrMaxDepthExceeded indicates a ruleset tree nested deeper than the
	// configured bound, usually because a group references itself
	ErrMaxDepthExceeded = errors.New("ruleset exceeds maximum depth")

	// ErrRulesetNotFound indicates no ruleset is stored under the requested id
	ErrRulesetNotFound = errors.New("ruleset not found")

	// ErrReadOnlyStore indicates a write against a store that only serves reads
	ErrReadOnlyStore = errors.New("ruleset store is read-only")
)
