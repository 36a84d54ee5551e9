package rules

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var orderingOps = []Operator{OpGreater, OpGreaterOrEqual, OpLess, OpLessOrEqual}

// thresholdRuleset builds one root group of "x >= threshold" conditions
func thresholdRuleset(logic Logic, thresholds []int) *Ruleset {
	children := make(Nodes, len(thresholds))
	for i, th := range thresholds {
		children[i] = cond(fmt.Sprintf("c%d", i), "x", OpGreaterOrEqual, th)
	}
	return &Ruleset{Rules: Nodes{group("root", logic, children...)}}
}

// Property-based test: numeric ordering agrees with Go comparison
func TestCompare_PropertyNumericOrdering(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("ordering operators match native comparison", prop.ForAll(
		func(a, b int, opIdx int, asText bool) bool {
			var left any = float64(a)
			if asText {
				left = fmt.Sprintf("%d", a)
			}
			got, err := Compare(left, b, orderingOps[opIdx])
			if err != nil {
				return false
			}

			switch orderingOps[opIdx] {
			case OpGreater:
				return got == (a > b)
			case OpGreaterOrEqual:
				return got == (a >= b)
			case OpLess:
				return got == (a < b)
			default:
				return got == (a <= b)
			}
		},
		gen.IntRange(-1000, 1000),
		gen.IntRange(-1000, 1000),
		gen.IntRange(0, len(orderingOps)-1),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// Property-based test: a single root condition passes iff its comparison does,
// and negation flips the verdict
func TestEvaluate_PropertySingleCondition(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("status follows compare and negate", prop.ForAll(
		func(x, v int, opIdx int, negate bool) bool {
			op := orderingOps[opIdx]
			c := cond("c1", "x", op, v)
			c.Negate = negate
			payload := map[string]any{"x": float64(x)}

			result, err := EvaluateRuleset(&Ruleset{Rules: Nodes{c}}, payload, Options{})
			if err != nil {
				return false
			}
			want, _ := Compare(float64(x), v, op)
			if negate {
				want = !want
			}
			return result.Passed() == want
		},
		gen.IntRange(-50, 50),
		gen.IntRange(-50, 50),
		gen.IntRange(0, len(orderingOps)-1),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// Property-based test: evaluation is idempotent apart from timing and id
func TestEvaluate_PropertyIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("same input yields same verdict and failures", prop.ForAll(
		func(thresholds []int, x int, useOr bool, stop bool) bool {
			logic := LogicAnd
			if useOr {
				logic = LogicOr
			}
			rs := thresholdRuleset(logic, thresholds)
			payload := map[string]any{"x": float64(x)}
			opts := Options{StopOnFirstFailure: stop}

			first, err := EvaluateRuleset(rs, payload, opts)
			if err != nil {
				return false
			}
			second, err := EvaluateRuleset(rs, payload, opts)
			if err != nil {
				return false
			}
			return first.Status == second.Status &&
				reflect.DeepEqual(first.ValidationFailures, second.ValidationFailures)
		},
		gen.SliceOf(gen.IntRange(0, 20)),
		gen.IntRange(0, 20),
		gen.Bool(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// Property-based test: short-circuiting only ever drops failures
func TestEvaluate_PropertyShortCircuitSubset(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("stop-on-first-failure failures are a subset", prop.ForAll(
		func(thresholds []int, x int, useOr bool) bool {
			logic := LogicAnd
			if useOr {
				logic = LogicOr
			}
			rs := thresholdRuleset(logic, thresholds)
			payload := map[string]any{"x": float64(x)}

			full, err := EvaluateRuleset(rs, payload, Options{})
			if err != nil {
				return false
			}
			short, err := EvaluateRuleset(rs, payload, Options{StopOnFirstFailure: true})
			if err != nil {
				return false
			}
			if full.Status != short.Status {
				return false
			}
			for id := range short.ValidationFailures {
				if _, ok := full.ValidationFailures[id]; !ok {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 20)),
		gen.IntRange(0, 20),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// Property-based test: ordering against non-numeric text never passes
func TestCompare_PropertyNonNumericNeverPasses(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("alpha operands are rejected", prop.ForAll(
		func(word string, v int, opIdx int) bool {
			got, err := Compare("w"+word, v, orderingOps[opIdx])
			return !got && err == ErrNonNumericComparison
		},
		gen.AlphaString(),
		gen.Int(),
		gen.IntRange(0, len(orderingOps)-1),
	))

	properties.TestingRun(t)
}

// Property-based test: resolution never panics
func TestResolvePath_PropertyNeverPanics(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	payload := map[string]any{
		"a": map[string]any{"b": []any{map[string]any{"c": 1.0}, nil, "x"}},
		"n": nil,
	}
	segments := []string{"a", "b", "c", "n", "0", "1", "2", "9", "[0]", "[1]", "", "01", "-1"}

	properties.Property("arbitrary paths resolve or report missing", prop.ForAll(
		func(picks []int) (ok bool) {
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("ResolvePath() panicked: %v", r)
					ok = false
				}
			}()

			path := ""
			for i, p := range picks {
				if i > 0 {
					path += "."
				}
				path += segments[p]
			}
			_, _ = ResolvePath(payload, path)
			return true
		},
		gen.SliceOf(gen.IntRange(0, len(segments)-1)),
	))

	properties.TestingRun(t)
}
