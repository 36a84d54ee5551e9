package rules

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

/*
 * Operand comparison.
 *
 * Ordering operators (> >= < <=) coerce both operands to finite float64.
 * Coercion is strict: JSON numbers, Go numeric kinds and numeric strings are
 * accepted; booleans, null, missing values, blank strings, arrays and
 * objects are not. A failed coercion is ErrNonNumericComparison, never a
 * plain false.
 *
 * Equality operators (== !=) compare the text rendering of both operands,
 * so 5 == "5" holds and structural equality is never consulted.
 */

// Missing marks an operand whose path did not resolve. It renders as
// "undefined" and never coerces to a number.
type Missing struct{}

func (Missing) String() string { return "undefined" }

// Compare applies op to left and right. It returns ErrNonNumericComparison
// or ErrUnknownOperator instead of a verdict when the comparison is undefined.
func Compare(left, right any, op Operator) (bool, error) {
	if op.isOrdering() {
		l, lok := toNumber(left)
		r, rok := toNumber(right)
		if !lok || !rok {
			return false, ErrNonNumericComparison
		}
		switch op {
		case OpGreater:
			return l > r, nil
		case OpGreaterOrEqual:
			return l >= r, nil
		case OpLess:
			return l < r, nil
		default:
			return l <= r, nil
		}
	}

	switch op {
	case OpEqual:
		return renderText(left) == renderText(right), nil
	case OpNotEqual:
		return renderText(left) != renderText(right), nil
	default:
		return false, ErrUnknownOperator
	}
}

// toNumber coerces v to a finite float64
func toNumber(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int8:
		f = float64(n)
	case int16:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint8:
		f = float64(n)
	case uint16:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// renderText produces the text form used by equality comparison and failure
// messages
func renderText(v any) string {
	switch t := v.(type) {
	case Missing:
		return t.String()
	case nil:
		return "null"
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return formatNumber(t)
	case float32:
		return formatNumber(float64(t))
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return formatNumber(f)
		}
		return t.String()
	case []any:
		parts := make([]string, len(t))
		for i, elem := range t {
			switch elem.(type) {
			case nil, Missing:
				// empty slot
			default:
				parts[i] = renderText(elem)
			}
		}
		return strings.Join(parts, ",")
	default:
		if toNum, ok := toNumber(v); ok {
			return formatNumber(toNum)
		}
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// formatNumber renders f in shortest round-trip form, switching to an
// exponent at 1e21 and below 1e-6
func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	abs := math.Abs(f)
	if abs != 0 && (abs >= 1e21 || abs < 1e-6) {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		// strip the zero padding from the exponent (1e-07 -> 1e-7)
		mant, exp, _ := strings.Cut(s, "e")
		sign := exp[:1]
		digits := strings.TrimLeft(exp[1:], "0")
		return mant + "e" + sign + digits
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
