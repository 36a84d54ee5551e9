package rules

import (
	"regexp"
	"strconv"
	"strings"
)

/*
 * Field path resolution for JSON payloads.
 *
 * Paths are dot separated (user.address.city). Bracketed indices are
 * rewritten to plain segments first, so a.b[2].c walks a -> b -> 2 -> c.
 * A segment indexes an object by key or an array by decimal position.
 *
 * Every way of not reaching a value (absent key, null or scalar in the
 * middle of the path, bad or out-of-range index) collapses to found=false.
 * Resolution never returns an error and never panics.
 */

var bracketIndex = regexp.MustCompile(`\[(\d+)\]`)

// splitPath normalizes bracket indices and splits path into segments
func splitPath(path string) []string {
	return strings.Split(bracketIndex.ReplaceAllString(path, ".$1"), ".")
}

// ResolvePath follows path through payload. It returns the value reached and
// whether the path resolved at all; a JSON null at the end of the path is
// reported as (nil, true).
func ResolvePath(payload any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}

	current := payload
	for _, seg := range splitPath(path) {
		next, ok := step(current, seg)
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

// step descends one segment into current
func step(current any, seg string) (any, bool) {
	switch v := current.(type) {
	case map[string]any:
		val, ok := v[seg]
		return val, ok

	case []any:
		idx, ok := arrayIndex(seg, len(v))
		if !ok {
			return nil, false
		}
		return v[idx], true

	case nil:
		// null intermediate
		return nil, false

	default:
		// scalar but path continues
		return nil, false
	}
}

// arrayIndex parses seg as a position within an array of length n
func arrayIndex(seg string, n int) (int, bool) {
	if seg == "" || (len(seg) > 1 && seg[0] == '0') {
		return 0, false
	}
	for _, r := range seg {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	idx, err := strconv.Atoi(seg)
	if err != nil || idx >= n {
		return 0, false
	}
	return idx, true
}
