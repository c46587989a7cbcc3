package checks

import (
	"fmt"
	"strings"
)

// Lookup resolves a dotted path such as "configuration.encrypted" through
// nested maps.
func (r Row) Lookup(path string) (any, bool) {
	var cur any = map[string]any(r)
	for part := range strings.SplitSeq(path, ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Text returns the value at path rendered as text, or "" when absent.
func (r Row) Text(path string) string {
	v, ok := r.Lookup(path)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Bool returns the value at path as a boolean. Strings "true"/"false" are
// accepted; anything else is false.
func (r Row) Bool(path string) bool {
	v, ok := r.Lookup(path)
	if !ok {
		return false
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return strings.EqualFold(strings.TrimSpace(b), "true")
	default:
		return false
	}
}

// Len returns the length of a list value at path.
func (r Row) Len(path string) int {
	v, ok := r.Lookup(path)
	if !ok {
		return 0
	}
	if list, ok := v.([]any); ok {
		return len(list)
	}
	return 0
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Row:
		return m, true
	default:
		return nil, false
	}
}
