// ABOUTME: Flatten and unflatten helpers for nested string-keyed maps.
// ABOUTME: Nested keys are joined with a separator ("__" by default) into single-level keys.
package maputil

import (
	"strings"
)

// DefaultSep is the separator used to join nested keys when flattening.
const DefaultSep = "__"

// Flatten collapses a nested map into a single level, joining nested keys
// with DefaultSep. {"a": {"b": 1}} becomes {"a__b": 1}.
func Flatten(m map[string]any) map[string]any {
	return FlattenSep(m, DefaultSep)
}

// FlattenSep is Flatten with a caller-chosen separator.
func FlattenSep(m map[string]any, sep string) map[string]any {
	out := make(map[string]any, len(m))
	flattenInto(out, "", m, sep)
	return out
}

func flattenInto(out map[string]any, prefix string, m map[string]any, sep string) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + sep + k
		}
		if nested, ok := v.(map[string]any); ok && len(nested) > 0 {
			flattenInto(out, key, nested, sep)
			continue
		}
		out[key] = v
	}
}

// Unflatten rebuilds a nested map from keys joined with DefaultSep.
// It is the inverse of Flatten for maps whose leaf keys contain no separator.
func Unflatten(m map[string]any) map[string]any {
	return UnflattenSep(m, DefaultSep)
}

// UnflattenSep is Unflatten with a caller-chosen separator.
func UnflattenSep(m map[string]any, sep string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		parts := strings.Split(k, sep)
		cur := out
		for i, p := range parts {
			if i == len(parts)-1 {
				cur[p] = v
				break
			}
			next, ok := cur[p].(map[string]any)
			if !ok {
				next = make(map[string]any)
				cur[p] = next
			}
			cur = next
		}
	}
	return out
}
