package expressions

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Interpolate replaces every {{name}} occurrence in template with the shared
// context value for name. Placeholders whose key is absent from the context
// are left untouched, so an unresolved template is visible in the trace
// instead of silently collapsing to an empty string.
//
// Keys may be dot-delimited paths into nested objects ({{deal.owner}}).
func Interpolate(template string, contextData map[string]any) string {
	if !HasPlaceholders(template) {
		return template
	}

	var result strings.Builder
	result.Grow(len(template))

	i := 0
	for i < len(template) {
		idx := strings.Index(template[i:], "{{")
		if idx == -1 {
			result.WriteString(template[i:])
			break
		}

		result.WriteString(template[i : i+idx])
		start := i + idx + 2 // skip "{{"

		end := strings.Index(template[start:], "}}")
		if end == -1 {
			// Unclosed placeholder: emit the rest verbatim.
			result.WriteString(template[i+idx:])
			break
		}
		end += start

		key := strings.TrimSpace(template[start:end])
		val, ok := lookupPath(contextData, key)
		if !ok {
			// Absent key: keep the literal placeholder.
			result.WriteString(template[i+idx : end+2])
		} else {
			result.WriteString(stringify(val))
		}

		i = end + 2 // skip "}}"
	}

	return result.String()
}

// InterpolateMap interpolates every string value of m, recursing into nested
// maps and slices. Non-string values pass through unchanged.
func InterpolateMap(m map[string]any, contextData map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = interpolateValue(v, contextData)
	}
	return out
}

func interpolateValue(v any, contextData map[string]any) any {
	switch val := v.(type) {
	case string:
		return Interpolate(val, contextData)
	case map[string]any:
		return InterpolateMap(val, contextData)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = interpolateValue(item, contextData)
		}
		return out
	default:
		return v
	}
}

// HasPlaceholders reports whether s contains any {{...}} references.
func HasPlaceholders(s string) bool {
	return strings.Contains(s, "{{")
}

// lookupPath resolves a key against the context, trying a direct hit first
// (keys may legitimately contain dots) and then dot-path traversal.
func lookupPath(data map[string]any, key string) (any, bool) {
	if data == nil || key == "" {
		return nil, false
	}
	if val, ok := data[key]; ok {
		return val, true
	}

	segments := strings.Split(key, ".")
	if len(segments) < 2 {
		return nil, false
	}

	var current any = data
	for _, seg := range segments {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// stringify renders a resolved value for embedding in a template string.
// Scalars render plainly; composites render as compact JSON.
func stringify(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case nil:
		return ""
	case bool:
		if v {
			return "true"
		}
		return "false"
	case float64:
		return fmt.Sprintf("%v", v)
	case int:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
