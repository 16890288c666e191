// Package interp renders {{placeholder}} templates against a value bag.
// It backs task-description substitution (session counters), feedback
// rendering (bound args, response payload paths), and HTTP descriptor
// interpolation. Substitution is safe: unresolved placeholders are left
// intact rather than erased or errored.
package interp

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

// Render substitutes every {{name}} or {{path.to.value}} placeholder in the
// template with the corresponding value from the bag. Dotted paths descend
// into nested map[string]any values, so a function return payload mounted
// under "response" resolves {{response.result.message_id}}. Placeholders
// with no value resolve to themselves.
func Render(template string, values map[string]any) string {
	if template == "" {
		return template
	}
	return placeholderRe.ReplaceAllStringFunc(template, func(match string) string {
		path := placeholderRe.FindStringSubmatch(match)[1]
		val, ok := Lookup(values, path)
		if !ok {
			return match
		}
		return Stringify(val)
	})
}

// Lookup resolves a dotted path into the value bag. Intermediate segments
// must be map[string]any (or map[string]string for leaves); a numeric
// segment indexes into a slice, so {{response.casts.0.text}} reaches the
// first element of a decoded JSON array.
func Lookup(values map[string]any, path string) (any, bool) {
	segments := strings.Split(path, ".")
	var current any = values
	for _, seg := range segments {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			current = next
		case map[string]string:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

// Stringify renders a bag value the way it should appear inside feedback
// text. Whole-number floats render without a fraction so a JSON-decoded
// counter reads "1", not "1.000000".
func Stringify(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Placeholders returns the distinct placeholder paths referenced by the
// template, in first-appearance order.
func Placeholders(template string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, match := range placeholderRe.FindAllStringSubmatch(template, -1) {
		if _, dup := seen[match[1]]; dup {
			continue
		}
		seen[match[1]] = struct{}{}
		out = append(out, match[1])
	}
	return out
}
