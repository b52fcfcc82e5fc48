// Package transform applies a REST response transform pipeline (remove,
// map, date_format, template, regex_replace) over dynamic JSON values,
// addressed by dot paths with name[] / _root[] array notation.
package transform

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/cubicler/cubicler/pkg/config"
)

// removed is the sentinel a path-walk propagates upward to signal that the
// value at that point should be dropped from its containing map or array.
type removedMarker struct{}

var removed = removedMarker{}

// segment is one dot-separated piece of a transform path.
type segment struct {
	name    string
	isArray bool
	isRoot  bool
}

func parsePath(path string) []segment {
	parts := strings.Split(path, ".")
	segments := make([]segment, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		isArray := strings.HasSuffix(p, "[]")
		name := strings.TrimSuffix(p, "[]")
		segments = append(segments, segment{
			name:    name,
			isArray: isArray,
			isRoot:  name == "_root",
		})
	}
	return segments
}

// Apply runs each transform in order against data, returning the final
// transformed value. data is typically the result of decoding a JSON
// response body into `any` (map[string]any / []any / scalars).
func Apply(data any, transforms []config.ResponseTransform) (any, error) {
	current := data
	for _, t := range transforms {
		op, err := operationFor(t)
		if err != nil {
			return nil, fmt.Errorf("transform %q at %q: %w", t.Transform, t.Path, err)
		}
		segments := parsePath(t.Path)
		next, err := walk(current, segments, op)
		if err != nil {
			return nil, fmt.Errorf("applying transform %q at %q: %w", t.Transform, t.Path, err)
		}
		if next == any(removed) {
			next = nil
		}
		current = next
	}
	return current, nil
}

// walk navigates segments from value, applies op at the path's end, and
// reconstructs every container on the path so the original value is left
// untouched (copy-on-write rather than a literal full-tree clone).
func walk(value any, segments []segment, op func(any) (any, error)) (any, error) {
	if len(segments) == 0 {
		return op(value)
	}

	seg := segments[0]
	rest := segments[1:]

	if seg.isRoot {
		arr, ok := value.([]any)
		if !ok {
			return value, nil
		}
		return walkArray(arr, rest, op)
	}

	m, ok := value.(map[string]any)
	if !ok {
		return value, nil
	}
	child, exists := m[seg.name]
	if !exists {
		return value, nil
	}

	var newChild any
	var err error
	if seg.isArray {
		arr, ok := child.([]any)
		if !ok {
			return value, nil
		}
		newChild, err = walkArray(arr, rest, op)
	} else {
		newChild, err = walk(child, rest, op)
	}
	if err != nil {
		return nil, err
	}

	out := cloneMap(m)
	if newChild == any(removed) {
		delete(out, seg.name)
	} else {
		out[seg.name] = newChild
	}
	return out, nil
}

func walkArray(arr []any, rest []segment, op func(any) (any, error)) (any, error) {
	out := make([]any, 0, len(arr))
	for _, el := range arr {
		transformed, err := walk(el, rest, op)
		if err != nil {
			return nil, err
		}
		if transformed == any(removed) {
			continue
		}
		out = append(out, transformed)
	}
	return out, nil
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func operationFor(t config.ResponseTransform) (func(any) (any, error), error) {
	switch t.Transform {
	case "remove":
		return func(any) (any, error) { return removed, nil }, nil
	case "map":
		return func(v any) (any, error) { return mapValue(v, t.Map), nil }, nil
	case "date_format":
		return func(v any) (any, error) { return formatDate(v, t.Format) }, nil
	case "template":
		return func(v any) (any, error) { return applyTemplate(v, t.Template), nil }, nil
	case "regex_replace":
		return func(v any) (any, error) { return regexReplace(v, t.Pattern, t.Replacement) }, nil
	default:
		return nil, fmt.Errorf("unknown transform operation %q", t.Transform)
	}
}

func mapValue(v any, dict map[string]string) any {
	key := fmt.Sprintf("%v", v)
	if replacement, ok := dict[key]; ok {
		return replacement
	}
	return v
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123,
	time.RFC1123Z,
}

func formatDate(v any, format string) (any, error) {
	s := fmt.Sprintf("%v", v)
	var parsed time.Time
	var err error
	for _, layout := range dateLayouts {
		parsed, err = time.Parse(layout, s)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("parsing date %q: %w", s, err)
	}
	return parsed.Format(toGoLayout(format)), nil
}

var dateTokenReplacer = strings.NewReplacer(
	"YYYY", "2006",
	"MM", "01",
	"DD", "02",
	"HH", "15",
	"mm", "04",
	"ss", "05",
)

// toGoLayout converts the YYYY/MM/DD/HH/mm/ss token grammar into a Go
// reference-time layout.
func toGoLayout(format string) string {
	return dateTokenReplacer.Replace(format)
}

func applyTemplate(v any, template string) string {
	return strings.ReplaceAll(template, "{value}", fmt.Sprintf("%v", v))
}

func regexReplace(v any, pattern, replacement string) (any, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compiling pattern %q: %w", pattern, err)
	}
	s := fmt.Sprintf("%v", v)
	return re.ReplaceAllString(s, replacement), nil
}
