package jsonx

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Lookup returns the value of the first key in keys that is present and non-null.
// Keys are consulted in priority order, so callers list the current name first
// and legacy or localized aliases after it.
func Lookup(m map[string]any, keys ...string) (any, bool) {
	if m == nil {
		return nil, false
	}
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// String returns the first string-valued key, trimmed. Numbers and booleans are
// rendered; other shapes are ignored.
func String(m map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := Lookup(m, k)
		if !ok {
			continue
		}
		if s, ok := scalarString(v); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// OptString is String that reports absence as nil instead of "".
func OptString(m map[string]any, keys ...string) *string {
	s := String(m, keys...)
	if s == "" {
		return nil
	}
	return &s
}

// StringSlice returns the first key holding a list, keeping its string-like
// elements. A bare string is treated as a one-element list.
func StringSlice(m map[string]any, keys ...string) []string {
	for _, k := range keys {
		v, ok := Lookup(m, k)
		if !ok {
			continue
		}
		switch t := v.(type) {
		case []any:
			out := make([]string, 0, len(t))
			for _, item := range t {
				if s, ok := scalarString(item); ok && strings.TrimSpace(s) != "" {
					out = append(out, strings.TrimSpace(s))
				}
			}
			return out
		case []string:
			return append([]string(nil), t...)
		case string:
			if strings.TrimSpace(t) != "" {
				return []string{strings.TrimSpace(t)}
			}
		}
	}
	return nil
}

// Objects returns the first key holding a list, keeping only object elements.
func Objects(m map[string]any, keys ...string) []map[string]any {
	for _, k := range keys {
		v, ok := Lookup(m, k)
		if !ok {
			continue
		}
		arr, ok := v.([]any)
		if !ok {
			continue
		}
		out := make([]map[string]any, 0, len(arr))
		for _, item := range arr {
			if obj, ok := item.(map[string]any); ok {
				out = append(out, obj)
			}
		}
		return out
	}
	return nil
}

// Object returns the first key holding a JSON object.
func Object(m map[string]any, keys ...string) map[string]any {
	for _, k := range keys {
		v, ok := Lookup(m, k)
		if !ok {
			continue
		}
		if obj, ok := v.(map[string]any); ok {
			return obj
		}
	}
	return nil
}

// Int returns the first key holding an integral number (or numeric string).
func Int(m map[string]any, keys ...string) (int, bool) {
	for _, k := range keys {
		v, ok := Lookup(m, k)
		if !ok {
			continue
		}
		switch t := v.(type) {
		case float64:
			if t == math.Trunc(t) {
				return int(t), true
			}
		case json.Number:
			if i, err := t.Int64(); err == nil {
				return int(i), true
			}
		case string:
			if i, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
				return i, true
			}
		}
	}
	return 0, false
}

func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case json.Number:
		return t.String(), true
	case bool:
		return fmt.Sprint(t), true
	default:
		return "", false
	}
}
