// Package jsonx recovers JSON payloads embedded in free-form model output.
//
// Models wrap JSON in prose or markdown fences; Extract tries, in order, the raw
// text, the first fenced code block, and the span from the first '{' to the last
// '}'. It never guesses field values and never panics: text without a
// recoverable object yields nil.
package jsonx

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
)

var fencedBlock = regexp.MustCompile("(?s)```(?:json|JSON)?[ \t]*\r?\n?(.*?)```")

// Extract returns the first JSON object recoverable from raw, or nil.
func Extract(raw string) map[string]any {
	direct, span := candidates(raw, '{', '}')
	for _, candidate := range append(direct, span) {
		if obj, ok := decodeObject(candidate); ok {
			return obj
		}
	}
	return nil
}

// ExtractArray returns a JSON array recoverable from raw. When the text holds an
// object instead, the first of wrapKeys holding an array is used.
func ExtractArray(raw string, wrapKeys ...string) []any {
	direct, span := candidates(raw, '[', ']')
	for _, candidate := range direct {
		if arr, ok := decodeArray(candidate); ok {
			return arr
		}
	}
	if obj := Extract(raw); obj != nil {
		for _, k := range wrapKeys {
			if arr, ok := obj[k].([]any); ok {
				return arr
			}
		}
		// A note object may precede the list itself; arrays nested in the
		// object do not count.
		if arr, ok := decodeArray(spanAfterObject(raw)); ok {
			return arr
		}
		return nil
	}
	if arr, ok := decodeArray(span); ok {
		return arr
	}
	return nil
}

// candidates returns the raw text and first fenced block, plus the span between
// the first open and last close delimiter.
func candidates(raw string, openCh, closeCh byte) ([]string, string) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, ""
	}
	direct := []string{text}
	if m := fencedBlock.FindStringSubmatch(text); len(m) == 2 {
		direct = append(direct, strings.TrimSpace(m[1]))
	}
	span := ""
	start := strings.IndexByte(text, openCh)
	end := strings.LastIndexByte(text, closeCh)
	if start >= 0 && end > start {
		span = text[start : end+1]
	}
	return direct, span
}

// spanAfterObject returns the '['..']' span following the first complete
// object in raw, or "" when there is none.
func spanAfterObject(raw string) string {
	text := strings.TrimSpace(raw)
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}
	dec := json.NewDecoder(strings.NewReader(text[start:]))
	var v json.RawMessage
	if err := dec.Decode(&v); err != nil {
		return ""
	}
	_, span := candidates(text[start+int(dec.InputOffset()):], '[', ']')
	return span
}

func decodeObject(s string) (map[string]any, bool) {
	v, ok := decode(s)
	if !ok {
		return nil, false
	}
	obj, ok := v.(map[string]any)
	return obj, ok
}

func decodeArray(s string) ([]any, bool) {
	v, ok := decode(s)
	if !ok {
		return nil, false
	}
	arr, ok := v.([]any)
	return arr, ok
}

func decode(s string) (any, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	// Trailing garbage after the first value means this candidate is not pure JSON.
	if dec.More() {
		return nil, false
	}
	return v, true
}
