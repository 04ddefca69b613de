// Package patch computes and applies top-level key diffs between structured
// content snapshots.
//
// Content is an open key/value tree as produced by encoding/json. Two values
// are equal when their canonical JSON encodings match, so object key order is
// irrelevant and array order is significant. A top-level key holding null is
// treated the same as an absent key: Diff encodes a removed key as null and
// Apply deletes keys whose patch value is null.
package patch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Diff returns the top-level keys of after whose value differs from before.
// Keys present in before but absent (or null) in after map to nil.
func Diff(before, after map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{})
	for key, next := range after {
		if next == nil {
			continue
		}
		prev, ok := before[key]
		if ok && prev != nil {
			same, err := Equal(prev, next)
			if err != nil {
				return nil, fmt.Errorf("compare key %q: %w", key, err)
			}
			if same {
				continue
			}
		}
		cloned, err := clone(next)
		if err != nil {
			return nil, fmt.Errorf("copy key %q: %w", key, err)
		}
		out[key] = cloned
	}
	for key, prev := range before {
		if prev == nil {
			continue
		}
		if next, ok := after[key]; !ok || next == nil {
			out[key] = nil
		}
	}
	return out, nil
}

// Apply returns a new map equal to base with every key of p overwritten by
// its patch value. Neither base nor p is modified and the result shares no
// nested values with either.
func Apply(base, p map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(base)+len(p))
	for key, value := range base {
		if value == nil {
			continue
		}
		cloned, err := clone(value)
		if err != nil {
			return nil, fmt.Errorf("copy key %q: %w", key, err)
		}
		out[key] = cloned
	}
	for key, value := range p {
		if value == nil {
			delete(out, key)
			continue
		}
		cloned, err := clone(value)
		if err != nil {
			return nil, fmt.Errorf("copy key %q: %w", key, err)
		}
		out[key] = cloned
	}
	return out, nil
}

// Clone returns a deep copy of content.
func Clone(content map[string]interface{}) (map[string]interface{}, error) {
	if content == nil {
		return nil, nil
	}
	return Apply(content, nil)
}

// Normalize drops top-level null values so stored content never carries
// keys that Diff would consider absent.
func Normalize(content map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(content))
	for key, value := range content {
		if value != nil {
			out[key] = value
		}
	}
	return out
}

// ChangedKeys lists the keys of p in sorted order.
func ChangedKeys(p map[string]interface{}) []string {
	keys := make([]string, 0, len(p))
	for key := range p {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Equal reports deep value equality of two JSON-compatible values.
func Equal(a, b interface{}) (bool, error) {
	left, err := json.Marshal(a)
	if err != nil {
		return false, err
	}
	right, err := json.Marshal(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(left, right), nil
}

// clone deep-copies maps and slices produced by encoding/json; other values
// are returned as-is.
func clone(value interface{}) (interface{}, error) {
	switch typed := value.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(typed))
		for k, v := range typed {
			c, err := clone(v)
			if err != nil {
				return nil, err
			}
			out[k] = c
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(typed))
		for i, v := range typed {
			c, err := clone(v)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	case string, bool, float64, float32, int, int32, int64, uint, uint32, uint64, json.Number, nil:
		return typed, nil
	default:
		// Unknown shapes (typed structs, typed slices) are copied through JSON.
		raw, err := json.Marshal(typed)
		if err != nil {
			return nil, err
		}
		var out interface{}
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
}
