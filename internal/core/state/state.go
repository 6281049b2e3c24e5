// Package state provides operations over opaque agent state payloads.
//
// Agent state is a heterogeneous keyed tree (maps, slices, scalars). The
// engine never inspects its meaning, but it does need three well-defined
// operations over it: deep copy (checkpoints never alias caller storage),
// deep structural equality (diffing), and a canonical byte form with
// deterministic key ordering (content hashing).
package state

import (
	"encoding/json"
	"fmt"
	"time"
)

// maxDepth bounds recursion when sanitizing adversarially nested values.
const maxDepth = 50

// Clone returns a deep copy of a state map. The result shares no mutable
// storage with the input. Values outside the JSON-like closed set
// (nil, bool, numbers, string, []any, map[string]any) are copied through a
// JSON round-trip, falling back to their string form when not encodable.
func Clone(state map[string]any) map[string]any {
	if state == nil {
		return nil
	}
	out := make(map[string]any, len(state))
	for k, v := range state {
		out[k] = cloneValue(v, 0)
	}
	return out
}

// CloneValue deep-copies a single value with the same rules as Clone.
func CloneValue(v any) any {
	return cloneValue(v, 0)
}

func cloneValue(v any, depth int) any {
	if depth > maxDepth {
		return fmt.Sprintf("%v", v)
	}
	switch val := v.(type) {
	case nil, bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return val
	case time.Time:
		return val
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = cloneValue(item, depth+1)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item, depth+1)
		}
		return out
	case []string:
		out := make([]string, len(val))
		copy(out, val)
		return out
	default:
		// Unknown composite: round-trip through JSON to sever aliasing.
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return fmt.Sprintf("%v", val)
		}
		return decoded
	}
}

// Canonical returns the canonical serialized form of a value: JSON with map
// keys in sorted order (encoding/json sorts string-keyed maps). Equal
// structures yield equal bytes regardless of insertion order. Values that
// cannot be encoded are first reduced to a string-safe form, so Canonical
// never fails.
func Canonical(v any) []byte {
	raw, err := json.Marshal(v)
	if err != nil {
		raw, _ = json.Marshal(Sanitize(v))
	}
	return raw
}

// Equal reports deep structural equality of two values by comparing their
// canonical forms. Numeric values that serialize identically compare equal
// even when their Go dynamic types differ (int 1 vs float64 1 after a
// decode round-trip).
func Equal(a, b any) bool {
	return string(Canonical(a)) == string(Canonical(b))
}

// Sanitize recursively converts a value into a JSON-safe equivalent,
// replacing anything non-encodable with its string form. Lossy, but it
// always succeeds.
func Sanitize(v any) any {
	return sanitizeValue(v, 0)
}

func sanitizeValue(v any, depth int) any {
	if depth > maxDepth {
		return fmt.Sprintf("%v", v)
	}
	switch val := v.(type) {
	case nil, bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return val
	case float32:
		return sanitizeFloat(float64(val))
	case float64:
		return sanitizeFloat(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case []byte:
		return fmt.Sprintf("%x", val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = sanitizeValue(item, depth+1)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = sanitizeValue(item, depth+1)
		}
		return out
	default:
		if _, err := json.Marshal(val); err == nil {
			return val
		}
		return fmt.Sprintf("%v", val)
	}
}

// sanitizeFloat replaces NaN and infinities, which JSON cannot represent.
func sanitizeFloat(f float64) any {
	if f != f || f > maxFloat || f < -maxFloat {
		return fmt.Sprintf("%v", f)
	}
	return f
}

const maxFloat = 1.7976931348623157e308
