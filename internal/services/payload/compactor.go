// Package payload prepares the fragment tree handed to the LLM: the
// compactor slims it to fit the context budget, and the guardrails clamp
// the returned target price against the live quote.
package payload

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
)

const (
	// maxStringChars truncates ordinary string leaves.
	maxStringChars = 300

	// maxNarrativeChars applies to summary-like keys carrying the prose
	// the model actually reasons over.
	maxNarrativeChars = 900
)

// narrativeKey marks the fields allowed the longer budget.
var narrativeKey = regexp.MustCompile(`(?i)summary|explanation|mda`)

// Compact walks a decoded JSON tree and slims it: long strings are
// truncated on rune boundaries, non-finite numbers become null, and
// empty containers or all-null objects are dropped.
func Compact(value interface{}) interface{} {
	return compactValue("", value)
}

// CompactMarshal compacts v through a JSON round trip and returns the
// slimmed document. Structs pass through their JSON tags first, so
// omitempty rules apply before compaction.
func CompactMarshal(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	var tree interface{}
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("failed to decode payload tree: %w", err)
	}

	compacted := Compact(tree)
	if compacted == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(compacted)
}

func compactValue(key string, value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		return compactObject(v)
	case []interface{}:
		return compactArray(v)
	case string:
		return truncateString(key, v)
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil
		}
		return v
	default:
		return value
	}
}

func compactObject(obj map[string]interface{}) interface{} {
	out := make(map[string]interface{}, len(obj))
	allNull := true
	for key, value := range obj {
		wasContainer := isContainer(value)
		compacted := compactValue(key, value)
		if compacted == nil && wasContainer {
			continue
		}
		out[key] = compacted
		if compacted != nil {
			allNull = false
		}
	}
	if len(out) == 0 || allNull {
		return nil
	}
	return out
}

func compactArray(arr []interface{}) interface{} {
	out := make([]interface{}, 0, len(arr))
	for _, value := range arr {
		compacted := compactValue("", value)
		if compacted == nil {
			continue
		}
		out = append(out, compacted)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func isContainer(value interface{}) bool {
	switch value.(type) {
	case map[string]interface{}, []interface{}:
		return true
	}
	return false
}

// truncateString cuts on rune boundaries so multi-byte text survives.
func truncateString(key, s string) string {
	limit := maxStringChars
	if narrativeKey.MatchString(key) {
		limit = maxNarrativeChars
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
