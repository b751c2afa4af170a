package engine

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Normalize deep copies a source into its canonical JSON form. Numbers become
// float64, structs and typed maps become map[string]interface{}.
func Normalize(source map[string]interface{}) (map[string]interface{}, error) {
	if source == nil {
		return map[string]interface{}{}, nil
	}
	data, err := json.Marshal(source)
	if err != nil {
		return nil, fmt.Errorf("failed to encode source: %w", err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode source: %w", err)
	}
	return out, nil
}

// CopyDocument returns a deep copy of doc
func CopyDocument(doc Document) Document {
	src, err := Normalize(doc.Source)
	if err != nil {
		src = map[string]interface{}{}
	}
	return Document{ID: doc.ID, Version: doc.Version, Source: src}
}

// Lookup returns every value reachable at a dotted path. Arrays along the
// path are flattened.
func Lookup(source map[string]interface{}, path string) []interface{} {
	if path == "" {
		return nil
	}
	return lookup(source, strings.Split(path, "."))
}

func lookup(value interface{}, parts []string) []interface{} {
	if len(parts) == 0 {
		if arr, ok := value.([]interface{}); ok {
			var out []interface{}
			for _, v := range arr {
				out = append(out, lookup(v, nil)...)
			}
			return out
		}
		if value == nil {
			return nil
		}
		return []interface{}{value}
	}

	switch v := value.(type) {
	case map[string]interface{}:
		child, ok := v[parts[0]]
		if !ok {
			return nil
		}
		return lookup(child, parts[1:])
	case []interface{}:
		var out []interface{}
		for _, item := range v {
			out = append(out, lookup(item, parts)...)
		}
		return out
	default:
		return nil
	}
}
