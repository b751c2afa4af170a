package engine

import (
	"encoding/json"
	"fmt"
	"sort"
)

// FieldType is a storage level field type
type FieldType string

const (
	FieldKeyword  FieldType = "keyword"
	FieldText     FieldType = "text"
	FieldBoolean  FieldType = "boolean"
	FieldInteger  FieldType = "integer"
	FieldLong     FieldType = "long"
	FieldFloat    FieldType = "float"
	FieldDouble   FieldType = "double"
	FieldDate     FieldType = "date"
	FieldGeoPoint FieldType = "geo_point"
	FieldObject   FieldType = "object"
)

// DynamicStrict rejects documents carrying unmapped fields
const DynamicStrict = "strict"

// Field is the mapping of one document field
type Field struct {
	Type       FieldType        `json:"type"`
	Analyzer   string           `json:"analyzer,omitempty"`
	Format     string           `json:"format,omitempty"`
	Enabled    *bool            `json:"enabled,omitempty"`
	Properties map[string]Field `json:"properties,omitempty"`
}

// Indexed reports whether the field content is indexed
func (f Field) Indexed() bool {
	return f.Enabled == nil || *f.Enabled
}

// Analyzer describes a text analysis chain
type Analyzer struct {
	Tokenizer string   `json:"tokenizer"`
	Filters   []string `json:"filter,omitempty"`
}

// Settings holds index level settings
type Settings struct {
	Analyzers map[string]Analyzer `json:"analyzers,omitempty"`
}

// Mapping is the field layout of an index plus opaque metadata
type Mapping struct {
	Dynamic    string           `json:"dynamic,omitempty"`
	Meta       json.RawMessage  `json:"_meta,omitempty"`
	Properties map[string]Field `json:"properties,omitempty"`
	Settings   Settings         `json:"settings"`
}

// Merge returns m updated with next. Existing fields keep their definition
// and may not change type, new fields are added, meta and settings are
// replaced.
func (m Mapping) Merge(next Mapping) (Mapping, error) {
	props, err := mergeFields("", m.Properties, next.Properties)
	if err != nil {
		return Mapping{}, err
	}
	next.Properties = props
	return next, nil
}

func mergeFields(path string, current, next map[string]Field) (map[string]Field, error) {
	merged := make(map[string]Field, len(current)+len(next))
	for name, f := range current {
		merged[name] = f
	}

	names := make([]string, 0, len(next))
	for name := range next {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		f := next[name]
		fieldPath := joinPath(path, name)
		existing, ok := current[name]
		if !ok {
			merged[name] = f
			continue
		}
		if existing.Type != f.Type || existing.Format != f.Format || existing.Indexed() != f.Indexed() {
			return nil, fmt.Errorf("%w: field [%s] of type [%s] can not be changed to [%s]",
				ErrMappingConflict, fieldPath, describe(existing), describe(f))
		}
		if f.Type == FieldObject && f.Indexed() {
			props, err := mergeFields(fieldPath, existing.Properties, f.Properties)
			if err != nil {
				return nil, err
			}
			f.Properties = props
		}
		merged[name] = f
	}
	return merged, nil
}

func describe(f Field) string {
	if f.Format != "" {
		return fmt.Sprintf("%s(%s)", f.Type, f.Format)
	}
	if !f.Indexed() {
		return string(f.Type) + "(disabled)"
	}
	return string(f.Type)
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}
