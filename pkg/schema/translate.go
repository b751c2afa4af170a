package schema

import (
	"encoding/json"
	"fmt"

	"github.com/platinummonkey/kennel/pkg/engine"
)

// Meta field names stamped on every stored object
const (
	OwnerField     = "owner"
	GroupField     = "group"
	CreatedAtField = "createdAt"
	UpdatedAtField = "updatedAt"
)

// Date formats of the temporal types
const (
	formatDate     = "date"
	formatTime     = "hour_minute_second"
	formatDateTime = "date_time"
)

var analyzers = map[string]engine.Analyzer{
	LanguageEnglish: {
		Tokenizer: "standard",
		Filters:   []string{"lowercase", "english_possessive_stemmer", "english_stop", "english_stemmer"},
	},
	LanguageFrench: {
		Tokenizer: "standard",
		Filters:   []string{"french_elision", "lowercase", "french_stop", "french_stemmer"},
	},
	LanguageFrenchMax: {
		Tokenizer: "standard",
		Filters:   []string{"french_elision", "lowercase", "asciifolding", "french_stop", "french_stemmer"},
	},
}

// MetaMapping is the mapping of the meta object carried by every document
func MetaMapping() engine.Field {
	return engine.Field{
		Type: engine.FieldObject,
		Properties: map[string]engine.Field{
			OwnerField:     {Type: engine.FieldKeyword},
			GroupField:     {Type: engine.FieldKeyword},
			CreatedAtField: {Type: engine.FieldDate, Format: formatDateTime},
			UpdatedAtField: {Type: engine.FieldDate, Format: formatDateTime},
		},
	}
}

// Translate returns the strict engine mapping of a schema. The normalized
// definition is kept in the mapping metadata.
func Translate(s *Schema) (engine.Mapping, error) {
	meta, err := json.Marshal(s.Definition())
	if err != nil {
		return engine.Mapping{}, fmt.Errorf("failed to encode schema [%s]: %w", s.Name, err)
	}

	m := engine.Mapping{
		Dynamic:    engine.DynamicStrict,
		Meta:       meta,
		Properties: map[string]engine.Field{MetaField: MetaMapping()},
	}
	used := make(map[string]engine.Analyzer)
	for _, p := range s.Properties {
		m.Properties[p.Name] = translateProperty(p, used)
	}
	if len(used) > 0 {
		m.Settings.Analyzers = used
	}
	return m, nil
}

func translateProperty(p Property, used map[string]engine.Analyzer) engine.Field {
	switch p.Type {
	case TypeText:
		f := engine.Field{Type: engine.FieldText}
		if p.Language != "" {
			f.Analyzer = p.Language
			used[p.Language] = analyzers[p.Language]
		}
		return f
	case TypeString, TypeEnum:
		return engine.Field{Type: engine.FieldKeyword}
	case TypeBoolean:
		return engine.Field{Type: engine.FieldBoolean}
	case TypeInteger:
		return engine.Field{Type: engine.FieldInteger}
	case TypeLong:
		return engine.Field{Type: engine.FieldLong}
	case TypeFloat:
		return engine.Field{Type: engine.FieldFloat}
	case TypeDouble:
		return engine.Field{Type: engine.FieldDouble}
	case TypeDate:
		return engine.Field{Type: engine.FieldDate, Format: formatDate}
	case TypeTime:
		return engine.Field{Type: engine.FieldDate, Format: formatTime}
	case TypeTimestamp:
		return engine.Field{Type: engine.FieldDate, Format: formatDateTime}
	case TypeGeoPoint:
		return engine.Field{Type: engine.FieldGeoPoint}
	case TypeStash:
		disabled := false
		return engine.Field{Type: engine.FieldObject, Enabled: &disabled}
	default:
		f := engine.Field{Type: engine.FieldObject, Properties: make(map[string]engine.Field, len(p.Properties))}
		for _, child := range p.Properties {
			f.Properties[child.Name] = translateProperty(child, used)
		}
		return f
	}
}

// FromMapping reads a schema back from the metadata of its mapping
func FromMapping(name string, m engine.Mapping) (*Schema, error) {
	if len(m.Meta) == 0 {
		return nil, fmt.Errorf("mapping of [%s] carries no schema", name)
	}
	var def map[string]interface{}
	if err := json.Unmarshal(m.Meta, &def); err != nil {
		return nil, fmt.Errorf("failed to decode schema of [%s]: %w", name, err)
	}
	s, err := Validate(name, def)
	if err != nil {
		return nil, fmt.Errorf("stored schema of [%s] is invalid: %w", name, err)
	}
	return s, nil
}
