package schema

import (
	"encoding/json"
	"sort"

	"github.com/platinummonkey/kennel/pkg/acl"
)

// Type is a schema property type
type Type string

const (
	TypeObject    Type = "object"
	TypeText      Type = "text"
	TypeString    Type = "string"
	TypeBoolean   Type = "boolean"
	TypeInteger   Type = "integer"
	TypeLong      Type = "long"
	TypeFloat     Type = "float"
	TypeDouble    Type = "double"
	TypeDate      Type = "date"
	TypeTime      Type = "time"
	TypeTimestamp Type = "timestamp"
	TypeGeoPoint  Type = "geopoint"
	TypeEnum      Type = "enum"
	TypeStash     Type = "stash"
)

// Text languages with a dedicated analyzer
const (
	LanguageEnglish   = "english"
	LanguageFrench    = "french"
	LanguageFrenchMax = "french_max"
)

// MetaField is the root field holding the ownership and timestamps of objects
const MetaField = "meta"

// Property is one node of a schema tree
type Property struct {
	Name       string
	Type       Type
	Required   bool
	Array      bool
	Language   string
	Properties []Property
}

// Property returns the child property called name
func (p Property) Property(name string) (Property, bool) {
	return findProperty(p.Properties, name)
}

// Schema is the validated definition of one data type
type Schema struct {
	Name string
	// IDPath names the root property supplying object ids
	IDPath     string
	ACL        acl.RolePermissions
	Extra      map[string]interface{}
	Properties []Property
}

// Property returns the root property called name
func (s *Schema) Property(name string) (Property, bool) {
	return findProperty(s.Properties, name)
}

// RolePermissions returns the schema ACL, or the default one when the schema
// declares none.
func (s *Schema) RolePermissions() acl.RolePermissions {
	if len(s.ACL) == 0 {
		return acl.DefaultRolePermissions()
	}
	return s.ACL.Clone()
}

// Definition renders the schema in its JSON grammar
func (s *Schema) Definition() map[string]interface{} {
	root := map[string]interface{}{"_type": string(TypeObject)}
	if s.IDPath != "" {
		root["_id"] = s.IDPath
	}
	if len(s.ACL) > 0 {
		root["_acl"] = s.ACL
	}
	if s.Extra != nil {
		root["_extra"] = s.Extra
	}
	for _, p := range s.Properties {
		root[p.Name] = p.definition()
	}
	return map[string]interface{}{s.Name: root}
}

func (p Property) definition() map[string]interface{} {
	def := map[string]interface{}{"_type": string(p.Type)}
	if p.Required {
		def["_required"] = true
	}
	if p.Array {
		def["_array"] = true
	}
	if p.Language != "" {
		def["_language"] = p.Language
	}
	for _, child := range p.Properties {
		def[child.Name] = child.definition()
	}
	return def
}

// MarshalJSON encodes the schema definition
func (s *Schema) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Definition())
}

func findProperty(props []Property, name string) (Property, bool) {
	i := sort.Search(len(props), func(i int) bool { return props[i].Name >= name })
	if i < len(props) && props[i].Name == name {
		return props[i], true
	}
	return Property{}, false
}

func sortProperties(props []Property) {
	sort.Slice(props, func(i, j int) bool { return props[i].Name < props[j].Name })
}
