package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/platinummonkey/kennel/pkg/acl"
	"github.com/platinummonkey/kennel/pkg/engine"
	"github.com/platinummonkey/kennel/pkg/errs"
	"github.com/platinummonkey/kennel/pkg/tenant"
)

var namePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

type jsonKind string

const (
	kindObject  jsonKind = "OBJECT"
	kindString  jsonKind = "STRING"
	kindBoolean jsonKind = "BOOLEAN"
)

var languages = map[string]bool{
	LanguageEnglish:   true,
	LanguageFrench:    true,
	LanguageFrenchMax: true,
}

func invalid(format string, args ...interface{}) error {
	return errs.Validation(errs.CodeInvalidSchema, format, args...)
}

// CheckName rejects type names that are not identifiers or are reserved
func CheckName(name string) error {
	if tenant.IsInternalType(name) {
		return errs.Validation(errs.CodeReservedName, "schema name [%s] is reserved", name)
	}
	if !namePattern.MatchString(name) {
		return errs.Validation(errs.CodeInvalidSchema, "schema name [%s] invalid", name)
	}
	return nil
}

// Parse decodes a JSON definition and validates it
func Parse(typeName string, data []byte) (*Schema, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	var def map[string]interface{}
	if err := dec.Decode(&def); err != nil {
		return nil, invalid("schema of [%s] is not a JSON object: %v", typeName, err)
	}
	return Validate(typeName, def)
}

// Validate checks a definition against the schema grammar and returns its
// normalized form.
func Validate(typeName string, definition map[string]interface{}) (*Schema, error) {
	if err := CheckName(typeName); err != nil {
		return nil, err
	}
	def, err := engine.Normalize(definition)
	if err != nil {
		return nil, invalid("schema of [%s] is not valid JSON: %v", typeName, err)
	}

	rootValue, _, err := checkField(def, typeName, true, kindObject)
	if err != nil {
		return nil, err
	}
	if err := checkInvalidFields(def, false, typeName); err != nil {
		return nil, err
	}
	root := rootValue.(map[string]interface{})

	rootType := string(TypeObject)
	if v, ok, err := checkField(root, "_type", false, kindString); err != nil {
		return nil, err
	} else if ok {
		rootType = v.(string)
	}
	if rootType != string(TypeObject) {
		return nil, invalid("schema type [%s] invalid", rootType)
	}

	s := &Schema{Name: typeName}
	if v, ok, err := checkField(root, "_id", false, kindString); err != nil {
		return nil, err
	} else if ok {
		s.IDPath = v.(string)
	}
	if v, ok, err := checkField(root, "_acl", false, kindObject); err != nil {
		return nil, err
	} else if ok {
		if s.ACL, err = parseACL(v.(map[string]interface{})); err != nil {
			return nil, err
		}
	}
	if v, ok, err := checkField(root, "_extra", false, kindObject); err != nil {
		return nil, err
	} else if ok {
		s.Extra = v.(map[string]interface{})
	}
	if err := checkInvalidFields(root, true, "_acl", "_extra", "_id", "_type"); err != nil {
		return nil, err
	}

	if s.Properties, err = checkObjectProperties(typeName, root); err != nil {
		return nil, err
	}
	if _, ok := s.Property(MetaField); ok {
		return nil, invalid("property [%s] is reserved", MetaField)
	}
	if s.IDPath != "" {
		p, ok := s.Property(s.IDPath)
		if !ok || p.Type == TypeObject || p.Type == TypeStash || p.Array {
			return nil, invalid("_id [%s] must name a root property holding a single value", s.IDPath)
		}
	}
	return s, nil
}

func parseACL(raw map[string]interface{}) (acl.RolePermissions, error) {
	rp := make(acl.RolePermissions, len(raw))
	for _, role := range sortedKeys(raw) {
		names, ok := raw[role].([]interface{})
		if !ok {
			return nil, invalid("Invalid type [%s] for schema field [%s]. Must be [ARRAY]", jsonKindOf(raw[role]), role)
		}
		set := acl.NewSet()
		for _, n := range names {
			name, ok := n.(string)
			if !ok {
				return nil, invalid("invalid permission [%v] for role [%s]", n, role)
			}
			perm, err := acl.ParsePermission(name)
			if err != nil {
				return nil, invalid("%s for role [%s]", err.Error(), role)
			}
			set = set.Add(perm)
		}
		rp[role] = set
	}
	return rp, nil
}

func checkObjectProperties(name string, obj map[string]interface{}) ([]Property, error) {
	var props []Property
	for _, key := range sortedKeys(obj) {
		if strings.HasPrefix(key, "_") {
			continue
		}
		p, err := checkProperty(key, obj[key])
		if err != nil {
			return nil, err
		}
		props = append(props, p)
	}
	if len(props) == 0 {
		return nil, invalid("property [%s] of type [object] has no properties", name)
	}
	return props, nil
}

func checkProperty(name string, value interface{}) (Property, error) {
	obj, ok := value.(map[string]interface{})
	if !ok {
		return Property{}, invalid("invalid value [%s] for object property [%s]", compact(value), name)
	}
	p := Property{Name: name, Type: TypeObject}
	if v, ok, err := checkField(obj, "_type", false, kindString); err != nil {
		return Property{}, err
	} else if ok {
		p.Type = Type(v.(string))
	}

	var allowed []string
	switch p.Type {
	case TypeText:
		allowed = []string{"_type", "_required", "_language", "_array"}
	case TypeString, TypeDate, TypeTime, TypeTimestamp, TypeInteger, TypeLong,
		TypeFloat, TypeDouble, TypeBoolean, TypeGeoPoint, TypeEnum:
		allowed = []string{"_type", "_required", "_array"}
	case TypeStash:
		allowed = []string{"_type", "_required"}
	case TypeObject:
		allowed = []string{"_type", "_required", "_array"}
	default:
		return Property{}, invalid("Invalid field type: %s", p.Type)
	}

	// object nodes only restrict their meta keys, leaves restrict every key
	if err := checkInvalidFields(obj, p.Type == TypeObject, allowed...); err != nil {
		return Property{}, err
	}
	var err error
	if p.Required, err = checkFlag(obj, "_required"); err != nil {
		return Property{}, err
	}
	if p.Type != TypeStash {
		if p.Array, err = checkFlag(obj, "_array"); err != nil {
			return Property{}, err
		}
	}
	if p.Type == TypeText {
		if v, ok, err := checkField(obj, "_language", false, kindString); err != nil {
			return Property{}, err
		} else if ok {
			p.Language = v.(string)
			if !languages[p.Language] {
				return Property{}, invalid("invalid language [%s] for text property [%s]", p.Language, name)
			}
		}
	}
	if p.Type == TypeObject {
		if p.Properties, err = checkObjectProperties(name, obj); err != nil {
			return Property{}, err
		}
	}
	return p, nil
}

func checkFlag(obj map[string]interface{}, field string) (bool, error) {
	v, ok, err := checkField(obj, field, false, kindBoolean)
	if err != nil || !ok {
		return false, err
	}
	return v.(bool), nil
}

// checkInvalidFields rejects keys outside valid. With metaOnly set, only keys
// starting with an underscore are considered.
func checkInvalidFields(obj map[string]interface{}, metaOnly bool, valid ...string) error {
	for _, key := range sortedKeys(obj) {
		if metaOnly && !strings.HasPrefix(key, "_") {
			continue
		}
		if !contains(valid, key) {
			return invalid("field [%s] invalid: expected fields [%s]", key, strings.Join(valid, ", "))
		}
	}
	return nil
}

func checkField(obj map[string]interface{}, field string, required bool, kind jsonKind) (interface{}, bool, error) {
	value, ok := obj[field]
	if !ok {
		if required {
			return nil, false, invalid("This schema field is required: %s", field)
		}
		return nil, false, nil
	}
	if jsonKindOf(value) != strings.ToLower(string(kind)) {
		return nil, false, invalid("Invalid type [%s] for schema field [%s]. Must be [%s]", jsonKindOf(value), field, kind)
	}
	return value, true, nil
}

func jsonKindOf(value interface{}) string {
	switch value.(type) {
	case string:
		return "string"
	case map[string]interface{}:
		return "object"
	case float64:
		return "number"
	case []interface{}:
		return "array"
	case bool:
		return "boolean"
	default:
		return "null"
	}
}

func compact(value interface{}) string {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprint(value)
	}
	return string(data)
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func contains(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}
