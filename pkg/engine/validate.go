package engine

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// ValidateSource checks a normalized source against a strict mapping.
// Non strict mappings accept any source.
func ValidateSource(m Mapping, source map[string]interface{}) error {
	if m.Dynamic != DynamicStrict {
		return nil
	}
	return validateObject("", m.Properties, source)
}

func validateObject(path string, props map[string]Field, obj map[string]interface{}) error {
	names := make([]string, 0, len(obj))
	for name := range obj {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		value := obj[name]
		fieldPath := joinPath(path, name)
		f, ok := props[name]
		if !ok {
			within := path
			if within == "" {
				within = "_doc"
			}
			return fmt.Errorf("%w: mapping set to strict, dynamic introduction of [%s] within [%s] is not allowed",
				ErrStrictMapping, name, within)
		}
		if err := validateValue(fieldPath, f, value); err != nil {
			return err
		}
	}
	return nil
}

func validateValue(path string, f Field, value interface{}) error {
	if value == nil || !f.Indexed() {
		return nil
	}
	if arr, ok := value.([]interface{}); ok {
		for _, item := range arr {
			if err := validateValue(path, f, item); err != nil {
				return err
			}
		}
		return nil
	}

	switch f.Type {
	case FieldKeyword, FieldText:
		switch value.(type) {
		case string, float64, bool:
			return nil
		}
	case FieldDate:
		switch value.(type) {
		case string, float64:
			return nil
		}
	case FieldInteger, FieldLong:
		if n, ok := value.(float64); ok && n == math.Trunc(n) {
			return nil
		}
	case FieldFloat, FieldDouble:
		if _, ok := value.(float64); ok {
			return nil
		}
	case FieldBoolean:
		switch v := value.(type) {
		case bool:
			return nil
		case string:
			if v == "true" || v == "false" {
				return nil
			}
		}
	case FieldGeoPoint:
		if isGeoPoint(value) {
			return nil
		}
	case FieldObject:
		if obj, ok := value.(map[string]interface{}); ok {
			return validateObject(path, f.Properties, obj)
		}
	}
	return fmt.Errorf("%w: failed to parse field [%s] of type [%s]: %s", ErrStrictMapping, path, f.Type, describeValue(value))
}

func isGeoPoint(value interface{}) bool {
	switch v := value.(type) {
	case map[string]interface{}:
		_, latOK := v["lat"].(float64)
		_, lonOK := v["lon"].(float64)
		return latOK && lonOK && len(v) == 2
	case string:
		parts := strings.Split(v, ",")
		return len(parts) == 2
	}
	return false
}

func describeValue(value interface{}) string {
	switch value.(type) {
	case string:
		return "unexpected string"
	case float64:
		return "unexpected number"
	case bool:
		return "unexpected boolean"
	case map[string]interface{}:
		return "unexpected object"
	default:
		return fmt.Sprintf("unexpected value %v", value)
	}
}
