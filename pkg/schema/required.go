package schema

import "github.com/platinummonkey/kennel/pkg/errs"

// CheckRequired verifies that every required property of the schema holds a
// value in source. Required children of an absent object are not checked.
func (s *Schema) CheckRequired(source map[string]interface{}) error {
	return checkRequired("", s.Properties, source)
}

func checkRequired(path string, props []Property, obj map[string]interface{}) error {
	for _, p := range props {
		fieldPath := p.Name
		if path != "" {
			fieldPath = path + "." + p.Name
		}
		value, ok := obj[p.Name]
		if !ok || value == nil {
			if p.Required {
				return errs.Validation(errs.CodeInvalidParameter, "field [%s] is required", fieldPath)
			}
			continue
		}
		if p.Type != TypeObject {
			continue
		}
		switch v := value.(type) {
		case map[string]interface{}:
			if err := checkRequired(fieldPath, p.Properties, v); err != nil {
				return err
			}
		case []interface{}:
			for _, item := range v {
				if child, ok := item.(map[string]interface{}); ok {
					if err := checkRequired(fieldPath, p.Properties, child); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}
