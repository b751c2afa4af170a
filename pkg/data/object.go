package data

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/platinummonkey/kennel/pkg/engine"
	"github.com/platinummonkey/kennel/pkg/errs"
	"github.com/platinummonkey/kennel/pkg/schema"
)

// Object is a stored document of a tenant type
type Object struct {
	ID        string
	Type      string
	Version   int64
	Owner     string
	Group     string
	CreatedAt time.Time
	UpdatedAt time.Time
	// Source is the payload without the meta object
	Source map[string]interface{}

	Score float64
	Sort  []interface{}
}

// Meta is the wire form of the object metadata
type Meta struct {
	ID        string        `json:"id"`
	Type      string        `json:"type"`
	Version   int64         `json:"version"`
	Owner     string        `json:"owner,omitempty"`
	Group     string        `json:"group,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
	Score     float64       `json:"score,omitempty"`
	Sort      []interface{} `json:"sort,omitempty"`
}

// Meta returns the metadata of the object
func (o *Object) Meta() Meta {
	return Meta{
		ID:        o.ID,
		Type:      o.Type,
		Version:   o.Version,
		Owner:     o.Owner,
		Group:     o.Group,
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
		Score:     o.Score,
		Sort:      o.Sort,
	}
}

// MarshalJSON writes the payload with the meta object
func (o *Object) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(o.Source)+1)
	for k, v := range o.Source {
		out[k] = v
	}
	out[schema.MetaField] = o.Meta()
	return json.Marshal(out)
}

// UnmarshalJSON reads the form written by MarshalJSON
func (o *Object) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var meta Meta
	if m, ok := raw[schema.MetaField]; ok {
		encoded, err := json.Marshal(m)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(encoded, &meta); err != nil {
			return fmt.Errorf("invalid meta: %w", err)
		}
		delete(raw, schema.MetaField)
	}
	*o = Object{
		ID:        meta.ID,
		Type:      meta.Type,
		Version:   meta.Version,
		Owner:     meta.Owner,
		Group:     meta.Group,
		CreatedAt: meta.CreatedAt,
		UpdatedAt: meta.UpdatedAt,
		Source:    raw,
	}
	return nil
}

// storedSource returns the engine source of the object
func (o *Object) storedSource() map[string]interface{} {
	source := make(map[string]interface{}, len(o.Source)+1)
	for k, v := range o.Source {
		source[k] = v
	}
	meta := map[string]interface{}{
		schema.CreatedAtField: o.CreatedAt.UTC().Format(time.RFC3339Nano),
		schema.UpdatedAtField: o.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if o.Owner != "" {
		meta[schema.OwnerField] = o.Owner
	}
	if o.Group != "" {
		meta[schema.GroupField] = o.Group
	}
	source[schema.MetaField] = meta
	return source
}

func fromDocument(typ string, doc engine.Document) *Object {
	o := &Object{
		ID:      doc.ID,
		Type:    typ,
		Version: doc.Version,
		Source:  make(map[string]interface{}, len(doc.Source)),
	}
	for k, v := range doc.Source {
		if k != schema.MetaField {
			o.Source[k] = v
		}
	}
	if meta, ok := doc.Source[schema.MetaField].(map[string]interface{}); ok {
		o.Owner, _ = meta[schema.OwnerField].(string)
		o.Group, _ = meta[schema.GroupField].(string)
		o.CreatedAt = parseTime(meta[schema.CreatedAtField])
		o.UpdatedAt = parseTime(meta[schema.UpdatedAtField])
	}
	return o
}

func parseTime(v interface{}) time.Time {
	s, ok := v.(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// payload normalizes a caller payload and drops any meta object
func payload(source map[string]interface{}) (map[string]interface{}, error) {
	out, err := engine.Normalize(source)
	if err != nil {
		return nil, errs.InvalidParameter("invalid payload: %v", err)
	}
	delete(out, schema.MetaField)
	return out, nil
}

// idValue renders the id held by an id path property
func idValue(v interface{}) (string, bool) {
	switch id := v.(type) {
	case string:
		return id, id != ""
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(id), true
	default:
		return "", false
	}
}

// resolveID applies the id precedence: id path, explicit id, engine generated
func resolveID(s *schema.Schema, source map[string]interface{}, explicit string) (string, error) {
	if s.IDPath == "" {
		return explicit, nil
	}
	id, ok := idValue(source[s.IDPath])
	if !ok {
		return "", errs.InvalidParameter("field [%s] holding the id is required", s.IDPath)
	}
	if explicit != "" && explicit != id {
		return "", errs.InvalidParameter("id [%s] does not match field [%s] value [%s]", explicit, s.IDPath, id)
	}
	return id, nil
}

// replaceField returns a copy of current with field set to value, or removed
// when value is nil
func replaceField(current map[string]interface{}, field string, value interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(current)+1)
	for k, v := range current {
		out[k] = v
	}
	if value == nil {
		delete(out, field)
	} else {
		out[field] = value
	}
	return out
}

// merge applies a patch to current. Objects merge recursively, null values
// remove fields and every other value replaces the current one.
func merge(current, patch map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(current)+len(patch))
	for k, v := range current {
		out[k] = v
	}
	for k, v := range patch {
		if v == nil {
			delete(out, k)
			continue
		}
		next, isObject := v.(map[string]interface{})
		prev, wasObject := out[k].(map[string]interface{})
		if isObject && wasObject {
			out[k] = merge(prev, next)
			continue
		}
		out[k] = v
	}
	return out
}
