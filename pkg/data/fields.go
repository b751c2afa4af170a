package data

import (
	"context"

	"github.com/platinummonkey/kennel/pkg/acl"
	"github.com/platinummonkey/kennel/pkg/errs"
)

func (s *Store) checkField(ctx context.Context, tenantID, typ, field string) error {
	sch, err := s.schemas.Get(ctx, tenantID, typ)
	if err != nil {
		return err
	}
	if _, ok := sch.Property(field); !ok {
		return errs.InvalidParameter("field [%s] is not a property of type [%s]", field, typ)
	}
	return nil
}

// GetField returns one top level property of an object
func (s *Store) GetField(ctx context.Context, tenantID, typ, id, field string, subject acl.Subject) (interface{}, error) {
	o, err := s.Get(ctx, tenantID, typ, id, subject)
	if err != nil {
		return nil, err
	}
	if err := s.checkField(ctx, tenantID, typ, field); err != nil {
		return nil, err
	}
	value, ok := o.Source[field]
	if !ok {
		return nil, errs.NotFound("field [%s] of object [%s] not found", field, id)
	}
	return value, nil
}

// SetField replaces one top level property of an object
func (s *Store) SetField(ctx context.Context, tenantID, typ, id, field string, value interface{}, version int64, subject acl.Subject) (*Object, error) {
	if err := checkType(typ); err != nil {
		return nil, err
	}
	if err := s.checkField(ctx, tenantID, typ, field); err != nil {
		return nil, err
	}
	if value == nil {
		return nil, errs.InvalidParameter("field [%s] value is required, delete the field instead", field)
	}
	return s.Update(ctx, tenantID, UpdateRequest{
		Type:    typ,
		ID:      id,
		Version: version,
		Payload: map[string]interface{}{field: value},
		field:   field,
	}, subject)
}

// DeleteField removes one top level property of an object
func (s *Store) DeleteField(ctx context.Context, tenantID, typ, id, field string, version int64, subject acl.Subject) (*Object, error) {
	if err := checkType(typ); err != nil {
		return nil, err
	}
	if err := s.checkField(ctx, tenantID, typ, field); err != nil {
		return nil, err
	}
	return s.Update(ctx, tenantID, UpdateRequest{
		Type:    typ,
		ID:      id,
		Version: version,
		Payload: map[string]interface{}{field: nil},
		field:   field,
	}, subject)
}
