package settings

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/platinummonkey/kennel/pkg/acl"
	"github.com/platinummonkey/kennel/pkg/errs"
)

// TypeACLs returns the role permissions of every registered type. A tenant
// without any schema has no entries.
func (s *Store) TypeACLs(ctx context.Context, tenantID string) (map[string]acl.RolePermissions, error) {
	acls := make(map[string]acl.RolePermissions)
	err := s.Get(ctx, tenantID, DataACLID, &acls)
	if errors.Is(err, errs.ErrNotFound) {
		return map[string]acl.RolePermissions{}, nil
	}
	if err != nil {
		return nil, err
	}
	return acls, nil
}

// PutTypeACL records the role permissions of typ
func (s *Store) PutTypeACL(ctx context.Context, tenantID, typ string, rp acl.RolePermissions) error {
	return s.Update(ctx, tenantID, DataACLID, func(current json.RawMessage) (interface{}, error) {
		acls, err := decodeACLs(current)
		if err != nil {
			return nil, err
		}
		acls[typ] = rp
		return acls, nil
	})
}

// RemoveTypeACL drops the entry of typ
func (s *Store) RemoveTypeACL(ctx context.Context, tenantID, typ string) error {
	return s.Update(ctx, tenantID, DataACLID, func(current json.RawMessage) (interface{}, error) {
		acls, err := decodeACLs(current)
		if err != nil {
			return nil, err
		}
		delete(acls, typ)
		return acls, nil
	})
}

func decodeACLs(data json.RawMessage) (map[string]acl.RolePermissions, error) {
	acls := make(map[string]acl.RolePermissions)
	if len(data) == 0 {
		return acls, nil
	}
	if err := json.Unmarshal(data, &acls); err != nil {
		return nil, errs.Internal(err, "failed to decode data ACL settings")
	}
	return acls, nil
}
