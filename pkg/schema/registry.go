package schema

import (
	"context"
	"errors"
	"sort"

	"github.com/platinummonkey/kennel/pkg/acl"
	"github.com/platinummonkey/kennel/pkg/engine"
	"github.com/platinummonkey/kennel/pkg/errs"
	"github.com/platinummonkey/kennel/pkg/observability"
	"github.com/platinummonkey/kennel/pkg/settings"
	"github.com/platinummonkey/kennel/pkg/tenant"
)

// Registry stores the schemas of every tenant
type Registry struct {
	engine   engine.Engine
	settings *settings.Store
}

// NewRegistry creates a registry over an engine and the settings store
// holding type ACLs.
func NewRegistry(e engine.Engine, st *settings.Store) *Registry {
	return &Registry{engine: e, settings: st}
}

// Set creates the index of a type, or merges the mapping of an existing one,
// and records the schema ACL. It reports whether the index was created.
func (r *Registry) Set(ctx context.Context, tenantID string, actor acl.Subject, s *Schema) (bool, error) {
	if !actor.IsAdmin() {
		return false, errs.Forbidden(errs.CodeForbidden, "only administrators can set schemas")
	}
	if err := CheckName(s.Name); err != nil {
		return false, err
	}
	mapping, err := Translate(s)
	if err != nil {
		return false, errs.Internal(err, "failed to translate schema [%s]", s.Name)
	}

	alias := tenant.Alias(tenantID, s.Name)
	exists, err := r.engine.Exists(ctx, alias)
	if err != nil {
		return false, errs.Internal(err, "failed to check schema [%s]", s.Name)
	}
	created := false
	if !exists {
		err = r.engine.CreateIndex(ctx, tenant.IndexName(tenantID, s.Name, 0), alias, mapping)
		if err == nil {
			created = true
		} else if !errors.Is(err, engine.ErrIndexExists) {
			return false, errs.Internal(err, "failed to create index of schema [%s]", s.Name)
		}
	}
	if !created {
		if err := r.engine.PutMapping(ctx, alias, mapping); err != nil {
			if errors.Is(err, engine.ErrMappingConflict) {
				return false, errs.Validation(errs.CodeMappingConflict, "schema [%s] is incompatible with the stored one: %v", s.Name, err)
			}
			return false, errs.Internal(err, "failed to update mapping of schema [%s]", s.Name)
		}
	}

	if err := r.settings.PutTypeACL(ctx, tenantID, s.Name, s.RolePermissions()); err != nil {
		return false, err
	}
	observability.FromContext(ctx).WithFields(map[string]interface{}{
		"schema":  s.Name,
		"created": created,
	}).Info("schema set")
	return created, nil
}

// Get returns the schema of a type
func (r *Registry) Get(ctx context.Context, tenantID, name string) (*Schema, error) {
	if err := CheckName(name); err != nil {
		return nil, err
	}
	mapping, err := r.engine.GetMapping(ctx, tenant.Alias(tenantID, name))
	if err != nil {
		if errors.Is(err, engine.ErrIndexNotFound) {
			return nil, errs.NotFound("schema [%s] not found", name)
		}
		return nil, errs.Internal(err, "failed to read schema [%s]", name)
	}
	s, err := FromMapping(name, mapping)
	if err != nil {
		return nil, errs.Internal(err, "failed to read schema [%s]", name)
	}
	return s, nil
}

// GetAll returns every schema of a tenant sorted by name
func (r *Registry) GetAll(ctx context.Context, tenantID string) ([]*Schema, error) {
	indices, err := r.engine.ListIndices(ctx, tenant.Prefix(tenantID))
	if err != nil {
		return nil, errs.Internal(err, "failed to list schemas")
	}
	var schemas []*Schema
	for _, info := range indices {
		owner, typ, ok := tenant.ParseAlias(info.Alias)
		if !ok || owner != tenantID || tenant.IsInternalType(typ) {
			continue
		}
		s, err := r.Get(ctx, tenantID, typ)
		if errors.Is(err, errs.ErrNotFound) {
			// deleted since listed
			continue
		}
		if err != nil {
			return nil, err
		}
		schemas = append(schemas, s)
	}
	sort.Slice(schemas, func(i, j int) bool { return schemas[i].Name < schemas[j].Name })
	return schemas, nil
}

// Names returns the sorted type names of a tenant
func (r *Registry) Names(ctx context.Context, tenantID string) ([]string, error) {
	schemas, err := r.GetAll(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(schemas))
	for i, s := range schemas {
		names[i] = s.Name
	}
	return names, nil
}

// Delete drops the index of a type with every object in it and clears its ACL
func (r *Registry) Delete(ctx context.Context, tenantID string, actor acl.Subject, name string) error {
	if !actor.IsAdmin() {
		return errs.Forbidden(errs.CodeForbidden, "only administrators can delete schemas")
	}
	if err := CheckName(name); err != nil {
		return err
	}
	if err := r.engine.DeleteIndex(ctx, tenant.Alias(tenantID, name)); err != nil {
		if errors.Is(err, engine.ErrIndexNotFound) {
			return errs.NotFound("schema [%s] not found", name)
		}
		return errs.Internal(err, "failed to delete schema [%s]", name)
	}
	if err := r.settings.RemoveTypeACL(ctx, tenantID, name); err != nil {
		return err
	}
	observability.FromContext(ctx).WithField("schema", name).Info("schema deleted")
	return nil
}
