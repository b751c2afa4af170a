package backend

import (
	"context"
	"errors"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/kennel/pkg/acl"
	"github.com/platinummonkey/kennel/pkg/credentials"
	"github.com/platinummonkey/kennel/pkg/engine"
	"github.com/platinummonkey/kennel/pkg/errs"
	"github.com/platinummonkey/kennel/pkg/observability"
	"github.com/platinummonkey/kennel/pkg/settings"
	"github.com/platinummonkey/kennel/pkg/tenant"
)

// deleteConcurrency bounds the indices dropped at once by Delete
const deleteConcurrency = 4

// Backend describes a tenant
type Backend struct {
	ID          string             `json:"backendId"`
	Superadmins []credentials.View `json:"superadmins"`
}

// Service creates, lists and deletes tenants
type Service struct {
	engine      engine.Engine
	credentials *credentials.Service
	settings    *settings.Store
	metrics     *observability.Metrics
}

// NewService creates a tenant lifecycle service
func NewService(e engine.Engine, creds *credentials.Service, st *settings.Store, metrics *observability.Metrics) *Service {
	return &Service{engine: e, credentials: creds, settings: st, metrics: metrics}
}

func notAvailable(id string) error {
	return errs.Conflict(errs.CodeAlreadyExists, "backend [%s] not available", id)
}

// Exists reports whether a tenant has been created
func (s *Service) Exists(ctx context.Context, id string) (bool, error) {
	ok, err := s.engine.Exists(ctx, tenant.Alias(id, tenant.CredentialsType))
	if err != nil {
		return false, errs.Internal(err, "failed to check backend [%s]", id)
	}
	return ok, nil
}

// Create provisions a tenant and its first superadmin
func (s *Service) Create(ctx context.Context, id string, superadmin credentials.CreateRequest) (*credentials.Credentials, error) {
	if err := tenant.Validate(id); err != nil {
		return nil, err
	}
	return s.create(ctx, id, superadmin, acl.RoleSuperAdmin)
}

// EnsureRoot creates the root tenant and its superdog when missing. It is a
// no-op when the root tenant already holds credentials.
func (s *Service) EnsureRoot(ctx context.Context, superdog credentials.CreateRequest) (*credentials.Credentials, error) {
	root := s.credentials.RootTenant()
	ok, err := s.Exists(ctx, root)
	if err != nil || ok {
		return nil, err
	}
	return s.create(ctx, root, superdog, acl.RoleSuperDog)
}

func (s *Service) create(ctx context.Context, id string, first credentials.CreateRequest, role string) (*credentials.Credentials, error) {
	ok, err := s.Exists(ctx, id)
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, notAvailable(id)
	}
	if err := credentials.InitIndex(ctx, s.engine, id); err != nil {
		return nil, err
	}

	first.Roles = []string{role}
	c, err := s.credentials.Bootstrap(ctx, id, first)
	if err != nil {
		if dropErr := s.engine.DeleteIndex(ctx, tenant.Alias(id, tenant.CredentialsType)); dropErr != nil {
			observability.FromContext(ctx).WithTenant(id).WithError(dropErr).Warn("failed to roll back backend creation")
		}
		return nil, err
	}
	observability.FromContext(ctx).WithTenant(id).Info("backend created")
	s.refreshCount(ctx)
	return c, nil
}

// Delete drops every index of a tenant. The actor must bypass the type ACLs of
// the tenant and the root tenant can not be deleted. A failed delete can be
// run again.
func (s *Service) Delete(ctx context.Context, actor acl.Subject, id string) error {
	if !actor.Bypass() {
		return errs.Forbidden(errs.CodeForbidden, "only superadmins can delete backend [%s]", id)
	}
	if id == s.credentials.RootTenant() {
		return errs.Forbidden(errs.CodeForbidden, "backend [%s] can not be deleted", id)
	}
	indices, err := s.engine.ListIndices(ctx, tenant.Prefix(id))
	if err != nil {
		return errs.Internal(err, "failed to list indices of backend [%s]", id)
	}
	if len(indices) == 0 {
		return errs.NotFound("backend [%s] not found", id)
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(deleteConcurrency)
	for _, idx := range indices {
		eg.Go(func() error {
			err := s.engine.DeleteIndex(egCtx, idx.Alias)
			if err != nil && !errors.Is(err, engine.ErrIndexNotFound) {
				return errs.Internal(err, "failed to delete index [%s]", idx.Name)
			}
			return nil
		})
	}
	err = eg.Wait()
	s.settings.InvalidateTenant(ctx, id)
	if err != nil {
		return err
	}
	observability.FromContext(ctx).WithTenant(id).WithField("indices", len(indices)).Info("backend deleted")
	s.refreshCount(ctx)
	return nil
}

// ids returns every tenant holding a credentials index, root excluded
func (s *Service) ids(ctx context.Context) ([]string, error) {
	indices, err := s.engine.ListIndices(ctx, "")
	if err != nil {
		return nil, errs.Internal(err, "failed to list backends")
	}
	root := s.credentials.RootTenant()
	var ids []string
	for _, idx := range indices {
		id, typ, ok := tenant.ParseAlias(idx.Alias)
		if ok && typ == tenant.CredentialsType && id != root {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// List returns every tenant with its superadmins. Superdogs only.
func (s *Service) List(ctx context.Context, actor acl.Subject) ([]Backend, error) {
	if !actor.HasRole(acl.RoleSuperDog) {
		return nil, errs.Forbidden(errs.CodeForbidden, "only superdogs can list backends")
	}
	ids, err := s.ids(ctx)
	if err != nil {
		return nil, err
	}
	s.metrics.SetTenants(len(ids))

	out := make([]Backend, 0, len(ids))
	for _, id := range ids {
		supers, err := s.credentials.Superadmins(ctx, id)
		if err != nil {
			return nil, err
		}
		b := Backend{ID: id, Superadmins: make([]credentials.View, 0, len(supers))}
		for _, c := range supers {
			b.Superadmins = append(b.Superadmins, c.View())
		}
		out = append(out, b)
	}
	return out, nil
}

func (s *Service) refreshCount(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	ids, err := s.ids(ctx)
	if err != nil {
		return
	}
	s.metrics.SetTenants(len(ids))
}
