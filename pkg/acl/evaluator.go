package acl

import (
	"context"
	"sort"
)

// Built-in role names
const (
	// RoleAll is held by every caller, anonymous or not
	RoleAll = "all"
	// RoleUser is held by every authenticated credential
	RoleUser = "user"
	// RoleAdmin is the tenant administrator role governed by type ACLs
	RoleAdmin = "admin"
	// RoleSuperAdmin bypasses type ACLs within its tenant
	RoleSuperAdmin = "superadmin"
	// RoleSuperDog bypasses type ACLs on every tenant
	RoleSuperDog = "superdog"
)

// Subject is the acting identity of a permission check
type Subject struct {
	ID        string
	Group     string
	Roles     []string
	Anonymous bool
}

// AnonymousSubject is the subject of unauthenticated calls
func AnonymousSubject() Subject {
	return Subject{Anonymous: true}
}

// EffectiveRoles returns the subject roles plus the implied pseudo roles
func (s Subject) EffectiveRoles() []string {
	roles := []string{RoleAll}
	if s.Anonymous {
		return roles
	}
	roles = append(roles, RoleUser)
	for _, r := range s.Roles {
		if r != RoleAll && r != RoleUser {
			roles = append(roles, r)
		}
	}
	return roles
}

// HasRole reports whether the subject explicitly holds role
func (s Subject) HasRole(role string) bool {
	for _, r := range s.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Bypass reports whether the subject skips ACL checks
func (s Subject) Bypass() bool {
	return !s.Anonymous && (s.HasRole(RoleSuperAdmin) || s.HasRole(RoleSuperDog))
}

// IsAdmin reports whether the subject holds an administrative role
func (s Subject) IsAdmin() bool {
	return !s.Anonymous && (s.HasRole(RoleAdmin) || s.Bypass())
}

// Resource carries the ownership of a stored object
type Resource struct {
	Owner string
	Group string
}

// Family groups the all, mine and group variants of one action
type Family struct {
	All   []Permission
	Mine  Permission
	Group Permission
}

// Action families
var (
	ReadFamily   = Family{All: []Permission{Read, Search}, Mine: ReadMine, Group: ReadGroup}
	UpdateFamily = Family{All: []Permission{Update}, Mine: UpdateMine, Group: UpdateGroup}
	DeleteFamily = Family{All: []Permission{Delete}, Mine: DeleteMine, Group: DeleteGroup}
)

// Grant is the outcome of evaluating a family against a resource
type Grant int

const (
	Deny Grant = iota
	GrantGroup
	GrantMine
	GrantAll
)

func (g Grant) String() string {
	return [...]string{"deny", "group", "mine", "all"}[g]
}

// Allowed reports whether the grant authorizes the action
func (g Grant) Allowed() bool {
	return g != Deny
}

// Check reports whether the subject holds every permission on a type
func Check(s Subject, rp RolePermissions, perms ...Permission) bool {
	if s.Bypass() {
		return true
	}
	return rp.Of(s.EffectiveRoles()).Has(perms...)
}

// Decide evaluates the all, mine and group predicates of a family against a
// resource and returns the most permissive one that holds.
func Decide(s Subject, rp RolePermissions, f Family, r Resource) Grant {
	if s.Bypass() {
		return GrantAll
	}
	held := rp.Of(s.EffectiveRoles())

	all := held.HasAny(f.All...)
	mine := held.Has(f.Mine) && !s.Anonymous && s.ID != "" && s.ID == r.Owner
	group := held.Has(f.Group) && !s.Anonymous && s.Group != "" && r.Group != "" && s.Group == r.Group

	switch {
	case all:
		return GrantAll
	case mine:
		return GrantMine
	case group:
		return GrantGroup
	default:
		return Deny
	}
}

// Possible reports whether some object could satisfy the family, that is
// whether the subject holds any of its permissions.
func Possible(s Subject, rp RolePermissions, f Family) bool {
	if s.Bypass() {
		return true
	}
	held := rp.Of(s.EffectiveRoles())
	if held.HasAny(f.All...) {
		return true
	}
	return !s.Anonymous && held.HasAny(f.Mine, f.Group)
}

// Source provides the type ACLs of a tenant
type Source interface {
	TypeACLs(ctx context.Context, tenantID string) (map[string]RolePermissions, error)
}

// Evaluator checks permissions against the ACLs stored for each tenant
type Evaluator struct {
	source Source
}

// NewEvaluator creates an evaluator over an ACL source
func NewEvaluator(source Source) *Evaluator {
	return &Evaluator{source: source}
}

func (e *Evaluator) rolePermissions(ctx context.Context, tenantID, typ string) (RolePermissions, error) {
	acls, err := e.source.TypeACLs(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if rp, ok := acls[typ]; ok {
		return rp, nil
	}
	return DefaultRolePermissions(), nil
}

// Check reports whether the subject holds every permission on typ
func (e *Evaluator) Check(ctx context.Context, tenantID string, s Subject, typ string, perms ...Permission) (bool, error) {
	if s.Bypass() {
		return true, nil
	}
	rp, err := e.rolePermissions(ctx, tenantID, typ)
	if err != nil {
		return false, err
	}
	return Check(s, rp, perms...), nil
}

// Possible reports whether the subject holds any permission of the family on
// typ. Callers use it to refuse before reading the object.
func (e *Evaluator) Possible(ctx context.Context, tenantID string, s Subject, typ string, f Family) (bool, error) {
	if s.Bypass() {
		return true, nil
	}
	rp, err := e.rolePermissions(ctx, tenantID, typ)
	if err != nil {
		return false, err
	}
	return Possible(s, rp, f), nil
}

// CheckObject evaluates an action family against a stored object
func (e *Evaluator) CheckObject(ctx context.Context, tenantID string, s Subject, typ string, r Resource, f Family) (Grant, error) {
	if s.Bypass() {
		return GrantAll, nil
	}
	rp, err := e.rolePermissions(ctx, tenantID, typ)
	if err != nil {
		return Deny, err
	}
	return Decide(s, rp, f, r), nil
}

// Types returns the sorted registered types on which the subject holds perm
func (e *Evaluator) Types(ctx context.Context, tenantID string, s Subject, perm Permission) ([]string, error) {
	acls, err := e.source.TypeACLs(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	types := make([]string, 0, len(acls))
	for typ, rp := range acls {
		if Check(s, rp, perm) {
			types = append(types, typ)
		}
	}
	sort.Strings(types)
	return types, nil
}
