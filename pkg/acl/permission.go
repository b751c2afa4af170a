package acl

import (
	"encoding/json"
	"fmt"
	"math/bits"
	"sort"
	"strings"
)

// Permission is one action over a data type
type Permission uint16

const (
	Create Permission = 1 << iota
	Read
	ReadMine
	ReadGroup
	Update
	UpdateMine
	UpdateGroup
	Delete
	DeleteMine
	DeleteGroup
	Search
)

var permissionNames = map[Permission]string{
	Create:      "create",
	Read:        "read",
	ReadMine:    "readMine",
	ReadGroup:   "readGroup",
	Update:      "update",
	UpdateMine:  "updateMine",
	UpdateGroup: "updateGroup",
	Delete:      "delete",
	DeleteMine:  "deleteMine",
	DeleteGroup: "deleteGroup",
	Search:      "search",
}

// AllPermissions lists every permission in declaration order
var AllPermissions = []Permission{
	Create, Read, ReadMine, ReadGroup, Update, UpdateMine, UpdateGroup,
	Delete, DeleteMine, DeleteGroup, Search,
}

func (p Permission) String() string {
	if name, ok := permissionNames[p]; ok {
		return name
	}
	return fmt.Sprintf("permission(%d)", uint16(p))
}

// ParsePermission resolves a permission name
func ParsePermission(name string) (Permission, error) {
	for p, n := range permissionNames {
		if n == name {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown permission [%s]", name)
}

// Set is a bitset of permissions
type Set uint16

// NewSet builds a set from permissions
func NewSet(perms ...Permission) Set {
	var s Set
	for _, p := range perms {
		s |= Set(p)
	}
	return s
}

// Has reports whether every given permission is in the set
func (s Set) Has(perms ...Permission) bool {
	for _, p := range perms {
		if s&Set(p) == 0 {
			return false
		}
	}
	return true
}

// HasAny reports whether at least one given permission is in the set
func (s Set) HasAny(perms ...Permission) bool {
	for _, p := range perms {
		if s&Set(p) != 0 {
			return true
		}
	}
	return false
}

// Add returns the set with perms added
func (s Set) Add(perms ...Permission) Set {
	return s | NewSet(perms...)
}

// Union returns the union of two sets
func (s Set) Union(other Set) Set {
	return s | other
}

// Len returns the number of permissions in the set
func (s Set) Len() int {
	return bits.OnesCount16(uint16(s))
}

// Permissions lists the set members in declaration order
func (s Set) Permissions() []Permission {
	perms := make([]Permission, 0, s.Len())
	for _, p := range AllPermissions {
		if s.Has(p) {
			perms = append(perms, p)
		}
	}
	return perms
}

func (s Set) String() string {
	names := make([]string, 0, s.Len())
	for _, p := range s.Permissions() {
		names = append(names, p.String())
	}
	return "[" + strings.Join(names, ", ") + "]"
}

// MarshalJSON encodes the set as a list of permission names
func (s Set) MarshalJSON() ([]byte, error) {
	names := make([]string, 0, s.Len())
	for _, p := range s.Permissions() {
		names = append(names, p.String())
	}
	return json.Marshal(names)
}

// UnmarshalJSON decodes a list of permission names
func (s *Set) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return fmt.Errorf("permissions must be a list of names: %w", err)
	}
	var set Set
	for _, name := range names {
		p, err := ParsePermission(name)
		if err != nil {
			return err
		}
		set = set.Add(p)
	}
	*s = set
	return nil
}

// RolePermissions maps role names to the permissions they hold on one type
type RolePermissions map[string]Set

// DefaultRolePermissions is applied to types declaring no ACL
func DefaultRolePermissions() RolePermissions {
	return RolePermissions{
		RoleAll:   NewSet(Read),
		RoleUser:  NewSet(Create, UpdateMine, Search, DeleteMine),
		RoleAdmin: NewSet(Create, Update, Search, Delete),
	}
}

// Grant adds permissions to a role
func (rp RolePermissions) Grant(role string, perms ...Permission) RolePermissions {
	rp[role] = rp[role].Add(perms...)
	return rp
}

// Of returns the union of the permissions held by roles
func (rp RolePermissions) Of(roles []string) Set {
	var s Set
	for _, role := range roles {
		s = s.Union(rp[role])
	}
	return s
}

// Roles returns the sorted role names
func (rp RolePermissions) Roles() []string {
	roles := make([]string, 0, len(rp))
	for role := range rp {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}

// Clone returns a copy of rp
func (rp RolePermissions) Clone() RolePermissions {
	c := make(RolePermissions, len(rp))
	for role, set := range rp {
		c[role] = set
	}
	return c
}
