// Package tenant validates backend identifiers and derives the storage
// addresses of tenant scoped types.
package tenant

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/platinummonkey/kennel/pkg/errs"
)

const (
	// MinLength is the minimum backend id length
	MinLength = 4
	// MaxLength is the maximum backend id length
	MaxLength = 30

	// CredentialsType is the reserved type holding credentials
	CredentialsType = "credentials"
	// SettingsType is the reserved type holding settings documents
	SettingsType = "settings"

	// reservedWord may not appear anywhere in a backend id
	reservedWord = "kennel"
)

var (
	idPattern   = regexp.MustCompile(`^[a-z0-9]+$`)
	reservedIDs = map[string]bool{"api": true, "www": true, "admin": true}
)

// IsValid reports whether id is an acceptable backend id
func IsValid(id string) bool {
	return Validate(id) == nil
}

// Validate checks a backend id
func Validate(id string) error {
	if len(id) < MinLength || len(id) > MaxLength {
		return errs.InvalidParameter("backend id [%s] must be %d to %d characters long", id, MinLength, MaxLength)
	}
	if !idPattern.MatchString(id) {
		return errs.InvalidParameter("backend id [%s] must only contain lowercase letters and digits", id)
	}
	if strings.Contains(id, reservedWord) || reservedIDs[id] {
		return errs.InvalidParameter("backend id [%s] is reserved", id)
	}
	return nil
}

// IsInternalType reports whether typ is one of the reserved internal types
func IsInternalType(typ string) bool {
	return typ == CredentialsType || typ == SettingsType
}

// Alias returns the stable logical index name of a tenant type
func Alias(tenantID, typ string) string {
	return tenantID + "-" + typ
}

// IndexName returns the physical index name of a tenant type at a schema version
func IndexName(tenantID, typ string, version int) string {
	return fmt.Sprintf("%s-%s-%d", tenantID, typ, version)
}

// Prefix returns the index name prefix shared by every index of a tenant
func Prefix(tenantID string) string {
	return tenantID + "-"
}

// ParseAlias splits an alias into tenant and type
func ParseAlias(alias string) (tenantID, typ string, ok bool) {
	i := strings.Index(alias, "-")
	if i <= 0 || i == len(alias)-1 {
		return "", "", false
	}
	return alias[:i], alias[i+1:], true
}

// ParseIndexName splits a physical index name into tenant, type and version
func ParseIndexName(name string) (tenantID, typ string, version int, ok bool) {
	i := strings.LastIndex(name, "-")
	if i <= 0 {
		return "", "", 0, false
	}
	version, err := strconv.Atoi(name[i+1:])
	if err != nil {
		return "", "", 0, false
	}
	tenantID, typ, ok = ParseAlias(name[:i])
	return tenantID, typ, version, ok
}
