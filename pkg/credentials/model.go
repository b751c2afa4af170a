package credentials

import (
	"time"

	"github.com/platinummonkey/kennel/pkg/acl"
)

// Credentials is a stored identity
type Credentials struct {
	ID      string `json:"-"`
	Version int64  `json:"-"`

	Tenant              string   `json:"backendId"`
	Username            string   `json:"username"`
	PasswordHash        string   `json:"passwordHash,omitempty"`
	PasswordFingerprint string   `json:"passwordFingerprint,omitempty"`
	Email               string   `json:"email,omitempty"`
	Roles               []string `json:"roles,omitempty"`
	Group               string   `json:"group,omitempty"`

	Enabled                bool       `json:"enabled"`
	EnableAfter            *time.Time `json:"enableAfter,omitempty"`
	DisableAfter           *time.Time `json:"disableAfter,omitempty"`
	InvalidChallenges      int        `json:"invalidChallenges"`
	LastInvalidChallengeAt *time.Time `json:"lastInvalidChallengeAt,omitempty"`

	PasswordMustChange         bool       `json:"passwordMustChange"`
	PasswordResetCode          string     `json:"passwordResetCode,omitempty"`
	PasswordResetCodeExpiresAt *time.Time `json:"passwordResetCodeExpiresAt,omitempty"`

	Tokens []Token `json:"tokens,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Token is an issued access token
type Token struct {
	Hash        string    `json:"hash"`
	Fingerprint string    `json:"fingerprint"`
	CreatedAt   time.Time `json:"createdAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// IsEnabled reports the effective status at now
func (c *Credentials) IsEnabled(now time.Time) bool {
	if !c.Enabled {
		return false
	}
	if c.EnableAfter != nil && now.Before(*c.EnableAfter) {
		return false
	}
	if c.DisableAfter != nil && !now.Before(*c.DisableAfter) {
		return false
	}
	return true
}

// HasRole reports whether the credential holds role
func (c *Credentials) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsSuperAdmin reports whether the credential holds a bypass role
func (c *Credentials) IsSuperAdmin() bool {
	return c.HasRole(acl.RoleSuperAdmin) || c.HasRole(acl.RoleSuperDog)
}

// Subject returns the permission subject of the credential
func (c *Credentials) Subject() acl.Subject {
	return acl.Subject{
		ID:    c.ID,
		Group: c.Group,
		Roles: append([]string(nil), c.Roles...),
	}
}

// View is the client facing form of a credential
type View struct {
	ID                     string     `json:"id"`
	Tenant                 string     `json:"backendId"`
	Username               string     `json:"username"`
	Email                  string     `json:"email,omitempty"`
	Roles                  []string   `json:"roles"`
	Group                  string     `json:"group,omitempty"`
	Enabled                bool       `json:"enabled"`
	EnableAfter            *time.Time `json:"enableAfter,omitempty"`
	DisableAfter           *time.Time `json:"disableAfter,omitempty"`
	InvalidChallenges      int        `json:"invalidChallenges"`
	LastInvalidChallengeAt *time.Time `json:"lastInvalidChallengeAt,omitempty"`
	PasswordMustChange     bool       `json:"passwordMustChange"`
	CreatedAt              time.Time  `json:"createdAt"`
	UpdatedAt              time.Time  `json:"updatedAt"`
	Version                int64      `json:"version"`
}

// View strips secrets from the credential
func (c *Credentials) View() View {
	roles := c.Roles
	if roles == nil {
		roles = []string{}
	}
	return View{
		ID:                     c.ID,
		Tenant:                 c.Tenant,
		Username:               c.Username,
		Email:                  c.Email,
		Roles:                  roles,
		Group:                  c.Group,
		Enabled:                c.Enabled,
		EnableAfter:            c.EnableAfter,
		DisableAfter:           c.DisableAfter,
		InvalidChallenges:      c.InvalidChallenges,
		LastInvalidChallengeAt: c.LastInvalidChallengeAt,
		PasswordMustChange:     c.PasswordMustChange,
		CreatedAt:              c.CreatedAt,
		UpdatedAt:              c.UpdatedAt,
		Version:                c.Version,
	}
}

// Session is the result of a successful login
type Session struct {
	AccessToken string       `json:"accessToken"`
	ExpiresIn   int64        `json:"expiresIn"`
	Credentials *Credentials `json:"-"`
}

// CreateRequest describes a new credential
type CreateRequest struct {
	Username string   `json:"username"`
	Password string   `json:"password"`
	Email    string   `json:"email,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	Group    string   `json:"group,omitempty"`
}

// UpdateRequest changes a credential. Nil fields are left untouched, empty
// timestamps clear the window bound.
type UpdateRequest struct {
	Username     *string   `json:"username,omitempty"`
	Email        *string   `json:"email,omitempty"`
	Enabled      *bool     `json:"enabled,omitempty"`
	EnableAfter  *string   `json:"enableAfter,omitempty"`
	DisableAfter *string   `json:"disableAfter,omitempty"`
	Roles        *[]string `json:"roles,omitempty"`
	Group        *string   `json:"group,omitempty"`
	// Version must equal the stored version when set
	Version int64 `json:"version,omitempty"`
}

func (r UpdateRequest) touchesAdminFields() bool {
	return r.Enabled != nil || r.EnableAfter != nil || r.DisableAfter != nil || r.Roles != nil || r.Group != nil
}

// SetPasswordRequest replaces a password
type SetPasswordRequest struct {
	Password string
	// PasswordVerified is set when the actor proved the current password
	PasswordVerified bool
}

// SearchRequest filters credentials
type SearchRequest struct {
	Username string
	Role     string
	Enabled  *bool
	From     int
	Size     int
}

// SearchResult is a page of credentials
type SearchResult struct {
	Total   int64
	Results []*Credentials
}

// AuthOptions tunes authentication checks
type AuthOptions struct {
	// AllowPasswordMustChange accepts credentials flagged to change their
	// password, for the password change endpoint
	AllowPasswordMustChange bool
}
