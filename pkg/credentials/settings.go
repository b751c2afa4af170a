package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"time"

	"github.com/platinummonkey/kennel/pkg/errs"
	"github.com/platinummonkey/kennel/pkg/settings"
)

// Settings is the credentials policy of a tenant
type Settings struct {
	GuestSignUpEnabled                 bool   `json:"guestSignUpEnabled"`
	UsernameRegex                      string `json:"usernameRegex"`
	PasswordRegex                      string `json:"passwordRegex"`
	SessionMaximumLifetimeInSeconds    int64  `json:"sessionMaximumLifetimeInSeconds"`
	MaximumInvalidChallenges           int    `json:"maximumInvalidChallenges"`
	ResetInvalidChallengesAfterMinutes int    `json:"resetInvalidChallengesAfterMinutes"`
	PasswordResetCodeLifetimeInSeconds int64  `json:"passwordResetCodeLifetimeInSeconds"`

	username *regexp.Regexp
	password *regexp.Regexp
}

// DefaultLifetime is the token lifetime when a login asks for none
const DefaultLifetime = 24 * time.Hour

// DefaultSettings returns the policy of tenants that saved none
func DefaultSettings() Settings {
	return Settings{
		UsernameRegex:                      `[a-zA-Z0-9_%@+\-\.]{3,}`,
		PasswordRegex:                      `.{6,}`,
		SessionMaximumLifetimeInSeconds:    86400,
		ResetInvalidChallengesAfterMinutes: 60,
		PasswordResetCodeLifetimeInSeconds: 3600,
	}
}

// Validate compiles the regexes and checks numeric bounds
func (s *Settings) Validate() error {
	var err error
	if s.username, err = regexp.Compile(anchor(s.UsernameRegex)); err != nil {
		return errs.InvalidParameter("usernameRegex [%s] invalid: %v", s.UsernameRegex, err)
	}
	if s.password, err = regexp.Compile(anchor(s.PasswordRegex)); err != nil {
		return errs.InvalidParameter("passwordRegex [%s] invalid: %v", s.PasswordRegex, err)
	}
	if s.SessionMaximumLifetimeInSeconds <= 0 {
		return errs.InvalidParameter("sessionMaximumLifetimeInSeconds must be positive")
	}
	if s.MaximumInvalidChallenges < 0 {
		return errs.InvalidParameter("maximumInvalidChallenges must not be negative")
	}
	if s.ResetInvalidChallengesAfterMinutes <= 0 {
		return errs.InvalidParameter("resetInvalidChallengesAfterMinutes must be positive")
	}
	if s.PasswordResetCodeLifetimeInSeconds <= 0 {
		return errs.InvalidParameter("passwordResetCodeLifetimeInSeconds must be positive")
	}
	return nil
}

// CheckUsername matches username against the tenant regex
func (s *Settings) CheckUsername(username string) error {
	if !s.username.MatchString(username) {
		return errs.InvalidParameter("username [%s] does not match [%s]", username, s.UsernameRegex)
	}
	return nil
}

// CheckPassword matches password against the tenant regex
func (s *Settings) CheckPassword(password string) error {
	if !s.password.MatchString(password) {
		return errs.InvalidParameter("password does not match [%s]", s.PasswordRegex)
	}
	return nil
}

// MaximumLifetime is the longest token lifetime of the tenant
func (s *Settings) MaximumLifetime() time.Duration {
	return time.Duration(s.SessionMaximumLifetimeInSeconds) * time.Second
}

// LockoutWindow is the period after which invalid challenges are forgotten
func (s *Settings) LockoutWindow() time.Duration {
	return time.Duration(s.ResetInvalidChallengesAfterMinutes) * time.Minute
}

// ResetCodeLifetime is the validity of a password reset code
func (s *Settings) ResetCodeLifetime() time.Duration {
	return time.Duration(s.PasswordResetCodeLifetimeInSeconds) * time.Second
}

func anchor(expr string) string {
	return "^(?:" + expr + ")$"
}

// LoadSettings reads the tenant policy over the defaults
func LoadSettings(ctx context.Context, st *settings.Store, tenantID string) (*Settings, error) {
	cs := DefaultSettings()
	err := st.Get(ctx, tenantID, settings.CredentialsID, &cs)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}
	if err := cs.Validate(); err != nil {
		return nil, errs.Internal(err, "stored credentials settings are invalid")
	}
	return &cs, nil
}

// SaveSettings validates a raw policy, completes it with defaults and stores it
func SaveSettings(ctx context.Context, st *settings.Store, tenantID string, data []byte) (*Settings, error) {
	cs := DefaultSettings()
	if err := json.Unmarshal(data, &cs); err != nil {
		return nil, errs.InvalidParameter("invalid credentials settings: %v", err)
	}
	if err := cs.Validate(); err != nil {
		return nil, err
	}
	if err := st.Put(ctx, tenantID, settings.CredentialsID, cs); err != nil {
		return nil, err
	}
	return &cs, nil
}
