package credentials

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/platinummonkey/kennel/pkg/acl"
	"github.com/platinummonkey/kennel/pkg/engine"
	"github.com/platinummonkey/kennel/pkg/errs"
	"github.com/platinummonkey/kennel/pkg/observability"
	"github.com/platinummonkey/kennel/pkg/settings"
)

// DefaultRootTenant holds the superdog credentials
const DefaultRootTenant = "api"

// Search window shared with data searches
const (
	maxSearchWindow   = 1000
	defaultSearchSize = 10
)

// Options configures a Service
type Options struct {
	RootTenant string
	HashParams *HashParams
	Notifier   Notifier
	Metrics    *observability.Metrics
	Clock      func() time.Time
}

// Service implements the credentials operations of every tenant
type Service struct {
	repo     *repository
	engine   engine.Engine
	settings *settings.Store
	hasher   *Hasher
	notifier Notifier
	metrics  *observability.Metrics
	root     string
	now      func() time.Time
}

// NewService creates a credentials service
func NewService(e engine.Engine, st *settings.Store, opts Options) *Service {
	if opts.RootTenant == "" {
		opts.RootTenant = DefaultRootTenant
	}
	params := DefaultHashParams
	if opts.HashParams != nil {
		params = *opts.HashParams
	}
	if opts.Notifier == nil {
		opts.Notifier = NewLogNotifier(observability.NopLogger())
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Service{
		repo:     &repository{engine: e},
		engine:   e,
		settings: st,
		hasher:   NewHasher(params),
		notifier: opts.Notifier,
		metrics:  opts.Metrics,
		root:     opts.RootTenant,
		now:      func() time.Time { return opts.Clock().UTC() },
	}
}

// RootTenant returns the tenant holding superdog credentials
func (s *Service) RootTenant() string {
	return s.root
}

// Settings returns the credentials policy of a tenant
func (s *Service) Settings(ctx context.Context, tenantID string) (*Settings, error) {
	return LoadSettings(ctx, s.settings, tenantID)
}

// PutSettings validates and stores the credentials policy of a tenant
func (s *Service) PutSettings(ctx context.Context, actor acl.Subject, tenantID string, data []byte) (*Settings, error) {
	if !actor.IsAdmin() {
		return nil, errs.Forbidden(errs.CodeForbidden, "only administrators can update settings")
	}
	return SaveSettings(ctx, s.settings, tenantID, data)
}

func invalidCredentials() error {
	return errs.Unauthorized(errs.CodeInvalidCredentials, "invalid username or password")
}

func invalidToken(reason string) error {
	return errs.Unauthorized(errs.CodeInvalidCredentials, "%s", reason)
}

// lookup runs find on the tenant, then on the root tenant for superdogs
func (s *Service) lookup(tenantID string, find func(tenantID string) (*Credentials, error)) (*Credentials, error) {
	c, err := find(tenantID)
	if err != nil || c != nil || tenantID == s.root {
		return c, err
	}
	c, err = find(s.root)
	if err != nil || c == nil || !c.HasRole(acl.RoleSuperDog) {
		return nil, err
	}
	return c, nil
}

// target reads a credential of the tenant. The acting superdog can reach its
// own root credential from any tenant.
func (s *Service) target(ctx context.Context, actor acl.Subject, tenantID, id string) (*Credentials, error) {
	c, err := s.repo.get(ctx, tenantID, id)
	if err == nil || tenantID == s.root || !errors.Is(err, errs.ErrNotFound) {
		return c, err
	}
	if actor.ID != id || !actor.HasRole(acl.RoleSuperDog) {
		return nil, err
	}
	return s.repo.get(ctx, s.root, id)
}

// canAdminister reports whether actor may manage target as an administrator
func canAdminister(actor acl.Subject, target *Credentials) bool {
	if !actor.IsAdmin() {
		return false
	}
	if target.HasRole(acl.RoleSuperDog) {
		return actor.HasRole(acl.RoleSuperDog)
	}
	return actor.Bypass() || !target.IsSuperAdmin()
}

func normalizeRoles(roles []string) []string {
	seen := make(map[string]bool, len(roles))
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		if r == "" || r == acl.RoleAll || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	if len(out) == 0 {
		return []string{acl.RoleUser}
	}
	sort.Strings(out)
	return out
}

// checkRoleGrant verifies that actor may hand out roles
func checkRoleGrant(actor acl.Subject, roles []string) error {
	for _, r := range roles {
		switch r {
		case acl.RoleUser:
		case acl.RoleSuperDog:
			if !actor.HasRole(acl.RoleSuperDog) {
				return errs.Forbidden(errs.CodeForbidden, "only superdogs can grant role [%s]", r)
			}
		case acl.RoleSuperAdmin:
			if !actor.Bypass() {
				return errs.Forbidden(errs.CodeForbidden, "only superadmins can grant role [%s]", r)
			}
		default:
			if !actor.IsAdmin() {
				return errs.Forbidden(errs.CodeForbidden, "only administrators can grant role [%s]", r)
			}
		}
	}
	return nil
}

// Create adds a credential. Anonymous callers can only sign up when the
// tenant enables guest sign up.
func (s *Service) Create(ctx context.Context, actor acl.Subject, tenantID string, req CreateRequest) (*Credentials, error) {
	cs, err := s.Settings(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if actor.Anonymous && !cs.GuestSignUpEnabled {
		return nil, errs.Forbidden(errs.CodeGuestSignUpDisabled, "guest sign up is disabled")
	}
	roles := normalizeRoles(req.Roles)
	if err := checkRoleGrant(actor, roles); err != nil {
		return nil, err
	}
	if req.Group != "" && !actor.IsAdmin() {
		return nil, errs.Forbidden(errs.CodeForbidden, "only administrators can set the group")
	}
	return s.create(ctx, tenantID, cs, req, roles)
}

// Bootstrap creates a credential without actor checks. It backs tenant
// creation and the superdog of the root tenant.
func (s *Service) Bootstrap(ctx context.Context, tenantID string, req CreateRequest) (*Credentials, error) {
	cs, err := s.Settings(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return s.create(ctx, tenantID, cs, req, normalizeRoles(req.Roles))
}

func (s *Service) create(ctx context.Context, tenantID string, cs *Settings, req CreateRequest, roles []string) (*Credentials, error) {
	if err := cs.CheckUsername(req.Username); err != nil {
		return nil, err
	}
	if err := cs.CheckPassword(req.Password); err != nil {
		return nil, err
	}
	existing, err := s.repo.byUsername(ctx, tenantID, req.Username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errs.Conflict(errs.CodeAlreadyExists, "username [%s] already exists", req.Username)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, errs.Internal(err, "failed to hash password")
	}
	fingerprint, err := newFingerprint()
	if err != nil {
		return nil, errs.Internal(err, "failed to create password fingerprint")
	}
	now := s.now()
	c := &Credentials{
		Tenant:              tenantID,
		Username:            req.Username,
		PasswordHash:        hash,
		PasswordFingerprint: fingerprint,
		Email:               req.Email,
		Roles:               roles,
		Group:               req.Group,
		Enabled:             true,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.repo.create(ctx, c); err != nil {
		return nil, err
	}
	observability.FromContext(ctx).WithFields(map[string]interface{}{
		"credentials_id": c.ID,
		"roles":          c.Roles,
	}).Info("credentials created")
	return c, nil
}

// challenge checks a username and password. On success the returned flag
// reports whether the invalid challenge counter was reset and needs saving.
func (s *Service) challenge(ctx context.Context, tenantID, username, password string, opts AuthOptions) (*Credentials, bool, error) {
	c, err := s.lookup(tenantID, func(t string) (*Credentials, error) {
		return s.repo.byUsername(ctx, t, username)
	})
	if err != nil {
		return nil, false, err
	}
	if c == nil {
		s.metrics.RecordLogin("unknown")
		return nil, false, invalidCredentials()
	}
	cs, err := s.Settings(ctx, c.Tenant)
	if err != nil {
		return nil, false, err
	}

	now := s.now()
	if !s.hasher.Verify(password, c.PasswordHash) {
		s.recordInvalidChallenge(ctx, c, cs, now)
		s.metrics.RecordLogin("invalid")
		return nil, false, invalidCredentials()
	}
	if !c.IsEnabled(now) {
		s.metrics.RecordLogin("disabled")
		return nil, false, errs.Unauthorized(errs.CodeDisabledCredentials, "credentials [%s] are disabled", c.Username)
	}
	if c.PasswordMustChange && !opts.AllowPasswordMustChange {
		s.metrics.RecordLogin("password_must_change")
		return nil, false, errs.Forbidden(errs.CodePasswordMustChange, "credentials [%s] must change their password", c.Username)
	}
	dirty := c.InvalidChallenges != 0 || c.LastInvalidChallengeAt != nil
	c.InvalidChallenges = 0
	c.LastInvalidChallengeAt = nil
	return c, dirty, nil
}

// recordInvalidChallenge counts a bad password and disables the credential
// once the tenant maximum is reached within the reset window. The write is
// best effort and a lost race only under counts.
func (s *Service) recordInvalidChallenge(ctx context.Context, c *Credentials, cs *Settings, now time.Time) {
	if cs.MaximumInvalidChallenges <= 0 {
		return
	}
	if c.LastInvalidChallengeAt != nil && now.Sub(*c.LastInvalidChallengeAt) >= cs.LockoutWindow() {
		c.InvalidChallenges = 0
	}
	c.InvalidChallenges++
	c.LastInvalidChallengeAt = &now

	logger := observability.FromContext(ctx).WithField("credentials_id", c.ID)
	if c.InvalidChallenges >= cs.MaximumInvalidChallenges && c.Enabled {
		c.Enabled = false
		s.metrics.IncLockouts()
		logger.Warn("credentials disabled after too many invalid challenges")
	}
	if err := s.repo.save(ctx, c); err != nil {
		logger.WithError(err).Debug("invalid challenge not recorded")
	}
}

// Login checks a username and password and issues an access token. The
// lifetime is capped by the tenant maximum and defaults to 24h.
func (s *Service) Login(ctx context.Context, tenantID, username, password string, lifetime time.Duration) (*Session, error) {
	c, _, err := s.challenge(ctx, tenantID, username, password, AuthOptions{})
	if err != nil {
		return nil, err
	}
	cs, err := s.Settings(ctx, c.Tenant)
	if err != nil {
		return nil, err
	}
	if lifetime <= 0 {
		lifetime = DefaultLifetime
	}
	if max := cs.MaximumLifetime(); lifetime > max {
		lifetime = max
	}

	token, hash, err := GenerateToken()
	if err != nil {
		return nil, errs.Internal(err, "failed to generate access token")
	}
	now := s.now()
	c.Tokens = append(liveTokens(c.Tokens, now), Token{
		Hash:        hash,
		Fingerprint: c.PasswordFingerprint,
		CreatedAt:   now,
		ExpiresAt:   now.Add(lifetime),
	})
	if err := s.repo.save(ctx, c); err != nil {
		return nil, err
	}
	s.metrics.RecordLogin("success")
	return &Session{
		AccessToken: token,
		ExpiresIn:   int64(lifetime / time.Second),
		Credentials: c,
	}, nil
}

// Authenticate checks a username and password without issuing a token
func (s *Service) Authenticate(ctx context.Context, tenantID, username, password string, opts AuthOptions) (*Credentials, error) {
	c, dirty, err := s.challenge(ctx, tenantID, username, password, opts)
	if err != nil {
		return nil, err
	}
	if dirty {
		if err := s.repo.save(ctx, c); err != nil {
			observability.FromContext(ctx).WithError(err).Debug("invalid challenge reset not recorded")
		}
	}
	return c, nil
}

func (s *Service) byToken(ctx context.Context, tenantID, token string) (*Credentials, *Token, error) {
	if err := ValidateTokenFormat(token); err != nil {
		return nil, nil, invalidToken("invalid access token")
	}
	hash := HashToken(token)
	c, err := s.lookup(tenantID, func(t string) (*Credentials, error) {
		return s.repo.byTokenHash(ctx, t, hash)
	})
	if err != nil {
		return nil, nil, err
	}
	if c == nil {
		return nil, nil, invalidToken("invalid access token")
	}
	for i := range c.Tokens {
		if hashesEqual(c.Tokens[i].Hash, hash) {
			return c, &c.Tokens[i], nil
		}
	}
	return nil, nil, invalidToken("invalid access token")
}

// ValidateToken returns the credential an access token was issued to
func (s *Service) ValidateToken(ctx context.Context, tenantID, token string, opts AuthOptions) (*Credentials, error) {
	c, t, err := s.byToken(ctx, tenantID, token)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if !now.Before(t.ExpiresAt) {
		return nil, invalidToken("access token has expired")
	}
	if !hashesEqual(t.Fingerprint, c.PasswordFingerprint) {
		return nil, invalidToken("access token has been revoked")
	}
	if !c.IsEnabled(now) {
		return nil, errs.Unauthorized(errs.CodeDisabledCredentials, "credentials [%s] are disabled", c.Username)
	}
	if c.PasswordMustChange && !opts.AllowPasswordMustChange {
		return nil, errs.Forbidden(errs.CodePasswordMustChange, "credentials [%s] must change their password", c.Username)
	}
	return c, nil
}

// Logout revokes exactly one access token
func (s *Service) Logout(ctx context.Context, tenantID, token string) error {
	c, t, err := s.byToken(ctx, tenantID, token)
	if err != nil {
		return err
	}
	hash := t.Hash
	kept := c.Tokens[:0:0]
	for _, tok := range liveTokens(c.Tokens, s.now()) {
		if tok.Hash != hash {
			kept = append(kept, tok)
		}
	}
	c.Tokens = kept
	return s.repo.save(ctx, c)
}

func liveTokens(tokens []Token, now time.Time) []Token {
	live := make([]Token, 0, len(tokens))
	for _, t := range tokens {
		if now.Before(t.ExpiresAt) {
			live = append(live, t)
		}
	}
	return live
}

// rotatePassword replaces the password and revokes every token
func (s *Service) rotatePassword(c *Credentials, password string) error {
	hash := ""
	if password != "" {
		var err error
		if hash, err = s.hasher.Hash(password); err != nil {
			return errs.Internal(err, "failed to hash password")
		}
	}
	fingerprint, err := newFingerprint()
	if err != nil {
		return errs.Internal(err, "failed to create password fingerprint")
	}
	c.PasswordHash = hash
	c.PasswordFingerprint = fingerprint
	c.Tokens = nil
	c.PasswordResetCode = ""
	c.PasswordResetCodeExpiresAt = nil
	c.UpdatedAt = s.now()
	return nil
}

// SetPassword replaces the password of a credential. Callers change their own
// password after proving the current one, administrators change anybody's.
func (s *Service) SetPassword(ctx context.Context, actor acl.Subject, tenantID, targetID string, req SetPasswordRequest) error {
	self := !actor.Anonymous && actor.ID == targetID
	if !self && !actor.IsAdmin() {
		return errs.Forbidden(errs.CodeForbidden, "not allowed to change the password of credentials [%s]", targetID)
	}
	c, err := s.target(ctx, actor, tenantID, targetID)
	if err != nil {
		return err
	}
	switch {
	case self && req.PasswordVerified:
	case canAdminister(actor, c):
	case self:
		return errs.Forbidden(errs.CodeForbidden, "the current password is required to change it")
	default:
		return errs.Forbidden(errs.CodeForbidden, "not allowed to change the password of credentials [%s]", targetID)
	}

	cs, err := s.Settings(ctx, c.Tenant)
	if err != nil {
		return err
	}
	if err := cs.CheckPassword(req.Password); err != nil {
		return err
	}
	if err := s.rotatePassword(c, req.Password); err != nil {
		return err
	}
	c.PasswordMustChange = false
	return s.repo.save(ctx, c)
}

// RequestPasswordReset clears the password of a credential and returns a one
// time code its owner can use to choose a new one.
func (s *Service) RequestPasswordReset(ctx context.Context, actor acl.Subject, tenantID, targetID string) (string, error) {
	if !actor.IsAdmin() {
		return "", errs.Forbidden(errs.CodeForbidden, "only administrators can reset passwords")
	}
	c, err := s.repo.get(ctx, tenantID, targetID)
	if err != nil {
		return "", err
	}
	if !canAdminister(actor, c) {
		return "", errs.Forbidden(errs.CodeForbidden, "not allowed to reset the password of credentials [%s]", targetID)
	}
	cs, err := s.Settings(ctx, tenantID)
	if err != nil {
		return "", err
	}
	if err := s.rotatePassword(c, ""); err != nil {
		return "", err
	}
	code, err := s.issueResetCode(c, cs)
	if err != nil {
		return "", err
	}
	c.PasswordMustChange = true
	if err := s.repo.save(ctx, c); err != nil {
		return "", err
	}
	return code, nil
}

func (s *Service) issueResetCode(c *Credentials, cs *Settings) (string, error) {
	code, hash, err := generateResetCode()
	if err != nil {
		return "", errs.Internal(err, "failed to generate password reset code")
	}
	expires := s.now().Add(cs.ResetCodeLifetime())
	c.PasswordResetCode = hash
	c.PasswordResetCodeExpiresAt = &expires
	return code, nil
}

// SendPasswordResetEmail issues a reset code and hands it to the notifier
func (s *Service) SendPasswordResetEmail(ctx context.Context, tenantID, username string) error {
	if username == "" {
		return errs.NotFound("credentials with username [] not found")
	}
	c, err := s.repo.byUsername(ctx, tenantID, username)
	if err != nil {
		return err
	}
	if c == nil {
		return errs.NotFound("credentials with username [%s] not found", username)
	}
	if c.Email == "" {
		return errs.InvalidParameter("credentials [%s] have no email", username)
	}
	cs, err := s.Settings(ctx, tenantID)
	if err != nil {
		return err
	}
	code, err := s.issueResetCode(c, cs)
	if err != nil {
		return err
	}
	if err := s.repo.save(ctx, c); err != nil {
		return err
	}
	if err := s.notifier.SendPasswordReset(ctx, c, code); err != nil {
		return errs.Internal(err, "failed to send password reset code")
	}
	s.metrics.IncResetCodes()
	return nil
}

// ResetPassword sets a new password with a valid, unexpired reset code. The
// code can only be used once.
func (s *Service) ResetPassword(ctx context.Context, tenantID, targetID, code, password string) error {
	c, err := s.repo.get(ctx, tenantID, targetID)
	if err != nil {
		return err
	}
	now := s.now()
	if code == "" || c.PasswordResetCode == "" || c.PasswordResetCodeExpiresAt == nil ||
		!now.Before(*c.PasswordResetCodeExpiresAt) || !hashesEqual(HashToken(code), c.PasswordResetCode) {
		return errs.Forbidden(errs.CodeForbidden, "password reset code is invalid or expired")
	}
	cs, err := s.Settings(ctx, tenantID)
	if err != nil {
		return err
	}
	if err := cs.CheckPassword(password); err != nil {
		return err
	}
	if err := s.rotatePassword(c, password); err != nil {
		return err
	}
	c.PasswordMustChange = false
	return s.repo.save(ctx, c)
}

// Get returns a credential to itself or to an administrator
func (s *Service) Get(ctx context.Context, actor acl.Subject, tenantID, id string) (*Credentials, error) {
	if actor.Anonymous {
		return nil, errs.Unauthorized(errs.CodeInvalidCredentials, "authentication required")
	}
	if actor.ID != id && !actor.IsAdmin() {
		return nil, errs.Forbidden(errs.CodeForbidden, "not allowed to read credentials [%s]", id)
	}
	return s.target(ctx, actor, tenantID, id)
}

// Me returns the credential of the actor
func (s *Service) Me(ctx context.Context, actor acl.Subject, tenantID string) (*Credentials, error) {
	return s.Get(ctx, actor, tenantID, actor.ID)
}

// Search lists the credentials of a tenant
func (s *Service) Search(ctx context.Context, actor acl.Subject, tenantID string, req SearchRequest) (*SearchResult, error) {
	if !actor.IsAdmin() {
		return nil, errs.Forbidden(errs.CodeForbidden, "only administrators can search credentials")
	}
	if req.Size == 0 {
		req.Size = defaultSearchSize
	}
	if req.From < 0 || req.Size < 0 {
		return nil, errs.InvalidParameter("from and size must not be negative")
	}
	if req.From+req.Size > maxSearchWindow {
		return nil, errs.Validation(errs.CodeSearchWindowExceeded, "from + size must be less than or equal to %d", maxSearchWindow)
	}
	terms := make(map[string][]interface{})
	if req.Username != "" {
		terms["username"] = []interface{}{req.Username}
	}
	if req.Role != "" {
		terms["roles"] = []interface{}{req.Role}
	}
	if req.Enabled != nil {
		terms["enabled"] = []interface{}{*req.Enabled}
	}
	return s.repo.search(ctx, tenantID, engine.Query{Terms: terms}, req.From, req.Size)
}

// Superadmins lists the superadmins of a tenant
func (s *Service) Superadmins(ctx context.Context, tenantID string) ([]*Credentials, error) {
	return s.repo.all(ctx, tenantID, engine.Query{Terms: map[string][]interface{}{"roles": {acl.RoleSuperAdmin}}})
}

func (s *Service) checkNotLastSuperadmin(ctx context.Context, c *Credentials) error {
	n, err := s.repo.count(ctx, c.Tenant, engine.Query{Terms: map[string][]interface{}{"roles": {acl.RoleSuperAdmin}}})
	if err != nil {
		return err
	}
	if n <= 1 {
		return errs.Forbidden(errs.CodeLastSuperadmin, "backend [%s] must keep at least one superadmin", c.Tenant)
	}
	return nil
}

// keepSuperadmin re-counts superadmins after a write that removed one and
// undoes it when none is left. Concurrent removals can all pass
// checkNotLastSuperadmin before any of them is written.
func (s *Service) keepSuperadmin(ctx context.Context, tenantID string, undo func() error) error {
	if err := s.engine.Refresh(ctx, alias(tenantID)); err != nil {
		return translate(err, "")
	}
	n, err := s.repo.count(ctx, tenantID, engine.Query{Terms: map[string][]interface{}{"roles": {acl.RoleSuperAdmin}}})
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if err := undo(); err != nil {
		return err
	}
	observability.FromContext(ctx).WithTenant(tenantID).Warn("concurrent superadmin removal reverted")
	return errs.Forbidden(errs.CodeLastSuperadmin, "backend [%s] must keep at least one superadmin", tenantID)
}

func parseWindow(field, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, errs.InvalidParameter("%s [%s] is not an RFC 3339 timestamp", field, value)
	}
	t = t.UTC()
	return &t, nil
}

// Update changes a credential. Callers update their own username and email;
// the remaining fields are reserved to administrators.
func (s *Service) Update(ctx context.Context, actor acl.Subject, tenantID, id string, req UpdateRequest) (*Credentials, error) {
	self := !actor.Anonymous && actor.ID == id
	if !self && !actor.IsAdmin() {
		return nil, errs.Forbidden(errs.CodeForbidden, "not allowed to update credentials [%s]", id)
	}
	if req.touchesAdminFields() && !actor.IsAdmin() {
		return nil, errs.Forbidden(errs.CodeForbidden, "only administrators can update enabled, enableAfter, disableAfter, roles and group")
	}
	c, err := s.target(ctx, actor, tenantID, id)
	if err != nil {
		return nil, err
	}
	if !self && !canAdminister(actor, c) {
		return nil, errs.Forbidden(errs.CodeForbidden, "not allowed to update credentials [%s]", id)
	}
	// demoted holds the roles of a superadmin losing that role
	var demoted []string
	if req.Version > 0 && req.Version != c.Version {
		return nil, errs.Conflict(errs.CodeVersionConflict, "credentials [%s] are at version [%d], not [%d]", id, c.Version, req.Version)
	}
	cs, err := s.Settings(ctx, c.Tenant)
	if err != nil {
		return nil, err
	}

	if req.Username != nil && *req.Username != c.Username {
		if err := cs.CheckUsername(*req.Username); err != nil {
			return nil, err
		}
		other, err := s.repo.byUsername(ctx, c.Tenant, *req.Username)
		if err != nil {
			return nil, err
		}
		if other != nil && other.ID != c.ID {
			return nil, errs.Conflict(errs.CodeAlreadyExists, "username [%s] already exists", *req.Username)
		}
		c.Username = *req.Username
	}
	if req.Email != nil {
		c.Email = *req.Email
	}
	if req.Enabled != nil {
		c.Enabled = *req.Enabled
		if c.Enabled {
			c.InvalidChallenges = 0
			c.LastInvalidChallengeAt = nil
		}
	}
	if req.EnableAfter != nil {
		if c.EnableAfter, err = parseWindow("enableAfter", *req.EnableAfter); err != nil {
			return nil, err
		}
	}
	if req.DisableAfter != nil {
		if c.DisableAfter, err = parseWindow("disableAfter", *req.DisableAfter); err != nil {
			return nil, err
		}
	}
	if req.Roles != nil {
		roles := normalizeRoles(*req.Roles)
		if err := checkRoleGrant(actor, roles); err != nil {
			return nil, err
		}
		previous := c.Roles
		wasSuperadmin := c.HasRole(acl.RoleSuperAdmin)
		c.Roles = roles
		if wasSuperadmin && !c.HasRole(acl.RoleSuperAdmin) {
			if err := s.checkNotLastSuperadmin(ctx, c); err != nil {
				return nil, err
			}
			demoted = previous
		}
	}
	if req.Group != nil {
		c.Group = *req.Group
	}
	c.UpdatedAt = s.now()
	if err := s.repo.save(ctx, c); err != nil {
		return nil, err
	}
	if demoted != nil {
		err := s.keepSuperadmin(ctx, c.Tenant, func() error {
			c.Roles = demoted
			return s.repo.save(ctx, c)
		})
		if err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Delete removes a credential. The last superadmin of a tenant can not be
// deleted.
func (s *Service) Delete(ctx context.Context, actor acl.Subject, tenantID, id string) error {
	self := !actor.Anonymous && actor.ID == id
	if !self && !actor.IsAdmin() {
		return errs.Forbidden(errs.CodeForbidden, "not allowed to delete credentials [%s]", id)
	}
	c, err := s.repo.get(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if !self && !canAdminister(actor, c) {
		return errs.Forbidden(errs.CodeForbidden, "not allowed to delete credentials [%s]", id)
	}
	superadmin := c.HasRole(acl.RoleSuperAdmin)
	if superadmin {
		if err := s.checkNotLastSuperadmin(ctx, c); err != nil {
			return err
		}
	}
	if err := s.repo.delete(ctx, c); err != nil {
		return err
	}
	if superadmin {
		err := s.keepSuperadmin(ctx, c.Tenant, func() error {
			restored := *c
			restored.Version = 0
			return s.repo.create(ctx, &restored)
		})
		if err != nil {
			return err
		}
	}
	observability.FromContext(ctx).WithField("credentials_id", c.ID).Info("credentials deleted")
	return nil
}

// DeleteAll removes every credential of a tenant except its superadmins
func (s *Service) DeleteAll(ctx context.Context, actor acl.Subject, tenantID string) (int64, error) {
	if !actor.Bypass() {
		return 0, errs.Forbidden(errs.CodeForbidden, "only superadmins can delete all credentials")
	}
	all, err := s.repo.all(ctx, tenantID, engine.Query{})
	if err != nil {
		return 0, err
	}
	var ids []string
	for _, c := range all {
		if !c.IsSuperAdmin() {
			ids = append(ids, c.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := s.engine.DeleteByQuery(ctx, []string{alias(tenantID)}, engine.Query{IDs: ids})
	if err != nil {
		return 0, translate(err, "")
	}
	return n, nil
}
