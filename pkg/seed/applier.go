package seed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/kennel/pkg/acl"
	"github.com/platinummonkey/kennel/pkg/backend"
	"github.com/platinummonkey/kennel/pkg/credentials"
	"github.com/platinummonkey/kennel/pkg/errs"
	"github.com/platinummonkey/kennel/pkg/schema"
	"github.com/platinummonkey/kennel/pkg/settings"
)

// actor is the subject manifests are applied as
var actor = acl.Subject{ID: "kennel-seed", Roles: []string{acl.RoleSuperAdmin}}

// Result summarizes one apply
type Result struct {
	BackendID          string
	Created            bool
	Settings           int
	Schemas            int
	CredentialsCreated int
	CredentialsKept    int
}

// Applier converges backends towards their manifests. Applying a manifest
// twice changes nothing the second time: existing credentials are kept as
// they are and schemas are merged.
type Applier struct {
	backends    *backend.Service
	credentials *credentials.Service
	schemas     *schema.Registry
	settings    *settings.Store
	log         *logrus.Logger
}

// NewApplier creates a new Applier
func NewApplier(backends *backend.Service, creds *credentials.Service, schemas *schema.Registry, st *settings.Store, log *logrus.Logger) *Applier {
	if log == nil {
		log = logrus.New()
	}
	return &Applier{
		backends:    backends,
		credentials: creds,
		schemas:     schemas,
		settings:    st,
		log:         log,
	}
}

// Apply creates the backend when missing, then stores its settings and
// schemas and creates the missing credentials
func (a *Applier) Apply(ctx context.Context, m *Manifest) (*Result, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	res := &Result{BackendID: m.BackendID}
	log := a.log.WithFields(logrus.Fields{"backend": m.BackendID, "source": m.Source})

	exists, err := a.backends.Exists(ctx, m.BackendID)
	if err != nil {
		return nil, err
	}
	if !exists {
		if m.Superadmin == nil {
			return nil, fmt.Errorf("backend %s does not exist and the manifest has no superadmin", m.BackendID)
		}
		if _, err := a.backends.Create(ctx, m.BackendID, *m.Superadmin); err != nil {
			return nil, fmt.Errorf("failed to create backend %s: %w", m.BackendID, err)
		}
		res.Created = true
		log.Info("Created backend")
	}

	if m.CredentialsSettings != nil {
		data, err := json.Marshal(m.CredentialsSettings)
		if err != nil {
			return nil, fmt.Errorf("failed to encode credentials settings: %w", err)
		}
		if _, err := a.credentials.PutSettings(ctx, actor, m.BackendID, data); err != nil {
			return nil, fmt.Errorf("failed to store credentials settings: %w", err)
		}
		res.Settings++
	}

	for _, id := range sortedKeys(m.Settings) {
		if id == settings.CredentialsID || id == settings.DataACLID {
			return nil, fmt.Errorf("settings %s can not be seeded directly", id)
		}
		if err := a.settings.Put(ctx, m.BackendID, id, m.Settings[id]); err != nil {
			return nil, fmt.Errorf("failed to store settings %s: %w", id, err)
		}
		res.Settings++
	}

	for _, name := range sortedKeys(m.Schemas) {
		s, err := parseSchema(name, m.Schemas[name])
		if err != nil {
			return nil, err
		}
		created, err := a.schemas.Set(ctx, m.BackendID, actor, s)
		if err != nil {
			return nil, fmt.Errorf("failed to set schema %s: %w", name, err)
		}
		res.Schemas++
		log.WithFields(logrus.Fields{"schema": name, "created": created}).Debug("Set schema")
	}

	for _, req := range m.Credentials {
		_, err := a.credentials.Create(ctx, actor, m.BackendID, req)
		switch {
		case err == nil:
			res.CredentialsCreated++
			log.WithField("username", req.Username).Info("Created credentials")
		case errors.Is(err, errs.ErrConflict):
			res.CredentialsKept++
			log.WithField("username", req.Username).Debug("Credentials already exist")
		default:
			return nil, fmt.Errorf("failed to create credentials %s: %w", req.Username, err)
		}
	}

	log.WithFields(logrus.Fields{
		"settings":    res.Settings,
		"schemas":     res.Schemas,
		"credentials": res.CredentialsCreated,
	}).Info("Applied manifest")
	return res, nil
}

// ApplyAll applies manifests in order and stops at the first failure
func (a *Applier) ApplyAll(ctx context.Context, manifests []*Manifest) ([]*Result, error) {
	results := make([]*Result, 0, len(manifests))
	for _, m := range manifests {
		res, err := a.Apply(ctx, m)
		if err != nil {
			return results, fmt.Errorf("%s: %w", m.Source, err)
		}
		results = append(results, res)
	}
	return results, nil
}

// parseSchema reads a schema written as YAML in the schema JSON grammar
func parseSchema(name string, def map[string]interface{}) (*schema.Schema, error) {
	data, err := json.Marshal(map[string]interface{}{name: def})
	if err != nil {
		return nil, fmt.Errorf("schema %s is not representable as JSON: %w", name, err)
	}
	s, err := schema.Parse(name, data)
	if err != nil {
		return nil, fmt.Errorf("invalid schema %s: %w", name, err)
	}
	return s, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
