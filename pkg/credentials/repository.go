package credentials

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/platinummonkey/kennel/pkg/engine"
	"github.com/platinummonkey/kennel/pkg/errs"
	"github.com/platinummonkey/kennel/pkg/tenant"
)

// Mapping is the strict mapping of the credentials index
func Mapping() engine.Mapping {
	keyword := engine.Field{Type: engine.FieldKeyword}
	dateTime := engine.Field{Type: engine.FieldDate, Format: "date_time"}
	return engine.Mapping{
		Dynamic: engine.DynamicStrict,
		Properties: map[string]engine.Field{
			"backendId":                  keyword,
			"username":                   keyword,
			"passwordHash":               keyword,
			"passwordFingerprint":        keyword,
			"email":                      keyword,
			"roles":                      keyword,
			"group":                      keyword,
			"enabled":                    {Type: engine.FieldBoolean},
			"enableAfter":                dateTime,
			"disableAfter":               dateTime,
			"invalidChallenges":          {Type: engine.FieldInteger},
			"lastInvalidChallengeAt":     dateTime,
			"passwordMustChange":         {Type: engine.FieldBoolean},
			"passwordResetCode":          keyword,
			"passwordResetCodeExpiresAt": dateTime,
			"tokens": {Type: engine.FieldObject, Properties: map[string]engine.Field{
				"hash":        keyword,
				"fingerprint": keyword,
				"createdAt":   dateTime,
				"expiresAt":   dateTime,
			}},
			"createdAt": dateTime,
			"updatedAt": dateTime,
		},
	}
}

// repository persists credentials in the engine
type repository struct {
	engine engine.Engine
}

func alias(tenantID string) string {
	return tenant.Alias(tenantID, tenant.CredentialsType)
}

// InitIndex creates the credentials index of a tenant when missing
func InitIndex(ctx context.Context, e engine.Engine, tenantID string) error {
	exists, err := e.Exists(ctx, alias(tenantID))
	if err != nil {
		return errs.Internal(err, "failed to check credentials index")
	}
	if exists {
		return nil
	}
	err = e.CreateIndex(ctx, tenant.IndexName(tenantID, tenant.CredentialsType, 0), alias(tenantID), Mapping())
	if err != nil && !errors.Is(err, engine.ErrIndexExists) {
		return errs.Internal(err, "failed to create credentials index")
	}
	return nil
}

func toDocument(c *Credentials) (engine.Document, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return engine.Document{}, errs.Internal(err, "failed to encode credentials")
	}
	var source map[string]interface{}
	if err := json.Unmarshal(data, &source); err != nil {
		return engine.Document{}, errs.Internal(err, "failed to encode credentials")
	}
	return engine.Document{ID: c.ID, Source: source}, nil
}

func fromDocument(doc engine.Document) (*Credentials, error) {
	data, err := json.Marshal(doc.Source)
	if err != nil {
		return nil, errs.Internal(err, "failed to decode credentials [%s]", doc.ID)
	}
	c := &Credentials{}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, errs.Internal(err, "failed to decode credentials [%s]", doc.ID)
	}
	c.ID = doc.ID
	c.Version = doc.Version
	return c, nil
}

func translate(err error, id string) error {
	switch {
	case errors.Is(err, engine.ErrDocumentNotFound), errors.Is(err, engine.ErrIndexNotFound):
		return errs.NotFound("credentials [%s] not found", id)
	case errors.Is(err, engine.ErrVersionConflict):
		return errs.Conflict(errs.CodeVersionConflict, "credentials [%s] have been updated concurrently", id)
	case errors.Is(err, engine.ErrDocumentExists):
		return errs.Conflict(errs.CodeAlreadyExists, "credentials [%s] already exist", id)
	case errors.Is(err, engine.ErrStrictMapping):
		return errs.InvalidParameter("invalid credentials: %v", err)
	default:
		var e *errs.Error
		if errors.As(err, &e) {
			return err
		}
		return errs.Internal(err, "credentials storage failure")
	}
}

func (r *repository) get(ctx context.Context, tenantID, id string) (*Credentials, error) {
	doc, err := r.engine.Get(ctx, alias(tenantID), id)
	if err != nil {
		return nil, translate(err, id)
	}
	return fromDocument(doc)
}

// findOne returns the first credential matching terms, nil when none
func (r *repository) findOne(ctx context.Context, tenantID string, terms map[string][]interface{}) (*Credentials, error) {
	res, err := r.search(ctx, tenantID, engine.Query{Terms: terms}, 0, 1)
	if err != nil {
		return nil, err
	}
	if len(res.Results) == 0 {
		return nil, nil
	}
	return res.Results[0], nil
}

func (r *repository) byUsername(ctx context.Context, tenantID, username string) (*Credentials, error) {
	return r.findOne(ctx, tenantID, map[string][]interface{}{"username": {username}})
}

func (r *repository) byTokenHash(ctx context.Context, tenantID, hash string) (*Credentials, error) {
	return r.findOne(ctx, tenantID, map[string][]interface{}{"tokens.hash": {hash}})
}

func (r *repository) create(ctx context.Context, c *Credentials) error {
	if err := InitIndex(ctx, r.engine, c.Tenant); err != nil {
		return err
	}
	doc, err := toDocument(c)
	if err != nil {
		return err
	}
	stored, err := r.engine.Index(ctx, alias(c.Tenant), doc, engine.WriteOptions{CreateOnly: true})
	if err != nil {
		return translate(err, c.ID)
	}
	c.ID = stored.ID
	c.Version = stored.Version
	return nil
}

// save writes c if its stored version is still c.Version
func (r *repository) save(ctx context.Context, c *Credentials) error {
	doc, err := toDocument(c)
	if err != nil {
		return err
	}
	stored, err := r.engine.Index(ctx, alias(c.Tenant), doc, engine.WriteOptions{Version: c.Version})
	if err != nil {
		return translate(err, c.ID)
	}
	c.Version = stored.Version
	return nil
}

func (r *repository) delete(ctx context.Context, c *Credentials) error {
	if err := r.engine.Delete(ctx, alias(c.Tenant), c.ID, c.Version); err != nil {
		return translate(err, c.ID)
	}
	return nil
}

func (r *repository) search(ctx context.Context, tenantID string, q engine.Query, from, size int) (*SearchResult, error) {
	res, err := r.engine.Search(ctx, engine.SearchRequest{
		Aliases: []string{alias(tenantID)},
		Query:   q,
		From:    from,
		Size:    size,
		Sort:    []engine.SortField{{Field: "username"}},
	})
	if err != nil {
		return nil, translate(err, "")
	}
	out := &SearchResult{Total: res.Total, Results: make([]*Credentials, 0, len(res.Hits))}
	for _, hit := range res.Hits {
		c, err := fromDocument(hit.Document)
		if err != nil {
			return nil, err
		}
		out.Results = append(out.Results, c)
	}
	return out, nil
}

// all returns every credential matching q
func (r *repository) all(ctx context.Context, tenantID string, q engine.Query) ([]*Credentials, error) {
	head, err := r.search(ctx, tenantID, q, 0, 0)
	if err != nil || head.Total == 0 {
		return nil, err
	}
	res, err := r.search(ctx, tenantID, q, 0, int(head.Total))
	if err != nil {
		return nil, err
	}
	return res.Results, nil
}

func (r *repository) count(ctx context.Context, tenantID string, q engine.Query) (int64, error) {
	res, err := r.search(ctx, tenantID, q, 0, 0)
	if err != nil {
		return 0, err
	}
	return res.Total, nil
}
