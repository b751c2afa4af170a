package data

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/kennel/pkg/acl"
	"github.com/platinummonkey/kennel/pkg/engine"
	"github.com/platinummonkey/kennel/pkg/errs"
	"github.com/platinummonkey/kennel/pkg/observability"
	"github.com/platinummonkey/kennel/pkg/schema"
	"github.com/platinummonkey/kennel/pkg/tenant"
)

const tracerName = "github.com/platinummonkey/kennel/pkg/data"

// Options configures a Store
type Options struct {
	Clock func() time.Time
}

// Store reads and writes tenant objects
type Store struct {
	engine    engine.Engine
	schemas   *schema.Registry
	evaluator *acl.Evaluator
	tracer    trace.Tracer
	now       func() time.Time
}

// NewStore creates a data store
func NewStore(e engine.Engine, schemas *schema.Registry, evaluator *acl.Evaluator, opts Options) *Store {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Store{
		engine:    e,
		schemas:   schemas,
		evaluator: evaluator,
		tracer:    observability.Tracer(tracerName),
		now:       func() time.Time { return opts.Clock().UTC() },
	}
}

// UpdateRequest changes an object
type UpdateRequest struct {
	Type string
	ID   string
	// Version must equal the stored version when set
	Version int64
	Payload map[string]interface{}
	// Strict replaces the payload instead of patching it
	Strict bool
	// field replaces one top level property, keeping the others
	field string
}

func (s *Store) start(ctx context.Context, op, tenantID, typ string) (context.Context, func(*error)) {
	ctx, span := s.tracer.Start(ctx, "data."+op, trace.WithAttributes(
		attribute.String("kennel.tenant", tenantID),
		attribute.String("kennel.type", typ),
	))
	return ctx, func(errp *error) {
		if err := *errp; err != nil && errs.KindOf(err) == errs.KindInternal {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

func alias(tenantID, typ string) string {
	return tenant.Alias(tenantID, typ)
}

func forbidden(action, typ string) error {
	return errs.Forbidden(errs.CodeForbidden, "not allowed to %s [%s] objects", action, typ)
}

func translate(err error, typ, id string) error {
	switch {
	case errors.Is(err, engine.ErrIndexNotFound):
		return errs.NotFound("schema [%s] not found", typ)
	case errors.Is(err, engine.ErrDocumentNotFound):
		return errs.NotFound("object [%s] of type [%s] not found", id, typ)
	case errors.Is(err, engine.ErrVersionConflict):
		return errs.Conflict(errs.CodeVersionConflict, "object [%s] of type [%s] has been updated concurrently", id, typ)
	case errors.Is(err, engine.ErrDocumentExists):
		return errs.Conflict(errs.CodeAlreadyExists, "object [%s] of type [%s] already exists", id, typ)
	case errors.Is(err, engine.ErrStrictMapping):
		return errs.InvalidParameter("invalid [%s] object: %v", typ, err)
	default:
		var e *errs.Error
		if errors.As(err, &e) {
			return err
		}
		return errs.Internal(err, "data storage failure")
	}
}

// checkType refuses reserved type names before any permission lookup
func checkType(typ string) error {
	return schema.CheckName(typ)
}

func (s *Store) require(ctx context.Context, tenantID string, subject acl.Subject, typ, action string, perm acl.Permission) error {
	ok, err := s.evaluator.Check(ctx, tenantID, subject, typ, perm)
	if err != nil {
		return err
	}
	if !ok {
		return forbidden(action, typ)
	}
	return nil
}

func (s *Store) possible(ctx context.Context, tenantID string, subject acl.Subject, typ, action string, f acl.Family) error {
	ok, err := s.evaluator.Possible(ctx, tenantID, subject, typ, f)
	if err != nil {
		return err
	}
	if !ok {
		return forbidden(action, typ)
	}
	return nil
}

func (s *Store) authorize(ctx context.Context, tenantID string, subject acl.Subject, o *Object, action string, f acl.Family) error {
	grant, err := s.evaluator.CheckObject(ctx, tenantID, subject, o.Type, acl.Resource{Owner: o.Owner, Group: o.Group}, f)
	if err != nil {
		return err
	}
	if !grant.Allowed() {
		return errs.Forbidden(errs.CodeForbidden, "not allowed to %s object [%s] of type [%s]", action, o.ID, o.Type)
	}
	return nil
}

// Create stores a new object owned by subject. The id comes from the schema
// id path, else from id, else from the engine.
func (s *Store) Create(ctx context.Context, tenantID, typ, id string, source map[string]interface{}, subject acl.Subject) (obj *Object, err error) {
	ctx, end := s.start(ctx, "Create", tenantID, typ)
	defer end(&err)

	if err := checkType(typ); err != nil {
		return nil, err
	}
	if err := s.require(ctx, tenantID, subject, typ, "create", acl.Create); err != nil {
		return nil, err
	}
	return s.create(ctx, tenantID, typ, id, source, subject)
}

func (s *Store) create(ctx context.Context, tenantID, typ, id string, source map[string]interface{}, subject acl.Subject) (*Object, error) {
	sch, err := s.schemas.Get(ctx, tenantID, typ)
	if err != nil {
		return nil, err
	}
	body, err := payload(source)
	if err != nil {
		return nil, err
	}
	if err := sch.CheckRequired(body); err != nil {
		return nil, err
	}
	docID, err := resolveID(sch, body, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	o := &Object{ID: docID, Type: typ, CreatedAt: now, UpdatedAt: now, Source: body}
	if !subject.Anonymous {
		o.Owner = subject.ID
		o.Group = subject.Group
	}
	stored, err := s.engine.Index(ctx, alias(tenantID, typ), engine.Document{ID: docID, Source: o.storedSource()}, engine.WriteOptions{CreateOnly: true})
	if err != nil {
		return nil, translate(err, typ, docID)
	}
	return fromDocument(typ, stored), nil
}

// Get reads an object
func (s *Store) Get(ctx context.Context, tenantID, typ, id string, subject acl.Subject) (obj *Object, err error) {
	ctx, end := s.start(ctx, "Get", tenantID, typ)
	defer end(&err)

	if err := checkType(typ); err != nil {
		return nil, err
	}
	if err := s.possible(ctx, tenantID, subject, typ, "read", acl.ReadFamily); err != nil {
		return nil, err
	}
	o, err := s.read(ctx, tenantID, typ, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, tenantID, subject, o, "read", acl.ReadFamily); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Store) read(ctx context.Context, tenantID, typ, id string) (*Object, error) {
	doc, err := s.engine.Get(ctx, alias(tenantID, typ), id)
	if err != nil {
		return nil, translate(err, typ, id)
	}
	return fromDocument(typ, doc), nil
}

// Update patches or replaces an object. The write is conditional on the
// version read, so a concurrent writer makes it fail with a conflict.
func (s *Store) Update(ctx context.Context, tenantID string, req UpdateRequest, subject acl.Subject) (obj *Object, err error) {
	ctx, end := s.start(ctx, "Update", tenantID, req.Type)
	defer end(&err)

	if err := checkType(req.Type); err != nil {
		return nil, err
	}
	if err := s.possible(ctx, tenantID, subject, req.Type, "update", acl.UpdateFamily); err != nil {
		return nil, err
	}
	current, err := s.read(ctx, tenantID, req.Type, req.ID)
	if err != nil {
		return nil, err
	}
	return s.update(ctx, tenantID, current, req, subject)
}

// Save updates an object, creating it when it does not exist
func (s *Store) Save(ctx context.Context, tenantID string, req UpdateRequest, subject acl.Subject) (obj *Object, created bool, err error) {
	ctx, end := s.start(ctx, "Save", tenantID, req.Type)
	defer end(&err)

	if err := checkType(req.Type); err != nil {
		return nil, false, err
	}
	canUpdate, err := s.evaluator.Possible(ctx, tenantID, subject, req.Type, acl.UpdateFamily)
	if err != nil {
		return nil, false, err
	}
	canCreate, err := s.evaluator.Check(ctx, tenantID, subject, req.Type, acl.Create)
	if err != nil {
		return nil, false, err
	}
	if !canUpdate && !canCreate {
		return nil, false, forbidden("save", req.Type)
	}

	if _, err := s.schemas.Get(ctx, tenantID, req.Type); err != nil {
		return nil, false, err
	}

	current, err := s.read(ctx, tenantID, req.Type, req.ID)
	switch {
	case err == nil:
		if !canUpdate {
			return nil, false, forbidden("update", req.Type)
		}
		obj, err = s.update(ctx, tenantID, current, req, subject)
		return obj, false, err
	case errors.Is(err, errs.ErrNotFound):
		if !canCreate {
			return nil, false, forbidden("create", req.Type)
		}
		if req.Version > 0 {
			return nil, false, errs.Conflict(errs.CodeVersionConflict, "object [%s] of type [%s] does not exist at version [%d]", req.ID, req.Type, req.Version)
		}
		obj, err = s.create(ctx, tenantID, req.Type, req.ID, req.Payload, subject)
		return obj, err == nil, err
	default:
		return nil, false, err
	}
}

func (s *Store) update(ctx context.Context, tenantID string, current *Object, req UpdateRequest, subject acl.Subject) (*Object, error) {
	if err := s.authorize(ctx, tenantID, subject, current, "update", acl.UpdateFamily); err != nil {
		return nil, err
	}
	if req.Version > 0 && req.Version != current.Version {
		return nil, errs.Conflict(errs.CodeVersionConflict, "object [%s] of type [%s] is at version [%d], not [%d]",
			current.ID, current.Type, current.Version, req.Version)
	}
	sch, err := s.schemas.Get(ctx, tenantID, current.Type)
	if err != nil {
		return nil, err
	}
	body, err := payload(req.Payload)
	if err != nil {
		return nil, err
	}
	switch {
	case req.field != "":
		body = replaceField(current.Source, req.field, body[req.field])
	case !req.Strict:
		body = merge(current.Source, body)
	}
	if sch.IDPath != "" {
		if id, ok := idValue(body[sch.IDPath]); ok && id != current.ID {
			return nil, errs.InvalidParameter("field [%s] can not change the id of object [%s] to [%s]", sch.IDPath, current.ID, id)
		}
	}
	if err := sch.CheckRequired(body); err != nil {
		return nil, err
	}

	next := *current
	next.Source = body
	next.UpdatedAt = s.now()
	stored, err := s.engine.Index(ctx, alias(tenantID, current.Type), engine.Document{ID: current.ID, Source: next.storedSource()},
		engine.WriteOptions{Version: current.Version})
	if err != nil {
		return nil, translate(err, current.Type, current.ID)
	}
	return fromDocument(current.Type, stored), nil
}

// Delete removes an object
func (s *Store) Delete(ctx context.Context, tenantID, typ, id string, subject acl.Subject) (err error) {
	ctx, end := s.start(ctx, "Delete", tenantID, typ)
	defer end(&err)

	if err := checkType(typ); err != nil {
		return err
	}
	if err := s.possible(ctx, tenantID, subject, typ, "delete", acl.DeleteFamily); err != nil {
		return err
	}
	o, err := s.read(ctx, tenantID, typ, id)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, tenantID, subject, o, "delete", acl.DeleteFamily); err != nil {
		return err
	}
	if err := s.engine.Delete(ctx, alias(tenantID, typ), id, o.Version); err != nil {
		return translate(err, typ, id)
	}
	return nil
}

// DeleteAll removes every object of a type matching q
func (s *Store) DeleteAll(ctx context.Context, tenantID, typ string, q engine.Query, subject acl.Subject) (n int64, err error) {
	ctx, end := s.start(ctx, "DeleteAll", tenantID, typ)
	defer end(&err)

	if err := checkType(typ); err != nil {
		return 0, err
	}
	if err := s.require(ctx, tenantID, subject, typ, "delete", acl.Delete); err != nil {
		return 0, err
	}
	if _, err := s.schemas.Get(ctx, tenantID, typ); err != nil {
		return 0, err
	}
	n, err = s.engine.DeleteByQuery(ctx, []string{alias(tenantID, typ)}, q)
	if err != nil {
		return 0, translate(err, typ, "")
	}
	observability.FromContext(ctx).WithFields(map[string]interface{}{
		"type":    typ,
		"deleted": n,
	}).Info("objects deleted")
	return n, nil
}
