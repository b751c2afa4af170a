package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/kennel/pkg/observability"
)

const instrumentationName = "github.com/platinummonkey/kennel/pkg/engine"

// instrumented decorates an Engine with a per-call deadline, Prometheus
// counters and an OpenTelemetry span per operation.
type instrumented struct {
	next     Engine
	backend  string
	timeout  time.Duration
	metrics  *observability.Metrics
	tracer   trace.Tracer
	duration metric.Float64Histogram
}

// Instrument wraps next. A zero timeout leaves the caller's deadline alone.
// metrics may be nil.
func Instrument(next Engine, backend string, timeout time.Duration, metrics *observability.Metrics) Engine {
	in := &instrumented{
		next:    next,
		backend: backend,
		timeout: timeout,
		metrics: metrics,
		tracer:  otel.Tracer(instrumentationName),
	}
	hist, err := otel.Meter(instrumentationName).Float64Histogram(
		"kennel.engine.duration",
		metric.WithDescription("Document engine operation duration"),
		metric.WithUnit("s"),
	)
	if err == nil {
		in.duration = hist
	}
	return in
}

func (in *instrumented) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error) error) {
	start := time.Now()
	ctx, span := in.tracer.Start(ctx, "engine."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append(attrs, attribute.String("engine.backend", in.backend))...),
	)
	cancel := func() {}
	if in.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, in.timeout)
	}
	return ctx, func(err error) error {
		if err != nil && ctx.Err() != nil {
			err = fmt.Errorf("engine %s: %w", op, ctx.Err())
		}
		cancel()
		elapsed := time.Since(start)
		in.metrics.RecordEngineOperation(op, in.backend, elapsed, err)
		if in.duration != nil {
			in.duration.Record(context.Background(), elapsed.Seconds(), metric.WithAttributes(
				attribute.String("operation", op),
				attribute.String("backend", in.backend),
			))
		}
		if err != nil && !isExpected(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		return err
	}
}

// isExpected filters the sentinel errors that are ordinary outcomes rather
// than engine faults.
func isExpected(err error) bool {
	for _, target := range []error{ErrDocumentNotFound, ErrIndexNotFound, ErrVersionConflict, ErrDocumentExists} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func aliasAttr(alias string) attribute.KeyValue {
	return attribute.String("engine.alias", alias)
}

func (in *instrumented) CreateIndex(ctx context.Context, name, alias string, mapping Mapping) error {
	ctx, done := in.begin(ctx, "create_index", aliasAttr(alias))
	return done(in.next.CreateIndex(ctx, name, alias, mapping))
}

func (in *instrumented) PutMapping(ctx context.Context, alias string, mapping Mapping) error {
	ctx, done := in.begin(ctx, "put_mapping", aliasAttr(alias))
	return done(in.next.PutMapping(ctx, alias, mapping))
}

func (in *instrumented) Exists(ctx context.Context, alias string) (bool, error) {
	ctx, done := in.begin(ctx, "exists", aliasAttr(alias))
	ok, err := in.next.Exists(ctx, alias)
	return ok, done(err)
}

func (in *instrumented) GetMapping(ctx context.Context, alias string) (Mapping, error) {
	ctx, done := in.begin(ctx, "get_mapping", aliasAttr(alias))
	m, err := in.next.GetMapping(ctx, alias)
	return m, done(err)
}

func (in *instrumented) ListIndices(ctx context.Context, prefix string) ([]IndexInfo, error) {
	ctx, done := in.begin(ctx, "list_indices", attribute.String("engine.prefix", prefix))
	infos, err := in.next.ListIndices(ctx, prefix)
	return infos, done(err)
}

func (in *instrumented) DeleteIndex(ctx context.Context, alias string) error {
	ctx, done := in.begin(ctx, "delete_index", aliasAttr(alias))
	return done(in.next.DeleteIndex(ctx, alias))
}

func (in *instrumented) Index(ctx context.Context, alias string, doc Document, opts WriteOptions) (Document, error) {
	ctx, done := in.begin(ctx, "index", aliasAttr(alias), attribute.Bool("engine.create_only", opts.CreateOnly))
	out, err := in.next.Index(ctx, alias, doc, opts)
	return out, done(err)
}

func (in *instrumented) Get(ctx context.Context, alias, id string) (Document, error) {
	ctx, done := in.begin(ctx, "get", aliasAttr(alias))
	doc, err := in.next.Get(ctx, alias, id)
	return doc, done(err)
}

func (in *instrumented) Delete(ctx context.Context, alias, id string, version int64) error {
	ctx, done := in.begin(ctx, "delete", aliasAttr(alias))
	return done(in.next.Delete(ctx, alias, id, version))
}

func (in *instrumented) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	ctx, done := in.begin(ctx, "search",
		attribute.StringSlice("engine.aliases", req.Aliases),
		attribute.Int("engine.from", req.From),
		attribute.Int("engine.size", req.Size),
	)
	res, err := in.next.Search(ctx, req)
	return res, done(err)
}

func (in *instrumented) DeleteByQuery(ctx context.Context, aliases []string, query Query) (int64, error) {
	ctx, done := in.begin(ctx, "delete_by_query", attribute.StringSlice("engine.aliases", aliases))
	n, err := in.next.DeleteByQuery(ctx, aliases, query)
	return n, done(err)
}

func (in *instrumented) Refresh(ctx context.Context, aliases ...string) error {
	ctx, done := in.begin(ctx, "refresh")
	return done(in.next.Refresh(ctx, aliases...))
}

func (in *instrumented) Close() error {
	return in.next.Close()
}

// Unwrap returns the decorated engine.
func (in *instrumented) Unwrap() Engine {
	return in.next
}
