package observability

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const dbTracerName = "integrationgw/db"

// tag is a context value that is mirrored onto the active span as an attribute.
type tag struct {
	key  string
	attr attribute.Key
}

var (
	platformTag  = tag{key: "platform", attr: "integrationgw.platform"}
	eventIDTag   = tag{key: "event_id", attr: "integrationgw.event_id"}
	requestIDTag = tag{key: "request_id", attr: "request.id"}
	routeTag     = tag{key: "route", attr: "http.route"}
)

type tagKey struct{ name string }

func (t tag) ctxKey() tagKey { return tagKey{name: t.key} }

func (t tag) from(ctx context.Context) (string, bool) {
	value, _ := ctx.Value(t.ctxKey()).(string)
	return value, value != ""
}

// withTags stores the non-empty values in ctx and sets them on the span
// already carried by ctx.
func withTags(ctx context.Context, tags []tag, values ...string) context.Context {
	attrs := make([]attribute.KeyValue, 0, len(tags))
	for i, t := range tags {
		value := strings.TrimSpace(values[i])
		if value == "" {
			continue
		}
		ctx = context.WithValue(ctx, t.ctxKey(), value)
		attrs = append(attrs, t.attr.String(value))
	}
	if len(attrs) > 0 {
		trace.SpanFromContext(ctx).SetAttributes(attrs...)
	}
	return ctx
}

// Span is the subset of a tracing span the storage layer needs.
type Span interface {
	End()
	RecordError(error)
}

type dbSpan struct {
	span trace.Span
}

// StartDBSpan starts a client span for one named SQLite query.
func StartDBSpan(ctx context.Context, queryName, operation string) (context.Context, Span) {
	queryName = strings.TrimSpace(queryName)
	if queryName == "" {
		queryName = "unknown"
	}
	attrs := []attribute.KeyValue{
		attribute.String("db.system.name", "sqlite"),
		attribute.String("db.query_name", queryName),
		attribute.String("db.operation", strings.TrimSpace(operation)),
	}
	for _, t := range []tag{platformTag, eventIDTag} {
		if value, ok := t.from(ctx); ok {
			attrs = append(attrs, t.attr.String(value))
		}
	}

	ctx, span := otel.Tracer(dbTracerName).Start(ctx, "db."+queryName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
	return ctx, dbSpan{span: span}
}

func (s dbSpan) End() { s.span.End() }

func (s dbSpan) RecordError(err error) {
	if err == nil {
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

// WithWebhookIdentity tags ctx with the webhook source platform and stored event id.
func WithWebhookIdentity(ctx context.Context, platform, eventID string) context.Context {
	return withTags(ctx, []tag{platformTag, eventIDTag}, platform, eventID)
}

// WithRequestMetadata tags ctx with the request id and matched route.
func WithRequestMetadata(ctx context.Context, requestID, route string) context.Context {
	return withTags(ctx, []tag{requestIDTag, routeTag}, requestID, route)
}

func PlatformFromContext(ctx context.Context) (string, bool)  { return platformTag.from(ctx) }
func EventIDFromContext(ctx context.Context) (string, bool)   { return eventIDTag.from(ctx) }
func RequestIDFromContext(ctx context.Context) (string, bool) { return requestIDTag.from(ctx) }
func RouteFromContext(ctx context.Context) (string, bool)     { return routeTag.from(ctx) }
