package telemetry

import (
	"context"

	"github.com/restodash/backend/internal/domain/pnl"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation name of aggregation spans.
const TracerName = "restodash/pnl"

// Span attribute keys.
const (
	KeyLocationID        = attribute.Key("pnl.location_id")
	KeyYear              = attribute.Key("pnl.year")
	KeyMonth             = attribute.Key("pnl.month")
	KeyRecordCount       = attribute.Key("pnl.record_count")
	KeyDuplicateCount    = attribute.Key("pnl.duplicate_count")
	KeyUnclassifiedCount = attribute.Key("pnl.unclassified_count")
	KeyScopes            = attribute.Key("pnl.scopes")
	KeyRunID             = attribute.Key("pnl.run_id")
)

// StartSpan starts an internal span on the global tracer provider. The
// caller ends it.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.GetTracerProvider().Tracer(TracerName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// StartScopeSpan starts a span tagged with the location-month it works on.
//
//	ctx, span := telemetry.StartScopeSpan(ctx, "pnl.refresh_scope", scope)
//	defer span.End()
func StartScopeSpan(ctx context.Context, name string, scope pnl.Scope, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, name, append(ScopeAttributes(scope), attrs...)...)
}

// ScopeAttributes returns the span attributes identifying scope.
func ScopeAttributes(scope pnl.Scope) []attribute.KeyValue {
	return []attribute.KeyValue{
		KeyLocationID.String(scope.LocationID),
		KeyYear.Int(scope.Year),
		KeyMonth.Int(scope.Month),
	}
}

// AnnotateSummary records the record counts of a computed summary on span.
func AnnotateSummary(span trace.Span, summary *pnl.PeriodSummary) {
	if span == nil || summary == nil {
		return
	}
	span.SetAttributes(
		KeyRecordCount.Int(summary.RecordCount),
		KeyDuplicateCount.Int(summary.DuplicateCount),
		KeyUnclassifiedCount.Int(summary.UnclassifiedCount),
	)
}

// RecordError records err on span and marks it failed. A nil err is ignored.
func RecordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
