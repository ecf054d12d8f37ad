package logger

import (
	"context"
	"testing"

	"github.com/restodash/backend/internal/domain/pnl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()), "falls back to a no-op logger")

	base := zap.NewExample()
	assert.Same(t, base, FromContext(WithContext(context.Background(), base)))

	wrong := context.WithValue(context.Background(), loggerKey, "not a logger")
	assert.NotNil(t, FromContext(wrong))
}

func TestWithScope(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	scope := pnl.Scope{LocationID: "L1", Year: 2025, Month: 2}

	ctx, enriched := WithScope(context.Background(), zap.New(core), scope)
	enriched.Info("aggregated")

	got, ok := GetScope(ctx)
	require.True(t, ok)
	assert.Equal(t, scope, got)
	assert.Same(t, enriched, FromContext(ctx))

	fields := recorded.All()[0].ContextMap()
	assert.Equal(t, "L1", fields["location_id"])
	assert.Equal(t, int64(2025), fields["year"])
	assert.Equal(t, int64(2), fields["month"])
}

func TestJobAndRunIDs(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetJobID(ctx))
	assert.Empty(t, GetRunID(ctx))
	_, ok := GetScope(ctx)
	assert.False(t, ok)

	ctx, _ = WithJobID(ctx, zap.NewNop(), "job-1")
	ctx, _ = WithRunID(ctx, zap.NewNop(), "run-9")
	assert.Equal(t, "job-1", GetJobID(ctx))
	assert.Equal(t, "run-9", GetRunID(ctx))
}

func TestTraceCorrelation(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetTraceID(ctx))
	assert.Empty(t, GetSpanID(ctx))

	base := zap.NewNop()
	assert.Same(t, base, WithTraceContext(ctx, base))

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(ctx, "refresh")
	defer span.End()

	assert.Equal(t, span.SpanContext().TraceID().String(), GetTraceID(ctx))
	assert.Equal(t, span.SpanContext().SpanID().String(), GetSpanID(ctx))
	assert.NotSame(t, base, WithTraceContext(ctx, base))
}

func TestContextLogger_EnrichesFields(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(context.Background(), "refresh")
	defer span.End()

	ctx = WithContext(ctx, zap.New(core))
	ctx = context.WithValue(ctx, jobIDKey, "job-1")
	ctx = context.WithValue(ctx, runIDKey, "run-1")

	L(ctx).With(zap.String("extra", "x")).Info("stored")
	L(ctx).Debug("debug")
	L(ctx).Warn("warn")
	L(ctx).Error("error")

	logs := recorded.All()
	require.Len(t, logs, 4)
	fields := logs[0].ContextMap()
	assert.Equal(t, "job-1", fields["job_id"])
	assert.Equal(t, "run-1", fields["run_id"])
	assert.Equal(t, "x", fields["extra"])
	assert.Equal(t, span.SpanContext().TraceID().String(), fields["trace_id"])
}

func TestContextLogger_NilLogger(t *testing.T) {
	cl := WithLogger(context.Background(), nil)
	assert.NotPanics(t, func() {
		cl.Info("ignored")
		cl.With(zap.String("k", "v")).Warn("ignored")
		_ = cl.Zap()
	})
}
