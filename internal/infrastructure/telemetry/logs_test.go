package telemetry_test

import (
	"context"
	"testing"

	"github.com/grafana/pyroscope-go"
	"github.com/restodash/backend/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

func TestLoggerProvider_DisabledBridgeReturnsBase(t *testing.T) {
	ctx := context.Background()
	lp, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{Enabled: false}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.False(t, lp.IsEnabled())

	base := zap.NewNop()
	assert.Same(t, base, lp.Bridge(base, zapcore.InfoLevel))
	assert.NoError(t, lp.Shutdown(ctx))
}

func TestParseProfileTypes(t *testing.T) {
	types, err := telemetry.ParseProfileTypes(nil)
	require.NoError(t, err)
	assert.Equal(t, []pyroscope.ProfileType{pyroscope.ProfileCPU, pyroscope.ProfileAllocSpace}, types)

	types, err = telemetry.ParseProfileTypes([]string{"goroutines", "inuse_space"})
	require.NoError(t, err)
	assert.Equal(t, []pyroscope.ProfileType{pyroscope.ProfileGoroutines, pyroscope.ProfileInuseSpace}, types)

	_, err = telemetry.ParseProfileTypes([]string{"mutex"})
	assert.Error(t, err)
}

func TestNewProfiler(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("disabled", func(t *testing.T) {
		p, err := telemetry.NewProfiler(telemetry.ProfilerConfig{Enabled: false}, logger)
		require.NoError(t, err)
		assert.False(t, p.IsEnabled())
		assert.NoError(t, p.Stop())
		assert.NoError(t, p.Stop())
	})

	t.Run("missing server address", func(t *testing.T) {
		_, err := telemetry.NewProfiler(telemetry.ProfilerConfig{Enabled: true, ApplicationName: "app"}, logger)
		assert.ErrorContains(t, err, "server address")
	})

	t.Run("missing application name", func(t *testing.T) {
		_, err := telemetry.NewProfiler(telemetry.ProfilerConfig{Enabled: true, ServerAddress: "http://localhost:4040"}, logger)
		assert.ErrorContains(t, err, "application name")
	})
}
