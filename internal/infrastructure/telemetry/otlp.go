// Package telemetry wires the aggregator into OpenTelemetry traces, metrics
// and logs, and into continuous profiling with Pyroscope.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.uber.org/zap"
)

const (
	serviceVersion  = "1.0.0"
	shutdownTimeout = 10 * time.Second
)

// Collector is the OTLP gRPC endpoint that receives every exported signal,
// plus the identity the aggregator reports itself under.
type Collector struct {
	Endpoint    string
	Insecure    bool
	ServiceName string
	Environment string
}

func (c Collector) resource() (*resource.Resource, error) {
	attrs := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(c.ServiceName),
		semconv.ServiceVersion(serviceVersion),
	)
	if c.Environment != "" {
		attrs, _ = resource.Merge(attrs, resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.DeploymentEnvironmentName(c.Environment),
		))
	}
	res, err := resource.Merge(resource.Default(), attrs)
	if err != nil {
		return nil, fmt.Errorf("build otel resource for %s: %w", c.ServiceName, err)
	}
	return res, nil
}

// shutdownProvider flushes one signal pipeline, bounded by shutdownTimeout.
func shutdownProvider(ctx context.Context, signal string, logger *zap.Logger, shutdown func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := shutdown(ctx); err != nil {
		logger.Error("Telemetry pipeline did not flush", zap.String("signal", signal), zap.Error(err))
		return fmt.Errorf("shutdown %s provider: %w", signal, err)
	}
	logger.Debug("Telemetry pipeline flushed", zap.String("signal", signal))
	return nil
}
