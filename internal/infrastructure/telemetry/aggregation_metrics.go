package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/restodash/backend/internal/domain/pnl"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Refresh outcome labels.
const (
	StatusSuccess      = "success"
	StatusFailed       = "failed"
	StatusInvalidScope = "invalid_scope"
)

var (
	attrLocationID = attribute.Key("location_id")
	attrStatus     = attribute.Key("status")
)

// aggregationDurationBuckets are histogram boundaries in seconds for one
// scope refresh, fetch and upsert included.
var aggregationDurationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// ErrMeterNil is returned by NewAggregationMetrics when meter is nil.
var ErrMeterNil = errors.New("NewAggregationMetrics: meter cannot be nil")

// AggregationMetrics records P&L aggregation activity. A nil
// *AggregationMetrics records nothing.
type AggregationMetrics struct {
	aggregations metric.Int64Counter
	lineItems    metric.Int64Counter
	duplicates   metric.Int64Counter
	unclassified metric.Int64Counter
	duration     metric.Float64Histogram
}

func NewAggregationMetrics(meter metric.Meter) (*AggregationMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	m := &AggregationMetrics{}
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&m.aggregations, "pnl_aggregations_total", "Number of scope aggregations by outcome", "{aggregations}"},
		{&m.lineItems, "pnl_line_items_total", "Line items folded into summaries after deduplication", "{items}"},
		{&m.duplicates, "pnl_duplicates_total", "Line items dropped as duplicates", "{items}"},
		{&m.unclassified, "pnl_unclassified_total", "Line items that matched no rule and were classified by sign", "{items}"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", c.name, err)
		}
		*c.dst = counter
	}

	duration, err := meter.Float64Histogram("pnl_aggregation_duration_seconds",
		metric.WithDescription("Duration of one scope refresh"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(aggregationDurationBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("create histogram pnl_aggregation_duration_seconds: %w", err)
	}
	m.duration = duration

	return m, nil
}

// RecordSummary records a successful aggregation.
func (m *AggregationMetrics) RecordSummary(ctx context.Context, summary *pnl.PeriodSummary, elapsed time.Duration) {
	if m == nil || summary == nil {
		return
	}
	location := metric.WithAttributes(attrLocationID.String(summary.LocationID))

	m.record(ctx, StatusSuccess, elapsed)
	m.lineItems.Add(ctx, int64(summary.RecordCount), location)
	if summary.DuplicateCount > 0 {
		m.duplicates.Add(ctx, int64(summary.DuplicateCount), location)
	}
	if summary.UnclassifiedCount > 0 {
		m.unclassified.Add(ctx, int64(summary.UnclassifiedCount), location)
	}
}

// RecordFailure records a failed aggregation under status.
func (m *AggregationMetrics) RecordFailure(ctx context.Context, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.record(ctx, status, elapsed)
}

func (m *AggregationMetrics) record(ctx context.Context, status string, elapsed time.Duration) {
	outcome := metric.WithAttributes(attrStatus.String(status))
	m.aggregations.Add(ctx, 1, outcome)
	m.duration.Record(ctx, elapsed.Seconds(), outcome)
}
