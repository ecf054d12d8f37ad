// Package pnl orchestrates P&L aggregation: it pages line items out of the
// ledger store, runs the domain aggregator and keeps the summary store current.
package pnl

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/restodash/backend/internal/domain/pnl"
	"github.com/restodash/backend/internal/domain/shared"
	"github.com/restodash/backend/internal/infrastructure/logger"
	"github.com/restodash/backend/internal/infrastructure/scheduler"
	"github.com/restodash/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultPageSize = 1000
	DefaultWorkers  = 4
)

// ReconciliationResult compares a stored summary with a fresh recompute.
type ReconciliationResult struct {
	Scope          pnl.Scope          `json:"scope"`
	Stored         *pnl.PeriodSummary `json:"stored,omitempty"`
	Computed       *pnl.PeriodSummary `json:"computed"`
	Differences    []pnl.FieldDiff    `json:"differences"`
	Reconciliation pnl.Reconciliation `json:"reconciliation"`
}

// InSync reports whether the stored summary matches the recompute.
func (r *ReconciliationResult) InSync() bool {
	return r.Stored != nil && len(r.Differences) == 0
}

// ScopeFailure records one scope that could not be refreshed.
type ScopeFailure struct {
	Scope pnl.Scope `json:"scope"`
	Code  string    `json:"code,omitempty"`
	Error string    `json:"error"`
}

// BatchResult is the outcome of RefreshAll.
type BatchResult struct {
	RunID     string         `json:"run_id"`
	Total     int            `json:"total"`
	Refreshed []pnl.Scope    `json:"refreshed"`
	Failed    []ScopeFailure `json:"failed"`
	Skipped   int            `json:"skipped"`
	Duration  time.Duration  `json:"duration"`
}

// ServiceOption configures an AggregationService.
type ServiceOption func(*AggregationService)

// WithPageSize sets how many line items are read per store round trip.
func WithPageSize(n int) ServiceOption {
	return func(s *AggregationService) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithWorkers bounds the number of scopes RefreshAll processes at once.
func WithWorkers(n int) ServiceOption {
	return func(s *AggregationService) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithMetrics records aggregation outcomes on m.
func WithMetrics(m *telemetry.AggregationMetrics) ServiceOption {
	return func(s *AggregationService) {
		s.metrics = m
	}
}

// WithClock overrides the clock used for ComputedAt.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *AggregationService) {
		if now != nil {
			s.now = now
		}
	}
}

// AggregationService computes and stores period summaries.
type AggregationService struct {
	lineItems  pnl.LineItemRepository
	summaries  pnl.SummaryRepository
	aggregator *pnl.Aggregator
	metrics    *telemetry.AggregationMetrics
	logger     *zap.Logger

	pageSize int
	workers  int
	now      func() time.Time
}

// NewAggregationService creates a new aggregation service
func NewAggregationService(
	lineItems pnl.LineItemRepository,
	summaries pnl.SummaryRepository,
	aggregator *pnl.Aggregator,
	logger *zap.Logger,
	opts ...ServiceOption,
) *AggregationService {
	if aggregator == nil {
		aggregator = pnl.NewAggregator()
	}
	s := &AggregationService{
		lineItems:  lineItems,
		summaries:  summaries,
		aggregator: aggregator,
		logger:     logger,
		pageSize:   DefaultPageSize,
		workers:    DefaultWorkers,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// fetchItems reads every page of the scope until a short page.
func (s *AggregationService) fetchItems(ctx context.Context, scope pnl.Scope) ([]pnl.LineItem, int, error) {
	var items []pnl.LineItem
	pages := 0
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, pages, err
		}
		batch, err := s.lineItems.FindByScope(ctx, scope, page, s.pageSize)
		if err != nil {
			return nil, pages, fmt.Errorf("fetch line items %s page %d: %w", scope, page, err)
		}
		pages++
		items = append(items, batch...)
		if len(batch) < s.pageSize {
			return items, pages, nil
		}
	}
}

// ComputeScope aggregates the scope's line items without storing the result.
func (s *AggregationService) ComputeScope(ctx context.Context, scope pnl.Scope) (*pnl.PeriodSummary, error) {
	summary, _, err := s.compute(ctx, scope)
	return summary, err
}

func (s *AggregationService) compute(ctx context.Context, scope pnl.Scope) (*pnl.PeriodSummary, []pnl.LineItem, error) {
	if err := scope.Validate(); err != nil {
		return nil, nil, err
	}

	items, pages, err := s.fetchItems(ctx, scope)
	if err != nil {
		return nil, nil, err
	}

	summary, err := s.aggregator.Aggregate(items, scope)
	if err != nil {
		return nil, nil, err
	}
	summary.ComputedAt = s.now().UTC()

	logger.WithLogger(ctx, s.logger).Debug("Scope aggregated",
		zap.String("scope", scope.String()),
		zap.Int("pages", pages),
		zap.Int("line_items", len(items)),
		zap.Int("duplicates", summary.DuplicateCount),
		zap.Int("unclassified", summary.UnclassifiedCount),
	)
	return summary, items, nil
}

// RefreshScope recomputes the scope and upserts the summary.
func (s *AggregationService) RefreshScope(ctx context.Context, scope pnl.Scope) (*pnl.PeriodSummary, error) {
	start := time.Now()
	ctx, span := telemetry.StartScopeSpan(ctx, "pnl.refresh_scope", scope)
	defer span.End()
	ctx, scoped := logger.WithScope(ctx, s.logger, scope)
	log := logger.WithLogger(ctx, scoped)

	summary, err := s.ComputeScope(ctx, scope)
	if err != nil {
		telemetry.RecordError(span, err)
		s.metrics.RecordFailure(ctx, failureStatus(err), time.Since(start))
		log.Warn("Aggregation failed", zap.Error(err))
		return nil, err
	}

	if err := s.summaries.Upsert(ctx, summary); err != nil {
		err = fmt.Errorf("store summary %s: %w", scope, err)
		telemetry.RecordError(span, err)
		s.metrics.RecordFailure(ctx, telemetry.StatusFailed, time.Since(start))
		log.Error("Failed to store summary", zap.Error(err))
		return nil, err
	}

	telemetry.AnnotateSummary(span, summary)
	s.metrics.RecordSummary(ctx, summary, time.Since(start))
	log.Info("Summary refreshed",
		zap.Int("records", summary.RecordCount),
		zap.Int("duplicates", summary.DuplicateCount),
		zap.String("revenue_total", summary.RevenueTotal.String()),
		zap.String("result", summary.Result.String()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return summary, nil
}

func failureStatus(err error) string {
	if errors.Is(err, pnl.ErrInvalidScope) {
		return telemetry.StatusInvalidScope
	}
	return telemetry.StatusFailed
}

// GetSummary returns the stored summary of scope.
func (s *AggregationService) GetSummary(ctx context.Context, scope pnl.Scope) (*pnl.PeriodSummary, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return s.summaries.FindByScope(ctx, scope)
}

// ListSummaries returns the stored summaries of a location, optionally for one year.
func (s *AggregationService) ListSummaries(ctx context.Context, locationID string, year int) ([]*pnl.PeriodSummary, error) {
	if locationID == "" {
		return nil, fmt.Errorf("%w: location id is empty", pnl.ErrInvalidScope)
	}
	return s.summaries.ListByLocation(ctx, locationID, year)
}

// ReconcileScope recomputes the scope and compares it with the stored summary.
// A missing stored summary is reported, not returned as an error.
func (s *AggregationService) ReconcileScope(ctx context.Context, scope pnl.Scope) (*ReconciliationResult, error) {
	computed, items, err := s.compute(ctx, scope)
	if err != nil {
		return nil, err
	}

	stored, err := s.summaries.FindByScope(ctx, scope)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("load stored summary %s: %w", scope, err)
	}

	result := &ReconciliationResult{
		Scope:          scope,
		Stored:         stored,
		Computed:       computed,
		Reconciliation: pnl.Reconcile(items, computed),
	}
	if stored != nil {
		result.Differences = pnl.Diff(stored, computed)
	}

	_, log := logger.WithScope(ctx, s.logger, scope)
	switch {
	case stored == nil:
		log.Info("No stored summary to reconcile against")
	case len(result.Differences) > 0:
		log.Warn("Stored summary drifted from ledger", zap.Int("differences", len(result.Differences)))
	}
	if !result.Reconciliation.Balanced {
		log.Error("Aggregation does not balance",
			zap.String("difference", result.Reconciliation.Difference.String()))
	}
	return result, nil
}

// RefreshAll refreshes every scope matching filter on a bounded worker pool.
// Failed scopes are collected in the result and do not stop the others.
// Cancelling ctx stops dispatching; unstarted scopes are counted as skipped.
func (s *AggregationService) RefreshAll(ctx context.Context, filter pnl.ScopeFilter) (*BatchResult, error) {
	start := time.Now()
	runID := uuid.NewString()
	ctx, log := logger.WithRunID(ctx, s.logger, runID)

	scopes, err := s.lineItems.ListScopes(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list scopes: %w", err)
	}

	ctx, span := telemetry.StartSpan(ctx, "pnl.refresh_all",
		telemetry.KeyScopes.Int(len(scopes)),
		telemetry.KeyRunID.String(runID),
	)
	defer span.End()

	log.Info("Batch refresh started",
		zap.Int("scopes", len(scopes)),
		zap.Int("workers", s.workers),
	)

	result := &BatchResult{RunID: runID, Total: len(scopes)}
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(s.workers)
	for _, scope := range scopes {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			_, err := s.RefreshScope(ctx, scope)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed = append(result.Failed, ScopeFailure{
					Scope: scope,
					Code:  shared.ErrorCode(err),
					Error: err.Error(),
				})
			} else {
				result.Refreshed = append(result.Refreshed, scope)
			}
			return nil
		})
	}
	_ = g.Wait()

	sortScopes(result.Refreshed)
	sort.Slice(result.Failed, func(i, j int) bool {
		return scopeLess(result.Failed[i].Scope, result.Failed[j].Scope)
	})
	result.Skipped = result.Total - len(result.Refreshed) - len(result.Failed)
	result.Duration = time.Since(start)

	log.Info("Batch refresh finished",
		zap.Int("refreshed", len(result.Refreshed)),
		zap.Int("failed", len(result.Failed)),
		zap.Int("skipped", result.Skipped),
		zap.Duration("elapsed", result.Duration),
	)

	if err := ctx.Err(); err != nil {
		telemetry.RecordError(span, err)
		return result, err
	}
	return result, nil
}

// ListLocations returns the distinct locations present in the ledger store.
func (s *AggregationService) ListLocations(ctx context.Context) ([]string, error) {
	scopes, err := s.lineItems.ListScopes(ctx, pnl.ScopeFilter{})
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []string
	for _, sc := range scopes {
		if !seen[sc.LocationID] {
			seen[sc.LocationID] = true
			out = append(out, sc.LocationID)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Execute implements scheduler.JobExecutor
func (s *AggregationService) Execute(ctx context.Context, job *scheduler.Job) error {
	ctx, _ = logger.WithJobID(ctx, s.logger, job.ID.String())
	_, err := s.RefreshScope(ctx, job.Scope)
	return err
}

func sortScopes(scopes []pnl.Scope) {
	sort.Slice(scopes, func(i, j int) bool { return scopeLess(scopes[i], scopes[j]) })
}

func scopeLess(a, b pnl.Scope) bool {
	if a.LocationID != b.LocationID {
		return a.LocationID < b.LocationID
	}
	if a.Year != b.Year {
		return a.Year < b.Year
	}
	return a.Month < b.Month
}

var (
	_ scheduler.JobExecutor   = (*AggregationService)(nil)
	_ scheduler.ScopeProvider = (*AggregationService)(nil)
)
