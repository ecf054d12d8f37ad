package pnl

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/restodash/backend/internal/domain/pnl"
	"github.com/restodash/backend/internal/domain/shared"
	"github.com/restodash/backend/internal/infrastructure/scheduler"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockLineItemRepository is a mock implementation of pnl.LineItemRepository
type MockLineItemRepository struct {
	mock.Mock
}

func (m *MockLineItemRepository) FindByScope(ctx context.Context, scope pnl.Scope, page, pageSize int) ([]pnl.LineItem, error) {
	args := m.Called(ctx, scope, page, pageSize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]pnl.LineItem), args.Error(1)
}

func (m *MockLineItemRepository) ListScopes(ctx context.Context, filter pnl.ScopeFilter) ([]pnl.Scope, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]pnl.Scope), args.Error(1)
}

func (m *MockLineItemRepository) SaveBatch(ctx context.Context, items []pnl.LineItem) error {
	args := m.Called(ctx, items)
	return args.Error(0)
}

// MockSummaryRepository is a mock implementation of pnl.SummaryRepository
type MockSummaryRepository struct {
	mock.Mock
}

func (m *MockSummaryRepository) Upsert(ctx context.Context, summary *pnl.PeriodSummary) error {
	args := m.Called(ctx, summary)
	return args.Error(0)
}

func (m *MockSummaryRepository) FindByScope(ctx context.Context, scope pnl.Scope) (*pnl.PeriodSummary, error) {
	args := m.Called(ctx, scope)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pnl.PeriodSummary), args.Error(1)
}

func (m *MockSummaryRepository) ListByLocation(ctx context.Context, locationID string, year int) ([]*pnl.PeriodSummary, error) {
	args := m.Called(ctx, locationID, year)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*pnl.PeriodSummary), args.Error(1)
}

const (
	catProducedGoods = "Netto-omzet uit leveringen geproduceerde goederen"
	catCostOfSales   = "Inkoopwaarde handelsgoederen"
	catLabor         = "Lonen en salarissen"
)

var fixedNow = time.Date(2025, 2, 1, 3, 0, 0, 0, time.UTC)

func scopeOf(location string, month int) pnl.Scope {
	return pnl.Scope{LocationID: location, Year: 2025, Month: month}
}

func lineItem(scope pnl.Scope, category, subcategory, amount string) pnl.LineItem {
	return pnl.LineItem{
		LocationID:  scope.LocationID,
		Year:        scope.Year,
		Month:       scope.Month,
		Category:    category,
		Subcategory: subcategory,
		Amount:      decimal.RequireFromString(amount),
	}
}

func sampleItems(scope pnl.Scope) []pnl.LineItem {
	return []pnl.LineItem{
		lineItem(scope, catProducedGoods, "Omzet lunch", "1000"),
		lineItem(scope, catProducedGoods, "Omzet diner", "1500"),
		lineItem(scope, catCostOfSales, "Inkoop food", "-700"),
		lineItem(scope, catLabor, "Bruto lonen", "-900"),
		lineItem(scope, catLabor, "Bruto lonen", "-900"),
	}
}

func newService(items *MockLineItemRepository, summaries *MockSummaryRepository, opts ...ServiceOption) *AggregationService {
	opts = append([]ServiceOption{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewAggregationService(items, summaries, pnl.NewAggregator(), zap.NewNop(), opts...)
}

func TestComputeScope_ReadsAllPages(t *testing.T) {
	scope := scopeOf("L1", 1)
	all := sampleItems(scope)

	items := new(MockLineItemRepository)
	items.On("FindByScope", mock.Anything, scope, 1, 2).Return(all[0:2], nil).Once()
	items.On("FindByScope", mock.Anything, scope, 2, 2).Return(all[2:4], nil).Once()
	items.On("FindByScope", mock.Anything, scope, 3, 2).Return(all[4:], nil).Once()

	svc := newService(items, new(MockSummaryRepository), WithPageSize(2))
	summary, err := svc.ComputeScope(context.Background(), scope)
	require.NoError(t, err)

	assert.Equal(t, 4, summary.RecordCount)
	assert.Equal(t, 1, summary.DuplicateCount)
	assert.True(t, decimal.RequireFromString("2500").Equal(summary.RevenueTotal))
	assert.True(t, decimal.RequireFromString("900").Equal(summary.Result))
	assert.Equal(t, fixedNow, summary.ComputedAt)
	items.AssertExpectations(t)
}

func TestComputeScope_FullLastPageFetchesOneMore(t *testing.T) {
	scope := scopeOf("L1", 1)
	all := sampleItems(scope)[:4]

	items := new(MockLineItemRepository)
	items.On("FindByScope", mock.Anything, scope, 1, 2).Return(all[0:2], nil).Once()
	items.On("FindByScope", mock.Anything, scope, 2, 2).Return(all[2:4], nil).Once()
	items.On("FindByScope", mock.Anything, scope, 3, 2).Return([]pnl.LineItem{}, nil).Once()

	summary, err := newService(items, new(MockSummaryRepository), WithPageSize(2)).ComputeScope(context.Background(), scope)
	require.NoError(t, err)
	assert.Equal(t, 4, summary.RecordCount)
	items.AssertExpectations(t)
}

func TestComputeScope_EmptyScope(t *testing.T) {
	scope := scopeOf("L9", 3)
	items := new(MockLineItemRepository)
	items.On("FindByScope", mock.Anything, scope, 1, DefaultPageSize).Return([]pnl.LineItem{}, nil).Once()

	summary, err := newService(items, new(MockSummaryRepository)).ComputeScope(context.Background(), scope)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.RecordCount)
	assert.True(t, summary.Result.IsZero())
}

func TestComputeScope_InvalidScope(t *testing.T) {
	items := new(MockLineItemRepository)
	svc := newService(items, new(MockSummaryRepository))

	_, err := svc.ComputeScope(context.Background(), pnl.Scope{LocationID: "L1", Year: 2025, Month: 0})
	assert.ErrorIs(t, err, pnl.ErrInvalidScope)
	items.AssertNotCalled(t, "FindByScope", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestComputeScope_StoreError(t *testing.T) {
	scope := scopeOf("L1", 1)
	items := new(MockLineItemRepository)
	items.On("FindByScope", mock.Anything, scope, 1, DefaultPageSize).Return(nil, errors.New("connection refused"))

	_, err := newService(items, new(MockSummaryRepository)).ComputeScope(context.Background(), scope)
	assert.ErrorContains(t, err, "connection refused")
	assert.ErrorContains(t, err, "L1/2025-01 page 1")
}

func TestRefreshScope_StoresSummary(t *testing.T) {
	scope := scopeOf("L1", 1)
	items := new(MockLineItemRepository)
	items.On("FindByScope", mock.Anything, scope, 1, DefaultPageSize).Return(sampleItems(scope), nil)

	summaries := new(MockSummaryRepository)
	summaries.On("Upsert", mock.Anything, mock.MatchedBy(func(s *pnl.PeriodSummary) bool {
		return s.Scope() == scope && s.RecordCount == 4 && s.ComputedAt.Equal(fixedNow)
	})).Return(nil).Once()

	summary, err := newService(items, summaries).RefreshScope(context.Background(), scope)
	require.NoError(t, err)
	assert.Equal(t, scope, summary.Scope())
	summaries.AssertExpectations(t)
}

func TestRefreshScope_UpsertError(t *testing.T) {
	scope := scopeOf("L1", 1)
	items := new(MockLineItemRepository)
	items.On("FindByScope", mock.Anything, scope, 1, DefaultPageSize).Return(sampleItems(scope), nil)

	summaries := new(MockSummaryRepository)
	summaries.On("Upsert", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	_, err := newService(items, summaries).RefreshScope(context.Background(), scope)
	assert.ErrorContains(t, err, "store summary L1/2025-01: disk full")
}

func TestRefreshScope_InvalidScopeNotStored(t *testing.T) {
	summaries := new(MockSummaryRepository)
	_, err := newService(new(MockLineItemRepository), summaries).RefreshScope(context.Background(), pnl.Scope{Year: 2025, Month: 1})
	assert.ErrorIs(t, err, pnl.ErrInvalidScope)
	summaries.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

func TestGetSummary(t *testing.T) {
	scope := scopeOf("L1", 1)
	stored := pnl.NewPeriodSummary(scope)

	summaries := new(MockSummaryRepository)
	summaries.On("FindByScope", mock.Anything, scope).Return(stored, nil)
	summaries.On("FindByScope", mock.Anything, scopeOf("L2", 1)).Return(nil, shared.ErrNotFound)
	svc := newService(new(MockLineItemRepository), summaries)

	got, err := svc.GetSummary(context.Background(), scope)
	require.NoError(t, err)
	assert.Same(t, stored, got)

	_, err = svc.GetSummary(context.Background(), scopeOf("L2", 1))
	assert.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.GetSummary(context.Background(), pnl.Scope{LocationID: "L1", Year: 2025, Month: 13})
	assert.ErrorIs(t, err, pnl.ErrInvalidScope)
}

func TestListSummaries(t *testing.T) {
	summaries := new(MockSummaryRepository)
	summaries.On("ListByLocation", mock.Anything, "L1", 2025).
		Return([]*pnl.PeriodSummary{pnl.NewPeriodSummary(scopeOf("L1", 1))}, nil)
	svc := newService(new(MockLineItemRepository), summaries)

	got, err := svc.ListSummaries(context.Background(), "L1", 2025)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = svc.ListSummaries(context.Background(), "", 2025)
	assert.ErrorIs(t, err, pnl.ErrInvalidScope)
}

func TestReconcileScope(t *testing.T) {
	scope := scopeOf("L1", 1)

	newItems := func() *MockLineItemRepository {
		items := new(MockLineItemRepository)
		items.On("FindByScope", mock.Anything, scope, 1, DefaultPageSize).Return(sampleItems(scope), nil)
		return items
	}

	t.Run("no stored summary", func(t *testing.T) {
		summaries := new(MockSummaryRepository)
		summaries.On("FindByScope", mock.Anything, scope).Return(nil, shared.ErrNotFound)

		result, err := newService(newItems(), summaries).ReconcileScope(context.Background(), scope)
		require.NoError(t, err)
		assert.Nil(t, result.Stored)
		assert.False(t, result.InSync())
		assert.True(t, result.Reconciliation.Balanced)
		assert.Equal(t, 5, result.Reconciliation.InputCount)
		assert.Equal(t, 1, result.Reconciliation.DuplicateCount)
	})

	t.Run("in sync", func(t *testing.T) {
		stored, err := pnl.Aggregate(sampleItems(scope), scope)
		require.NoError(t, err)
		summaries := new(MockSummaryRepository)
		summaries.On("FindByScope", mock.Anything, scope).Return(stored, nil)

		result, err := newService(newItems(), summaries).ReconcileScope(context.Background(), scope)
		require.NoError(t, err)
		assert.True(t, result.InSync())
		assert.Empty(t, result.Differences)
	})

	t.Run("drifted", func(t *testing.T) {
		stored, err := pnl.Aggregate(sampleItems(scope)[:3], scope)
		require.NoError(t, err)
		summaries := new(MockSummaryRepository)
		summaries.On("FindByScope", mock.Anything, scope).Return(stored, nil)

		result, err := newService(newItems(), summaries).ReconcileScope(context.Background(), scope)
		require.NoError(t, err)
		assert.False(t, result.InSync())

		fields := make([]string, 0, len(result.Differences))
		for _, d := range result.Differences {
			fields = append(fields, d.Field)
		}
		assert.Contains(t, fields, "labor_total")
		assert.Contains(t, fields, "record_count")
	})

	t.Run("store failure", func(t *testing.T) {
		summaries := new(MockSummaryRepository)
		summaries.On("FindByScope", mock.Anything, scope).Return(nil, errors.New("timeout"))

		_, err := newService(newItems(), summaries).ReconcileScope(context.Background(), scope)
		assert.ErrorContains(t, err, "timeout")
	})
}

func TestRefreshAll_CollectsFailures(t *testing.T) {
	good1, bad, good2 := scopeOf("L1", 1), scopeOf("L2", 1), scopeOf("L1", 2)

	items := new(MockLineItemRepository)
	items.On("ListScopes", mock.Anything, pnl.ScopeFilter{Year: 2025}).Return([]pnl.Scope{good2, bad, good1}, nil)
	items.On("FindByScope", mock.Anything, good1, 1, DefaultPageSize).Return(sampleItems(good1), nil)
	items.On("FindByScope", mock.Anything, good2, 1, DefaultPageSize).Return(sampleItems(good2), nil)
	items.On("FindByScope", mock.Anything, bad, 1, DefaultPageSize).Return(nil, errors.New("corrupt page"))

	summaries := new(MockSummaryRepository)
	summaries.On("Upsert", mock.Anything, mock.Anything).Return(nil)

	result, err := newService(items, summaries, WithWorkers(2)).RefreshAll(context.Background(), pnl.ScopeFilter{Year: 2025})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Total)
	assert.Equal(t, []pnl.Scope{good1, good2}, result.Refreshed)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, bad, result.Failed[0].Scope)
	assert.Contains(t, result.Failed[0].Error, "corrupt page")
	assert.Empty(t, result.Failed[0].Code, "store failures carry no domain code")
	assert.Equal(t, 0, result.Skipped)
	assert.NotEmpty(t, result.RunID)
	summaries.AssertNumberOfCalls(t, "Upsert", 2)
}

func TestRefreshAll_ListError(t *testing.T) {
	items := new(MockLineItemRepository)
	items.On("ListScopes", mock.Anything, pnl.ScopeFilter{}).Return(nil, errors.New("no route to host"))

	_, err := newService(items, new(MockSummaryRepository)).RefreshAll(context.Background(), pnl.ScopeFilter{})
	assert.ErrorContains(t, err, "list scopes")
}

func TestRefreshAll_CancelledContext(t *testing.T) {
	items := new(MockLineItemRepository)
	items.On("ListScopes", mock.Anything, pnl.ScopeFilter{}).Return([]pnl.Scope{scopeOf("L1", 1), scopeOf("L2", 1)}, nil)
	summaries := new(MockSummaryRepository)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := newService(items, summaries).RefreshAll(ctx, pnl.ScopeFilter{})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.Equal(t, 2, result.Skipped)
	assert.Empty(t, result.Refreshed)
	summaries.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

func TestExecute_RefreshesJobScope(t *testing.T) {
	scope := scopeOf("L1", 1)
	items := new(MockLineItemRepository)
	items.On("FindByScope", mock.Anything, scope, 1, DefaultPageSize).Return(sampleItems(scope), nil)
	summaries := new(MockSummaryRepository)
	summaries.On("Upsert", mock.Anything, mock.Anything).Return(nil).Once()

	var executor scheduler.JobExecutor = newService(items, summaries)
	err := executor.Execute(context.Background(), &scheduler.Job{ID: uuid.New(), Scope: scope})
	require.NoError(t, err)
	summaries.AssertExpectations(t)
}

func TestListLocations(t *testing.T) {
	items := new(MockLineItemRepository)
	items.On("ListScopes", mock.Anything, pnl.ScopeFilter{}).
		Return([]pnl.Scope{scopeOf("L2", 1), scopeOf("L1", 1), scopeOf("L2", 2)}, nil)

	locations, err := newService(items, new(MockSummaryRepository)).ListLocations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"L1", "L2"}, locations)
}
