package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/restodash/backend/internal/domain/pnl"
	"github.com/restodash/backend/internal/domain/shared"
	"github.com/restodash/backend/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSummary(t *testing.T, location string, year, month int) *pnl.PeriodSummary {
	t.Helper()
	scope, err := pnl.NewScope(location, year, month)
	require.NoError(t, err)

	summary, err := pnl.Aggregate([]pnl.LineItem{
		{LocationID: location, Year: year, Month: month, Category: "Netto-omzet uit verkoop van handelsgoederen", Amount: decimal.RequireFromString("1000")},
		{LocationID: location, Year: year, Month: month, Category: "Lonen en salarissen", Subcategory: "Keuken", Amount: decimal.RequireFromString("-400")},
		{LocationID: location, Year: year, Month: month, Category: "Onbekend", Amount: decimal.RequireFromString("-25.50")},
	}, scope)
	require.NoError(t, err)
	summary.ComputedAt = time.Date(2025, 2, 1, 3, 0, 0, 0, time.UTC)
	return summary
}

func TestGormSummaryRepository_Upsert(t *testing.T) {
	db := setupPnlTestDB(t)
	repo := NewGormSummaryRepository(db)
	ctx := context.Background()

	t.Run("inserts and reads back", func(t *testing.T) {
		summary := sampleSummary(t, "L1", 2025, 1)
		require.NoError(t, repo.Upsert(ctx, summary))

		found, err := repo.FindByScope(ctx, summary.Scope())
		require.NoError(t, err)

		assert.Equal(t, summary.Scope(), found.Scope())
		assert.True(t, summary.RevenueTotal.Equal(found.RevenueTotal))
		assert.True(t, summary.LaborTotal.Equal(found.LaborTotal))
		assert.True(t, summary.UnclassifiedCosts.Equal(found.UnclassifiedCosts))
		assert.True(t, summary.Result.Equal(found.Result))
		assert.Equal(t, summary.RecordCount, found.RecordCount)
		assert.Equal(t, summary.UnclassifiedCount, found.UnclassifiedCount)
		assert.True(t, summary.ComputedAt.Equal(found.ComputedAt))
		require.Len(t, found.Breakdown, len(summary.Breakdown))
		assert.Equal(t, summary.Breakdown[0].Category, found.Breakdown[0].Category)
		assert.Empty(t, pnl.Diff(summary, found))
	})

	t.Run("replaces the summary of the same scope", func(t *testing.T) {
		first := sampleSummary(t, "L2", 2025, 1)
		require.NoError(t, repo.Upsert(ctx, first))

		second := sampleSummary(t, "L2", 2025, 1)
		second.LaborTotal = decimal.RequireFromString("-999")
		second.RecordCount = 42
		second.ComputedAt = first.ComputedAt.Add(time.Hour)
		require.NoError(t, repo.Upsert(ctx, second))

		var count int64
		require.NoError(t, db.Model(&models.PeriodSummaryModel{}).
			Where("location_id = ?", "L2").Count(&count).Error)
		assert.Equal(t, int64(1), count)

		found, err := repo.FindByScope(ctx, second.Scope())
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("-999").Equal(found.LaborTotal))
		assert.Equal(t, 42, found.RecordCount)
		assert.True(t, second.ComputedAt.Equal(found.ComputedAt))
	})

	t.Run("rejects nil summary", func(t *testing.T) {
		err := repo.Upsert(ctx, nil)
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})
}

func TestGormSummaryRepository_FindByScope(t *testing.T) {
	db := setupPnlTestDB(t)
	repo := NewGormSummaryRepository(db)

	_, err := repo.FindByScope(context.Background(), pnl.Scope{LocationID: "L1", Year: 2025, Month: 6})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGormSummaryRepository_ListByLocation(t *testing.T) {
	db := setupPnlTestDB(t)
	repo := NewGormSummaryRepository(db)
	ctx := context.Background()

	for _, s := range []*pnl.PeriodSummary{
		sampleSummary(t, "L1", 2025, 3),
		sampleSummary(t, "L1", 2024, 12),
		sampleSummary(t, "L1", 2025, 1),
		sampleSummary(t, "L2", 2025, 1),
	} {
		require.NoError(t, repo.Upsert(ctx, s))
	}

	t.Run("all years in period order", func(t *testing.T) {
		got, err := repo.ListByLocation(ctx, "L1", 0)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, pnl.Scope{LocationID: "L1", Year: 2024, Month: 12}, got[0].Scope())
		assert.Equal(t, pnl.Scope{LocationID: "L1", Year: 2025, Month: 1}, got[1].Scope())
		assert.Equal(t, pnl.Scope{LocationID: "L1", Year: 2025, Month: 3}, got[2].Scope())
	})

	t.Run("single year", func(t *testing.T) {
		got, err := repo.ListByLocation(ctx, "L1", 2025)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("unknown location", func(t *testing.T) {
		got, err := repo.ListByLocation(ctx, "L9", 0)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}
