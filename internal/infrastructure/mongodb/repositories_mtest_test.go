package mongodb

import (
	"context"
	"testing"
	"time"

	"github.com/restodash/backend/internal/domain/pnl"
	"github.com/restodash/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func dec128(t *testing.T, s string) primitive.Decimal128 {
	t.Helper()
	v, err := primitive.ParseDecimal128(s)
	require.NoError(t, err)
	return v
}

func lineItemBSON(t *testing.T, category, amount string) bson.D {
	return bson.D{
		{Key: "_id", Value: primitive.NewObjectID()},
		{Key: "locationId", Value: "L1"},
		{Key: "year", Value: int32(2025)},
		{Key: "month", Value: int32(1)},
		{Key: "category", Value: category},
		{Key: "amount", Value: dec128(t, amount)},
	}
}

func TestLineItemRepository_MockOps(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	scope := pnl.Scope{LocationID: "L1", Year: 2025, Month: 1}

	mt.Run("find by scope", func(mt *mtest.T) {
		repo := NewLineItemRepository(mt.DB)
		ns := mt.DB.Name() + "." + lineItemsCollection

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			lineItemBSON(t, "Netto-omzet uit verkoop van handelsgoederen", "1250.50"),
			lineItemBSON(t, "Lonen en salarissen", "-400"),
		))

		items, err := repo.FindByScope(context.Background(), scope, 1, 100)
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, "Netto-omzet uit verkoop van handelsgoederen", items[0].Category)
		assert.True(t, decimal.RequireFromString("1250.50").Equal(items[0].Amount))
		assert.True(t, decimal.RequireFromString("-400").Equal(items[1].Amount))
		assert.True(t, scope.Contains(items[1]))
	})

	mt.Run("rejects non-positive page size", func(mt *mtest.T) {
		repo := NewLineItemRepository(mt.DB)
		_, err := repo.FindByScope(context.Background(), scope, 1, 0)
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})

	mt.Run("find error is wrapped", func(mt *mtest.T) {
		repo := NewLineItemRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    2,
			Message: "bad value",
			Name:    "BadValue",
		}))

		_, err := repo.FindByScope(context.Background(), scope, 1, 10)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "find line items L1/2025-01")
	})

	mt.Run("list scopes", func(mt *mtest.T) {
		repo := NewLineItemRepository(mt.DB)
		ns := mt.DB.Name() + "." + lineItemsCollection

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			bson.D{{Key: "_id", Value: bson.D{
				{Key: "locationId", Value: "L1"}, {Key: "year", Value: int32(2024)}, {Key: "month", Value: int32(12)},
			}}},
			bson.D{{Key: "_id", Value: bson.D{
				{Key: "locationId", Value: "L1"}, {Key: "year", Value: int32(2025)}, {Key: "month", Value: int32(1)},
			}}},
		))

		scopes, err := repo.ListScopes(context.Background(), pnl.ScopeFilter{LocationID: "L1"})
		require.NoError(t, err)
		assert.Equal(t, []pnl.Scope{
			{LocationID: "L1", Year: 2024, Month: 12},
			{LocationID: "L1", Year: 2025, Month: 1},
		}, scopes)
	})

	mt.Run("save batch", func(mt *mtest.T) {
		repo := NewLineItemRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		err := repo.SaveBatch(context.Background(), []pnl.LineItem{
			{LocationID: "L1", Year: 2025, Month: 1, Category: "Huur", Amount: decimal.RequireFromString("-1500")},
		})
		require.NoError(t, err)

		started := mt.GetStartedEvent()
		require.NotNil(t, started)
		assert.Equal(t, "insert", started.CommandName)
	})

	mt.Run("empty batch sends nothing", func(mt *mtest.T) {
		repo := NewLineItemRepository(mt.DB)
		require.NoError(t, repo.SaveBatch(context.Background(), nil))
		assert.Nil(t, mt.GetStartedEvent())
	})

	mt.Run("ensure indexes", func(mt *mtest.T) {
		repo := NewLineItemRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		require.NoError(t, repo.EnsureIndexes(context.Background()))
	})
}

func TestSummaryRepository_MockOps(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	scope := pnl.Scope{LocationID: "L1", Year: 2025, Month: 1}
	computedAt := time.Date(2025, 2, 1, 3, 0, 0, 0, time.UTC)

	mt.Run("upsert replaces by scope", func(mt *mtest.T) {
		repo := NewSummaryRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		summary := pnl.NewPeriodSummary(scope)
		summary.LaborTotal = decimal.RequireFromString("-400")
		summary.ComputedAt = computedAt
		require.NoError(t, repo.Upsert(context.Background(), summary))

		started := mt.GetStartedEvent()
		require.NotNil(t, started)
		assert.Equal(t, "update", started.CommandName)
		update := started.Command.Lookup("updates").Array().Index(0).Value().Document()
		assert.True(t, update.Lookup("upsert").Boolean())
		assert.Equal(t, "L1", update.Lookup("q", "locationId").StringValue())
	})

	mt.Run("upsert rejects nil", func(mt *mtest.T) {
		repo := NewSummaryRepository(mt.DB)
		assert.ErrorIs(t, repo.Upsert(context.Background(), nil), shared.ErrInvalidInput)
	})

	mt.Run("find by scope", func(mt *mtest.T) {
		repo := NewSummaryRepository(mt.DB)
		ns := mt.DB.Name() + "." + summariesCollection

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
			{Key: "locationId", Value: "L1"},
			{Key: "year", Value: int32(2025)},
			{Key: "month", Value: int32(1)},
			{Key: "amounts", Value: bson.D{
				{Key: "revenue_total", Value: dec128(t, "1000")},
				{Key: "labor_total", Value: dec128(t, "-400")},
				{Key: "result", Value: dec128(t, "600")},
			}},
			{Key: "recordCount", Value: int32(2)},
			{Key: "breakdown", Value: bson.A{
				bson.D{
					{Key: "bucket", Value: "labor"},
					{Key: "category", Value: "Lonen en salarissen"},
					{Key: "amount", Value: dec128(t, "-400")},
					{Key: "count", Value: int32(1)},
				},
			}},
			{Key: "computedAt", Value: primitive.NewDateTimeFromTime(computedAt)},
		}))

		summary, err := repo.FindByScope(context.Background(), scope)
		require.NoError(t, err)
		assert.Equal(t, scope, summary.Scope())
		assert.True(t, decimal.RequireFromString("1000").Equal(summary.RevenueTotal))
		assert.True(t, decimal.RequireFromString("-400").Equal(summary.LaborTotal))
		assert.True(t, decimal.RequireFromString("600").Equal(summary.Result))
		assert.True(t, summary.CostOfSalesTotal.IsZero())
		assert.Equal(t, 2, summary.RecordCount)
		require.Len(t, summary.Breakdown, 1)
		assert.Equal(t, pnl.BucketLabor, summary.Breakdown[0].Bucket)
		assert.True(t, computedAt.Equal(summary.ComputedAt))
	})

	mt.Run("find by scope not found", func(mt *mtest.T) {
		repo := NewSummaryRepository(mt.DB)
		ns := mt.DB.Name() + "." + summariesCollection
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		_, err := repo.FindByScope(context.Background(), scope)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	mt.Run("list by location", func(mt *mtest.T) {
		repo := NewSummaryRepository(mt.DB)
		ns := mt.DB.Name() + "." + summariesCollection
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			bson.D{{Key: "locationId", Value: "L1"}, {Key: "year", Value: int32(2025)}, {Key: "month", Value: int32(1)}},
			bson.D{{Key: "locationId", Value: "L1"}, {Key: "year", Value: int32(2025)}, {Key: "month", Value: int32(2)}},
		))

		summaries, err := repo.ListByLocation(context.Background(), "L1", 2025)
		require.NoError(t, err)
		require.Len(t, summaries, 2)
		assert.Equal(t, 2, summaries[1].Month)
	})
}

func TestDocuments_RoundTrip(t *testing.T) {
	scope := pnl.Scope{LocationID: "L1", Year: 2025, Month: 3}
	summary, err := pnl.Aggregate([]pnl.LineItem{
		{LocationID: "L1", Year: 2025, Month: 3, Category: "Netto-omzet uit verkoop van handelsgoederen", Amount: decimal.RequireFromString("1000.1234")},
		{LocationID: "L1", Year: 2025, Month: 3, Category: "Lonen en salarissen", Subcategory: "Bediening", Amount: decimal.RequireFromString("-400.10")},
	}, scope)
	require.NoError(t, err)

	doc, err := newSummaryDocument(summary, time.Now())
	require.NoError(t, err)
	back, err := doc.toDomain()
	require.NoError(t, err)

	assert.Empty(t, pnl.Diff(summary, back))
	assert.Equal(t, len(summary.Breakdown), len(back.Breakdown))

	item := pnl.LineItem{LocationID: "L1", Year: 2025, Month: 3, Category: "Huur", GLAccount: "4100", Amount: decimal.RequireFromString("-0.0001")}
	itemDoc, err := newLineItemDocument(item, time.Now())
	require.NoError(t, err)
	itemBack, err := itemDoc.toDomain()
	require.NoError(t, err)
	assert.True(t, item.Amount.Equal(itemBack.Amount))
	assert.Equal(t, item.GLAccount, itemBack.GLAccount)
}
