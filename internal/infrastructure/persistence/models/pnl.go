package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/restodash/backend/internal/domain/pnl"
	"github.com/shopspring/decimal"
)

// LineItemModel is one raw ledger row. Rows are written by ingestion and only read here.
type LineItemModel struct {
	ID          int64           `gorm:"primaryKey;autoIncrement"`
	LocationID  string          `gorm:"type:varchar(64);not null;index:idx_pnl_line_items_scope,priority:1"`
	Year        int             `gorm:"not null;index:idx_pnl_line_items_scope,priority:2"`
	Month       int             `gorm:"not null;index:idx_pnl_line_items_scope,priority:3"`
	Category    string          `gorm:"type:varchar(255);not null"`
	Subcategory string          `gorm:"type:varchar(255);not null"`
	GLAccount   string          `gorm:"column:gl_account;type:varchar(64);not null"`
	Amount      decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	ImportID    string          `gorm:"type:varchar(64);not null"`
	CreatedAt   time.Time       `gorm:"not null"`
}

// TableName returns the table name for the model
func (LineItemModel) TableName() string {
	return "pnl_line_items"
}

// ToDomain converts the model to a domain line item
func (m *LineItemModel) ToDomain() pnl.LineItem {
	return pnl.LineItem{
		LocationID:  m.LocationID,
		Year:        m.Year,
		Month:       m.Month,
		Category:    m.Category,
		Subcategory: m.Subcategory,
		GLAccount:   m.GLAccount,
		Amount:      m.Amount,
		ImportID:    m.ImportID,
	}
}

// LineItemModelFromDomain creates a model from a domain line item
func LineItemModelFromDomain(li pnl.LineItem) *LineItemModel {
	return &LineItemModel{
		LocationID:  li.LocationID,
		Year:        li.Year,
		Month:       li.Month,
		Category:    li.Category,
		Subcategory: li.Subcategory,
		GLAccount:   li.GLAccount,
		Amount:      li.Amount,
		ImportID:    li.ImportID,
	}
}

// PeriodSummaryModel stores one computed summary per location-month.
type PeriodSummaryModel struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	LocationID string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_pnl_period_summaries_scope,priority:1"`
	Year       int       `gorm:"not null;uniqueIndex:idx_pnl_period_summaries_scope,priority:2"`
	Month      int       `gorm:"not null;uniqueIndex:idx_pnl_period_summaries_scope,priority:3"`

	RevenueFromProducedGoods    decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	RevenueFromMerchandiseSales decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	UnclassifiedRevenue         decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	RevenueTotal                decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	CostOfSalesTotal            decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	LaborTotal                  decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	OtherCostsTotal             decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	DepreciationTotal           decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	FinancialResultTotal        decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	UnclassifiedCosts           decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	GrossProfit                 decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Result                      decimal.Decimal `gorm:"type:decimal(18,4);not null"`

	RecordCount          int             `gorm:"not null"`
	DuplicateCount       int             `gorm:"not null"`
	UnclassifiedCount    int             `gorm:"not null"`
	RollupExcludedCount  int             `gorm:"not null"`
	RollupExcludedAmount decimal.Decimal `gorm:"type:decimal(18,4);not null"`

	Breakdown  []pnl.BreakdownLine `gorm:"type:text;serializer:json"`
	ComputedAt time.Time           `gorm:"not null"`
	CreatedAt  time.Time           `gorm:"not null"`
	UpdatedAt  time.Time           `gorm:"not null"`
}

// TableName returns the table name for the model
func (PeriodSummaryModel) TableName() string {
	return "pnl_period_summaries"
}

// ToDomain converts the model to a domain summary
func (m *PeriodSummaryModel) ToDomain() *pnl.PeriodSummary {
	return &pnl.PeriodSummary{
		LocationID:                  m.LocationID,
		Year:                        m.Year,
		Month:                       m.Month,
		RevenueFromProducedGoods:    m.RevenueFromProducedGoods,
		RevenueFromMerchandiseSales: m.RevenueFromMerchandiseSales,
		UnclassifiedRevenue:         m.UnclassifiedRevenue,
		RevenueTotal:                m.RevenueTotal,
		CostOfSalesTotal:            m.CostOfSalesTotal,
		LaborTotal:                  m.LaborTotal,
		OtherCostsTotal:             m.OtherCostsTotal,
		DepreciationTotal:           m.DepreciationTotal,
		FinancialResultTotal:        m.FinancialResultTotal,
		UnclassifiedCosts:           m.UnclassifiedCosts,
		GrossProfit:                 m.GrossProfit,
		Result:                      m.Result,
		RecordCount:                 m.RecordCount,
		DuplicateCount:              m.DuplicateCount,
		UnclassifiedCount:           m.UnclassifiedCount,
		RollupExcludedCount:         m.RollupExcludedCount,
		RollupExcludedAmount:        m.RollupExcludedAmount,
		Breakdown:                   m.Breakdown,
		ComputedAt:                  m.ComputedAt,
	}
}

// PeriodSummaryModelFromDomain creates a model with a fresh ID from a domain summary.
// The ID is only used on insert; upserts keep the stored row's ID.
func PeriodSummaryModelFromDomain(s *pnl.PeriodSummary) *PeriodSummaryModel {
	return &PeriodSummaryModel{
		ID:                          uuid.New(),
		LocationID:                  s.LocationID,
		Year:                        s.Year,
		Month:                       s.Month,
		RevenueFromProducedGoods:    s.RevenueFromProducedGoods,
		RevenueFromMerchandiseSales: s.RevenueFromMerchandiseSales,
		UnclassifiedRevenue:         s.UnclassifiedRevenue,
		RevenueTotal:                s.RevenueTotal,
		CostOfSalesTotal:            s.CostOfSalesTotal,
		LaborTotal:                  s.LaborTotal,
		OtherCostsTotal:             s.OtherCostsTotal,
		DepreciationTotal:           s.DepreciationTotal,
		FinancialResultTotal:        s.FinancialResultTotal,
		UnclassifiedCosts:           s.UnclassifiedCosts,
		GrossProfit:                 s.GrossProfit,
		Result:                      s.Result,
		RecordCount:                 s.RecordCount,
		DuplicateCount:              s.DuplicateCount,
		UnclassifiedCount:           s.UnclassifiedCount,
		RollupExcludedCount:         s.RollupExcludedCount,
		RollupExcludedAmount:        s.RollupExcludedAmount,
		Breakdown:                   s.Breakdown,
		ComputedAt:                  s.ComputedAt,
	}
}

// SummaryUpdateColumns lists the columns replaced when a scope's summary is recomputed.
var SummaryUpdateColumns = []string{
	"revenue_from_produced_goods",
	"revenue_from_merchandise_sales",
	"unclassified_revenue",
	"revenue_total",
	"cost_of_sales_total",
	"labor_total",
	"other_costs_total",
	"depreciation_total",
	"financial_result_total",
	"unclassified_costs",
	"gross_profit",
	"result",
	"record_count",
	"duplicate_count",
	"unclassified_count",
	"rollup_excluded_count",
	"rollup_excluded_amount",
	"breakdown",
	"computed_at",
	"updated_at",
}
