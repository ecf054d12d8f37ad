package pnl

import (
	"time"

	"github.com/shopspring/decimal"
)

// PeriodSummary is the categorized P&L of one location-month.
// Cost buckets keep the ledger sign (negative); see ForDisplay for absolute values.
type PeriodSummary struct {
	LocationID string `json:"location_id"`
	Year       int    `json:"year"`
	Month      int    `json:"month"`

	RevenueFromProducedGoods    decimal.Decimal `json:"revenue_from_produced_goods"`
	RevenueFromMerchandiseSales decimal.Decimal `json:"revenue_from_merchandise_sales"`
	UnclassifiedRevenue         decimal.Decimal `json:"unclassified_revenue"`
	RevenueTotal                decimal.Decimal `json:"revenue_total"`

	CostOfSalesTotal     decimal.Decimal `json:"cost_of_sales_total"`
	LaborTotal           decimal.Decimal `json:"labor_total"`
	OtherCostsTotal      decimal.Decimal `json:"other_costs_total"`
	DepreciationTotal    decimal.Decimal `json:"depreciation_total"`
	FinancialResultTotal decimal.Decimal `json:"financial_result_total"`
	UnclassifiedCosts    decimal.Decimal `json:"unclassified_costs"`

	GrossProfit decimal.Decimal `json:"gross_profit"`
	Result      decimal.Decimal `json:"result"`

	RecordCount          int             `json:"record_count"`
	DuplicateCount       int             `json:"duplicate_count"`
	UnclassifiedCount    int             `json:"unclassified_count"`
	RollupExcludedCount  int             `json:"rollup_excluded_count"`
	RollupExcludedAmount decimal.Decimal `json:"rollup_excluded_amount"`

	Breakdown  []BreakdownLine `json:"breakdown,omitempty"`
	ComputedAt time.Time       `json:"computed_at"`
}

// BreakdownLine is the total of one (bucket, category, subcategory) group.
type BreakdownLine struct {
	Bucket      Bucket          `json:"bucket"`
	Category    string          `json:"category"`
	Subcategory string          `json:"subcategory,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Count       int             `json:"count"`
}

// NewPeriodSummary returns an all-zero summary for the scope.
func NewPeriodSummary(scope Scope) *PeriodSummary {
	return &PeriodSummary{
		LocationID: scope.LocationID,
		Year:       scope.Year,
		Month:      scope.Month,
	}
}

// Scope returns the scope the summary belongs to.
func (s *PeriodSummary) Scope() Scope {
	return Scope{LocationID: s.LocationID, Year: s.Year, Month: s.Month}
}

// BucketTotal returns the accumulated amount of b.
func (s *PeriodSummary) BucketTotal(b Bucket) decimal.Decimal {
	if field := s.bucketField(b); field != nil {
		return *field
	}
	return decimal.Zero
}

// BucketSum adds up every bucket, excluding derived totals.
func (s *PeriodSummary) BucketSum() decimal.Decimal {
	sum := decimal.Zero
	for _, b := range allBuckets {
		sum = sum.Add(s.BucketTotal(b))
	}
	return sum
}

func (s *PeriodSummary) add(b Bucket, amount decimal.Decimal) {
	field := s.bucketField(b)
	*field = field.Add(amount)
}

func (s *PeriodSummary) bucketField(b Bucket) *decimal.Decimal {
	switch b {
	case BucketRevenueProducedGoods:
		return &s.RevenueFromProducedGoods
	case BucketRevenueMerchandise:
		return &s.RevenueFromMerchandiseSales
	case BucketRevenueUnclassified:
		return &s.UnclassifiedRevenue
	case BucketCostOfSales:
		return &s.CostOfSalesTotal
	case BucketLabor:
		return &s.LaborTotal
	case BucketOtherCosts:
		return &s.OtherCostsTotal
	case BucketDepreciation:
		return &s.DepreciationTotal
	case BucketFinancialResult:
		return &s.FinancialResultTotal
	case BucketCostUnclassified:
		return &s.UnclassifiedCosts
	default:
		return nil
	}
}

// computeDerived fills RevenueTotal, GrossProfit and Result from the buckets.
func (s *PeriodSummary) computeDerived() {
	s.RevenueTotal = s.RevenueFromProducedGoods.
		Add(s.RevenueFromMerchandiseSales).
		Add(s.UnclassifiedRevenue)
	s.GrossProfit = s.RevenueTotal.Add(s.CostOfSalesTotal)
	s.Result = s.GrossProfit.
		Add(s.LaborTotal).
		Add(s.OtherCostsTotal).
		Add(s.DepreciationTotal).
		Add(s.FinancialResultTotal).
		Add(s.UnclassifiedCosts)
}
