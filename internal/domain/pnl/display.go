package pnl

import "github.com/shopspring/decimal"

const marginPlaces = 2

var hundred = decimal.NewFromInt(100)

// DisplaySummary is the presentation view of a PeriodSummary: cost buckets
// as absolute values and margins as percentages of revenue.
type DisplaySummary struct {
	LocationID string `json:"location_id"`
	Year       int    `json:"year"`
	Month      int    `json:"month"`

	RevenueFromProducedGoods    decimal.Decimal `json:"revenue_from_produced_goods"`
	RevenueFromMerchandiseSales decimal.Decimal `json:"revenue_from_merchandise_sales"`
	UnclassifiedRevenue         decimal.Decimal `json:"unclassified_revenue"`
	RevenueTotal                decimal.Decimal `json:"revenue_total"`

	CostOfSales       decimal.Decimal `json:"cost_of_sales"`
	Labor             decimal.Decimal `json:"labor"`
	OtherCosts        decimal.Decimal `json:"other_costs"`
	Depreciation      decimal.Decimal `json:"depreciation"`
	UnclassifiedCosts decimal.Decimal `json:"unclassified_costs"`
	FinancialResult   decimal.Decimal `json:"financial_result"`

	GrossProfit     decimal.Decimal `json:"gross_profit"`
	GrossMarginPct  decimal.Decimal `json:"gross_margin_pct"`
	Result          decimal.Decimal `json:"result"`
	ResultMarginPct decimal.Decimal `json:"result_margin_pct"`

	RecordCount int `json:"record_count"`
}

// ForDisplay converts the stored signed summary into its presentation form.
// The financial result keeps its sign since it can be income or expense.
func (s *PeriodSummary) ForDisplay() DisplaySummary {
	return DisplaySummary{
		LocationID:                  s.LocationID,
		Year:                        s.Year,
		Month:                       s.Month,
		RevenueFromProducedGoods:    s.RevenueFromProducedGoods,
		RevenueFromMerchandiseSales: s.RevenueFromMerchandiseSales,
		UnclassifiedRevenue:         s.UnclassifiedRevenue,
		RevenueTotal:                s.RevenueTotal,
		CostOfSales:                 s.CostOfSalesTotal.Abs(),
		Labor:                       s.LaborTotal.Abs(),
		OtherCosts:                  s.OtherCostsTotal.Abs(),
		Depreciation:                s.DepreciationTotal.Abs(),
		UnclassifiedCosts:           s.UnclassifiedCosts.Abs(),
		FinancialResult:             s.FinancialResultTotal,
		GrossProfit:                 s.GrossProfit,
		GrossMarginPct:              margin(s.GrossProfit, s.RevenueTotal),
		Result:                      s.Result,
		ResultMarginPct:             margin(s.Result, s.RevenueTotal),
		RecordCount:                 s.RecordCount,
	}
}

func margin(value, revenue decimal.Decimal) decimal.Decimal {
	if revenue.IsZero() {
		return decimal.Zero
	}
	return value.Div(revenue).Mul(hundred).Round(marginPlaces)
}
