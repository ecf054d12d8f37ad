package pnl

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// Reconciliation explains how the raw input total relates to a summary.
// A balanced summary satisfies DedupedTotal = BucketTotal + RollupExcludedAmount.
type Reconciliation struct {
	InputCount           int             `json:"input_count"`
	InputTotal           decimal.Decimal `json:"input_total"`
	DuplicateCount       int             `json:"duplicate_count"`
	DuplicateAmount      decimal.Decimal `json:"duplicate_amount"`
	DedupedCount         int             `json:"deduped_count"`
	DedupedTotal         decimal.Decimal `json:"deduped_total"`
	BucketTotal          decimal.Decimal `json:"bucket_total"`
	RollupExcludedAmount decimal.Decimal `json:"rollup_excluded_amount"`
	Difference           decimal.Decimal `json:"difference"`
	Balanced             bool            `json:"balanced"`
}

// Reconcile checks summary against the raw items it was computed from.
func Reconcile(items []LineItem, summary *PeriodSummary) Reconciliation {
	kept, duplicates := Deduplicate(items)

	r := Reconciliation{
		InputCount:           len(items),
		InputTotal:           sumAmounts(items),
		DuplicateCount:       len(duplicates),
		DuplicateAmount:      sumAmounts(duplicates),
		DedupedCount:         len(kept),
		DedupedTotal:         sumAmounts(kept),
		BucketTotal:          summary.BucketSum(),
		RollupExcludedAmount: summary.RollupExcludedAmount,
	}
	r.Difference = r.DedupedTotal.Sub(r.BucketTotal.Add(r.RollupExcludedAmount))
	r.Balanced = r.Difference.IsZero() && r.DedupedCount == summary.RecordCount
	return r
}

func sumAmounts(items []LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, li := range items {
		sum = sum.Add(li.Amount)
	}
	return sum
}

// FieldDiff is one differing field between two summaries.
type FieldDiff struct {
	Field string `json:"field"`
	Left  string `json:"left"`
	Right string `json:"right"`
}

// Diff lists the fields on which a and b disagree. Decimals compare
// numerically; ComputedAt and the breakdown are ignored.
func Diff(a, b *PeriodSummary) []FieldDiff {
	var diffs []FieldDiff
	amount := func(field string, x, y decimal.Decimal) {
		if !x.Equal(y) {
			diffs = append(diffs, FieldDiff{Field: field, Left: x.String(), Right: y.String()})
		}
	}
	count := func(field string, x, y int) {
		if x != y {
			diffs = append(diffs, FieldDiff{Field: field, Left: strconv.Itoa(x), Right: strconv.Itoa(y)})
		}
	}

	if a.Scope() != b.Scope() {
		diffs = append(diffs, FieldDiff{Field: "scope", Left: a.Scope().String(), Right: b.Scope().String()})
	}
	amount("revenue_from_produced_goods", a.RevenueFromProducedGoods, b.RevenueFromProducedGoods)
	amount("revenue_from_merchandise_sales", a.RevenueFromMerchandiseSales, b.RevenueFromMerchandiseSales)
	amount("unclassified_revenue", a.UnclassifiedRevenue, b.UnclassifiedRevenue)
	amount("revenue_total", a.RevenueTotal, b.RevenueTotal)
	amount("cost_of_sales_total", a.CostOfSalesTotal, b.CostOfSalesTotal)
	amount("labor_total", a.LaborTotal, b.LaborTotal)
	amount("other_costs_total", a.OtherCostsTotal, b.OtherCostsTotal)
	amount("depreciation_total", a.DepreciationTotal, b.DepreciationTotal)
	amount("financial_result_total", a.FinancialResultTotal, b.FinancialResultTotal)
	amount("unclassified_costs", a.UnclassifiedCosts, b.UnclassifiedCosts)
	amount("gross_profit", a.GrossProfit, b.GrossProfit)
	amount("result", a.Result, b.Result)
	amount("rollup_excluded_amount", a.RollupExcludedAmount, b.RollupExcludedAmount)
	count("record_count", a.RecordCount, b.RecordCount)
	count("duplicate_count", a.DuplicateCount, b.DuplicateCount)
	count("unclassified_count", a.UnclassifiedCount, b.UnclassifiedCount)
	count("rollup_excluded_count", a.RollupExcludedCount, b.RollupExcludedCount)
	return diffs
}
