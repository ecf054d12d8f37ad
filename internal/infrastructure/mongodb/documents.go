package mongodb

import (
	"fmt"
	"time"

	"github.com/restodash/backend/internal/domain/pnl"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	lineItemsCollection = "pnl_line_items"
	summariesCollection = "pnl_period_summaries"
)

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("amount %s: %w", d, err)
	}
	return v, nil
}

func fromDecimal128(v primitive.Decimal128) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("amount %s: %w", v, err)
	}
	return d, nil
}

type lineItemDocument struct {
	ID          primitive.ObjectID   `bson:"_id,omitempty"`
	LocationID  string               `bson:"locationId"`
	Year        int                  `bson:"year"`
	Month       int                  `bson:"month"`
	Category    string               `bson:"category"`
	Subcategory string               `bson:"subcategory,omitempty"`
	GLAccount   string               `bson:"glAccount,omitempty"`
	Amount      primitive.Decimal128 `bson:"amount"`
	ImportID    string               `bson:"importId,omitempty"`
	CreatedAt   time.Time            `bson:"createdAt"`
}

func newLineItemDocument(li pnl.LineItem, now time.Time) (*lineItemDocument, error) {
	amount, err := toDecimal128(li.Amount)
	if err != nil {
		return nil, err
	}
	return &lineItemDocument{
		LocationID:  li.LocationID,
		Year:        li.Year,
		Month:       li.Month,
		Category:    li.Category,
		Subcategory: li.Subcategory,
		GLAccount:   li.GLAccount,
		Amount:      amount,
		ImportID:    li.ImportID,
		CreatedAt:   now,
	}, nil
}

func (d *lineItemDocument) toDomain() (pnl.LineItem, error) {
	amount, err := fromDecimal128(d.Amount)
	if err != nil {
		return pnl.LineItem{}, err
	}
	return pnl.LineItem{
		LocationID:  d.LocationID,
		Year:        d.Year,
		Month:       d.Month,
		Category:    d.Category,
		Subcategory: d.Subcategory,
		GLAccount:   d.GLAccount,
		Amount:      amount,
		ImportID:    d.ImportID,
	}, nil
}

type breakdownDocument struct {
	Bucket      string               `bson:"bucket"`
	Category    string               `bson:"category"`
	Subcategory string               `bson:"subcategory,omitempty"`
	Amount      primitive.Decimal128 `bson:"amount"`
	Count       int                  `bson:"count"`
}

// summaryDocument stores every money field under amounts, keyed by its JSON name.
type summaryDocument struct {
	LocationID          string                          `bson:"locationId"`
	Year                int                             `bson:"year"`
	Month               int                             `bson:"month"`
	Amounts             map[string]primitive.Decimal128 `bson:"amounts"`
	RecordCount         int                             `bson:"recordCount"`
	DuplicateCount      int                             `bson:"duplicateCount"`
	UnclassifiedCount   int                             `bson:"unclassifiedCount"`
	RollupExcludedCount int                             `bson:"rollupExcludedCount"`
	Breakdown           []breakdownDocument             `bson:"breakdown,omitempty"`
	ComputedAt          time.Time                       `bson:"computedAt"`
	UpdatedAt           time.Time                       `bson:"updatedAt"`
}

// summaryAmounts pairs each stored amount key with its field on the summary.
func summaryAmounts(s *pnl.PeriodSummary) map[string]*decimal.Decimal {
	return map[string]*decimal.Decimal{
		"revenue_from_produced_goods":    &s.RevenueFromProducedGoods,
		"revenue_from_merchandise_sales": &s.RevenueFromMerchandiseSales,
		"unclassified_revenue":           &s.UnclassifiedRevenue,
		"revenue_total":                  &s.RevenueTotal,
		"cost_of_sales_total":            &s.CostOfSalesTotal,
		"labor_total":                    &s.LaborTotal,
		"other_costs_total":              &s.OtherCostsTotal,
		"depreciation_total":             &s.DepreciationTotal,
		"financial_result_total":         &s.FinancialResultTotal,
		"unclassified_costs":             &s.UnclassifiedCosts,
		"gross_profit":                   &s.GrossProfit,
		"result":                         &s.Result,
		"rollup_excluded_amount":         &s.RollupExcludedAmount,
	}
}

func newSummaryDocument(s *pnl.PeriodSummary, now time.Time) (*summaryDocument, error) {
	doc := &summaryDocument{
		LocationID:          s.LocationID,
		Year:                s.Year,
		Month:               s.Month,
		Amounts:             make(map[string]primitive.Decimal128),
		RecordCount:         s.RecordCount,
		DuplicateCount:      s.DuplicateCount,
		UnclassifiedCount:   s.UnclassifiedCount,
		RollupExcludedCount: s.RollupExcludedCount,
		ComputedAt:          s.ComputedAt,
		UpdatedAt:           now,
	}
	for key, field := range summaryAmounts(s) {
		v, err := toDecimal128(*field)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		doc.Amounts[key] = v
	}
	for _, line := range s.Breakdown {
		amount, err := toDecimal128(line.Amount)
		if err != nil {
			return nil, err
		}
		doc.Breakdown = append(doc.Breakdown, breakdownDocument{
			Bucket:      string(line.Bucket),
			Category:    line.Category,
			Subcategory: line.Subcategory,
			Amount:      amount,
			Count:       line.Count,
		})
	}
	return doc, nil
}

func (d *summaryDocument) toDomain() (*pnl.PeriodSummary, error) {
	s := &pnl.PeriodSummary{
		LocationID:          d.LocationID,
		Year:                d.Year,
		Month:               d.Month,
		RecordCount:         d.RecordCount,
		DuplicateCount:      d.DuplicateCount,
		UnclassifiedCount:   d.UnclassifiedCount,
		RollupExcludedCount: d.RollupExcludedCount,
		ComputedAt:          d.ComputedAt,
	}
	for key, field := range summaryAmounts(s) {
		stored, ok := d.Amounts[key]
		if !ok {
			continue
		}
		v, err := fromDecimal128(stored)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		*field = v
	}
	for _, line := range d.Breakdown {
		amount, err := fromDecimal128(line.Amount)
		if err != nil {
			return nil, err
		}
		s.Breakdown = append(s.Breakdown, pnl.BreakdownLine{
			Bucket:      pnl.Bucket(line.Bucket),
			Category:    line.Category,
			Subcategory: line.Subcategory,
			Amount:      amount,
			Count:       line.Count,
		})
	}
	return s, nil
}
