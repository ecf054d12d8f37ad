package pnl

// Bucket is a named accumulator of the period summary.
type Bucket string

const (
	BucketRevenueProducedGoods Bucket = "revenue_produced_goods"
	BucketRevenueMerchandise   Bucket = "revenue_merchandise"
	BucketRevenueUnclassified  Bucket = "revenue_unclassified"
	BucketCostOfSales          Bucket = "cost_of_sales"
	BucketLabor                Bucket = "labor"
	BucketOtherCosts           Bucket = "other_costs"
	BucketDepreciation         Bucket = "depreciation"
	BucketFinancialResult      Bucket = "financial_result"
	BucketCostUnclassified     Bucket = "cost_unclassified"
)

var allBuckets = []Bucket{
	BucketRevenueProducedGoods,
	BucketRevenueMerchandise,
	BucketRevenueUnclassified,
	BucketCostOfSales,
	BucketLabor,
	BucketOtherCosts,
	BucketDepreciation,
	BucketFinancialResult,
	BucketCostUnclassified,
}

// AllBuckets returns every bucket in report order.
func AllBuckets() []Bucket {
	out := make([]Bucket, len(allBuckets))
	copy(out, allBuckets)
	return out
}

// IsValid returns true if b is a known bucket
func (b Bucket) IsValid() bool {
	return b.order() >= 0
}

// String returns the bucket identifier
func (b Bucket) String() string {
	return string(b)
}

// IsRevenue reports whether the bucket contributes to RevenueTotal.
func (b Bucket) IsRevenue() bool {
	switch b {
	case BucketRevenueProducedGoods, BucketRevenueMerchandise, BucketRevenueUnclassified:
		return true
	default:
		return false
	}
}

// IsCost reports whether the bucket is shown as an absolute cost at the presentation boundary.
// The financial result can be income or expense and keeps its sign.
func (b Bucket) IsCost() bool {
	switch b {
	case BucketCostOfSales, BucketLabor, BucketOtherCosts, BucketDepreciation, BucketCostUnclassified:
		return true
	default:
		return false
	}
}

func (b Bucket) order() int {
	for i, known := range allBuckets {
		if known == b {
			return i
		}
	}
	return -1
}
