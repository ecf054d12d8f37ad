package pnl

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Classification is the outcome of classifying one line item.
type Classification struct {
	Bucket   Bucket
	Rule     *Rule // nil when Fallback is set
	Fallback bool
}

// Aggregator folds the line items of one scope into a PeriodSummary.
// It holds no per-call state and is safe for concurrent use.
type Aggregator struct {
	rules    *RuleSet
	policies RollupPolicies
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithRules replaces the default rule table.
func WithRules(rules *RuleSet) Option {
	return func(a *Aggregator) {
		if rules != nil {
			a.rules = rules
		}
	}
}

// WithRollupPolicy sets the rollup policy of a single bucket.
func WithRollupPolicy(b Bucket, policy RollupPolicy) Option {
	return func(a *Aggregator) {
		a.policies[b] = policy
	}
}

// WithRollupPolicies merges policies into the aggregator's configuration.
func WithRollupPolicies(policies RollupPolicies) Option {
	return func(a *Aggregator) {
		for b, p := range policies {
			a.policies[b] = p
		}
	}
}

// NewAggregator creates an aggregator using the default rules and include_all
// for every bucket unless overridden.
func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{
		rules:    DefaultRuleSet(),
		policies: make(RollupPolicies),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

var defaultAggregator = NewAggregator()

// Aggregate runs the default aggregator.
func Aggregate(items []LineItem, scope Scope) (*PeriodSummary, error) {
	return defaultAggregator.Aggregate(items, scope)
}

// Rules returns the rule table in evaluation order.
func (a *Aggregator) Rules() []Rule {
	return a.rules.Rules()
}

// Policies returns a copy of the configured rollup policies.
func (a *Aggregator) Policies() RollupPolicies {
	out := make(RollupPolicies, len(a.policies))
	for b, p := range a.policies {
		out[b] = p
	}
	return out
}

// Classify assigns exactly one bucket to the item.
func (a *Aggregator) Classify(item LineItem) Classification {
	if rule, ok := a.rules.Match(item); ok {
		return Classification{Bucket: rule.Bucket, Rule: &rule}
	}
	if item.Amount.IsPositive() {
		return Classification{Bucket: BucketRevenueUnclassified, Fallback: true}
	}
	return Classification{Bucket: BucketCostUnclassified, Fallback: true}
}

type classified struct {
	item     LineItem
	bucket   Bucket
	category string
	fallback bool
}

type parentKey struct {
	bucket   Bucket
	category string
}

type breakdownKey struct {
	bucket      Bucket
	category    string
	subcategory string
}

// Aggregate validates the scope, then deduplicates, classifies and sums the
// items. The items are trusted to belong to scope. ComputedAt is left zero.
func (a *Aggregator) Aggregate(items []LineItem, scope Scope) (*PeriodSummary, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	kept, duplicates := Deduplicate(items)

	rows := make([]classified, 0, len(kept))
	withChildren := make(map[parentKey]bool)
	for _, li := range kept {
		c := a.Classify(li)
		row := classified{
			item:     li,
			bucket:   c.Bucket,
			category: canonical(li.Category),
			fallback: c.Fallback,
		}
		if li.Subcategory != "" {
			withChildren[parentKey{row.bucket, row.category}] = true
		}
		rows = append(rows, row)
	}

	summary := NewPeriodSummary(scope)
	summary.RecordCount = len(kept)
	summary.DuplicateCount = len(duplicates)

	lines := make(map[breakdownKey]*BreakdownLine)
	for _, row := range rows {
		if row.fallback {
			summary.UnclassifiedCount++
		}
		if row.item.IsRollup() &&
			a.policies.For(row.bucket) == RollupPreferChildren &&
			withChildren[parentKey{row.bucket, row.category}] {
			summary.RollupExcludedCount++
			summary.RollupExcludedAmount = summary.RollupExcludedAmount.Add(row.item.Amount)
			continue
		}

		summary.add(row.bucket, row.item.Amount)

		k := breakdownKey{row.bucket, row.item.Category, row.item.Subcategory}
		line, ok := lines[k]
		if !ok {
			line = &BreakdownLine{
				Bucket:      row.bucket,
				Category:    row.item.Category,
				Subcategory: row.item.Subcategory,
				Amount:      decimal.Zero,
			}
			lines[k] = line
		}
		line.Amount = line.Amount.Add(row.item.Amount)
		line.Count++
	}

	summary.Breakdown = sortedBreakdown(lines)
	summary.computeDerived()
	return summary, nil
}

func sortedBreakdown(lines map[breakdownKey]*BreakdownLine) []BreakdownLine {
	out := make([]BreakdownLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, *line)
	}
	sort.Slice(out, func(i, j int) bool {
		if oi, oj := out[i].Bucket.order(), out[j].Bucket.order(); oi != oj {
			return oi < oj
		}
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Subcategory < out[j].Subcategory
	})
	return out
}
