package pnl

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// MatchField selects which line item field a rule inspects.
type MatchField string

const (
	FieldCategory    MatchField = "category"
	FieldSubcategory MatchField = "subcategory"
)

// IsValid returns true for known fields
func (f MatchField) IsValid() bool {
	return f == FieldCategory || f == FieldSubcategory
}

// MatchKind is how a rule pattern is compared to the field value.
type MatchKind string

const (
	MatchExact  MatchKind = "exact"
	MatchPrefix MatchKind = "prefix"
)

// IsValid returns true for known match kinds
func (k MatchKind) IsValid() bool {
	return k == MatchExact || k == MatchPrefix
}

// Rule maps a category or subcategory pattern to a bucket.
type Rule struct {
	Field   MatchField `json:"field" mapstructure:"field"`
	Kind    MatchKind  `json:"match" mapstructure:"match"`
	Pattern string     `json:"pattern" mapstructure:"pattern"`
	Bucket  Bucket     `json:"bucket" mapstructure:"bucket"`
}

func (r Rule) String() string {
	return fmt.Sprintf("%s %s %q -> %s", r.Field, r.Kind, r.Pattern, r.Bucket)
}

// Validate checks the rule is well formed.
func (r Rule) Validate() error {
	if !r.Field.IsValid() {
		return fmt.Errorf("rule %s: unknown field %q", r, r.Field)
	}
	if !r.Kind.IsValid() {
		return fmt.Errorf("rule %s: unknown match kind %q", r, r.Kind)
	}
	if canonical(r.Pattern) == "" {
		return fmt.Errorf("rule %s: empty pattern", r)
	}
	if !r.Bucket.IsValid() {
		return fmt.Errorf("rule %s: unknown bucket %q", r, r.Bucket)
	}
	return nil
}

type compiledRule struct {
	rule    Rule
	pattern string
}

func (c compiledRule) matches(value string) bool {
	if c.rule.Kind == MatchPrefix {
		return strings.HasPrefix(value, c.pattern)
	}
	return value == c.pattern
}

// RuleSet is a closed, ordered classification table. Category rules are
// evaluated before subcategory rules; inside each group table order wins.
type RuleSet struct {
	category    []compiledRule
	subcategory []compiledRule
}

// NewRuleSet validates and compiles rules.
func NewRuleSet(rules []Rule) (*RuleSet, error) {
	rs := &RuleSet{}
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		c := compiledRule{rule: r, pattern: canonical(r.Pattern)}
		if r.Field == FieldCategory {
			rs.category = append(rs.category, c)
		} else {
			rs.subcategory = append(rs.subcategory, c)
		}
	}
	return rs, nil
}

// MustRuleSet is NewRuleSet for tables known to be valid.
func MustRuleSet(rules []Rule) *RuleSet {
	rs, err := NewRuleSet(rules)
	if err != nil {
		panic(err)
	}
	return rs
}

// Rules returns the rules in evaluation order.
func (rs *RuleSet) Rules() []Rule {
	out := make([]Rule, 0, len(rs.category)+len(rs.subcategory))
	for _, c := range rs.category {
		out = append(out, c.rule)
	}
	for _, c := range rs.subcategory {
		out = append(out, c.rule)
	}
	return out
}

// Match returns the first rule matching the item, checking the category first
// and the subcategory second.
func (rs *RuleSet) Match(item LineItem) (Rule, bool) {
	if category := canonical(item.Category); category != "" {
		for _, c := range rs.category {
			if c.matches(category) {
				return c.rule, true
			}
		}
	}
	if subcategory := canonical(item.Subcategory); subcategory != "" {
		for _, c := range rs.subcategory {
			if c.matches(subcategory) {
				return c.rule, true
			}
		}
	}
	return Rule{}, false
}

// canonical normalizes a ledger label for matching: NFC, case folded,
// inner whitespace collapsed.
func canonical(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return ""
	}
	return cases.Fold().String(norm.NFC.String(s))
}

// DefaultRules is the Dutch chart-of-accounts table used when no rules are configured.
func DefaultRules() []Rule {
	return []Rule{
		// Revenue
		{FieldCategory, MatchExact, "Netto-omzet uit leveringen geproduceerde goederen", BucketRevenueProducedGoods},
		{FieldCategory, MatchExact, "Netto-omzet uit verkoop van handelsgoederen", BucketRevenueMerchandise},
		{FieldCategory, MatchPrefix, "Netto-omzet uit leveringen", BucketRevenueProducedGoods},
		{FieldCategory, MatchPrefix, "Netto-omzet uit verkoop", BucketRevenueMerchandise},

		// Cost of sales
		{FieldCategory, MatchExact, "Inkoopwaarde handelsgoederen", BucketCostOfSales},
		{FieldCategory, MatchExact, "Kostprijs van de omzet", BucketCostOfSales},
		{FieldCategory, MatchPrefix, "Inkoopwaarde", BucketCostOfSales},

		// Labor
		{FieldCategory, MatchExact, "Lonen en salarissen", BucketLabor},
		{FieldCategory, MatchExact, "Sociale lasten", BucketLabor},
		{FieldCategory, MatchExact, "Pensioenlasten", BucketLabor},
		{FieldCategory, MatchPrefix, "Personeelskosten", BucketLabor},
		{FieldCategory, MatchExact, "Overige personeelskosten", BucketLabor},

		// Depreciation
		{FieldCategory, MatchPrefix, "Afschrijvingen", BucketDepreciation},

		// Financial result
		{FieldCategory, MatchExact, "Financiële baten en lasten", BucketFinancialResult},
		{FieldCategory, MatchPrefix, "Rentelasten", BucketFinancialResult},
		{FieldCategory, MatchPrefix, "Rentebaten", BucketFinancialResult},

		// Other operating costs
		{FieldCategory, MatchExact, "Overige bedrijfskosten", BucketOtherCosts},
		{FieldCategory, MatchExact, "Huisvestingskosten", BucketOtherCosts},
		{FieldCategory, MatchExact, "Exploitatie- en machinekosten", BucketOtherCosts},
		{FieldCategory, MatchExact, "Verkoop gerelateerde kosten", BucketOtherCosts},
		{FieldCategory, MatchExact, "Autokosten", BucketOtherCosts},
		{FieldCategory, MatchExact, "Kantoorkosten", BucketOtherCosts},
		{FieldCategory, MatchExact, "Algemene kosten", BucketOtherCosts},

		// Detail rows without a recognised parent
		{FieldSubcategory, MatchPrefix, "Omzet dranken", BucketRevenueMerchandise},
		{FieldSubcategory, MatchPrefix, "Omzet", BucketRevenueProducedGoods},
		{FieldSubcategory, MatchPrefix, "Inkoop", BucketCostOfSales},
		{FieldSubcategory, MatchPrefix, "Bruto lonen", BucketLabor},
		{FieldSubcategory, MatchExact, "Uitzendkrachten", BucketLabor},
		{FieldSubcategory, MatchPrefix, "Inhuur personeel", BucketLabor},
		{FieldSubcategory, MatchPrefix, "Afschrijving", BucketDepreciation},
		{FieldSubcategory, MatchPrefix, "Rente", BucketFinancialResult},
		{FieldSubcategory, MatchExact, "Huur", BucketOtherCosts},
		{FieldSubcategory, MatchExact, "Energie", BucketOtherCosts},
	}
}

var defaultRuleSet = MustRuleSet(DefaultRules())

// DefaultRuleSet returns the compiled default table.
func DefaultRuleSet() *RuleSet {
	return defaultRuleSet
}
