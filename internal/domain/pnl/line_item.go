// Package pnl holds the profit-and-loss aggregation domain: ledger line items,
// the category rule table, and the aggregator that folds one location-month of
// line items into a categorized period summary.
package pnl

import (
	"fmt"

	"github.com/restodash/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

const (
	minYear = 1900
	maxYear = 9999
)

// ErrInvalidScope is returned when a scope cannot identify a location-month.
// Callers match it with errors.Is; the concrete error carries the reason.
var ErrInvalidScope = shared.NewDomainError("INVALID_SCOPE", "invalid aggregation scope")

// LineItem is one raw ledger row for a location and period.
// Amount follows the ledger convention: positive for revenue and income,
// negative for costs and expenses.
type LineItem struct {
	LocationID  string          `json:"location_id"`
	Year        int             `json:"year"`
	Month       int             `json:"month"`
	Category    string          `json:"category"`
	Subcategory string          `json:"subcategory,omitempty"`
	GLAccount   string          `json:"gl_account,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	ImportID    string          `json:"import_id,omitempty"` // provenance only
}

// IsRollup reports whether the row carries no detail below its category.
func (li LineItem) IsRollup() bool {
	return li.Subcategory == "" && li.GLAccount == ""
}

// Scope identifies one aggregation unit.
type Scope struct {
	LocationID string `json:"location_id"`
	Year       int    `json:"year"`
	Month      int    `json:"month"`
}

// NewScope builds a validated scope.
func NewScope(locationID string, year, month int) (Scope, error) {
	s := Scope{LocationID: locationID, Year: year, Month: month}
	if err := s.Validate(); err != nil {
		return Scope{}, err
	}
	return s, nil
}

// Validate checks that the scope names a location and a real calendar month.
func (s Scope) Validate() error {
	if s.LocationID == "" {
		return fmt.Errorf("%w: location id is empty", ErrInvalidScope)
	}
	if s.Month < 1 || s.Month > 12 {
		return fmt.Errorf("%w: month %d is not in 1-12", ErrInvalidScope, s.Month)
	}
	if s.Year < minYear || s.Year > maxYear {
		return fmt.Errorf("%w: year %d is out of range", ErrInvalidScope, s.Year)
	}
	return nil
}

// String renders the scope as location/YYYY-MM.
func (s Scope) String() string {
	return fmt.Sprintf("%s/%04d-%02d", s.LocationID, s.Year, s.Month)
}

// PreviousMonth returns the scope of the same location one month earlier.
func (s Scope) PreviousMonth() Scope {
	if s.Month == 1 {
		return Scope{LocationID: s.LocationID, Year: s.Year - 1, Month: 12}
	}
	return Scope{LocationID: s.LocationID, Year: s.Year, Month: s.Month - 1}
}

// Contains reports whether the line item belongs to the scope.
func (s Scope) Contains(li LineItem) bool {
	return li.LocationID == s.LocationID && li.Year == s.Year && li.Month == s.Month
}
