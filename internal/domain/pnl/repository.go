package pnl

import "context"

// ScopeFilter narrows ListScopes. Zero fields match everything.
type ScopeFilter struct {
	LocationID string
	Year       int
	Month      int
}

// Matches reports whether the scope passes the filter.
func (f ScopeFilter) Matches(s Scope) bool {
	if f.LocationID != "" && f.LocationID != s.LocationID {
		return false
	}
	if f.Year != 0 && f.Year != s.Year {
		return false
	}
	if f.Month != 0 && f.Month != s.Month {
		return false
	}
	return true
}

// LineItemRepository reads raw ledger rows written by ingestion.
type LineItemRepository interface {
	// FindByScope returns one page (1-based) of the scope's rows in a stable order.
	FindByScope(ctx context.Context, scope Scope, page, pageSize int) ([]LineItem, error)
	// ListScopes returns the distinct scopes that have rows.
	ListScopes(ctx context.Context, filter ScopeFilter) ([]Scope, error)
	SaveBatch(ctx context.Context, items []LineItem) error
}

// SummaryRepository persists one summary per scope.
type SummaryRepository interface {
	// Upsert creates or replaces the summary of its scope.
	Upsert(ctx context.Context, summary *PeriodSummary) error
	// FindByScope returns shared.ErrNotFound when no summary is stored.
	FindByScope(ctx context.Context, scope Scope) (*PeriodSummary, error)
	ListByLocation(ctx context.Context, locationID string, year int) ([]*PeriodSummary, error)
}
