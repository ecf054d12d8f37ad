package persistence

import (
	"context"
	"fmt"

	"github.com/restodash/backend/internal/domain/pnl"
	"github.com/restodash/backend/internal/domain/shared"
	"github.com/restodash/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

const lineItemBatchSize = 500

// GormLineItemRepository reads ledger rows from pnl_line_items.
type GormLineItemRepository struct {
	db *gorm.DB
}

// NewGormLineItemRepository creates a new line item repository
func NewGormLineItemRepository(db *gorm.DB) *GormLineItemRepository {
	return &GormLineItemRepository{db: db}
}

// FindByScope returns one page of the scope's rows ordered by id.
func (r *GormLineItemRepository) FindByScope(ctx context.Context, scope pnl.Scope, page, pageSize int) ([]pnl.LineItem, error) {
	if pageSize <= 0 {
		return nil, fmt.Errorf("%w: page size must be positive", shared.ErrInvalidInput)
	}
	if page < 1 {
		page = 1
	}

	var rows []models.LineItemModel
	if err := r.db.WithContext(ctx).
		Where("location_id = ? AND year = ? AND month = ?", scope.LocationID, scope.Year, scope.Month).
		Order("id ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("find line items %s: %w", scope, err)
	}

	items := make([]pnl.LineItem, len(rows))
	for i := range rows {
		items[i] = rows[i].ToDomain()
	}
	return items, nil
}

type scopeRow struct {
	LocationID string
	Year       int
	Month      int
}

// ListScopes returns the distinct location-months present in the ledger.
func (r *GormLineItemRepository) ListScopes(ctx context.Context, filter pnl.ScopeFilter) ([]pnl.Scope, error) {
	query := r.db.WithContext(ctx).Model(&models.LineItemModel{})
	if filter.LocationID != "" {
		query = query.Where("location_id = ?", filter.LocationID)
	}
	if filter.Year != 0 {
		query = query.Where("year = ?", filter.Year)
	}
	if filter.Month != 0 {
		query = query.Where("month = ?", filter.Month)
	}

	var rows []scopeRow
	if err := query.
		Distinct("location_id", "year", "month").
		Order("location_id, year, month").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("list scopes: %w", err)
	}

	scopes := make([]pnl.Scope, len(rows))
	for i, row := range rows {
		scopes[i] = pnl.Scope{LocationID: row.LocationID, Year: row.Year, Month: row.Month}
	}
	return scopes, nil
}

// SaveBatch inserts ledger rows. Used for seeding and tests; ingestion owns the table.
func (r *GormLineItemRepository) SaveBatch(ctx context.Context, items []pnl.LineItem) error {
	if len(items) == 0 {
		return nil
	}
	rows := make([]*models.LineItemModel, len(items))
	for i, item := range items {
		rows[i] = models.LineItemModelFromDomain(item)
	}
	return r.db.WithContext(ctx).CreateInBatches(rows, lineItemBatchSize).Error
}

var _ pnl.LineItemRepository = (*GormLineItemRepository)(nil)
