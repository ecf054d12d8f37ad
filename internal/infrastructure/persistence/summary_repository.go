package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/restodash/backend/internal/domain/pnl"
	"github.com/restodash/backend/internal/domain/shared"
	"github.com/restodash/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormSummaryRepository stores one row per scope in pnl_period_summaries.
type GormSummaryRepository struct {
	db *gorm.DB
}

// NewGormSummaryRepository creates a new summary repository
func NewGormSummaryRepository(db *gorm.DB) *GormSummaryRepository {
	return &GormSummaryRepository{db: db}
}

// Upsert inserts the summary or replaces the stored summary of the same scope.
func (r *GormSummaryRepository) Upsert(ctx context.Context, summary *pnl.PeriodSummary) error {
	if summary == nil {
		return fmt.Errorf("%w: summary is nil", shared.ErrInvalidInput)
	}
	model := models.PeriodSummaryModelFromDomain(summary)

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "location_id"}, {Name: "year"}, {Name: "month"}},
		DoUpdates: clause.AssignmentColumns(models.SummaryUpdateColumns),
	}).Create(model).Error
}

// FindByScope returns the stored summary or shared.ErrNotFound.
func (r *GormSummaryRepository) FindByScope(ctx context.Context, scope pnl.Scope) (*pnl.PeriodSummary, error) {
	var model models.PeriodSummaryModel
	if err := r.db.WithContext(ctx).
		Where("location_id = ? AND year = ? AND month = ?", scope.LocationID, scope.Year, scope.Month).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ListByLocation returns the location's summaries in period order. Year 0 lists every year.
func (r *GormSummaryRepository) ListByLocation(ctx context.Context, locationID string, year int) ([]*pnl.PeriodSummary, error) {
	query := r.db.WithContext(ctx).Where("location_id = ?", locationID)
	if year != 0 {
		query = query.Where("year = ?", year)
	}

	var rows []models.PeriodSummaryModel
	if err := query.Order("year ASC, month ASC").Find(&rows).Error; err != nil {
		return nil, err
	}

	summaries := make([]*pnl.PeriodSummary, len(rows))
	for i := range rows {
		summaries[i] = rows[i].ToDomain()
	}
	return summaries, nil
}

var _ pnl.SummaryRepository = (*GormSummaryRepository)(nil)
