package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/restodash/backend/internal/domain/pnl"
	"github.com/restodash/backend/internal/domain/shared"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SummaryRepository stores one document per scope in pnl_period_summaries.
type SummaryRepository struct {
	collection *mongo.Collection
	now        func() time.Time
}

// NewSummaryRepository creates a new SummaryRepository
func NewSummaryRepository(db *mongo.Database) *SummaryRepository {
	return &SummaryRepository{
		collection: db.Collection(summariesCollection),
		now:        time.Now,
	}
}

// EnsureIndexes creates the unique scope index.
func (r *SummaryRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "locationId", Value: 1},
			{Key: "year", Value: 1},
			{Key: "month", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	})
	return err
}

// Upsert replaces the scope's document, inserting it when missing.
func (r *SummaryRepository) Upsert(ctx context.Context, summary *pnl.PeriodSummary) error {
	if summary == nil {
		return fmt.Errorf("%w: summary is nil", shared.ErrInvalidInput)
	}
	doc, err := newSummaryDocument(summary, r.now().UTC())
	if err != nil {
		return fmt.Errorf("encode summary %s: %w", summary.Scope(), err)
	}

	_, err = r.collection.ReplaceOne(ctx, scopeFilter(summary.Scope()), doc, options.Replace().SetUpsert(true))
	return err
}

// FindByScope returns the stored summary or shared.ErrNotFound.
func (r *SummaryRepository) FindByScope(ctx context.Context, scope pnl.Scope) (*pnl.PeriodSummary, error) {
	var doc summaryDocument
	if err := r.collection.FindOne(ctx, scopeFilter(scope)).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return doc.toDomain()
}

// ListByLocation returns the location's summaries in period order. Year 0 lists every year.
func (r *SummaryRepository) ListByLocation(ctx context.Context, locationID string, year int) ([]*pnl.PeriodSummary, error) {
	filter := bson.M{"locationId": locationID}
	if year != 0 {
		filter["year"] = year
	}
	opts := options.Find().SetSort(bson.D{{Key: "year", Value: 1}, {Key: "month", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []summaryDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	summaries := make([]*pnl.PeriodSummary, 0, len(docs))
	for i := range docs {
		s, err := docs[i].toDomain()
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}

var _ pnl.SummaryRepository = (*SummaryRepository)(nil)
