package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/restodash/backend/internal/domain/pnl"
	"github.com/restodash/backend/internal/domain/shared"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// LineItemRepository reads ledger rows from the pnl_line_items collection.
type LineItemRepository struct {
	collection *mongo.Collection
	now        func() time.Time
}

// NewLineItemRepository creates a new LineItemRepository
func NewLineItemRepository(db *mongo.Database) *LineItemRepository {
	return &LineItemRepository{
		collection: db.Collection(lineItemsCollection),
		now:        time.Now,
	}
}

// EnsureIndexes creates the scope index used by paging.
func (r *LineItemRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "locationId", Value: 1},
			{Key: "year", Value: 1},
			{Key: "month", Value: 1},
			{Key: "_id", Value: 1},
		},
	})
	return err
}

func scopeFilter(scope pnl.Scope) bson.M {
	return bson.M{"locationId": scope.LocationID, "year": scope.Year, "month": scope.Month}
}

// FindByScope returns one page of the scope's rows ordered by _id.
func (r *LineItemRepository) FindByScope(ctx context.Context, scope pnl.Scope, page, pageSize int) ([]pnl.LineItem, error) {
	if pageSize <= 0 {
		return nil, fmt.Errorf("%w: page size must be positive", shared.ErrInvalidInput)
	}
	if page < 1 {
		page = 1
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetSkip(int64((page - 1) * pageSize)).
		SetLimit(int64(pageSize))

	cursor, err := r.collection.Find(ctx, scopeFilter(scope), opts)
	if err != nil {
		return nil, fmt.Errorf("find line items %s: %w", scope, err)
	}
	defer cursor.Close(ctx)

	var docs []lineItemDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode line items %s: %w", scope, err)
	}

	items := make([]pnl.LineItem, 0, len(docs))
	for i := range docs {
		item, err := docs[i].toDomain()
		if err != nil {
			return nil, fmt.Errorf("line item %s: %w", docs[i].ID.Hex(), err)
		}
		items = append(items, item)
	}
	return items, nil
}

// ListScopes groups the collection by location-month.
func (r *LineItemRepository) ListScopes(ctx context.Context, filter pnl.ScopeFilter) ([]pnl.Scope, error) {
	match := bson.M{}
	if filter.LocationID != "" {
		match["locationId"] = filter.LocationID
	}
	if filter.Year != 0 {
		match["year"] = filter.Year
	}
	if filter.Month != 0 {
		match["month"] = filter.Month
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.M{
			"_id": bson.M{"locationId": "$locationId", "year": "$year", "month": "$month"},
		}}},
		{{Key: "$sort", Value: bson.D{
			{Key: "_id.locationId", Value: 1},
			{Key: "_id.year", Value: 1},
			{Key: "_id.month", Value: 1},
		}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("list scopes: %w", err)
	}
	defer cursor.Close(ctx)

	scopes := make([]pnl.Scope, 0)
	for cursor.Next(ctx) {
		var row struct {
			ID struct {
				LocationID string `bson:"locationId"`
				Year       int    `bson:"year"`
				Month      int    `bson:"month"`
			} `bson:"_id"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, fmt.Errorf("decode scope: %w", err)
		}
		scopes = append(scopes, pnl.Scope{LocationID: row.ID.LocationID, Year: row.ID.Year, Month: row.ID.Month})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("list scopes: %w", err)
	}
	return scopes, nil
}

// SaveBatch inserts ledger rows in order.
func (r *LineItemRepository) SaveBatch(ctx context.Context, items []pnl.LineItem) error {
	if len(items) == 0 {
		return nil
	}
	now := r.now().UTC()
	docs := make([]interface{}, len(items))
	for i, item := range items {
		doc, err := newLineItemDocument(item, now)
		if err != nil {
			return err
		}
		docs[i] = doc
	}
	_, err := r.collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true))
	return err
}

var _ pnl.LineItemRepository = (*LineItemRepository)(nil)
