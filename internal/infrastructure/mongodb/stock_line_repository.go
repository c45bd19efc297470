package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/bloodbank-platform/allocation-service/internal/domain"
)

// StockLineRepository implements domain.StockLineRepository using MongoDB
type StockLineRepository struct {
	collection *mongo.Collection
}

// NewStockLineRepository creates a new StockLineRepository
func NewStockLineRepository(db *mongo.Database) *StockLineRepository {
	repo := &StockLineRepository{
		collection: db.Collection("stock_lines"),
	}
	repo.ensureIndexes(context.Background())
	return repo
}

func (r *StockLineRepository) ensureIndexes(ctx context.Context) {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "bankId", Value: 1},
				{Key: "bloodGroup", Value: 1},
				{Key: "component", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "batches.expiresAt", Value: 1}}},
		{Keys: bson.D{{Key: "bloodGroup", Value: 1}, {Key: "component", Value: 1}}},
		{Keys: bson.D{{Key: "updatedAt", Value: -1}}},
	}
	r.collection.Indexes().CreateMany(ctx, indexes)
}

// Save persists a stock line. A line loaded at version N is only written
// over version N: the API and sweeper processes share these documents, and
// a save losing that compare-and-swap returns ErrConcurrentModification
// instead of silently overwriting the other writer.
func (r *StockLineRepository) Save(ctx context.Context, line *domain.StockLine) error {
	loadedVersion := line.Version
	line.UpdatedAt = time.Now()
	line.Version++

	if loadedVersion == 0 {
		if _, err := r.collection.InsertOne(ctx, line); err != nil {
			line.Version = loadedVersion
			if mongo.IsDuplicateKeyError(err) {
				return domain.ErrConcurrentModification
			}
			return fmt.Errorf("failed to insert stock line: %w", err)
		}
		return nil
	}

	filter := bson.M{
		"bankId":     line.BankID,
		"bloodGroup": line.BloodGroup,
		"component":  line.Component,
		"version":    loadedVersion,
	}

	result, err := r.collection.ReplaceOne(ctx, filter, line)
	if err != nil {
		line.Version = loadedVersion
		return fmt.Errorf("failed to save stock line: %w", err)
	}
	if result.MatchedCount == 0 {
		line.Version = loadedVersion
		return domain.ErrConcurrentModification
	}
	return nil
}

// FindByKey returns one stock line, or nil when absent
func (r *StockLineRepository) FindByKey(ctx context.Context, bankID string, group domain.BloodGroup, component domain.Component) (*domain.StockLine, error) {
	filter := bson.M{
		"bankId":     bankID,
		"bloodGroup": group,
		"component":  component,
	}

	var line domain.StockLine
	err := r.collection.FindOne(ctx, filter).Decode(&line)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find stock line: %w", err)
	}
	return &line, nil
}

// FindByBank returns all stock lines of one bank
func (r *StockLineRepository) FindByBank(ctx context.Context, bankID string) ([]*domain.StockLine, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"bankId": bankID},
		options.Find().SetSort(bson.D{{Key: "bloodGroup", Value: 1}, {Key: "component", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to find stock lines: %w", err)
	}
	defer cursor.Close(ctx)

	var lines []*domain.StockLine
	if err := cursor.All(ctx, &lines); err != nil {
		return nil, fmt.Errorf("failed to decode stock lines: %w", err)
	}
	return lines, nil
}

// List returns stock lines matching the filter with pagination
func (r *StockLineRepository) List(ctx context.Context, f domain.StockLineFilter, offset, limit int) ([]*domain.StockLine, int64, error) {
	filter := bson.M{}
	if f.BankID != "" {
		filter["bankId"] = f.BankID
	}
	if f.BloodGroup != "" {
		filter["bloodGroup"] = f.BloodGroup
	}
	if f.Component != "" {
		filter["component"] = f.Component
	}

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count stock lines: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "bankId", Value: 1}, {Key: "bloodGroup", Value: 1}, {Key: "component", Value: 1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list stock lines: %w", err)
	}
	defer cursor.Close(ctx)

	var lines []*domain.StockLine
	if err := cursor.All(ctx, &lines); err != nil {
		return nil, 0, fmt.Errorf("failed to decode stock lines: %w", err)
	}
	return lines, total, nil
}

// FindWithExpiredBatches returns lines holding at least one expired batch
func (r *StockLineRepository) FindWithExpiredBatches(ctx context.Context, now time.Time) ([]*domain.StockLine, error) {
	filter := bson.M{
		"batches": bson.M{
			"$elemMatch": bson.M{"expiresAt": bson.M{"$lte": now}},
		},
	}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find expired batches: %w", err)
	}
	defer cursor.Close(ctx)

	var lines []*domain.StockLine
	if err := cursor.All(ctx, &lines); err != nil {
		return nil, fmt.Errorf("failed to decode stock lines: %w", err)
	}
	return lines, nil
}

// FindLowStock returns lines whose unreserved units sit at or below the
// configured minimum. Expired batches are re-checked in memory by the caller.
func (r *StockLineRepository) FindLowStock(ctx context.Context) ([]*domain.StockLine, error) {
	filter := bson.M{
		"$expr": bson.M{
			"$lte": bson.A{
				bson.M{"$subtract": bson.A{"$totalUnits", "$reservedUnits"}},
				"$thresholds.minimumStock",
			},
		},
	}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find low stock lines: %w", err)
	}
	defer cursor.Close(ctx)

	var lines []*domain.StockLine
	if err := cursor.All(ctx, &lines); err != nil {
		return nil, fmt.Errorf("failed to decode stock lines: %w", err)
	}
	return lines, nil
}
