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

var openAlertStatuses = []domain.AlertStatus{
	domain.AlertStatusActive,
	domain.AlertStatusPartiallyResolved,
}

// AlertRepository implements domain.AlertRepository using MongoDB
type AlertRepository struct {
	collection *mongo.Collection
}

// NewAlertRepository creates a new AlertRepository
func NewAlertRepository(db *mongo.Database) *AlertRepository {
	repo := &AlertRepository{
		collection: db.Collection("emergency_alerts"),
	}
	repo.ensureIndexes(context.Background())
	return repo
}

func (r *AlertRepository) ensureIndexes(ctx context.Context) {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "alertId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "hospitalId", Value: 1}, {Key: "raisedAt", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "autoExpireAt", Value: 1}}},
	}
	r.collection.Indexes().CreateMany(ctx, indexes)
}

// Save upserts an alert on its alert ID
func (r *AlertRepository) Save(ctx context.Context, alert *domain.EmergencyAlert) error {
	alert.UpdatedAt = time.Now()

	filter := bson.M{"alertId": alert.AlertID}
	update := bson.M{"$set": alert}
	opts := options.Update().SetUpsert(true)

	if _, err := r.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to save alert: %w", err)
	}
	return nil
}

// FindByID returns one alert, or nil when absent
func (r *AlertRepository) FindByID(ctx context.Context, alertID string) (*domain.EmergencyAlert, error) {
	var alert domain.EmergencyAlert
	err := r.collection.FindOne(ctx, bson.M{"alertId": alertID}).Decode(&alert)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find alert: %w", err)
	}
	return &alert, nil
}

// FindOpen returns alerts still collecting responses
func (r *AlertRepository) FindOpen(ctx context.Context) ([]*domain.EmergencyAlert, error) {
	return r.find(ctx, bson.M{"status": bson.M{"$in": openAlertStatuses}},
		options.Find().SetSort(bson.D{{Key: "raisedAt", Value: -1}}))
}

// FindExpired returns open alerts past their auto-expire deadline
func (r *AlertRepository) FindExpired(ctx context.Context, now time.Time) ([]*domain.EmergencyAlert, error) {
	return r.find(ctx, bson.M{
		"status":       bson.M{"$in": openAlertStatuses},
		"autoExpireAt": bson.M{"$lte": now},
	}, options.Find())
}

// List returns alerts, optionally narrowed by hospital and status,
// newest first
func (r *AlertRepository) List(ctx context.Context, hospitalID string, status domain.AlertStatus, offset, limit int) ([]*domain.EmergencyAlert, int64, error) {
	filter := bson.M{}
	if hospitalID != "" {
		filter["hospitalId"] = hospitalID
	}
	if status != "" {
		filter["status"] = status
	}

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count alerts: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "raisedAt", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	alerts, err := r.find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	return alerts, total, nil
}

func (r *AlertRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*domain.EmergencyAlert, error) {
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find alerts: %w", err)
	}
	defer cursor.Close(ctx)

	var alerts []*domain.EmergencyAlert
	if err := cursor.All(ctx, &alerts); err != nil {
		return nil, fmt.Errorf("failed to decode alerts: %w", err)
	}
	return alerts, nil
}
