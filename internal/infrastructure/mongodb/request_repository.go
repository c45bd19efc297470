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

// RequestRepository implements domain.RequestRepository using MongoDB
type RequestRepository struct {
	collection *mongo.Collection
}

// NewRequestRepository creates a new RequestRepository
func NewRequestRepository(db *mongo.Database) *RequestRepository {
	repo := &RequestRepository{
		collection: db.Collection("donation_requests"),
	}
	repo.ensureIndexes(context.Background())
	return repo
}

func (r *RequestRepository) ensureIndexes(ctx context.Context) {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "requestId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "hospitalId", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "kind", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "requiredBy", Value: 1}}},
		{Keys: bson.D{{Key: "matches.donorId", Value: 1}}},
	}
	r.collection.Indexes().CreateMany(ctx, indexes)
}

// Save upserts a request on its request ID
func (r *RequestRepository) Save(ctx context.Context, request *domain.DonationRequest) error {
	request.UpdatedAt = time.Now()
	request.Version++

	filter := bson.M{"requestId": request.RequestID}
	update := bson.M{"$set": request}
	opts := options.Update().SetUpsert(true)

	if _, err := r.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to save request: %w", err)
	}
	return nil
}

// FindByID returns one request, or nil when absent
func (r *RequestRepository) FindByID(ctx context.Context, requestID string) (*domain.DonationRequest, error) {
	var request domain.DonationRequest
	err := r.collection.FindOne(ctx, bson.M{"requestId": requestID}).Decode(&request)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find request: %w", err)
	}
	return &request, nil
}

// List returns requests matching the filter, newest first
func (r *RequestRepository) List(ctx context.Context, f domain.RequestFilter, offset, limit int) ([]*domain.DonationRequest, int64, error) {
	filter := bson.M{}
	if f.Kind != "" {
		filter["kind"] = f.Kind
	}
	if f.HospitalID != "" {
		filter["hospitalId"] = f.HospitalID
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.Urgency != "" {
		filter["urgency"] = f.Urgency
	}

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count requests: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list requests: %w", err)
	}
	defer cursor.Close(ctx)

	var requests []*domain.DonationRequest
	if err := cursor.All(ctx, &requests); err != nil {
		return nil, 0, fmt.Errorf("failed to decode requests: %w", err)
	}
	return requests, total, nil
}

// FindExpiredBlood returns non-terminal blood requests past their deadline
func (r *RequestRepository) FindExpiredBlood(ctx context.Context, now time.Time) ([]*domain.DonationRequest, error) {
	filter := bson.M{
		"kind": domain.RequestKindBlood,
		"status": bson.M{"$in": []string{
			domain.BloodRequestPending,
			domain.BloodRequestActive,
			domain.BloodRequestPartiallyFulfilled,
		}},
		"requiredBy": bson.M{"$ne": nil, "$lte": now},
	}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find overdue requests: %w", err)
	}
	defer cursor.Close(ctx)

	var requests []*domain.DonationRequest
	if err := cursor.All(ctx, &requests); err != nil {
		return nil, fmt.Errorf("failed to decode requests: %w", err)
	}
	return requests, nil
}
