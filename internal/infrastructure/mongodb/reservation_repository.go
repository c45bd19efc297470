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

// ReservationRepository implements domain.ReservationRepository using MongoDB
type ReservationRepository struct {
	collection *mongo.Collection
}

// NewReservationRepository creates a new ReservationRepository
func NewReservationRepository(db *mongo.Database) *ReservationRepository {
	repo := &ReservationRepository{
		collection: db.Collection("reservations"),
	}
	repo.ensureIndexes(context.Background())
	return repo
}

func (r *ReservationRepository) ensureIndexes(ctx context.Context) {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "reservationId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "requestId", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "expiresAt", Value: 1}}},
		{Keys: bson.D{{Key: "bankId", Value: 1}, {Key: "createdAt", Value: -1}}},
	}
	r.collection.Indexes().CreateMany(ctx, indexes)
}

// Save upserts a reservation on its reservation ID
func (r *ReservationRepository) Save(ctx context.Context, reservation *domain.Reservation) error {
	reservation.UpdatedAt = time.Now()

	filter := bson.M{"reservationId": reservation.ReservationID}
	update := bson.M{"$set": reservation}
	opts := options.Update().SetUpsert(true)

	if _, err := r.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to save reservation: %w", err)
	}
	return nil
}

// FindByID returns one reservation, or nil when absent
func (r *ReservationRepository) FindByID(ctx context.Context, reservationID string) (*domain.Reservation, error) {
	var reservation domain.Reservation
	err := r.collection.FindOne(ctx, bson.M{"reservationId": reservationID}).Decode(&reservation)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find reservation: %w", err)
	}
	return &reservation, nil
}

// FindActiveByRequest returns a request's uncommitted reservations
func (r *ReservationRepository) FindActiveByRequest(ctx context.Context, requestID string) ([]*domain.Reservation, error) {
	filter := bson.M{
		"requestId": requestID,
		"status":    domain.ReservationStatusActive,
	}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find reservations: %w", err)
	}
	defer cursor.Close(ctx)

	var reservations []*domain.Reservation
	if err := cursor.All(ctx, &reservations); err != nil {
		return nil, fmt.Errorf("failed to decode reservations: %w", err)
	}
	return reservations, nil
}

// FindOverdue returns active reservations past their hold deadline
func (r *ReservationRepository) FindOverdue(ctx context.Context, now time.Time) ([]*domain.Reservation, error) {
	filter := bson.M{
		"status":    domain.ReservationStatusActive,
		"expiresAt": bson.M{"$lte": now},
	}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find overdue reservations: %w", err)
	}
	defer cursor.Close(ctx)

	var reservations []*domain.Reservation
	if err := cursor.All(ctx, &reservations); err != nil {
		return nil, fmt.Errorf("failed to decode reservations: %w", err)
	}
	return reservations, nil
}

// List returns reservations for a bank, optionally by status, newest first
func (r *ReservationRepository) List(ctx context.Context, bankID string, status domain.ReservationStatus, offset, limit int) ([]*domain.Reservation, int64, error) {
	filter := bson.M{}
	if bankID != "" {
		filter["bankId"] = bankID
	}
	if status != "" {
		filter["status"] = status
	}

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count reservations: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list reservations: %w", err)
	}
	defer cursor.Close(ctx)

	var reservations []*domain.Reservation
	if err := cursor.All(ctx, &reservations); err != nil {
		return nil, 0, fmt.Errorf("failed to decode reservations: %w", err)
	}
	return reservations, total, nil
}
