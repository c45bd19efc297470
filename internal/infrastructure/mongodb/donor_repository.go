package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/bloodbank-platform/allocation-service/internal/domain"
)

// DonorRepository reads the donor registry projection. The registry itself
// is owned by the donor service; this collection is kept current by its
// published events.
type DonorRepository struct {
	collection *mongo.Collection
}

// NewDonorRepository creates a new DonorRepository
func NewDonorRepository(db *mongo.Database) *DonorRepository {
	repo := &DonorRepository{
		collection: db.Collection("donors"),
	}
	repo.ensureIndexes(context.Background())
	return repo
}

func (r *DonorRepository) ensureIndexes(ctx context.Context) {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "donorId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "bloodGroup", Value: 1}, {Key: "isAvailable", Value: 1}}},
		{Keys: bson.D{{Key: "bloodGroup", Value: 1}, {Key: "organDonor", Value: 1}}},
	}
	r.collection.Indexes().CreateMany(ctx, indexes)
}

// FindByID returns one donor, or nil when absent
func (r *DonorRepository) FindByID(ctx context.Context, donorID string) (*domain.Donor, error) {
	var donor domain.Donor
	err := r.collection.FindOne(ctx, bson.M{"donorId": donorID}).Decode(&donor)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find donor: %w", err)
	}
	return &donor, nil
}

// FindByGroups returns available donors in any of the given groups
func (r *DonorRepository) FindByGroups(ctx context.Context, groups []domain.BloodGroup) ([]*domain.Donor, error) {
	return r.find(ctx, bson.M{
		"bloodGroup":  bson.M{"$in": groups},
		"isAvailable": true,
	})
}

// FindOrganDonorsByGroups returns consenting organ donors in any of the
// given groups
func (r *DonorRepository) FindOrganDonorsByGroups(ctx context.Context, groups []domain.BloodGroup) ([]*domain.Donor, error) {
	return r.find(ctx, bson.M{
		"bloodGroup":  bson.M{"$in": groups},
		"isAvailable": true,
		"organDonor":  true,
	})
}

func (r *DonorRepository) find(ctx context.Context, filter bson.M) ([]*domain.Donor, error) {
	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find donors: %w", err)
	}
	defer cursor.Close(ctx)

	var donors []*domain.Donor
	if err := cursor.All(ctx, &donors); err != nil {
		return nil, fmt.Errorf("failed to decode donors: %w", err)
	}
	return donors, nil
}
