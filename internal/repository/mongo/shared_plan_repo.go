// internal/repository/mongo/shared_plan_repo.go
package mongo

import (
	"alcyxob/fitness-share/internal/domain"
	"alcyxob/fitness-share/internal/repository"
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const sharedPlanCollectionName = "shared_plans"

// mongoSharedPlanRepository implements repository.SharedPlanRepository.
// The share ID is stored as _id, so the collection's primary index is the
// uniqueness backstop for racing creators.
type mongoSharedPlanRepository struct {
	collection *mongo.Collection
}

// sharedPlanDocument is the stored shape. planData is kept as a JSON string
// rather than converted to BSON so the payload round-trips byte-for-byte.
type sharedPlanDocument struct {
	ShareID        string     `bson:"_id"`
	PlanData       string     `bson:"planData"`
	OwnerRef       *string    `bson:"ownerRef,omitempty"`
	IsActive       bool       `bson:"isActive"`
	AccessCount    int64      `bson:"accessCount"`
	LastAccessedAt *time.Time `bson:"lastAccessedAt,omitempty"`
	ExpiresAt      *time.Time `bson:"expiresAt,omitempty"`
	CreatedAt      time.Time  `bson:"createdAt"`
	UpdatedAt      time.Time  `bson:"updatedAt"`
}

// NewMongoSharedPlanRepository creates a new SharedPlan repository.
func NewMongoSharedPlanRepository(db *mongo.Database) repository.SharedPlanRepository {
	return &mongoSharedPlanRepository{
		collection: db.Collection(sharedPlanCollectionName),
	}
}

func toDocument(plan *domain.SharedPlan) sharedPlanDocument {
	return sharedPlanDocument{
		ShareID:        plan.ShareID,
		PlanData:       string(plan.PlanData),
		OwnerRef:       plan.OwnerRef,
		IsActive:       plan.IsActive,
		AccessCount:    plan.AccessCount,
		LastAccessedAt: plan.LastAccessedAt,
		ExpiresAt:      plan.ExpiresAt,
		CreatedAt:      plan.CreatedAt,
		UpdatedAt:      plan.UpdatedAt,
	}
}

func (d sharedPlanDocument) toDomain() *domain.SharedPlan {
	return &domain.SharedPlan{
		ShareID:        d.ShareID,
		PlanData:       []byte(d.PlanData),
		OwnerRef:       d.OwnerRef,
		IsActive:       d.IsActive,
		AccessCount:    d.AccessCount,
		LastAccessedAt: d.LastAccessedAt,
		ExpiresAt:      d.ExpiresAt,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

// Exists reports whether a share with this ID is stored.
func (r *mongoSharedPlanRepository) Exists(ctx context.Context, id string) (bool, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Insert stores a new shared plan.
func (r *mongoSharedPlanRepository) Insert(ctx context.Context, plan *domain.SharedPlan) error {
	if plan.ShareID == "" {
		return errors.New("shared plan requires a share ID")
	}
	_, err := r.collection.InsertOne(ctx, toDocument(plan))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrDuplicateKey
		}
		return err
	}
	return nil
}

// FindByID retrieves a single shared plan by its share ID.
func (r *mongoSharedPlanRepository) FindByID(ctx context.Context, id string) (*domain.SharedPlan, error) {
	var doc sharedPlanDocument
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return doc.toDomain(), nil
}

// Update applies the provided patch fields.
func (r *mongoSharedPlanRepository) Update(ctx context.Context, id string, patch domain.SharePatch, at time.Time) error {
	set := bson.M{"updatedAt": at.UTC()}
	if patch.HasPlanData() {
		set["planData"] = string(patch.PlanData)
	}
	if patch.IsActive != nil {
		set["isActive"] = *patch.IsActive
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// resolvableFilter matches id only while it is active and unexpired at the given time.
// A nil expiresAt matches both null and a missing field.
func resolvableFilter(id string, at time.Time) bson.M {
	return bson.M{
		"_id":      id,
		"isActive": true,
		"$or": bson.A{
			bson.M{"expiresAt": nil},
			bson.M{"expiresAt": bson.M{"$gt": at.UTC()}},
		},
	}
}

// RecordAccess bumps the access counter in a single atomic FindOneAndUpdate.
func (r *mongoSharedPlanRepository) RecordAccess(ctx context.Context, id string, at time.Time) (int64, error) {
	update := bson.M{
		"$inc": bson.M{"accessCount": 1},
		"$set": bson.M{"lastAccessedAt": at.UTC()},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc sharedPlanDocument
	err := r.collection.FindOneAndUpdate(ctx, resolvableFilter(id, at), update, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, r.missOrGone(ctx, id)
		}
		return 0, err
	}
	return doc.AccessCount, nil
}

// missOrGone tells a missing document from one the filter refused.
func (r *mongoSharedPlanRepository) missOrGone(ctx context.Context, id string) error {
	exists, err := r.Exists(ctx, id)
	if err != nil {
		return err
	}
	if exists {
		return repository.ErrNotResolvable
	}
	return repository.ErrNotFound
}

// Delete removes the shared plan permanently.
func (r *mongoSharedPlanRepository) Delete(ctx context.Context, id string) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// EnsureSharedPlanIndexes creates necessary indexes. Call during startup.
// _id already enforces share ID uniqueness.
func EnsureSharedPlanIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			// Ownership lookups for update/delete auditing
			Keys:    bson.D{{Key: "ownerRef", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
		{
			// Lets an operator find expired shares without a collection scan
			Keys:    bson.D{{Key: "expiresAt", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
	}
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// SharedPlanCollection returns the collection used by the repository.
func SharedPlanCollection(db *mongo.Database) *mongo.Collection {
	return db.Collection(sharedPlanCollectionName)
}
