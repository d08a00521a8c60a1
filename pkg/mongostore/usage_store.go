package mongostore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/meterkit/pkg/usage"
)

type usageDoc struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"user_id"`
	Month     string    `bson:"month"`
	PlanID    string    `bson:"plan_id"`
	Count     int64     `bson:"count"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func (d *usageDoc) toDomain() (*usage.Record, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, err
	}
	userID, err := uuid.Parse(d.UserID)
	if err != nil {
		return nil, err
	}
	return &usage.Record{
		ID:        id,
		UserID:    userID,
		Month:     d.Month,
		PlanID:    d.PlanID,
		Count:     d.Count,
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}, nil
}

// UsageStore implements usage.Store.
type UsageStore struct {
	coll *mongo.Collection
}

func NewUsageStore(db *mongo.Database) *UsageStore {
	return &UsageStore{coll: db.Collection(UsageCollection)}
}

func (s *UsageStore) Get(ctx context.Context, userID uuid.UUID, month string) (*usage.Record, error) {
	var doc usageDoc
	err := s.coll.FindOne(ctx, bson.M{"user_id": userID.String(), "month": month}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, usage.ErrRecordNotFound
		}
		return nil, err
	}
	return doc.toDomain()
}

func (s *UsageStore) Insert(ctx context.Context, rec *usage.Record) error {
	_, err := s.coll.InsertOne(ctx, usageDoc{
		ID:        rec.ID.String(),
		UserID:    rec.UserID.String(),
		Month:     rec.Month,
		PlanID:    rec.PlanID,
		Count:     rec.Count,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	})
	if mongo.IsDuplicateKeyError(err) {
		return usage.ErrRecordExists
	}
	return err
}

func (s *UsageStore) SetPlan(ctx context.Context, id uuid.UUID, planID string, at time.Time) error {
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": id.String()},
		bson.M{"$set": bson.M{"plan_id": planID, "updated_at": at}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return usage.ErrRecordNotFound
	}
	return nil
}

// Increment matches the record only while it is under limit; a negative limit means unlimited.
func (s *UsageStore) Increment(ctx context.Context, id uuid.UUID, planID string, limit int64, at time.Time) (*usage.Record, error) {
	filter := bson.M{"_id": id.String()}
	if limit >= 0 {
		filter["count"] = bson.M{"$lt": limit}
	}

	var doc usageDoc
	err := s.coll.FindOneAndUpdate(ctx, filter,
		bson.M{
			"$inc": bson.M{"count": int64(1)},
			"$set": bson.M{"plan_id": planID, "updated_at": at},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err == nil {
		return doc.toDomain()
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, err
	}

	n, err := s.coll.CountDocuments(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, usage.ErrRecordNotFound
	}
	return nil, usage.ErrLimitReached
}

var _ usage.Store = (*UsageStore)(nil)
