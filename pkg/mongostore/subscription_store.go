package mongostore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/meterkit/pkg/subscription"
)

type subscriptionDoc struct {
	ID                 string     `bson:"_id"`
	UserID             string     `bson:"user_id"`
	PlanID             string     `bson:"plan_id"`
	Status             string     `bson:"status"`
	CustomerID         string     `bson:"customer_id"`
	ExternalID         string     `bson:"external_id"`
	PriceID            string     `bson:"price_id"`
	CurrentPeriodStart *time.Time `bson:"current_period_start"`
	CurrentPeriodEnd   *time.Time `bson:"current_period_end"`
	CancelAtPeriodEnd  bool       `bson:"cancel_at_period_end"`
	CreatedAt          time.Time  `bson:"created_at"`
	UpdatedAt          time.Time  `bson:"updated_at"`
}

func (d *subscriptionDoc) toDomain() (*subscription.Subscription, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, err
	}
	userID, err := uuid.Parse(d.UserID)
	if err != nil {
		return nil, err
	}
	return &subscription.Subscription{
		ID:                 id,
		UserID:             userID,
		PlanID:             d.PlanID,
		Status:             subscription.Status(d.Status),
		CustomerID:         d.CustomerID,
		ExternalID:         d.ExternalID,
		PriceID:            d.PriceID,
		CurrentPeriodStart: utcPtr(d.CurrentPeriodStart),
		CurrentPeriodEnd:   utcPtr(d.CurrentPeriodEnd),
		CancelAtPeriodEnd:  d.CancelAtPeriodEnd,
		CreatedAt:          d.CreatedAt.UTC(),
		UpdatedAt:          d.UpdatedAt.UTC(),
	}, nil
}

// SubscriptionStore implements subscription.Store.
type SubscriptionStore struct {
	coll *mongo.Collection
}

func NewSubscriptionStore(db *mongo.Database) *SubscriptionStore {
	return &SubscriptionStore{coll: db.Collection(SubscriptionsCollection)}
}

func (s *SubscriptionStore) Get(ctx context.Context, userID uuid.UUID) (*subscription.Subscription, error) {
	var doc subscriptionDoc
	err := s.coll.FindOne(ctx, bson.M{"user_id": userID.String()}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, subscription.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return doc.toDomain()
}

func (s *SubscriptionStore) Insert(ctx context.Context, sub *subscription.Subscription) error {
	_, err := s.coll.InsertOne(ctx, subscriptionDoc{
		ID:                 sub.ID.String(),
		UserID:             sub.UserID.String(),
		PlanID:             sub.PlanID,
		Status:             string(sub.Status),
		CustomerID:         sub.CustomerID,
		ExternalID:         sub.ExternalID,
		PriceID:            sub.PriceID,
		CurrentPeriodStart: sub.CurrentPeriodStart,
		CurrentPeriodEnd:   sub.CurrentPeriodEnd,
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
		CreatedAt:          sub.CreatedAt,
		UpdatedAt:          sub.UpdatedAt,
	})
	if mongo.IsDuplicateKeyError(err) {
		return subscription.ErrSubscriptionExists
	}
	return err
}

func (s *SubscriptionStore) Update(ctx context.Context, sub *subscription.Subscription) error {
	res, err := s.coll.UpdateOne(ctx, bson.M{"user_id": sub.UserID.String()}, bson.M{"$set": bson.M{
		"plan_id":              sub.PlanID,
		"status":               string(sub.Status),
		"customer_id":          sub.CustomerID,
		"external_id":          sub.ExternalID,
		"price_id":             sub.PriceID,
		"current_period_start": sub.CurrentPeriodStart,
		"current_period_end":   sub.CurrentPeriodEnd,
		"cancel_at_period_end": sub.CancelAtPeriodEnd,
		"updated_at":           sub.UpdatedAt,
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return subscription.ErrSubscriptionNotFound
	}
	return nil
}

func (s *SubscriptionStore) SetCustomerID(ctx context.Context, userID uuid.UUID, customerID string) (string, error) {
	var doc subscriptionDoc
	err := s.coll.FindOneAndUpdate(ctx,
		bson.M{"user_id": userID.String(), "customer_id": ""},
		bson.M{"$set": bson.M{"customer_id": customerID, "updated_at": time.Now().UTC()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err == nil {
		return doc.CustomerID, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return "", err
	}

	// Either the user has no record or a customer id is already set.
	sub, err := s.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	return sub.CustomerID, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

var _ subscription.Store = (*SubscriptionStore)(nil)
