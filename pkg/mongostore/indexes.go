package mongostore

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Collection names.
const (
	SubscriptionsCollection = "subscriptions"
	UsageCollection         = "usage_records"
)

// EnsureIndexes creates the unique indexes on db. It is safe to call on every start.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	if _, err := db.Collection(SubscriptionsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("subscriptions_user_id_key"),
	}); err != nil {
		return fmt.Errorf("create subscriptions index: %w", err)
	}

	if _, err := db.Collection(UsageCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "month", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("usage_records_user_month_key"),
	}); err != nil {
		return fmt.Errorf("create usage_records index: %w", err)
	}
	return nil
}
