package pgstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/meterkit/pkg/pg"
	"github.com/dmitrymomot/meterkit/pkg/subscription"
)

const subscriptionColumns = `id, user_id, plan_id, status, customer_id, external_id, price_id,
	current_period_start, current_period_end, cancel_at_period_end, created_at, updated_at`

// SubscriptionStore implements subscription.Store.
type SubscriptionStore struct {
	db DB
}

func NewSubscriptionStore(db DB) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

func (s *SubscriptionStore) Get(ctx context.Context, userID uuid.UUID) (*subscription.Subscription, error) {
	row := s.db.QueryRow(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = $1`, userID)
	sub, err := scanSubscription(row)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, subscription.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return sub, nil
}

func (s *SubscriptionStore) Insert(ctx context.Context, sub *subscription.Subscription) error {
	_, err := s.db.Exec(ctx, `INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		sub.ID, sub.UserID, sub.PlanID, string(sub.Status), sub.CustomerID, sub.ExternalID, sub.PriceID,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.CancelAtPeriodEnd, sub.CreatedAt, sub.UpdatedAt,
	)
	if pg.IsDuplicateKeyError(err) {
		return subscription.ErrSubscriptionExists
	}
	return err
}

func (s *SubscriptionStore) Update(ctx context.Context, sub *subscription.Subscription) error {
	tag, err := s.db.Exec(ctx, `UPDATE subscriptions SET
			plan_id = $2,
			status = $3,
			customer_id = $4,
			external_id = $5,
			price_id = $6,
			current_period_start = $7,
			current_period_end = $8,
			cancel_at_period_end = $9,
			updated_at = $10
		WHERE user_id = $1`,
		sub.UserID, sub.PlanID, string(sub.Status), sub.CustomerID, sub.ExternalID, sub.PriceID,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.CancelAtPeriodEnd, sub.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return subscription.ErrSubscriptionNotFound
	}
	return nil
}

func (s *SubscriptionStore) SetCustomerID(ctx context.Context, userID uuid.UUID, customerID string) (string, error) {
	var stored string
	err := s.db.QueryRow(ctx, `UPDATE subscriptions SET
			customer_id = CASE WHEN customer_id = '' THEN $2 ELSE customer_id END,
			updated_at = CASE WHEN customer_id = '' THEN $3 ELSE updated_at END
		WHERE user_id = $1
		RETURNING customer_id`,
		userID, customerID, time.Now().UTC(),
	).Scan(&stored)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return "", subscription.ErrSubscriptionNotFound
		}
		return "", err
	}
	return stored, nil
}

func scanSubscription(row pgx.Row) (*subscription.Subscription, error) {
	var (
		sub    subscription.Subscription
		status string
	)
	if err := row.Scan(
		&sub.ID, &sub.UserID, &sub.PlanID, &status, &sub.CustomerID, &sub.ExternalID, &sub.PriceID,
		&sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &sub.CancelAtPeriodEnd, &sub.CreatedAt, &sub.UpdatedAt,
	); err != nil {
		return nil, err
	}

	sub.Status = subscription.Status(status)
	sub.CurrentPeriodStart = utcPtr(sub.CurrentPeriodStart)
	sub.CurrentPeriodEnd = utcPtr(sub.CurrentPeriodEnd)
	sub.CreatedAt = sub.CreatedAt.UTC()
	sub.UpdatedAt = sub.UpdatedAt.UTC()
	return &sub, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

var _ subscription.Store = (*SubscriptionStore)(nil)
