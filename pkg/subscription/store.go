package subscription

import (
	"context"

	"github.com/google/uuid"
)

// Store persists subscription records, one per user.
type Store interface {
	// Get returns ErrSubscriptionNotFound if the user has no record.
	Get(ctx context.Context, userID uuid.UUID) (*Subscription, error)

	// Insert creates the record, returning ErrSubscriptionExists if the user already has one.
	Insert(ctx context.Context, sub *Subscription) error

	// Update overwrites every mutable field of the user's record in a single write.
	// Returns ErrSubscriptionNotFound if the user has no record.
	Update(ctx context.Context, sub *Subscription) error

	// SetCustomerID stores customerID only when the record has none yet and returns the id that
	// ended up stored. Returns ErrSubscriptionNotFound if the user has no record.
	SetCustomerID(ctx context.Context, userID uuid.UUID, customerID string) (string, error)
}
