package usage

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists usage records, unique per (user, month).
type Store interface {
	// Get returns ErrRecordNotFound when the user has no record for month.
	Get(ctx context.Context, userID uuid.UUID, month string) (*Record, error)

	// Insert returns ErrRecordExists when a record for (user, month) exists already.
	Insert(ctx context.Context, rec *Record) error

	// SetPlan rewrites the plan snapshot of the record.
	SetPlan(ctx context.Context, id uuid.UUID, planID string, at time.Time) error

	// Increment atomically adds one to the record's count and sets its plan snapshot and update
	// time, but only while limit is negative (unlimited) or count < limit. It returns the updated
	// record, ErrLimitReached when the condition did not hold, or ErrRecordNotFound.
	Increment(ctx context.Context, id uuid.UUID, planID string, limit int64, at time.Time) (*Record, error)
}
