package metering

import (
	"context"

	"github.com/google/uuid"

	"github.com/dmitrymomot/meterkit/pkg/quota"
)

// Reservation is the serializable form of a prepared quota context, handed to clients that
// prepare and commit in separate requests.
type Reservation struct {
	UsageID uuid.UUID `json:"usage_id"`
	Month   string    `json:"month"`
	PlanID  string    `json:"plan_id"`
}

// ReservationFor returns the reservation describing qc.
func ReservationFor(qc *quota.Context) Reservation {
	return Reservation{UsageID: qc.Usage.ID, Month: qc.Month, PlanID: qc.Plan.ID}
}

// RestoreQuota rebuilds the quota context for a reservation made earlier by the same user.
// The plan always comes from the user's subscription; the reservation's plan id only has to match
// it. Reservations from a past month, for another user's record or for a plan the user is not on
// fail with quota.ErrInvalidContext.
func (s *Service) RestoreQuota(ctx context.Context, userID uuid.UUID, r Reservation) (*quota.Context, error) {
	if r.Month != s.usage.CurrentMonth() {
		return nil, quota.ErrInvalidContext
	}

	resolved, err := s.subs.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	if r.PlanID != resolved.Plan.ID {
		return nil, quota.ErrInvalidContext
	}

	rec, err := s.usage.GetCurrent(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.ID != r.UsageID {
		return nil, quota.ErrInvalidContext
	}

	return &quota.Context{Month: r.Month, Usage: rec, Plan: resolved.Plan}, nil
}
