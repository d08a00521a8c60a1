package subscription

import (
	"time"

	"github.com/google/uuid"
)

// Subscription is the user's subscription record.
type Subscription struct {
	ID                 uuid.UUID
	UserID             uuid.UUID // unique
	PlanID             string
	Status             Status
	CustomerID         string // provider customer id
	ExternalID         string // provider subscription id, empty while on the free plan
	PriceID            string // provider price id of the first subscription item
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CancelAtPeriodEnd  bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// HasExternalSubscription reports whether the record is linked to a provider subscription.
func (s *Subscription) HasExternalSubscription() bool {
	return s.ExternalID != ""
}

// Clone returns a deep copy.
func (s *Subscription) Clone() *Subscription {
	if s == nil {
		return nil
	}
	c := *s
	c.CurrentPeriodStart = cloneTime(s.CurrentPeriodStart)
	c.CurrentPeriodEnd = cloneTime(s.CurrentPeriodEnd)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Patch carries the fields SetPlan writes alongside the plan id.
// ExternalID, PriceID, period bounds and CancelAtPeriodEnd always overwrite the stored values;
// an empty Status picks the default for the plan and an empty CustomerID keeps the stored one.
type Patch struct {
	Status             Status
	CustomerID         string
	ExternalID         string
	PriceID            string
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CancelAtPeriodEnd  bool
}

func (p Patch) apply(sub *Subscription, planID string, status Status, now time.Time) {
	sub.PlanID = planID
	sub.Status = status
	if p.CustomerID != "" {
		sub.CustomerID = p.CustomerID
	}
	sub.ExternalID = p.ExternalID
	sub.PriceID = p.PriceID
	sub.CurrentPeriodStart = cloneTime(p.CurrentPeriodStart)
	sub.CurrentPeriodEnd = cloneTime(p.CurrentPeriodEnd)
	sub.CancelAtPeriodEnd = p.CancelAtPeriodEnd
	sub.UpdatedAt = now
}
