package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/meterkit/pkg/logger"
	"github.com/dmitrymomot/meterkit/pkg/plans"
)

// Resolved is a subscription joined with its effective plan.
type Resolved struct {
	Subscription *Subscription
	Plan         plans.Plan
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger used for drift and repair warnings.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service owns every write to subscription records.
type Service struct {
	store  Store
	plans  *plans.Registry
	log    *slog.Logger
	now    func() time.Time
	newIDs func() uuid.UUID
}

// NewService panics on nil dependencies to fail at wiring time rather than on first request.
func NewService(store Store, registry *plans.Registry, opts ...ServiceOption) *Service {
	if store == nil {
		panic("subscription: Store is required")
	}
	if registry == nil {
		panic("subscription: plans.Registry is required")
	}

	s := &Service{
		store:  store,
		plans:  registry,
		log:    logger.Discard(),
		now:    func() time.Time { return time.Now().UTC() },
		newIDs: uuid.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("subscription"))
	return s
}

// Ensure returns the user's record, creating a free one if none exists. Safe to call concurrently:
// a lost insert race re-reads the winner's record.
func (s *Service) Ensure(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	if userID == uuid.Nil {
		return nil, ErrMissingUserID
	}

	sub, err := s.store.Get(ctx, userID)
	if err == nil {
		return sub, nil
	}
	if !errors.Is(err, ErrSubscriptionNotFound) {
		return nil, errors.Join(ErrFailedToLoad, err)
	}

	now := s.now()
	sub = &Subscription{
		ID:        s.newIDs(),
		UserID:    userID,
		PlanID:    s.plans.Free().ID,
		Status:    StatusFree,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.Insert(ctx, sub); err != nil {
		if !errors.Is(err, ErrSubscriptionExists) {
			return nil, errors.Join(ErrFailedToSave, err)
		}
		sub, err = s.store.Get(ctx, userID)
		if err != nil {
			return nil, errors.Join(ErrFailedToLoad, err)
		}
	}

	return sub, nil
}

// Resolve returns the user's record and effective plan, falling back to the free plan when the
// stored plan id is no longer in the catalog.
func (s *Service) Resolve(ctx context.Context, userID uuid.UUID) (*Resolved, error) {
	sub, err := s.Ensure(ctx, userID)
	if err != nil {
		return nil, err
	}

	plan, err := s.plans.Get(sub.PlanID)
	if err != nil {
		s.log.WarnContext(ctx, "stored plan is not in the catalog, using free plan",
			logger.UserID(userID),
			logger.PlanID(sub.PlanID),
		)
		plan = s.plans.Free()
	}

	return &Resolved{Subscription: sub, Plan: plan}, nil
}

// SetPlan writes planID and the patch as one update, inserting the record when absent.
// An empty patch status defaults to StatusFree for the free plan and StatusActive otherwise.
func (s *Service) SetPlan(ctx context.Context, userID uuid.UUID, planID string, patch Patch) (*Subscription, error) {
	if userID == uuid.Nil {
		return nil, ErrMissingUserID
	}
	if _, err := s.plans.Get(planID); err != nil {
		return nil, err
	}

	status := patch.Status
	if status == "" {
		status = StatusActive
		if s.plans.IsFree(planID) {
			status = StatusFree
		}
	}

	// A lost insert race means the row exists now, so the second pass takes the update path.
	for attempt := 0; ; attempt++ {
		now := s.now()

		sub, err := s.store.Get(ctx, userID)
		if err == nil {
			patch.apply(sub, planID, status, now)
			if err := s.store.Update(ctx, sub); err != nil {
				return nil, errors.Join(ErrFailedToSave, err)
			}
			return sub, nil
		}
		if !errors.Is(err, ErrSubscriptionNotFound) {
			return nil, errors.Join(ErrFailedToLoad, err)
		}

		sub = &Subscription{ID: s.newIDs(), UserID: userID, CreatedAt: now}
		patch.apply(sub, planID, status, now)
		err = s.store.Insert(ctx, sub)
		if err == nil {
			return sub, nil
		}
		if !errors.Is(err, ErrSubscriptionExists) || attempt > 0 {
			return nil, errors.Join(ErrFailedToSave, err)
		}
	}
}

// DowngradeToFree moves the user to the free plan and clears the provider subscription linkage.
// The customer id is kept so a later checkout reuses the same provider customer.
func (s *Service) DowngradeToFree(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	return s.SetPlan(ctx, userID, s.plans.Free().ID, Patch{Status: StatusFree})
}

// AttachCustomer links a provider customer to the user unless one is linked already,
// and returns the id that is linked after the call.
func (s *Service) AttachCustomer(ctx context.Context, userID uuid.UUID, customerID string) (string, error) {
	if customerID == "" {
		return "", fmt.Errorf("%w: empty customer id", ErrFailedToSave)
	}
	if _, err := s.Ensure(ctx, userID); err != nil {
		return "", err
	}

	stored, err := s.store.SetCustomerID(ctx, userID, customerID)
	if err != nil {
		return "", errors.Join(ErrFailedToSave, err)
	}
	return stored, nil
}
