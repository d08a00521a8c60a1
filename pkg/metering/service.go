package metering

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/meterkit/pkg/billing"
	"github.com/dmitrymomot/meterkit/pkg/logger"
	"github.com/dmitrymomot/meterkit/pkg/plans"
	"github.com/dmitrymomot/meterkit/pkg/quota"
	"github.com/dmitrymomot/meterkit/pkg/subscription"
	"github.com/dmitrymomot/meterkit/pkg/usage"
)

// maxPriceFetches bounds concurrent provider price requests in PublicPlans.
const maxPriceFetches = 4

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger for price and downgrade events.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// Service implements the exposed metering operations.
type Service struct {
	plans   *plans.Registry
	subs    *subscription.Service
	usage   *usage.Tracker
	quota   *quota.Engine
	billing *billing.Sync
	log     *slog.Logger
}

// NewService panics on nil dependencies.
func NewService(
	registry *plans.Registry,
	subs *subscription.Service,
	tracker *usage.Tracker,
	engine *quota.Engine,
	sync *billing.Sync,
	opts ...Option,
) *Service {
	switch {
	case registry == nil:
		panic("metering: plans.Registry is required")
	case subs == nil:
		panic("metering: subscription.Service is required")
	case tracker == nil:
		panic("metering: usage.Tracker is required")
	case engine == nil:
		panic("metering: quota.Engine is required")
	case sync == nil:
		panic("metering: billing.Sync is required")
	}

	s := &Service{
		plans:   registry,
		subs:    subs,
		usage:   tracker,
		quota:   engine,
		billing: sync,
		log:     logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("metering"))
	return s
}

// PlanOffer is a public plan with its provider price. Price is nil for the free plan and when
// the price could not be loaded.
type PlanOffer struct {
	plans.Plan
	Price *billing.Price `json:"price,omitempty"`
}

// PublicPlans lists the self-service plans in catalog order. Price lookup failures are logged
// and leave the offer without a price.
func (s *Service) PublicPlans(ctx context.Context) ([]PlanOffer, error) {
	public := s.plans.Public()
	offers := make([]PlanOffer, len(public))

	var g errgroup.Group
	g.SetLimit(maxPriceFetches)
	for i, p := range public {
		offers[i].Plan = p
		if !p.Paid {
			continue
		}
		g.Go(func() error {
			price, err := s.billing.Price(ctx, p)
			if err != nil {
				level := slog.LevelWarn
				if errors.Is(err, billing.ErrProviderNotConfigured) {
					level = slog.LevelDebug
				}
				s.log.Log(ctx, level, "plan price unavailable", logger.PlanID(p.ID), logger.Error(err))
				return nil
			}
			offers[i].Price = price
			return nil
		})
	}
	_ = g.Wait()

	return offers, nil
}

// Overview is a user's subscription with this month's usage.
type Overview struct {
	Subscription *subscription.Subscription
	Plan         plans.Plan
	Month        string
	Used         int64
	Remaining    int64 // plans.Unlimited for unbounded plans
	ResetsAt     time.Time
}

// SubscriptionOverview returns the user's effective plan and usage without creating a usage record.
func (s *Service) SubscriptionOverview(ctx context.Context, userID uuid.UUID) (*Overview, error) {
	resolved, err := s.subs.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}

	rec, err := s.usage.GetCurrent(ctx, userID)
	if err != nil {
		return nil, err
	}

	month := s.usage.CurrentMonth()
	var used int64
	if rec != nil {
		used = rec.Count
	}
	resets, err := usage.MonthEnd(month)
	if err != nil {
		return nil, err
	}

	return &Overview{
		Subscription: resolved.Subscription,
		Plan:         resolved.Plan,
		Month:        month,
		Used:         used,
		Remaining:    resolved.Plan.Remaining(used),
		ResetsAt:     resets,
	}, nil
}

// PrepareQuota checks that the user can perform one more metered action this month.
func (s *Service) PrepareQuota(ctx context.Context, userID uuid.UUID) (*quota.Context, error) {
	return s.quota.Prepare(ctx, userID)
}

// CommitQuota consumes the unit prepared in qc.
func (s *Service) CommitQuota(ctx context.Context, userID uuid.UUID, qc *quota.Context) (*usage.Record, error) {
	return s.quota.Commit(ctx, userID, qc)
}

// Meter runs fn between PrepareQuota and CommitQuota. Nothing is consumed when fn fails. When the
// commit loses a race the work has already been done and ErrQuotaExceeded is returned anyway.
func (s *Service) Meter(ctx context.Context, userID uuid.UUID, fn func(context.Context, *quota.Context) error) (*usage.Record, error) {
	qc, err := s.quota.Prepare(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := fn(ctx, qc); err != nil {
		return nil, err
	}
	return s.quota.Commit(ctx, userID, qc)
}

// CreateCheckoutSession starts a provider checkout for planID. Choosing the free plan behaves
// like SwitchToFree and returns a nil session.
func (s *Service) CreateCheckoutSession(ctx context.Context, userID uuid.UUID, planID, successURL, cancelURL string) (*billing.CheckoutSession, error) {
	if s.plans.IsFree(planID) {
		if _, err := s.SwitchToFree(ctx, userID); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return s.billing.CreateCheckoutSession(ctx, userID, planID, successURL, cancelURL)
}

// FinalizeCheckoutSession applies a completed checkout to the user's subscription.
func (s *Service) FinalizeCheckoutSession(ctx context.Context, userID uuid.UUID, sessionID string) (*subscription.Subscription, error) {
	return s.billing.FinalizeCheckoutSession(ctx, userID, sessionID)
}

// CreatePortalSession opens the provider's billing portal for the user.
func (s *Service) CreatePortalSession(ctx context.Context, userID uuid.UUID, returnURL string) (*billing.PortalSession, error) {
	return s.billing.CreatePortalSession(ctx, userID, returnURL)
}

func (s *Service) CancelAtPeriodEnd(ctx context.Context, userID uuid.UUID) (*subscription.Subscription, error) {
	return s.billing.CancelAtPeriodEnd(ctx, userID)
}

func (s *Service) Resume(ctx context.Context, userID uuid.UUID) (*subscription.Subscription, error) {
	return s.billing.Resume(ctx, userID)
}

// SwitchToFree cancels the provider subscription right away and downgrades the user. A failed
// provider cancellation is logged and does not block the downgrade.
func (s *Service) SwitchToFree(ctx context.Context, userID uuid.UUID) (*subscription.Subscription, error) {
	s.billing.CancelImmediately(ctx, userID)

	sub, err := s.subs.DowngradeToFree(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "user switched to free plan", logger.UserID(userID))
	return sub, nil
}

// HandleWebhook verifies and applies a provider webhook.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	return s.billing.HandleWebhook(ctx, payload, signature)
}
