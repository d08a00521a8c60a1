package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/dmitrymomot/meterkit/pkg/logger"
	"github.com/dmitrymomot/meterkit/pkg/plans"
	"github.com/dmitrymomot/meterkit/pkg/subscription"
)

// EmailResolver returns the primary email of a local user.
type EmailResolver func(ctx context.Context, userID uuid.UUID) (string, error)

// Option configures Sync.
type Option func(*Sync)

// WithLogger sets the logger for provider and webhook events.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sync) {
		if l != nil {
			s.log = l
		}
	}
}

// WithEmailResolver sets how customer emails are looked up. Without one, customers are created
// with metadata only.
func WithEmailResolver(fn EmailResolver) Option {
	return func(s *Sync) {
		s.emails = fn
	}
}

// WithPriceCache caches provider prices for plan listings.
func WithPriceCache(c PriceCache) Option {
	return func(s *Sync) {
		s.prices = c
	}
}

// Sync translates between provider objects and local subscription records.
type Sync struct {
	subs     *subscription.Service
	plans    *plans.Registry
	provider Provider
	emails   EmailResolver
	prices   PriceCache
	log      *slog.Logger

	customers singleflight.Group
}

// NewSync builds a Sync. provider may be nil; subs and registry may not.
func NewSync(subs *subscription.Service, registry *plans.Registry, provider Provider, opts ...Option) *Sync {
	if subs == nil {
		panic("billing: subscription.Service is required")
	}
	if registry == nil {
		panic("billing: plans.Registry is required")
	}

	s := &Sync{
		subs:     subs,
		plans:    registry,
		provider: provider,
		log:      logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("billing"))
	return s
}

// Configured reports whether a provider is wired in.
func (s *Sync) Configured() bool {
	return s.provider != nil
}

// GetOrCreateCustomer returns the user's provider customer id, creating the customer on first use.
// Concurrent calls for one user in this process share a single provider request; across
// processes the first persisted id wins and a duplicate customer may be left unused.
func (s *Sync) GetOrCreateCustomer(ctx context.Context, userID uuid.UUID) (string, error) {
	if s.provider == nil {
		return "", ErrProviderNotConfigured
	}

	sub, err := s.subs.Ensure(ctx, userID)
	if err != nil {
		return "", err
	}
	if sub.CustomerID != "" {
		return sub.CustomerID, nil
	}

	// Callers share the result, so one caller's cancellation must not fail the rest.
	shared := context.WithoutCancel(ctx)
	id, err, _ := s.customers.Do(userID.String(), func() (any, error) {
		return s.createCustomer(shared, userID)
	})
	if err != nil {
		return "", err
	}
	return id.(string), nil
}

func (s *Sync) createCustomer(ctx context.Context, userID uuid.UUID) (string, error) {
	var email string
	if s.emails != nil {
		var err error
		if email, err = s.emails(ctx, userID); err != nil {
			return "", fmt.Errorf("resolve customer email: %w", err)
		}
	}

	cust, err := s.provider.CreateCustomer(ctx, email, map[string]string{MetadataUserID: userID.String()})
	if err != nil {
		return "", err
	}

	stored, err := s.subs.AttachCustomer(ctx, userID, cust.ID)
	if err != nil {
		return "", err
	}
	if stored != cust.ID {
		s.log.WarnContext(ctx, "duplicate provider customer created, keeping the stored one",
			logger.UserID(userID),
			logger.CustomerID(stored),
			slog.String("duplicate_customer_id", cust.ID),
		)
	}
	return stored, nil
}

// CreateCheckoutSession starts a checkout for planID. The free plan needs no checkout: the user is
// downgraded locally and a nil session is returned.
func (s *Sync) CreateCheckoutSession(ctx context.Context, userID uuid.UUID, planID, successURL, cancelURL string) (*CheckoutSession, error) {
	plan, err := s.plans.Get(planID)
	if err != nil {
		return nil, err
	}

	if !plan.Paid {
		if _, err := s.subs.DowngradeToFree(ctx, userID); err != nil {
			return nil, err
		}
		return nil, nil
	}

	priceID, ok := s.plans.ResolveExternalPrice(plan)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPlanMisconfigured, plan.ID)
	}
	if s.provider == nil {
		return nil, ErrProviderNotConfigured
	}

	customerID, err := s.GetOrCreateCustomer(ctx, userID)
	if err != nil {
		return nil, err
	}

	sess, err := s.provider.CreateCheckoutSession(ctx, CheckoutParams{
		CustomerID: customerID,
		PriceID:    priceID,
		SuccessURL: successURL,
		CancelURL:  cancelURL,
		Metadata: map[string]string{
			MetadataUserID: userID.String(),
			MetadataPlanID: plan.ID,
		},
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "checkout session created",
		logger.UserID(userID),
		logger.PlanID(plan.ID),
		logger.SessionID(sess.ID),
	)
	return sess, nil
}

// FinalizeCheckoutSession applies a completed checkout to the user's record. The session must
// exist, belong to the user, be complete and resolve to a subscription, checked in that order;
// nothing is written unless every check passes.
func (s *Sync) FinalizeCheckoutSession(ctx context.Context, userID uuid.UUID, sessionID string) (*subscription.Subscription, error) {
	if s.provider == nil {
		return nil, ErrProviderNotConfigured
	}

	sess, err := s.provider.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}

	if owner := sess.Metadata[MetadataUserID]; owner != "" && owner != userID.String() {
		s.log.WarnContext(ctx, "checkout session user mismatch",
			logger.UserID(userID),
			logger.SessionID(sess.ID),
			slog.String("session_user_id", owner),
		)
		return nil, ErrSessionMismatch
	}

	if sess.Status != SessionStatusComplete {
		return nil, fmt.Errorf("%w: status %q", ErrSessionIncomplete, sess.Status)
	}

	ext := sess.Subscription
	if ext == nil {
		if sess.SubscriptionID == "" {
			return nil, ErrSubscriptionNotFound
		}
		if ext, err = s.provider.GetSubscription(ctx, sess.SubscriptionID); err != nil {
			return nil, err
		}
		if ext == nil {
			return nil, ErrSubscriptionNotFound
		}
	}
	if ext.CustomerID == "" {
		ext.CustomerID = sess.CustomerID
	}

	return s.SyncFromExternalSubscription(ctx, userID, ext)
}

// SyncFromExternalSubscription overwrites the user's record with the provider snapshot.
func (s *Sync) SyncFromExternalSubscription(ctx context.Context, userID uuid.UUID, ext *Subscription) (*subscription.Subscription, error) {
	priceID := ext.PriceID()
	if priceID == "" {
		return nil, ErrSubscriptionInvalid
	}

	plan, err := s.plans.PlanForPrice(priceID)
	if err != nil {
		s.log.ErrorContext(ctx, "provider price is not in the plan catalog",
			logger.UserID(userID),
			logger.SubscriptionID(ext.ID),
			slog.String("price_id", priceID),
		)
		return nil, err
	}

	status, known := subscription.ParseStatus(ext.Status)
	if !known {
		s.log.WarnContext(ctx, "unmapped provider subscription status",
			logger.UserID(userID),
			logger.SubscriptionID(ext.ID),
			logger.Status(ext.Status),
		)
	}

	sub, err := s.subs.SetPlan(ctx, userID, plan.ID, subscription.Patch{
		Status:             status,
		CustomerID:         ext.CustomerID,
		ExternalID:         ext.ID,
		PriceID:            priceID,
		CurrentPeriodStart: epochToTime(ext.CurrentPeriodStart),
		CurrentPeriodEnd:   epochToTime(ext.CurrentPeriodEnd),
		CancelAtPeriodEnd:  ext.CancelAtPeriodEnd,
	})
	if err != nil {
		return nil, err
	}

	s.log.DebugContext(ctx, "subscription synced",
		logger.UserID(userID),
		logger.PlanID(plan.ID),
		logger.Status(string(status)),
		logger.SubscriptionID(ext.ID),
	)
	return sub, nil
}

// CancelAtPeriodEnd schedules cancellation at the end of the billing period. A user without a
// provider subscription is downgraded locally.
func (s *Sync) CancelAtPeriodEnd(ctx context.Context, userID uuid.UUID) (*subscription.Subscription, error) {
	return s.setCancelAtPeriodEnd(ctx, userID, true)
}

// Resume clears a scheduled cancellation.
func (s *Sync) Resume(ctx context.Context, userID uuid.UUID) (*subscription.Subscription, error) {
	return s.setCancelAtPeriodEnd(ctx, userID, false)
}

func (s *Sync) setCancelAtPeriodEnd(ctx context.Context, userID uuid.UUID, cancel bool) (*subscription.Subscription, error) {
	sub, err := s.subs.Ensure(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !sub.HasExternalSubscription() {
		return s.subs.DowngradeToFree(ctx, userID)
	}
	if s.provider == nil {
		return nil, ErrProviderNotConfigured
	}

	ext, err := s.provider.SetCancelAtPeriodEnd(ctx, sub.ExternalID, cancel)
	if err != nil {
		return nil, err
	}
	return s.SyncFromExternalSubscription(ctx, userID, ext)
}

// CancelImmediately cancels the provider subscription, if any. Failures are logged only: callers
// downgrade locally right after.
func (s *Sync) CancelImmediately(ctx context.Context, userID uuid.UUID) {
	sub, err := s.subs.Ensure(ctx, userID)
	if err != nil {
		s.log.ErrorContext(ctx, "load subscription for cancellation", logger.UserID(userID), logger.Error(err))
		return
	}
	if !sub.HasExternalSubscription() {
		return
	}
	if s.provider == nil {
		s.log.WarnContext(ctx, "provider subscription left active: provider not configured",
			logger.UserID(userID),
			logger.SubscriptionID(sub.ExternalID),
		)
		return
	}

	if err := s.provider.CancelSubscription(ctx, sub.ExternalID); err != nil {
		s.log.ErrorContext(ctx, "cancel provider subscription",
			logger.UserID(userID),
			logger.SubscriptionID(sub.ExternalID),
			logger.Error(err),
		)
	}
}

// CreatePortalSession opens the provider's self-service portal for the user.
func (s *Sync) CreatePortalSession(ctx context.Context, userID uuid.UUID, returnURL string) (*PortalSession, error) {
	if s.provider == nil {
		return nil, ErrProviderNotConfigured
	}

	customerID, err := s.GetOrCreateCustomer(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.provider.CreatePortalSession(ctx, customerID, returnURL)
}

// HandleWebhook verifies and applies a provider event. Events for unknown users and unhandled
// event types are acknowledged without changes.
func (s *Sync) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if s.provider == nil {
		return ErrProviderNotConfigured
	}

	ev, err := s.provider.ParseWebhook(payload, signature)
	if err != nil {
		return err
	}

	log := s.log.With(logger.EventType(ev.Type), slog.String("event_id", ev.ID))

	switch ev.Type {
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
	default:
		log.DebugContext(ctx, "webhook event ignored")
		return nil
	}

	if ev.Subscription == nil {
		return fmt.Errorf("%w: %s without subscription", ErrInvalidWebhook, ev.Type)
	}
	userID, err := uuid.Parse(ev.Subscription.Metadata[MetadataUserID])
	if err != nil {
		log.WarnContext(ctx, "webhook subscription has no local user", logger.SubscriptionID(ev.Subscription.ID))
		return nil
	}

	sub, err := s.subs.Ensure(ctx, userID)
	if err != nil {
		return err
	}

	if ev.Type != EventSubscriptionDeleted {
		if staleEvent(sub, ev.Subscription) {
			log.InfoContext(ctx, "update for a subscription that is not the linked one ignored",
				logger.UserID(userID),
				logger.SubscriptionID(ev.Subscription.ID),
				logger.Status(ev.Subscription.Status),
			)
			return nil
		}
		_, err := s.SyncFromExternalSubscription(ctx, userID, ev.Subscription)
		return err
	}

	if sub.ExternalID != ev.Subscription.ID {
		log.InfoContext(ctx, "deleted subscription is not the linked one",
			logger.UserID(userID),
			logger.SubscriptionID(ev.Subscription.ID),
		)
		return nil
	}
	if _, err := s.subs.DowngradeToFree(ctx, userID); err != nil {
		return err
	}
	log.InfoContext(ctx, "subscription ended, user downgraded", logger.UserID(userID))
	return nil
}

// staleEvent reports whether ext must not replace the linkage in sub. A subscription other than the
// linked one is only adopted while the provider entitles it; ended ones are never adopted.
func staleEvent(sub *subscription.Subscription, ext *Subscription) bool {
	if sub.ExternalID == ext.ID {
		return false
	}
	status, _ := subscription.ParseStatus(ext.Status)
	switch {
	case status == subscription.StatusCanceled, status == subscription.StatusIncompleteExpired:
		return true
	case sub.ExternalID != "" && !status.IsEntitled():
		return true
	}
	return false
}

// Price returns the provider price of a paid plan, consulting the cache first.
// Unconfigured plans fail with ErrPlanMisconfigured.
func (s *Sync) Price(ctx context.Context, plan plans.Plan) (*Price, error) {
	priceID, ok := s.plans.ResolveExternalPrice(plan)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPlanMisconfigured, plan.ID)
	}

	if s.prices != nil {
		if p, err := s.prices.Get(ctx, priceID); err == nil {
			return p, nil
		} else if !errors.Is(err, ErrPriceNotCached) {
			s.log.WarnContext(ctx, "price cache read failed", slog.String("price_id", priceID), logger.Error(err))
		}
	}

	if s.provider == nil {
		return nil, ErrProviderNotConfigured
	}
	p, err := s.provider.GetPrice(ctx, priceID)
	if err != nil {
		return nil, err
	}

	if s.prices != nil {
		if err := s.prices.Set(ctx, p); err != nil {
			s.log.WarnContext(ctx, "price cache write failed", slog.String("price_id", priceID), logger.Error(err))
		}
	}
	return p, nil
}
