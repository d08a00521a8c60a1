package metering_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/meterkit/pkg/billing"
	"github.com/dmitrymomot/meterkit/pkg/metering"
	"github.com/dmitrymomot/meterkit/pkg/plans"
	"github.com/dmitrymomot/meterkit/pkg/quota"
	"github.com/dmitrymomot/meterkit/pkg/subscription"
	"github.com/dmitrymomot/meterkit/pkg/usage"
)

func clock() time.Time {
	return time.Date(2026, time.October, 15, 12, 0, 0, 0, time.UTC)
}

type mockProvider struct{ mock.Mock }

func (m *mockProvider) CreateCustomer(ctx context.Context, email string, metadata map[string]string) (*billing.Customer, error) {
	args := m.Called(ctx, email, metadata)
	c, _ := args.Get(0).(*billing.Customer)
	return c, args.Error(1)
}

func (m *mockProvider) CreateCheckoutSession(ctx context.Context, params billing.CheckoutParams) (*billing.CheckoutSession, error) {
	args := m.Called(ctx, params)
	s, _ := args.Get(0).(*billing.CheckoutSession)
	return s, args.Error(1)
}

func (m *mockProvider) GetCheckoutSession(ctx context.Context, id string) (*billing.CheckoutSession, error) {
	args := m.Called(ctx, id)
	s, _ := args.Get(0).(*billing.CheckoutSession)
	return s, args.Error(1)
}

func (m *mockProvider) GetSubscription(ctx context.Context, id string) (*billing.Subscription, error) {
	args := m.Called(ctx, id)
	s, _ := args.Get(0).(*billing.Subscription)
	return s, args.Error(1)
}

func (m *mockProvider) SetCancelAtPeriodEnd(ctx context.Context, id string, cancel bool) (*billing.Subscription, error) {
	args := m.Called(ctx, id, cancel)
	s, _ := args.Get(0).(*billing.Subscription)
	return s, args.Error(1)
}

func (m *mockProvider) CancelSubscription(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (*billing.PortalSession, error) {
	args := m.Called(ctx, customerID, returnURL)
	s, _ := args.Get(0).(*billing.PortalSession)
	return s, args.Error(1)
}

func (m *mockProvider) GetPrice(ctx context.Context, id string) (*billing.Price, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(*billing.Price)
	return p, args.Error(1)
}

func (m *mockProvider) ParseWebhook(payload []byte, signature string) (*billing.WebhookEvent, error) {
	args := m.Called(payload, signature)
	e, _ := args.Get(0).(*billing.WebhookEvent)
	return e, args.Error(1)
}

type fixture struct {
	svc      *metering.Service
	subs     *subscription.Service
	provider *mockProvider
}

// newFixture wires the real services over memory stores. The catalog has a free plan (3/month),
// growth (4/month), pro (public but without a configured price) and a private unlimited scale plan.
func newFixture(t *testing.T, withProvider bool) *fixture {
	t.Helper()

	registry, err := plans.NewRegistry(context.Background(), plans.NewInMemSource(
		plans.Plan{ID: "free", Name: "Free", MonthlyLimit: 3, Public: true},
		plans.Plan{ID: "growth", Name: "Growth", MonthlyLimit: 4, Paid: true, PriceRef: "PRICE_GROWTH", Public: true},
		plans.Plan{ID: "pro", Name: "Pro", MonthlyLimit: 50, Paid: true, PriceRef: "PRICE_PRO", Public: true},
		plans.Plan{ID: "scale", Name: "Scale", MonthlyLimit: plans.Unlimited, Paid: true, PriceRef: "PRICE_SCALE"},
	), plans.WithPriceLookup(plans.MapPriceLookup(map[string]string{
		"PRICE_GROWTH": "price_growth",
		"PRICE_SCALE":  "price_scale",
	})))
	require.NoError(t, err)

	f := &fixture{provider: &mockProvider{}}
	var provider billing.Provider
	if withProvider {
		provider = f.provider
	}

	f.subs = subscription.NewService(subscription.NewMemoryStore(), registry, subscription.WithClock(clock))
	tracker := usage.NewTracker(usage.NewMemoryStore(), usage.WithClock(clock))
	engine := quota.NewEngine(f.subs, tracker)
	sync := billing.NewSync(f.subs, registry, provider)
	f.svc = metering.NewService(registry, f.subs, tracker, engine, sync)
	return f
}

func (f *fixture) linkedUser(t *testing.T, planID, externalID string) uuid.UUID {
	t.Helper()
	userID := uuid.New()
	_, err := f.subs.SetPlan(context.Background(), userID, planID, subscription.Patch{
		Status:     subscription.StatusActive,
		CustomerID: "cus_1",
		ExternalID: externalID,
		PriceID:    "price_" + planID,
	})
	require.NoError(t, err)
	return userID
}
