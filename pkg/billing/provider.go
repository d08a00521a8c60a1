package billing

import (
	"context"
	"time"
)

// Metadata keys written to provider objects.
const (
	MetadataUserID = "user_id"
	MetadataPlanID = "plan_id"
)

// Checkout session status reported once payment went through.
const SessionStatusComplete = "complete"

// Webhook event types handled by Sync.
const (
	EventSubscriptionCreated = "customer.subscription.created"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

type Customer struct {
	ID       string
	Email    string
	Metadata map[string]string
}

// CheckoutSession is a provider-hosted checkout. Subscription is set when the provider returned
// it expanded; otherwise only SubscriptionID is known.
type CheckoutSession struct {
	ID             string
	URL            string
	Status         string
	CustomerID     string
	Metadata       map[string]string
	SubscriptionID string
	Subscription   *Subscription
}

type SubscriptionItem struct {
	PriceID string
}

// Subscription is the provider's view of a recurring subscription. Period bounds are epoch
// seconds, zero when unknown.
type Subscription struct {
	ID                 string
	Status             string
	CustomerID         string
	Items              []SubscriptionItem
	CurrentPeriodStart int64
	CurrentPeriodEnd   int64
	CancelAtPeriodEnd  bool
	Metadata           map[string]string
}

// PriceID returns the price of the first item.
func (s *Subscription) PriceID() string {
	if s == nil || len(s.Items) == 0 {
		return ""
	}
	return s.Items[0].PriceID
}

// Price is a recurring provider price. UnitAmount is in the currency's minor unit.
type Price struct {
	ID         string `json:"id"`
	UnitAmount int64  `json:"unit_amount"`
	Currency   string `json:"currency"`
	Interval   string `json:"interval,omitempty"`
}

type PortalSession struct {
	ID  string
	URL string
}

// WebhookEvent is a verified provider event. Subscription is set for subscription events.
type WebhookEvent struct {
	ID           string
	Type         string
	Subscription *Subscription
}

// CheckoutParams describes a subscription checkout for one price.
type CheckoutParams struct {
	CustomerID string
	PriceID    string
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
}

// Provider is the payment provider port. Implementations report missing objects with
// ErrSessionNotFound, ErrSubscriptionNotFound or ErrPriceNotFound and wrap every other failure
// in ErrProvider.
type Provider interface {
	CreateCustomer(ctx context.Context, email string, metadata map[string]string) (*Customer, error)
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)
	// GetCheckoutSession returns the session with its subscription expanded when possible.
	GetCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error)
	GetSubscription(ctx context.Context, id string) (*Subscription, error)
	SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (*Subscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string) error
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (*PortalSession, error)
	GetPrice(ctx context.Context, id string) (*Price, error)
	// ParseWebhook verifies the signature and decodes the event; failures wrap ErrInvalidWebhook.
	ParseWebhook(payload []byte, signature string) (*WebhookEvent, error)
}

func epochToTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
