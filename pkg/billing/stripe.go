package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
)

// StripeConfig is the env-driven Stripe configuration. An empty SecretKey disables billing.
type StripeConfig struct {
	SecretKey     string `env:"STRIPE_SECRET_KEY"`
	WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
	// APIURL points the client at a different API host, such as stripe-mock.
	APIURL string `env:"STRIPE_API_URL"`
}

// Enabled reports whether a secret key is configured.
func (c StripeConfig) Enabled() bool {
	return c.SecretKey != ""
}

// NewStripeClient builds a client scoped to cfg. Network retries are disabled: provider failures
// surface to the caller.
func NewStripeClient(cfg StripeConfig) *client.API {
	backendCfg := &stripe.BackendConfig{MaxNetworkRetries: stripe.Int64(0)}
	if cfg.APIURL != "" {
		backendCfg.URL = stripe.String(cfg.APIURL)
	}

	sc := &client.API{}
	sc.Init(cfg.SecretKey, &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendCfg),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendCfg),
	})
	return sc
}

// StripeProvider implements Provider with stripe-go.
type StripeProvider struct {
	api           *client.API
	webhookSecret string
}

// NewStripeProvider wraps an initialized client.
func NewStripeProvider(api *client.API, webhookSecret string) *StripeProvider {
	if api == nil {
		panic("billing: stripe client is required")
	}
	return &StripeProvider{api: api, webhookSecret: webhookSecret}
}

func (p *StripeProvider) CreateCustomer(ctx context.Context, email string, metadata map[string]string) (*Customer, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	if email != "" {
		params.Email = stripe.String(email)
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	c, err := p.api.Customers.New(params)
	if err != nil {
		return nil, mapStripeError(err, nil)
	}
	return &Customer{ID: c.ID, Email: c.Email, Metadata: c.Metadata}, nil
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, in CheckoutParams) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:   stripe.String(in.CustomerID),
		SuccessURL: stripe.String(in.SuccessURL),
		CancelURL:  stripe.String(in.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(in.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: make(map[string]string, len(in.Metadata)),
		},
	}
	params.Context = ctx
	if uid := in.Metadata[MetadataUserID]; uid != "" {
		params.ClientReferenceID = stripe.String(uid)
	}
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
		params.SubscriptionData.Metadata[k] = v
	}

	s, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, mapStripeError(err, nil)
	}
	return checkoutSessionFromStripe(s), nil
}

func (p *StripeProvider) GetCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("subscription")

	s, err := p.api.CheckoutSessions.Get(id, params)
	if err != nil {
		return nil, mapStripeError(err, ErrSessionNotFound)
	}
	return checkoutSessionFromStripe(s), nil
}

func (p *StripeProvider) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	s, err := p.api.Subscriptions.Get(id, params)
	if err != nil {
		return nil, mapStripeError(err, ErrSubscriptionNotFound)
	}
	return subscriptionFromStripe(s), nil
}

func (p *StripeProvider) SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (*Subscription, error) {
	params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(cancel)}
	params.Context = ctx

	s, err := p.api.Subscriptions.Update(subscriptionID, params)
	if err != nil {
		return nil, mapStripeError(err, ErrSubscriptionNotFound)
	}
	return subscriptionFromStripe(s), nil
}

func (p *StripeProvider) CancelSubscription(ctx context.Context, subscriptionID string) error {
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx

	if _, err := p.api.Subscriptions.Cancel(subscriptionID, params); err != nil {
		return mapStripeError(err, ErrSubscriptionNotFound)
	}
	return nil
}

func (p *StripeProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (*PortalSession, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	s, err := p.api.BillingPortalSessions.New(params)
	if err != nil {
		return nil, mapStripeError(err, nil)
	}
	return &PortalSession{ID: s.ID, URL: s.URL}, nil
}

func (p *StripeProvider) GetPrice(ctx context.Context, id string) (*Price, error) {
	params := &stripe.PriceParams{}
	params.Context = ctx

	pr, err := p.api.Prices.Get(id, params)
	if err != nil {
		return nil, mapStripeError(err, ErrPriceNotFound)
	}

	out := &Price{ID: pr.ID, UnitAmount: pr.UnitAmount, Currency: string(pr.Currency)}
	if pr.Recurring != nil {
		out.Interval = string(pr.Recurring.Interval)
	}
	return out, nil
}

func (p *StripeProvider) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	if p.webhookSecret == "" {
		return nil, fmt.Errorf("%w: webhook secret is not configured", ErrInvalidWebhook)
	}

	ev, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		return nil, errors.Join(ErrInvalidWebhook, err)
	}

	out := &WebhookEvent{ID: ev.ID, Type: string(ev.Type)}
	switch out.Type {
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		var s stripe.Subscription
		if ev.Data == nil {
			return nil, fmt.Errorf("%w: event %s has no data", ErrInvalidWebhook, ev.ID)
		}
		if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
			return nil, errors.Join(ErrInvalidWebhook, err)
		}
		out.Subscription = subscriptionFromStripe(&s)
	}
	return out, nil
}

func checkoutSessionFromStripe(s *stripe.CheckoutSession) *CheckoutSession {
	out := &CheckoutSession{
		ID:       s.ID,
		URL:      s.URL,
		Status:   string(s.Status),
		Metadata: s.Metadata,
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if s.Subscription != nil {
		out.SubscriptionID = s.Subscription.ID
		// An unexpanded reference decodes to an object with only the id set.
		if s.Subscription.Items != nil {
			out.Subscription = subscriptionFromStripe(s.Subscription)
		}
	}
	return out
}

func subscriptionFromStripe(s *stripe.Subscription) *Subscription {
	out := &Subscription{
		ID:                 s.ID,
		Status:             string(s.Status),
		CurrentPeriodStart: s.CurrentPeriodStart,
		CurrentPeriodEnd:   s.CurrentPeriodEnd,
		CancelAtPeriodEnd:  s.CancelAtPeriodEnd,
		Metadata:           s.Metadata,
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if s.Items != nil {
		for _, item := range s.Items.Data {
			if item != nil && item.Price != nil {
				out.Items = append(out.Items, SubscriptionItem{PriceID: item.Price.ID})
			}
		}
	}
	return out
}

// mapStripeError translates stripe-go errors into package errors. A missing object maps to
// notFound when the call has one.
func mapStripeError(err error, notFound error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if notFound != nil && (stripeErr.HTTPStatusCode == http.StatusNotFound ||
			stripeErr.Code == stripe.ErrorCodeResourceMissing) {
			return errors.Join(notFound, err)
		}
	}
	return errors.Join(ErrProvider, err)
}
