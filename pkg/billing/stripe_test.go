package billing_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/dmitrymomot/meterkit/pkg/billing"
)

const webhookSecret = "whsec_test"

const subscriptionJSON = `{
	"id": "sub_1",
	"object": "subscription",
	"status": "past_due",
	"customer": "cus_1",
	"cancel_at_period_end": %t,
	"current_period_start": 1790000000,
	"current_period_end": 1792592000,
	"metadata": {"user_id": "2b0c1a0e-8e0e-4f43-9d43-0c7d0e6d1a11"},
	"items": {
		"object": "list",
		"data": [{"id": "si_1", "object": "subscription_item", "price": {"id": "price_growth", "object": "price"}}]
	}
}`

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func notFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound,
		`{"error": {"type": "invalid_request_error", "code": "resource_missing", "message": "No such object"}}`)
}

// newStripeServer emulates the Stripe endpoints used by StripeProvider.
func newStripeServer(t *testing.T) *billing.StripeProvider {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/customers", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "ada@example.com", r.PostForm.Get("email"))
		writeJSON(w, http.StatusOK, fmt.Sprintf(
			`{"id": "cus_1", "object": "customer", "email": %q, "metadata": {"user_id": %q}}`,
			r.PostForm.Get("email"), r.PostForm.Get("metadata[user_id]")))
	})

	mux.HandleFunc("POST /v1/checkout/sessions", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		f := r.PostForm
		assert.Equal(t, "subscription", f.Get("mode"))
		assert.Equal(t, "cus_1", f.Get("customer"))
		assert.Equal(t, "price_growth", f.Get("line_items[0][price]"))
		assert.Equal(t, "1", f.Get("line_items[0][quantity]"))
		assert.Equal(t, "u1", f.Get("metadata[user_id]"))
		assert.Equal(t, "growth", f.Get("metadata[plan_id]"))
		assert.Equal(t, "u1", f.Get("subscription_data[metadata][user_id]"))
		assert.Equal(t, "growth", f.Get("subscription_data[metadata][plan_id]"))
		assert.Equal(t, "u1", f.Get("client_reference_id"))
		writeJSON(w, http.StatusOK,
			`{"id": "cs_1", "object": "checkout.session", "status": "open", "url": "https://checkout.stripe.test/cs_1"}`)
	})

	mux.HandleFunc("GET /v1/checkout/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "subscription", r.URL.Query().Get("expand[0]"))
		switch r.PathValue("id") {
		case "cs_expanded":
			writeJSON(w, http.StatusOK, `{"id": "cs_expanded", "object": "checkout.session", "status": "complete",
				"customer": "cus_1", "metadata": {"user_id": "u1"}, "subscription": `+fmt.Sprintf(subscriptionJSON, false)+`}`)
		case "cs_ref":
			writeJSON(w, http.StatusOK,
				`{"id": "cs_ref", "object": "checkout.session", "status": "complete", "subscription": "sub_1"}`)
		default:
			notFound(w)
		}
	})

	mux.HandleFunc("GET /v1/subscriptions/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "sub_1" {
			notFound(w)
			return
		}
		writeJSON(w, http.StatusOK, fmt.Sprintf(subscriptionJSON, false))
	})

	mux.HandleFunc("POST /v1/subscriptions/{id}", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		writeJSON(w, http.StatusOK, fmt.Sprintf(subscriptionJSON, r.PostForm.Get("cancel_at_period_end") == "true"))
	})

	mux.HandleFunc("DELETE /v1/subscriptions/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") == "sub_down" {
			writeJSON(w, http.StatusInternalServerError,
				`{"error": {"type": "api_error", "message": "Something went wrong"}}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"id": "sub_1", "object": "subscription", "status": "canceled"}`)
	})

	mux.HandleFunc("POST /v1/billing_portal/sessions", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "cus_1", r.PostForm.Get("customer"))
		assert.Equal(t, "https://app.test/settings", r.PostForm.Get("return_url"))
		writeJSON(w, http.StatusOK,
			`{"id": "bps_1", "object": "billing_portal.session", "url": "https://billing.stripe.test/bps_1"}`)
	})

	mux.HandleFunc("GET /v1/prices/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "price_growth" {
			notFound(w)
			return
		}
		writeJSON(w, http.StatusOK, `{"id": "price_growth", "object": "price", "unit_amount": 1900,
			"currency": "usd", "recurring": {"interval": "month"}}`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	api := billing.NewStripeClient(billing.StripeConfig{SecretKey: "sk_test_123", APIURL: srv.URL})
	return billing.NewStripeProvider(api, webhookSecret)
}

func TestStripeProvider(t *testing.T) {
	t.Parallel()
	p := newStripeServer(t)
	ctx := context.Background()

	t.Run("create customer", func(t *testing.T) {
		c, err := p.CreateCustomer(ctx, "ada@example.com", map[string]string{billing.MetadataUserID: "u1"})
		require.NoError(t, err)
		assert.Equal(t, "cus_1", c.ID)
		assert.Equal(t, "u1", c.Metadata[billing.MetadataUserID])
	})

	t.Run("create checkout session", func(t *testing.T) {
		s, err := p.CreateCheckoutSession(ctx, billing.CheckoutParams{
			CustomerID: "cus_1",
			PriceID:    "price_growth",
			SuccessURL: "https://app.test/ok",
			CancelURL:  "https://app.test/cancel",
			Metadata:   map[string]string{billing.MetadataUserID: "u1", billing.MetadataPlanID: "growth"},
		})
		require.NoError(t, err)
		assert.Equal(t, "cs_1", s.ID)
		assert.Equal(t, "https://checkout.stripe.test/cs_1", s.URL)
	})

	t.Run("get checkout session with expanded subscription", func(t *testing.T) {
		s, err := p.GetCheckoutSession(ctx, "cs_expanded")
		require.NoError(t, err)
		assert.Equal(t, billing.SessionStatusComplete, s.Status)
		assert.Equal(t, "cus_1", s.CustomerID)
		require.NotNil(t, s.Subscription)
		assert.Equal(t, "price_growth", s.Subscription.PriceID())
		assert.Equal(t, "past_due", s.Subscription.Status)
		assert.Equal(t, int64(1790000000), s.Subscription.CurrentPeriodStart)
	})

	t.Run("get checkout session with subscription reference", func(t *testing.T) {
		s, err := p.GetCheckoutSession(ctx, "cs_ref")
		require.NoError(t, err)
		assert.Nil(t, s.Subscription)
		assert.Equal(t, "sub_1", s.SubscriptionID)
	})

	t.Run("missing objects", func(t *testing.T) {
		_, err := p.GetCheckoutSession(ctx, "cs_missing")
		assert.ErrorIs(t, err, billing.ErrSessionNotFound)

		_, err = p.GetSubscription(ctx, "sub_missing")
		assert.ErrorIs(t, err, billing.ErrSubscriptionNotFound)

		_, err = p.GetPrice(ctx, "price_missing")
		assert.ErrorIs(t, err, billing.ErrPriceNotFound)
	})

	t.Run("cancel at period end", func(t *testing.T) {
		s, err := p.SetCancelAtPeriodEnd(ctx, "sub_1", true)
		require.NoError(t, err)
		assert.True(t, s.CancelAtPeriodEnd)

		s, err = p.SetCancelAtPeriodEnd(ctx, "sub_1", false)
		require.NoError(t, err)
		assert.False(t, s.CancelAtPeriodEnd)
	})

	t.Run("cancel immediately", func(t *testing.T) {
		require.NoError(t, p.CancelSubscription(ctx, "sub_1"))

		err := p.CancelSubscription(ctx, "sub_down")
		assert.ErrorIs(t, err, billing.ErrProvider)
		assert.NotErrorIs(t, err, billing.ErrSubscriptionNotFound)
	})

	t.Run("portal session", func(t *testing.T) {
		s, err := p.CreatePortalSession(ctx, "cus_1", "https://app.test/settings")
		require.NoError(t, err)
		assert.Equal(t, "https://billing.stripe.test/bps_1", s.URL)
	})

	t.Run("price", func(t *testing.T) {
		pr, err := p.GetPrice(ctx, "price_growth")
		require.NoError(t, err)
		assert.Equal(t, &billing.Price{ID: "price_growth", UnitAmount: 1900, Currency: "usd", Interval: "month"}, pr)
	})
}

func TestStripeProvider_ParseWebhook(t *testing.T) {
	t.Parallel()
	p := billing.NewStripeProvider(billing.NewStripeClient(billing.StripeConfig{SecretKey: "sk_test_123"}), webhookSecret)

	payload := []byte(`{"id": "evt_1", "object": "event", "type": "customer.subscription.updated",
		"data": {"object": ` + fmt.Sprintf(subscriptionJSON, true) + `}}`)

	t.Run("verified subscription event", func(t *testing.T) {
		t.Parallel()
		signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
			Payload:   payload,
			Secret:    webhookSecret,
			Timestamp: time.Now(),
		})

		ev, err := p.ParseWebhook(signed.Payload, signed.Header)
		require.NoError(t, err)
		assert.Equal(t, billing.EventSubscriptionUpdated, ev.Type)
		require.NotNil(t, ev.Subscription)
		assert.Equal(t, "sub_1", ev.Subscription.ID)
		assert.Equal(t, "cus_1", ev.Subscription.CustomerID)
		assert.True(t, ev.Subscription.CancelAtPeriodEnd)
		assert.Equal(t, "2b0c1a0e-8e0e-4f43-9d43-0c7d0e6d1a11", ev.Subscription.Metadata[billing.MetadataUserID])
	})

	t.Run("wrong secret", func(t *testing.T) {
		t.Parallel()
		signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
			Payload:   payload,
			Secret:    "whsec_other",
			Timestamp: time.Now(),
		})

		_, err := p.ParseWebhook(signed.Payload, signed.Header)
		assert.ErrorIs(t, err, billing.ErrInvalidWebhook)
	})

	t.Run("missing secret", func(t *testing.T) {
		t.Parallel()
		unsigned := billing.NewStripeProvider(billing.NewStripeClient(billing.StripeConfig{SecretKey: "sk_test_123"}), "")

		_, err := unsigned.ParseWebhook(payload, "t=1,v1=abc")
		assert.ErrorIs(t, err, billing.ErrInvalidWebhook)
	})
}

func TestStripeConfig_Enabled(t *testing.T) {
	t.Parallel()
	assert.False(t, billing.StripeConfig{}.Enabled())
	assert.True(t, billing.StripeConfig{SecretKey: "sk_test_123"}.Enabled())
}
