package metering

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/dmitrymomot/meterkit/pkg/billing"
	"github.com/dmitrymomot/meterkit/pkg/logger"
	"github.com/dmitrymomot/meterkit/pkg/plans"
	"github.com/dmitrymomot/meterkit/pkg/quota"
	"github.com/dmitrymomot/meterkit/pkg/requestid"
	"github.com/dmitrymomot/meterkit/pkg/subscription"
	"github.com/dmitrymomot/meterkit/pkg/usage"
)

const (
	// UserIDHeader is read by the default UserIDFunc.
	UserIDHeader = "X-User-ID"
	// SignatureHeader carries the Stripe webhook signature.
	SignatureHeader = "Stripe-Signature"

	maxBodyBytes    = 1 << 16
	maxWebhookBytes = 1 << 16
)

// ErrUnauthenticated is returned when the request carries no usable user id.
var ErrUnauthenticated = errors.New("missing or invalid user id")

// UserIDFunc extracts the authenticated user from a request.
type UserIDFunc func(*http.Request) (uuid.UUID, error)

// HeaderUserID reads the user id from the named request header.
func HeaderUserID(header string) UserIDFunc {
	return func(r *http.Request) (uuid.UUID, error) {
		id, err := uuid.Parse(strings.TrimSpace(r.Header.Get(header)))
		if err != nil || id == uuid.Nil {
			return uuid.Nil, ErrUnauthenticated
		}
		return id, nil
	}
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

func WithUserIDFunc(fn UserIDFunc) HandlerOption {
	return func(h *Handler) {
		if fn != nil {
			h.userID = fn
		}
	}
}

func WithHandlerLogger(l *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// Handler serves Service over HTTP.
type Handler struct {
	svc    *Service
	userID UserIDFunc
	log    *slog.Logger
}

func NewHandler(svc *Service, opts ...HandlerOption) *Handler {
	if svc == nil {
		panic("metering: Service is required")
	}
	h := &Handler{
		svc:    svc,
		userID: HeaderUserID(UserIDHeader),
		log:    logger.Discard(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle returns the router. Mount it under any prefix:
//
//	r.Mount("/billing", metering.NewHandler(svc).Handle())
func (h *Handler) Handle() http.Handler {
	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(middleware.Recoverer)

	r.Get("/plans", h.publicPlans)
	r.Post("/webhooks/stripe", h.webhook)

	r.Group(func(r chi.Router) {
		r.Use(h.authenticate)

		r.Get("/subscription", h.overview)
		r.Post("/subscription/checkout", h.createCheckout)
		r.Post("/subscription/checkout/{sessionID}/finalize", h.finalizeCheckout)
		r.Post("/subscription/portal", h.createPortal)
		r.Post("/subscription/cancel", h.cancelAtPeriodEnd)
		r.Post("/subscription/resume", h.resume)
		r.Post("/subscription/free", h.switchToFree)

		r.Post("/quota/prepare", h.prepareQuota)
		r.Post("/quota/commit", h.commitQuota)
	})

	return r
}

type ctxUserKey struct{}

func userFrom(r *http.Request) uuid.UUID {
	id, _ := r.Context().Value(ctxUserKey{}).(uuid.UUID)
	return id
}

func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := h.userID(r)
		if err != nil {
			h.fail(w, r, ErrUnauthenticated)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxUserKey{}, id)))
	})
}

func (h *Handler) publicPlans(w http.ResponseWriter, r *http.Request) {
	offers, err := h.svc.PublicPlans(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, offers)
}

func (h *Handler) overview(w http.ResponseWriter, r *http.Request) {
	ov, err := h.svc.SubscriptionOverview(r.Context(), userFrom(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, overviewView{
		Subscription: newSubscriptionView(ov.Subscription),
		Plan:         ov.Plan,
		Month:        ov.Month,
		Used:         ov.Used,
		Remaining:    ov.Remaining,
		ResetsAt:     ov.ResetsAt,
	})
}

type checkoutRequest struct {
	PlanID     string `json:"plan_id"`
	SuccessURL string `json:"success_url"`
	CancelURL  string `json:"cancel_url"`
}

type checkoutResponse struct {
	SessionID string `json:"session_id,omitempty"`
	URL       string `json:"url,omitempty"`
	// Downgraded is set when the free plan was chosen and applied without a checkout.
	Downgraded bool `json:"downgraded,omitempty"`
}

func (h *Handler) createCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.PlanID == "" {
		h.fail(w, r, invalidRequest("plan_id is required"))
		return
	}

	sess, err := h.svc.CreateCheckoutSession(r.Context(), userFrom(r), req.PlanID, req.SuccessURL, req.CancelURL)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if sess == nil {
		h.respond(w, http.StatusOK, checkoutResponse{Downgraded: true})
		return
	}
	h.respond(w, http.StatusCreated, checkoutResponse{SessionID: sess.ID, URL: sess.URL})
}

func (h *Handler) finalizeCheckout(w http.ResponseWriter, r *http.Request) {
	sub, err := h.svc.FinalizeCheckoutSession(r.Context(), userFrom(r), chi.URLParam(r, "sessionID"))
	h.subscriptionResult(w, r, sub, err)
}

type portalRequest struct {
	ReturnURL string `json:"return_url"`
}

func (h *Handler) createPortal(w http.ResponseWriter, r *http.Request) {
	var req portalRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	sess, err := h.svc.CreatePortalSession(r.Context(), userFrom(r), req.ReturnURL)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusCreated, map[string]string{"url": sess.URL})
}

func (h *Handler) cancelAtPeriodEnd(w http.ResponseWriter, r *http.Request) {
	sub, err := h.svc.CancelAtPeriodEnd(r.Context(), userFrom(r))
	h.subscriptionResult(w, r, sub, err)
}

func (h *Handler) resume(w http.ResponseWriter, r *http.Request) {
	sub, err := h.svc.Resume(r.Context(), userFrom(r))
	h.subscriptionResult(w, r, sub, err)
}

func (h *Handler) switchToFree(w http.ResponseWriter, r *http.Request) {
	sub, err := h.svc.SwitchToFree(r.Context(), userFrom(r))
	h.subscriptionResult(w, r, sub, err)
}

type reservationView struct {
	Reservation
	Used      int64 `json:"used"`
	Remaining int64 `json:"remaining"`
}

func (h *Handler) prepareQuota(w http.ResponseWriter, r *http.Request) {
	qc, err := h.svc.PrepareQuota(r.Context(), userFrom(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, reservationView{
		Reservation: ReservationFor(qc),
		Used:        qc.Usage.Count,
		Remaining:   qc.Remaining(),
	})
}

type usageView struct {
	Month  string `json:"month"`
	PlanID string `json:"plan_id"`
	Used   int64  `json:"used"`
}

func (h *Handler) commitQuota(w http.ResponseWriter, r *http.Request) {
	var res Reservation
	if err := decode(w, r, &res); err != nil {
		h.fail(w, r, err)
		return
	}

	userID := userFrom(r)
	qc, err := h.svc.RestoreQuota(r.Context(), userID, res)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rec, err := h.svc.CommitQuota(r.Context(), userID, qc)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, usageView{Month: rec.Month, PlanID: rec.PlanID, Used: rec.Count})
}

func (h *Handler) webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		h.fail(w, r, invalidRequest("webhook body too large or unreadable"))
		return
	}
	if err := h.svc.HandleWebhook(r.Context(), payload, r.Header.Get(SignatureHeader)); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) subscriptionResult(w http.ResponseWriter, r *http.Request, sub *subscription.Subscription, err error) {
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, newSubscriptionView(sub))
}

type subscriptionView struct {
	PlanID             string     `json:"plan_id"`
	Status             string     `json:"status"`
	Linked             bool       `json:"linked"`
	CancelAtPeriodEnd  bool       `json:"cancel_at_period_end"`
	CurrentPeriodStart *time.Time `json:"current_period_start,omitempty"`
	CurrentPeriodEnd   *time.Time `json:"current_period_end,omitempty"`
}

func newSubscriptionView(s *subscription.Subscription) subscriptionView {
	return subscriptionView{
		PlanID:             s.PlanID,
		Status:             string(s.Status),
		Linked:             s.HasExternalSubscription(),
		CancelAtPeriodEnd:  s.CancelAtPeriodEnd,
		CurrentPeriodStart: s.CurrentPeriodStart,
		CurrentPeriodEnd:   s.CurrentPeriodEnd,
	}
}

type overviewView struct {
	Subscription subscriptionView `json:"subscription"`
	Plan         plans.Plan       `json:"plan"`
	Month        string           `json:"month"`
	Used         int64            `json:"used"`
	Remaining    int64            `json:"remaining"`
	ResetsAt     time.Time        `json:"resets_at"`
}

// requestError is a client error detected by the handler itself.
type requestError string

func (e requestError) Error() string { return string(e) }

func invalidRequest(msg string) error { return requestError(msg) }

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return invalidRequest(fmt.Sprintf("invalid request body: %v", err))
	}
	return nil
}

// envelope matches the JSON shape {"data": ..., "error": {"code", "message"}}.
type envelope struct {
	Data  any        `json:"data,omitempty"`
	Error *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *Handler) respond(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Data: data})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		h.log.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.String("code", code),
			logger.Error(err),
		)
		msg = http.StatusText(status)
	}
	writeJSON(w, status, envelope{Error: &errorBody{Code: code, Message: msg}})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// classify maps domain errors onto HTTP statuses and stable error codes.
func classify(err error) (int, string) {
	var reqErr requestError
	switch {
	case errors.As(err, &reqErr):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, ErrUnauthenticated),
		errors.Is(err, subscription.ErrMissingUserID),
		errors.Is(err, usage.ErrMissingUserID):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, quota.ErrQuotaExceeded):
		return http.StatusTooManyRequests, "quota_exceeded"
	case errors.Is(err, quota.ErrInvalidContext):
		return http.StatusConflict, "invalid_reservation"
	case errors.Is(err, plans.ErrPlanNotFound):
		return http.StatusNotFound, "plan_not_found"
	case errors.Is(err, billing.ErrSessionNotFound):
		return http.StatusNotFound, "session_not_found"
	case errors.Is(err, billing.ErrSessionMismatch):
		return http.StatusForbidden, "session_mismatch"
	case errors.Is(err, billing.ErrSessionIncomplete):
		return http.StatusConflict, "session_incomplete"
	case errors.Is(err, billing.ErrSubscriptionNotFound):
		return http.StatusNotFound, "subscription_not_found"
	case errors.Is(err, billing.ErrInvalidWebhook):
		return http.StatusBadRequest, "invalid_webhook"
	case errors.Is(err, billing.ErrProviderNotConfigured):
		return http.StatusServiceUnavailable, "provider_not_configured"
	case errors.Is(err, billing.ErrPlanMisconfigured):
		return http.StatusServiceUnavailable, "plan_misconfigured"
	case errors.Is(err, billing.ErrSubscriptionInvalid),
		errors.Is(err, plans.ErrPlanUnknown),
		errors.Is(err, billing.ErrPriceNotFound),
		errors.Is(err, billing.ErrProvider):
		return http.StatusBadGateway, "provider_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
