package billing

import "errors"

var (
	ErrProviderNotConfigured = errors.New("payment provider is not configured")
	ErrPlanMisconfigured     = errors.New("paid plan has no provider price configured")
	ErrSessionNotFound       = errors.New("checkout session not found")
	ErrSessionMismatch       = errors.New("checkout session belongs to another user")
	ErrSessionIncomplete     = errors.New("checkout session is not complete")
	ErrSubscriptionNotFound  = errors.New("provider subscription not found")
	ErrSubscriptionInvalid   = errors.New("provider subscription has no price")
	ErrPriceNotFound         = errors.New("provider price not found")
	ErrInvalidWebhook        = errors.New("invalid webhook payload or signature")
	ErrProvider              = errors.New("payment provider request failed")
)
