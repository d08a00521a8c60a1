package subscription

import "errors"

var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrSubscriptionExists   = errors.New("subscription already exists")
	ErrMissingUserID        = errors.New("user ID is required")
	ErrFailedToLoad         = errors.New("failed to load subscription")
	ErrFailedToSave         = errors.New("failed to save subscription")
)
