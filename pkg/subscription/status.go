package subscription

import "strings"

// Status mirrors the provider's subscription status; StatusFree means no paid subscription.
type Status string

const (
	StatusFree              Status = "free"
	StatusActive            Status = "active"
	StatusTrialing          Status = "trialing"
	StatusCanceled          Status = "canceled"
	StatusIncomplete        Status = "incomplete"
	StatusIncompleteExpired Status = "incomplete_expired"
	StatusPastDue           Status = "past_due"
	StatusUnpaid            Status = "unpaid"

	// StatusUnknown is assigned when the provider reports a status without a local mapping.
	StatusUnknown Status = "unknown"
)

// ParseStatus maps a provider status string onto Status.
// The second result is false for unmapped values, which yield StatusUnknown.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusActive, StatusTrialing, StatusCanceled, StatusIncomplete,
		StatusIncompleteExpired, StatusPastDue, StatusUnpaid:
		return st, true
	case "cancelled":
		return StatusCanceled, true
	default:
		return StatusUnknown, false
	}
}

// IsEntitled reports whether the status grants the paid plan according to the provider.
func (s Status) IsEntitled() bool {
	return s == StatusActive || s == StatusTrialing
}
