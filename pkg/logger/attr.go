package logger

import (
	"log/slog"
	"strconv"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Errors groups the non-nil errors under "errors".
func Errors(errs ...error) slog.Attr {
	as := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

// Error records err under "error"; nil yields an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// UserID records the local user id; nil yields an empty Attr.
func UserID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("user_id", id)
}

func RequestID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("request_id", id)
}

func PlanID(id string) slog.Attr {
	return stringAttr("plan_id", id)
}

// CustomerID records the payment provider's customer id.
func CustomerID(id string) slog.Attr {
	return stringAttr("customer_id", id)
}

// SubscriptionID records the payment provider's subscription id.
func SubscriptionID(id string) slog.Attr {
	return stringAttr("subscription_id", id)
}

// SessionID records the payment provider's checkout session id.
func SessionID(id string) slog.Attr {
	return stringAttr("session_id", id)
}

func Status(s string) slog.Attr {
	return stringAttr("status", s)
}

// Month records a usage month key (YYYY-MM).
func Month(key string) slog.Attr {
	return stringAttr("month", key)
}

func Count(n int64) slog.Attr {
	return slog.Int64("count", n)
}

// EventType records a provider webhook event type.
func EventType(eventType string) slog.Attr {
	return stringAttr("event_type", eventType)
}

func Component(name string) slog.Attr {
	return slog.String("component", name)
}

func stringAttr(key, v string) slog.Attr {
	if v == "" {
		return slog.Attr{}
	}
	return slog.String(key, v)
}
