package usage

import (
	"time"

	"github.com/google/uuid"
)

// MonthLayout is the time layout of month keys.
const MonthLayout = "2006-01"

// Record is one user's counter for one month.
type Record struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Month     string // YYYY-MM, UTC
	PlanID    string
	Count     int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MonthKey returns the UTC month key for t.
func MonthKey(t time.Time) string {
	return t.UTC().Format(MonthLayout)
}

// ParseMonthKey validates a month key and returns the first instant of that month.
func ParseMonthKey(key string) (time.Time, error) {
	t, err := time.ParseInLocation(MonthLayout, key, time.UTC)
	if err != nil {
		return time.Time{}, ErrInvalidMonthKey
	}
	return t, nil
}

// MonthEnd returns the first instant of the month following key, when the counter resets.
func MonthEnd(key string) (time.Time, error) {
	start, err := ParseMonthKey(key)
	if err != nil {
		return time.Time{}, err
	}
	return start.AddDate(0, 1, 0), nil
}
