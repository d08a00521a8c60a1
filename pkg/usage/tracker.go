package usage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/meterkit/pkg/logger"
	"github.com/dmitrymomot/meterkit/pkg/plans"
)

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithLogger sets the tracker logger.
func WithLogger(l *slog.Logger) TrackerOption {
	return func(t *Tracker) {
		if l != nil {
			t.log = l
		}
	}
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// Tracker reads and advances monthly usage counters.
type Tracker struct {
	store  Store
	log    *slog.Logger
	now    func() time.Time
	newIDs func() uuid.UUID
}

// NewTracker panics when store is nil.
func NewTracker(store Store, opts ...TrackerOption) *Tracker {
	if store == nil {
		panic("usage: Store is required")
	}

	t := &Tracker{
		store:  store,
		log:    logger.Discard(),
		now:    func() time.Time { return time.Now().UTC() },
		newIDs: uuid.New,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.log = t.log.With(logger.Component("usage"))
	return t
}

// CurrentMonth returns the month key for the tracker clock.
func (t *Tracker) CurrentMonth() string {
	return MonthKey(t.now())
}

// GetOrCreate returns the user's record for month, creating it with a zero count when absent.
// A record whose plan snapshot differs from planID is rewritten in place.
func (t *Tracker) GetOrCreate(ctx context.Context, userID uuid.UUID, planID, month string) (*Record, error) {
	if userID == uuid.Nil {
		return nil, ErrMissingUserID
	}
	if _, err := ParseMonthKey(month); err != nil {
		return nil, err
	}

	rec, err := t.store.Get(ctx, userID, month)
	switch {
	case err == nil:
		return t.syncPlan(ctx, rec, planID)
	case !errors.Is(err, ErrRecordNotFound):
		return nil, errors.Join(ErrFailedToLoad, err)
	}

	now := t.now()
	rec = &Record{
		ID:        t.newIDs(),
		UserID:    userID,
		Month:     month,
		PlanID:    planID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := t.store.Insert(ctx, rec); err != nil {
		if !errors.Is(err, ErrRecordExists) {
			return nil, errors.Join(ErrFailedToSave, err)
		}
		// Another request created the month's record first.
		rec, err = t.store.Get(ctx, userID, month)
		if err != nil {
			return nil, errors.Join(ErrFailedToLoad, err)
		}
		return t.syncPlan(ctx, rec, planID)
	}

	return rec, nil
}

func (t *Tracker) syncPlan(ctx context.Context, rec *Record, planID string) (*Record, error) {
	if rec.PlanID == planID {
		return rec, nil
	}

	now := t.now()
	if err := t.store.SetPlan(ctx, rec.ID, planID, now); err != nil {
		return nil, errors.Join(ErrFailedToSave, err)
	}
	t.log.DebugContext(ctx, "usage plan snapshot changed",
		logger.UserID(rec.UserID),
		logger.Month(rec.Month),
		slog.String("from_plan_id", rec.PlanID),
		logger.PlanID(planID),
	)
	rec.PlanID = planID
	rec.UpdatedAt = now
	return rec, nil
}

// GetCurrent returns the user's record for the current month, or nil when there is none yet.
// It never writes.
func (t *Tracker) GetCurrent(ctx context.Context, userID uuid.UUID) (*Record, error) {
	rec, err := t.store.Get(ctx, userID, t.CurrentMonth())
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Join(ErrFailedToLoad, err)
	}
	return rec, nil
}

// Increment adds one to rec's counter under plan's limit. It returns ErrLimitReached when the
// stored count already reached the limit, whatever rec.Count says.
func (t *Tracker) Increment(ctx context.Context, rec *Record, plan plans.Plan) (*Record, error) {
	updated, err := t.store.Increment(ctx, rec.ID, plan.ID, plan.MonthlyLimit, t.now())
	if err != nil {
		if errors.Is(err, ErrLimitReached) || errors.Is(err, ErrRecordNotFound) {
			return nil, err
		}
		return nil, errors.Join(ErrFailedToSave, err)
	}
	return updated, nil
}
