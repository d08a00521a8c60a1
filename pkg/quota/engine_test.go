package quota_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/dmitrymomot/meterkit/pkg/plans"
	"github.com/dmitrymomot/meterkit/pkg/quota"
	"github.com/dmitrymomot/meterkit/pkg/subscription"
	"github.com/dmitrymomot/meterkit/pkg/usage"
)

func clock() time.Time {
	return time.Date(2026, time.October, 15, 12, 0, 0, 0, time.UTC)
}

type fixture struct {
	subs    *subscription.Service
	tracker *usage.Tracker
	engine  *quota.Engine
	metrics *quota.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	registry, err := plans.NewRegistry(context.Background(), plans.NewInMemSource(
		plans.Plan{ID: "free", MonthlyLimit: 3},
		plans.Plan{ID: "growth", MonthlyLimit: 4, Paid: true, PriceRef: "PRICE_GROWTH"},
		plans.Plan{ID: "scale", MonthlyLimit: plans.Unlimited, Paid: true, PriceRef: "PRICE_SCALE"},
	))
	require.NoError(t, err)

	f := &fixture{
		subs:    subscription.NewService(subscription.NewMemoryStore(), registry, subscription.WithClock(clock)),
		tracker: usage.NewTracker(usage.NewMemoryStore(), usage.WithClock(clock)),
		metrics: quota.NewMetrics(prometheus.NewRegistry()),
	}
	f.engine = quota.NewEngine(f.subs, f.tracker, quota.WithMetrics(f.metrics))
	return f
}

func (f *fixture) userOn(t *testing.T, planID string) uuid.UUID {
	t.Helper()
	userID := uuid.New()
	_, err := f.subs.SetPlan(context.Background(), userID, planID, subscription.Patch{})
	require.NoError(t, err)
	return userID
}

func TestEngine_GrowthScenario(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	userID := f.userOn(t, "growth")

	for i := int64(1); i <= 4; i++ {
		qc, err := f.engine.Prepare(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, "2026-10", qc.Month)
		assert.Equal(t, 4-(i-1), qc.Remaining())

		rec, err := f.engine.Commit(ctx, userID, qc)
		require.NoError(t, err)
		assert.Equal(t, i, rec.Count)
	}

	_, err := f.engine.Prepare(ctx, userID)
	assert.ErrorIs(t, err, quota.ErrQuotaExceeded)

	rec, err := f.tracker.GetCurrent(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), rec.Count)

	assert.InDelta(t, 4, testutil.ToFloat64(f.metrics.PrepareTotal.WithLabelValues("allowed")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.PrepareTotal.WithLabelValues("exceeded")), 0)
	assert.InDelta(t, 4, testutil.ToFloat64(f.metrics.CommitTotal.WithLabelValues("allowed")), 0)
}

func TestEngine_FreshUserStartsOnFreePlan(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	qc, err := f.engine.Prepare(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, "free", qc.Plan.ID)
	assert.Equal(t, "free", qc.Usage.PlanID)
	assert.Equal(t, int64(0), qc.Usage.Count)
}

func TestEngine_ConcurrentCommits(t *testing.T) {
	t.Parallel()

	for _, k := range []int{1, 5, 20} {
		f := newFixture(t)
		ctx := context.Background()
		userID := f.userOn(t, "growth")
		const limit = 4

		var committed, exceeded atomic.Int64
		var wg sync.WaitGroup
		start := make(chan struct{})

		for range limit + k {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start

				qc, err := f.engine.Prepare(ctx, userID)
				if errors.Is(err, quota.ErrQuotaExceeded) {
					exceeded.Add(1)
					return
				}
				if !assert.NoError(t, err) {
					return
				}

				_, err = f.engine.Commit(ctx, userID, qc)
				switch {
				case err == nil:
					committed.Add(1)
				case errors.Is(err, quota.ErrQuotaExceeded):
					exceeded.Add(1)
				default:
					t.Errorf("unexpected commit error: %v", err)
				}
			}()
		}
		close(start)
		wg.Wait()

		assert.Equal(t, int64(limit), committed.Load(), "k=%d", k)
		assert.Equal(t, int64(k), exceeded.Load(), "k=%d", k)

		rec, err := f.tracker.GetCurrent(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, int64(limit), rec.Count, "k=%d", k)
	}
}

func TestEngine_LosingCommitIsNotRetried(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	userID := f.userOn(t, "free")

	for range 2 {
		qc, err := f.engine.Prepare(ctx, userID)
		require.NoError(t, err)
		_, err = f.engine.Commit(ctx, userID, qc)
		require.NoError(t, err)
	}

	// Both callers see the last slot.
	first, err := f.engine.Prepare(ctx, userID)
	require.NoError(t, err)
	second, err := f.engine.Prepare(ctx, userID)
	require.NoError(t, err)

	_, err = f.engine.Commit(ctx, userID, first)
	require.NoError(t, err)

	_, err = f.engine.Commit(ctx, userID, second)
	assert.ErrorIs(t, err, quota.ErrQuotaExceeded)
	assert.ErrorIs(t, err, usage.ErrLimitReached)

	rec, err := f.tracker.GetCurrent(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), rec.Count)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.CommitTotal.WithLabelValues("exceeded")), 0)
}

func TestEngine_UnlimitedPlan(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	userID := f.userOn(t, "scale")

	var last int64
	for range 100 {
		qc, err := f.engine.Prepare(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, plans.Unlimited, qc.Remaining())

		rec, err := f.engine.Commit(ctx, userID, qc)
		require.NoError(t, err)
		assert.Greater(t, rec.Count, last)
		last = rec.Count
	}
	assert.Equal(t, int64(100), last)
}

func TestEngine_PlanChangeMidMonth(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	userID := f.userOn(t, "free")

	for range 3 {
		qc, err := f.engine.Prepare(ctx, userID)
		require.NoError(t, err)
		_, err = f.engine.Commit(ctx, userID, qc)
		require.NoError(t, err)
	}
	_, err := f.engine.Prepare(ctx, userID)
	require.ErrorIs(t, err, quota.ErrQuotaExceeded)

	_, err = f.subs.SetPlan(ctx, userID, "growth", subscription.Patch{})
	require.NoError(t, err)

	qc, err := f.engine.Prepare(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "growth", qc.Usage.PlanID)
	assert.Equal(t, int64(1), qc.Remaining())

	rec, err := f.engine.Commit(ctx, userID, qc)
	require.NoError(t, err)
	assert.Equal(t, int64(4), rec.Count)
}

func TestEngine_Commit_InvalidContext(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	userID := f.userOn(t, "free")

	_, err := f.engine.Commit(ctx, userID, nil)
	assert.ErrorIs(t, err, quota.ErrInvalidContext)

	qc, err := f.engine.Prepare(ctx, userID)
	require.NoError(t, err)

	_, err = f.engine.Commit(ctx, uuid.New(), qc)
	assert.ErrorIs(t, err, quota.ErrInvalidContext)
	assert.InDelta(t, 2, testutil.ToFloat64(f.metrics.CommitTotal.WithLabelValues("error")), 0)
}

func TestNewEngine_PanicsOnNilDependencies(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	assert.Panics(t, func() { quota.NewEngine(nil, f.tracker) })
	assert.Panics(t, func() { quota.NewEngine(f.subs, nil) })
	assert.NotPanics(t, func() { quota.NewEngine(f.subs, f.tracker) }, "metrics are optional")
}

func TestEngine_Tracing(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	engine := quota.NewEngine(f.subs, f.tracker, quota.WithTracerProvider(tp))

	userID := f.userOn(t, "free")
	for range 3 {
		qc, err := engine.Prepare(ctx, userID)
		require.NoError(t, err)
		_, err = engine.Commit(ctx, userID, qc)
		require.NoError(t, err)
	}
	_, err := engine.Prepare(ctx, userID)
	require.ErrorIs(t, err, quota.ErrQuotaExceeded)

	spans := recorder.Ended()
	require.Len(t, spans, 7)
	assert.Equal(t, "quota.Prepare", spans[0].Name())
	assert.Equal(t, "quota.Commit", spans[1].Name())

	last := spans[len(spans)-1]
	assert.Equal(t, codes.Unset, last.Status().Code, "exhausted quota is not a span error")
	assert.Contains(t, last.Attributes(), attribute.String("quota.result", "exceeded"))

	_, err = engine.Commit(ctx, userID, nil)
	require.ErrorIs(t, err, quota.ErrInvalidContext)
	failed := recorder.Ended()[len(recorder.Ended())-1]
	assert.Equal(t, codes.Error, failed.Status().Code)
}
