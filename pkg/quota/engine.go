package quota

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmitrymomot/meterkit/pkg/logger"
	"github.com/dmitrymomot/meterkit/pkg/plans"
	"github.com/dmitrymomot/meterkit/pkg/subscription"
	"github.com/dmitrymomot/meterkit/pkg/usage"
)

// PlanResolver resolves the plan in force for a user.
type PlanResolver interface {
	Resolve(ctx context.Context, userID uuid.UUID) (*subscription.Resolved, error)
}

// UsageCounter reads and advances monthly usage.
type UsageCounter interface {
	CurrentMonth() string
	GetOrCreate(ctx context.Context, userID uuid.UUID, planID, month string) (*usage.Record, error)
	Increment(ctx context.Context, rec *usage.Record, plan plans.Plan) (*usage.Record, error)
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger for rejected and failed quota operations.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithMetrics enables decision counters.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithTracerProvider sets where Prepare and Commit spans go. The global provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) {
		if tp != nil {
			e.tracer = tp.Tracer(tracerName)
		}
	}
}

const tracerName = "github.com/dmitrymomot/meterkit/pkg/quota"

// Engine implements the reserve/commit protocol.
type Engine struct {
	plans   PlanResolver
	usage   UsageCounter
	log     *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer
}

// NewEngine panics on nil dependencies.
func NewEngine(resolver PlanResolver, counter UsageCounter, opts ...Option) *Engine {
	if resolver == nil {
		panic("quota: PlanResolver is required")
	}
	if counter == nil {
		panic("quota: UsageCounter is required")
	}

	e := &Engine{
		plans:  resolver,
		usage:  counter,
		log:    logger.Discard(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With(logger.Component("quota"))
	return e
}

// Prepare resolves the user's plan and this month's usage. It returns ErrQuotaExceeded when a
// finite limit is already used up. It reserves nothing.
func (e *Engine) Prepare(ctx context.Context, userID uuid.UUID) (*Context, error) {
	ctx, span := e.tracer.Start(ctx, "quota.Prepare", trace.WithAttributes(attribute.String("user.id", userID.String())))
	defer span.End()

	qc, err := e.prepare(ctx, userID)
	e.metrics.observePrepare(err)
	endSpan(span, qc, err)
	return qc, err
}

func (e *Engine) prepare(ctx context.Context, userID uuid.UUID) (*Context, error) {
	resolved, err := e.plans.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}

	month := e.usage.CurrentMonth()
	rec, err := e.usage.GetOrCreate(ctx, userID, resolved.Plan.ID, month)
	if err != nil {
		return nil, err
	}

	if !resolved.Plan.Allows(rec.Count) {
		e.log.DebugContext(ctx, "quota exhausted",
			logger.UserID(userID),
			logger.PlanID(resolved.Plan.ID),
			logger.Month(month),
			logger.Count(rec.Count),
		)
		return nil, ErrQuotaExceeded
	}

	return &Context{Month: month, Usage: rec, Plan: resolved.Plan}, nil
}

// Commit consumes one unit for the action prepared in qc. It fails with ErrQuotaExceeded when a
// concurrent commit took the last slot since Prepare. A failed commit is final.
func (e *Engine) Commit(ctx context.Context, userID uuid.UUID, qc *Context) (*usage.Record, error) {
	ctx, span := e.tracer.Start(ctx, "quota.Commit", trace.WithAttributes(attribute.String("user.id", userID.String())))
	defer span.End()

	rec, err := e.commit(ctx, userID, qc)
	e.metrics.observeCommit(err)
	endSpan(span, qc, err)
	return rec, err
}

func (e *Engine) commit(ctx context.Context, userID uuid.UUID, qc *Context) (*usage.Record, error) {
	if qc == nil || qc.Usage == nil || qc.Usage.UserID != userID {
		return nil, ErrInvalidContext
	}

	rec, err := e.usage.Increment(ctx, qc.Usage, qc.Plan)
	if err != nil {
		if errors.Is(err, usage.ErrLimitReached) {
			e.log.InfoContext(ctx, "quota commit lost to a concurrent request",
				logger.UserID(userID),
				logger.PlanID(qc.Plan.ID),
				logger.Month(qc.Month),
			)
			return nil, errors.Join(ErrQuotaExceeded, err)
		}
		return nil, err
	}

	return rec, nil
}

// endSpan records the decision. An exhausted quota is an expected outcome, not a span error.
func endSpan(span trace.Span, qc *Context, err error) {
	span.SetAttributes(attribute.String("quota.result", resultLabel(err)))
	if qc != nil {
		span.SetAttributes(
			attribute.String("quota.plan", qc.Plan.ID),
			attribute.String("quota.month", qc.Month),
		)
	}
	if err != nil && !isExceeded(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

func isExceeded(err error) bool {
	return errors.Is(err, ErrQuotaExceeded)
}
