package plans

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

// Option configures a Registry.
type Option func(*Registry)

// WithPriceLookup replaces the default environment-based price lookup.
func WithPriceLookup(lookup PriceLookup) Option {
	return func(r *Registry) {
		if lookup != nil {
			r.lookup = lookup
		}
	}
}

// WithPrices serves price ids from the given map first, falling back to the environment.
func WithPrices(prices map[string]string) Option {
	return func(r *Registry) {
		if len(prices) > 0 {
			r.lookup = ChainPriceLookup(MapPriceLookup(prices), EnvPriceLookup)
		}
	}
}

// Registry is the read-only plan catalog.
type Registry struct {
	plans  map[string]Plan
	order  []string
	freeID string
	lookup PriceLookup
}

// NewRegistry loads and validates the catalog.
func NewRegistry(ctx context.Context, src Source, opts ...Option) (*Registry, error) {
	if src == nil {
		panic("plans: Source is required")
	}

	loaded, err := src.Load(ctx)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}

	r := &Registry{
		plans:  make(map[string]Plan, len(loaded)),
		order:  make([]string, 0, len(loaded)),
		lookup: EnvPriceLookup,
	}

	for _, p := range loaded {
		if err := validatePlan(p); err != nil {
			return nil, err
		}
		if _, dup := r.plans[p.ID]; dup {
			return nil, errors.Join(ErrInvalidPlanConfiguration, fmt.Errorf("duplicate plan id %q", p.ID))
		}
		if !p.Paid {
			if r.freeID != "" {
				return nil, errors.Join(ErrNoFreePlan, fmt.Errorf("plans %q and %q are both free", r.freeID, p.ID))
			}
			r.freeID = p.ID
		}
		r.plans[p.ID] = p
		r.order = append(r.order, p.ID)
	}

	if r.freeID == "" {
		return nil, ErrNoFreePlan
	}

	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

func validatePlan(p Plan) error {
	if p.ID == "" {
		return errors.Join(ErrInvalidPlanConfiguration, errors.New("plan id is empty"))
	}
	if p.MonthlyLimit < Unlimited {
		return errors.Join(ErrInvalidPlanConfiguration,
			fmt.Errorf("plan %s has invalid monthly limit %d", p.ID, p.MonthlyLimit))
	}
	if p.Paid && p.PriceRef == "" {
		return errors.Join(ErrInvalidPlanConfiguration,
			fmt.Errorf("paid plan %s has no price reference", p.ID))
	}
	return nil
}

// List returns every plan in catalog order.
func (r *Registry) List() []Plan {
	out := make([]Plan, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.plans[id])
	}
	return out
}

// Public returns the plans offered for self-service signup.
func (r *Registry) Public() []Plan {
	return slices.DeleteFunc(r.List(), func(p Plan) bool { return !p.Public })
}

// Get returns the plan with the given id.
func (r *Registry) Get(id string) (Plan, error) {
	p, ok := r.plans[id]
	if !ok {
		return Plan{}, fmt.Errorf("%w: %s", ErrPlanNotFound, id)
	}
	return p, nil
}

// Free returns the fallback plan.
func (r *Registry) Free() Plan {
	return r.plans[r.freeID]
}

// IsFree reports whether id names the fallback plan.
func (r *Registry) IsFree(id string) bool {
	return id == r.freeID
}

// ResolveExternalPrice returns the provider price id configured for the plan.
// A missing price is not an error; callers decide whether it is fatal.
func (r *Registry) ResolveExternalPrice(p Plan) (string, bool) {
	if !p.Paid || p.PriceRef == "" {
		return "", false
	}
	return r.lookup(p.PriceRef)
}

// PlanForPrice maps a provider price id back to the local plan.
func (r *Registry) PlanForPrice(priceID string) (Plan, error) {
	if priceID != "" {
		for _, id := range r.order {
			p := r.plans[id]
			if resolved, ok := r.ResolveExternalPrice(p); ok && resolved == priceID {
				return p, nil
			}
		}
	}
	return Plan{}, fmt.Errorf("%w: %q", ErrPlanUnknown, priceID)
}
