// Package plans holds the static catalog of pricing plans and their monthly quotas.
//
// A Registry is built once at startup from a Source (in-memory or a YAML catalog file) and is
// read-only afterwards, so it is safe for concurrent use. Exactly one plan must be free; it is the
// fallback for users without a paid subscription and for records pointing at plans that no longer
// exist in the catalog.
//
// Paid plans reference the payment provider's price through PriceRef, a configuration key rather
// than the price id itself. The key is resolved on every call through a PriceLookup so that price
// ids can differ between environments without touching the catalog:
//
//	registry, err := plans.NewRegistry(ctx, plans.NewInMemSource(
//		plans.Plan{ID: "free", Name: "Free", MonthlyLimit: 3},
//		plans.Plan{ID: "growth", Name: "Growth", MonthlyLimit: 100, Paid: true, PriceRef: "STRIPE_PRICE_GROWTH"},
//		plans.Plan{ID: "scale", Name: "Scale", MonthlyLimit: plans.Unlimited, Paid: true, PriceRef: "STRIPE_PRICE_SCALE"},
//	))
//
//	growth, _ := registry.Get("growth")
//	priceID, ok := registry.ResolveExternalPrice(growth) // reads STRIPE_PRICE_GROWTH
//
// The reverse mapping, PlanForPrice, is what provider sync uses to turn a subscription's price id
// back into a local plan. It fails with ErrPlanUnknown when the provider catalog and the local one
// have drifted apart.
package plans
