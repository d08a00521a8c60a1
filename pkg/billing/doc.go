// Package billing keeps local subscription records consistent with the payment provider.
//
// Sync owns customer provisioning, checkout and portal sessions, cancellation, resumption and
// webhook intake. Provider is the port to the payment provider; StripeProvider implements it on
// top of an injected stripe-go client, so tests and alternative accounts never touch process
// globals.
//
// Provider snapshots are applied through subscription.Service.SetPlan as one overwrite, which
// makes repeated application of the same snapshot a no-op apart from the update timestamp. The
// provider's price id decides the local plan; prices the catalog does not know are rejected with
// plans.ErrPlanUnknown rather than guessed.
//
// Sync can be built without a provider. Every operation that needs one then fails with
// ErrProviderNotConfigured, while local-only paths (downgrades, free checkouts) keep working.
package billing
