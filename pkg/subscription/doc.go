// Package subscription keeps the per-user subscription record and the plan it resolves to.
//
// Every user has exactly one record. It is created lazily on first access with the free plan and
// the free status, and it is never deleted: downgrades overwrite fields instead of removing rows.
//
// The status field mirrors the payment provider. The local state machine is intentionally
// permissive: any status may follow any other, since the provider is the source of truth for
// paid states. Two writers exist. A local downgrade forces StatusFree and clears every provider
// linkage field except the customer id. Provider sync overwrites the plan, status, period bounds
// and linkage fields in a single update through SetPlan.
//
// Resolve joins the record with the plan registry. When the stored plan id no longer exists in the
// catalog the free plan is returned instead, which repairs configuration drift without a
// migration.
//
// Persistence goes through the Store interface. NewMemoryStore is provided for tests and local
// development; the pgstore and mongostore packages provide durable implementations.
package subscription
