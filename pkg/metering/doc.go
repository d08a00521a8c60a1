// Package metering is the application-facing API of meterkit. Service combines the plan registry,
// subscription records, the monthly usage tracker, the quota engine and provider sync into the
// operations a product calls: list plans, show a user's subscription and usage, meter an action,
// and move users between plans through the payment provider.
//
// A metered action is a prepare/commit pair around the caller's work:
//
//	qc, err := svc.PrepareQuota(ctx, userID)
//	if errors.Is(err, quota.ErrQuotaExceeded) {
//		// tell the user to upgrade
//	}
//	result, err := generate(ctx) // the expensive call
//	if err != nil {
//		return err // nothing is consumed
//	}
//	if _, err := svc.CommitQuota(ctx, userID, qc); err != nil {
//		return err // a concurrent request took the last slot
//	}
//
// Meter wraps the same sequence around a callback.
//
// Handler exposes Service over HTTP with chi. The authenticated user id is read from the request
// through a UserIDFunc, by default the X-User-ID header set by an upstream gateway.
package metering
