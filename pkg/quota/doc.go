// Package quota enforces monthly plan limits with a two-phase reserve/commit protocol.
//
// Prepare is a read-only check: it resolves the user's plan and this month's usage and fails
// with ErrQuotaExceeded when the counter already reached the limit. Nothing is reserved. The
// caller then performs the metered action and calls Commit, which issues a single conditional
// increment in the usage store.
//
// This is optimistic concurrency. When one slot remains, two concurrent callers can both pass
// Prepare and both do the work; only one Commit succeeds and the other gets ErrQuotaExceeded
// after the fact. The engine never retries a failed commit and never refunds the wasted work.
//
//	qc, err := engine.Prepare(ctx, userID)
//	if err != nil {
//		return err // quota.ErrQuotaExceeded
//	}
//	result := generate(ctx)
//	if _, err := engine.Commit(ctx, userID, qc); err != nil {
//		return err // lost the race for the last slot
//	}
package quota
