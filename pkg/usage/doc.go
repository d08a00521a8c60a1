// Package usage counts metered actions per user per calendar month (UTC).
//
// A Record exists for each (user, month) pair that saw at least one quota check. Its PlanID is a
// denormalized snapshot of the plan in force, updated in place when the user switches plans
// mid-month; it is not a history.
//
// The only write that matters for correctness is Store.Increment: a single conditional update
// that adds one to the counter only while it is below the plan limit. Stores must implement it
// atomically in the database (UPDATE ... WHERE count < limit, or a filtered FindOneAndUpdate);
// no application-level locking is involved. An increment that matches no row because the limit
// was reached reports ErrLimitReached.
package usage
