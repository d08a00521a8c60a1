// Package mongostore implements the subscription and usage stores on MongoDB.
//
// Identifiers are stored as canonical UUID strings. EnsureIndexes creates the unique indexes the
// stores rely on (user_id for subscriptions, user_id+month for usage records) and must run
// before first use. The usage limit is enforced by a filtered FindOneAndUpdate: the count < limit
// condition is part of the filter, so the server applies check and increment as one operation.
package mongostore
