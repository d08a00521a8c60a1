// Package mongo connects to MongoDB with the official v2 driver.
//
// New retries the initial connect and ping while the server comes up; NewWithDatabase also
// selects Config.Database. Healthcheck wraps Ping for readiness probes.
package mongo
