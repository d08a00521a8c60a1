// Package pgstore implements the subscription and usage stores on PostgreSQL.
//
// The schema ships as embedded goose migrations (Migrations, MigrationsDir) applied with
// pg.Migrate. The usage counter relies on a single conditional UPDATE for its limit check, so
// concurrent commits across any number of processes never push a count past the plan limit.
package pgstore

import "embed"

// Migrations holds the schema migrations under MigrationsDir.
//
//go:embed migrations/*.sql
var Migrations embed.FS

const MigrationsDir = "migrations"
