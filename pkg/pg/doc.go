// Package pg connects to PostgreSQL with pgx/v5 and applies goose migrations.
//
// Connect opens a *pgxpool.Pool from Config, retrying while the database comes up. Migrate runs
// migrations from any fs.FS, usually an embedded directory shipped by the store package that owns
// the schema:
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	if err := pg.Migrate(ctx, pool, pgstore.Migrations, pgstore.MigrationsDir, cfg, log); err != nil {
//		return err
//	}
//
// Healthcheck adapts the pool to func(context.Context) error for readiness probes, and
// IsDuplicateKeyError / IsNotFoundError classify driver errors.
package pg
