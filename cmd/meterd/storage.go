package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dmitrymomot/meterkit/pkg/config"
	"github.com/dmitrymomot/meterkit/pkg/httpserver"
	"github.com/dmitrymomot/meterkit/pkg/mongo"
	"github.com/dmitrymomot/meterkit/pkg/mongostore"
	"github.com/dmitrymomot/meterkit/pkg/pg"
	"github.com/dmitrymomot/meterkit/pkg/pgstore"
	"github.com/dmitrymomot/meterkit/pkg/subscription"
	"github.com/dmitrymomot/meterkit/pkg/usage"
)

type storage struct {
	subs   subscription.Store
	usage  usage.Store
	checks []httpserver.Check
	close  func()
}

func (s *storage) Close() {
	if s.close != nil {
		s.close()
	}
}

// openStorage connects the stores selected by driver and prepares their schema.
func openStorage(ctx context.Context, driver string, log *slog.Logger) (*storage, error) {
	switch strings.ToLower(driver) {
	case "memory", "":
		log.Warn("using in-memory storage: records are lost on restart")
		return &storage{subs: subscription.NewMemoryStore(), usage: usage.NewMemoryStore()}, nil

	case "postgres", "pg":
		var cfg pg.Config
		if err := config.Load(&cfg); err != nil {
			return nil, err
		}
		pool, err := pg.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx, pool, pgstore.Migrations, pgstore.MigrationsDir, cfg, log); err != nil {
			pool.Close()
			return nil, err
		}
		return &storage{
			subs:   pgstore.NewSubscriptionStore(pool),
			usage:  pgstore.NewUsageStore(pool),
			checks: []httpserver.Check{{Name: "postgres", Fn: pg.Healthcheck(pool)}},
			close:  pool.Close,
		}, nil

	case "mongo", "mongodb":
		var cfg mongo.Config
		if err := config.Load(&cfg); err != nil {
			return nil, err
		}
		db, err := mongo.NewWithDatabase(ctx, cfg)
		if err != nil {
			return nil, err
		}
		disconnect := func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = db.Client().Disconnect(ctx)
		}
		if err := mongostore.EnsureIndexes(ctx, db); err != nil {
			disconnect()
			return nil, err
		}
		return &storage{
			subs:   mongostore.NewSubscriptionStore(db),
			usage:  mongostore.NewUsageStore(db),
			checks: []httpserver.Check{{Name: "mongo", Fn: mongo.Healthcheck(db.Client())}},
			close:  disconnect,
		}, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q (want memory, postgres or mongo)", driver)
	}
}
