// Command meterd serves the metering API: plan listing, subscription management through Stripe,
// and monthly quota enforcement.
//
// Configuration comes from the environment (and an optional dotenv file):
//
//	STORAGE_DRIVER      memory | postgres | mongo
//	PLANS_CATALOG_PATH  YAML plan catalog
//	PLAN_PRICES         ref:price_id pairs, e.g. PRICE_GROWTH:price_123
//	STRIPE_SECRET_KEY   enables checkout, portal and webhooks
//	REDIS_URL           enables the price cache
//
// See the Config structs of each package for the full list.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/meterkit/pkg/billing"
	"github.com/dmitrymomot/meterkit/pkg/clientip"
	"github.com/dmitrymomot/meterkit/pkg/config"
	"github.com/dmitrymomot/meterkit/pkg/httpserver"
	"github.com/dmitrymomot/meterkit/pkg/logger"
	"github.com/dmitrymomot/meterkit/pkg/metering"
	"github.com/dmitrymomot/meterkit/pkg/plans"
	"github.com/dmitrymomot/meterkit/pkg/quota"
	"github.com/dmitrymomot/meterkit/pkg/redis"
	"github.com/dmitrymomot/meterkit/pkg/requestid"
	"github.com/dmitrymomot/meterkit/pkg/subscription"
	"github.com/dmitrymomot/meterkit/pkg/telemetry"
	"github.com/dmitrymomot/meterkit/pkg/usage"
)

type appConfig struct {
	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"memory"`
	APIPrefix     string `env:"API_PREFIX" envDefault:"/api/v1"`
	UserIDHeader  string `env:"USER_ID_HEADER" envDefault:"X-User-ID"`
	MetricsPath   string `env:"METRICS_PATH" envDefault:"/metrics"`

	// Headers the gateway sets with the caller's address.
	ClientIPHeaders []string `env:"CLIENT_IP_HEADERS" envDefault:"X-Forwarded-For,X-Real-IP" envSeparator:","`
}

func main() {
	envFile := flag.String("env-file", "", "dotenv file to load before reading the environment")
	flag.Parse()

	if *envFile != "" {
		if err := config.LoadEnvFiles(*envFile); err != nil {
			slog.Error("load env file", logger.Error(err))
			os.Exit(1)
		}
	}

	var logCfg logger.Config
	config.MustLoad(&logCfg)
	log := logger.New(append(logCfg.Options(), logger.WithContextExtractors(requestid.LogAttr, clientip.LogAttr, telemetry.LogAttr))...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, log); err != nil {
		log.Error("meterd stopped", logger.Error(err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, log *slog.Logger) error {
	var (
		app      appConfig
		plansCfg plans.Config
		httpCfg  httpserver.Config
		stripe   billing.StripeConfig
		redisCfg redis.Config
		cacheCfg billing.PriceCacheConfig
		otelCfg  telemetry.Config
	)
	if err := errors.Join(
		config.Load(&app),
		config.Load(&plansCfg),
		config.Load(&httpCfg),
		config.Load(&stripe),
		config.Load(&redisCfg),
		config.Load(&cacheCfg),
		config.Load(&otelCfg),
	); err != nil {
		return err
	}

	shutdownTracing, err := telemetry.Setup(ctx, otelCfg)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			log.Warn("flush traces", logger.Error(err))
		}
	}()

	registry, err := plans.NewRegistry(ctx, plans.NewYAMLSource(plansCfg.CatalogPath), plans.WithPrices(plansCfg.Prices))
	if err != nil {
		return err
	}
	log.Info("plan catalog loaded", slog.String("path", plansCfg.CatalogPath), slog.Int("plans", len(registry.List())))

	store, err := openStorage(ctx, app.StorageDriver, log)
	if err != nil {
		return err
	}
	defer store.Close()
	checks := store.checks

	metrics := prometheus.NewRegistry()
	metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	subs := subscription.NewService(store.subs, registry, subscription.WithLogger(log))
	tracker := usage.NewTracker(store.usage, usage.WithLogger(log))
	engine := quota.NewEngine(subs, tracker, quota.WithLogger(log), quota.WithMetrics(quota.NewMetrics(metrics)))

	syncOpts := []billing.Option{billing.WithLogger(log)}
	var provider billing.Provider
	if stripe.Enabled() {
		provider = billing.NewStripeProvider(billing.NewStripeClient(stripe), stripe.WebhookSecret)
	} else {
		log.Warn("stripe is not configured: checkout, portal and webhooks are disabled")
	}
	if redisCfg.Enabled() {
		client, err := redis.Connect(ctx, redisCfg)
		if err != nil {
			return err
		}
		defer client.Close()
		syncOpts = append(syncOpts, billing.WithPriceCache(billing.NewRedisPriceCache(client, cacheCfg)))
		checks = append(checks, httpserver.Check{Name: "redis", Fn: redis.Healthcheck(client)})
	}

	svc := metering.NewService(registry, subs, tracker, engine,
		billing.NewSync(subs, registry, provider, syncOpts...),
		metering.WithLogger(log),
	)

	r := chi.NewRouter()
	r.Use(telemetry.Middleware("meterd"), clientip.Middleware(app.ClientIPHeaders...))
	r.Get("/livez", httpserver.LivenessHandler())
	r.Get("/readyz", httpserver.ReadinessHandler(log, checks...))
	r.Handle(app.MetricsPath, promhttp.HandlerFor(metrics, promhttp.HandlerOpts{}))
	r.Mount(app.APIPrefix, metering.NewHandler(svc,
		metering.WithUserIDFunc(metering.HeaderUserID(app.UserIDHeader)),
		metering.WithHandlerLogger(log),
	).Handle())

	return httpserver.NewFromConfig(httpCfg, httpserver.WithLogger(log)).Run(ctx, r)
}
