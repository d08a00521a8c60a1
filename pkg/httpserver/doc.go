// Package httpserver runs the meterd HTTP listener with graceful shutdown and exposes liveness and
// readiness handlers.
//
// Run blocks until its context is canceled, then drains in-flight requests within the configured
// shutdown timeout. The binary owns signal handling:
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
//	defer stop()
//
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//	if err := srv.Run(ctx, router); err != nil {
//		log.Error("server stopped", logger.Error(err))
//	}
//
// ReadinessHandler takes named checks such as pg.Healthcheck or redis.Healthcheck and reports 503
// as soon as one of them fails.
package httpserver
