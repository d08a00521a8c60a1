// Package redis connects to the Redis instance that backs the provider price cache.
//
// Connect retries the initial ping using the settings in Config, which is populated from the
// environment through pkg/config:
//
//	var cfg redis.Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
//	if cfg.Enabled() {
//		client, err := redis.Connect(ctx, cfg)
//		if err != nil {
//			return err
//		}
//		defer client.Close()
//		cache := billing.NewRedisPriceCache(client, priceCacheCfg)
//	}
//
// Healthcheck adapts the client to the readiness probe signature used by httpserver.
//
// Errors are sentinel values joined with the underlying go-redis error, so callers can match them
// with errors.Is.
package redis
