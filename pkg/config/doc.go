// Package config loads typed configuration structs from the process environment.
//
// It wraps github.com/caarlos0/env/v11 for struct-tag parsing and github.com/joho/godotenv for
// local .env files. Every package that needs settings declares its own Config struct, and the
// binary loads each of them through Load:
//
//	var (
//		logCfg   logger.Config
//		stripe   billing.StripeConfig
//	)
//	config.MustLoad(&logCfg)
//	if err := config.Load(&stripe); err != nil {
//		return err
//	}
//
// Parsed values are cached per type, so repeated Load calls for the same struct are cheap and
// observe the same values. Tests that change the environment call Reset between loads.
package config
