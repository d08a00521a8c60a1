package redis

import "time"

// Config holds the connection settings for the price cache backend.
type Config struct {
	ConnectionURL  string        `env:"REDIS_URL"` // e.g. redis://:password@localhost:6379/0; empty disables the cache
	RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"2s"`
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"15s"`
}

// Enabled reports whether a connection URL is configured.
func (c Config) Enabled() bool {
	return c.ConnectionURL != ""
}
