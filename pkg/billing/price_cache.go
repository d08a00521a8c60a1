package billing

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrPriceNotCached is returned by PriceCache.Get on a miss.
var ErrPriceNotCached = errors.New("price not cached")

// PriceCache stores provider prices by price id.
type PriceCache interface {
	Get(ctx context.Context, priceID string) (*Price, error)
	Set(ctx context.Context, p *Price) error
}

// PriceCacheConfig configures RedisPriceCache.
type PriceCacheConfig struct {
	Prefix string        `env:"PRICE_CACHE_PREFIX" envDefault:"meterkit:price:"`
	TTL    time.Duration `env:"PRICE_CACHE_TTL" envDefault:"1h"`
}

// RedisPriceCache keeps JSON-encoded prices in Redis with a TTL.
type RedisPriceCache struct {
	db     redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisPriceCache(client redis.UniversalClient, cfg PriceCacheConfig) *RedisPriceCache {
	if client == nil {
		panic("billing: redis client is required")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "meterkit:price:"
	}
	return &RedisPriceCache{db: client, prefix: cfg.Prefix, ttl: cfg.TTL}
}

func (c *RedisPriceCache) Get(ctx context.Context, priceID string) (*Price, error) {
	raw, err := c.db.Get(ctx, c.prefix+priceID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrPriceNotCached
		}
		return nil, err
	}

	var p Price
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errors.Join(ErrPriceNotCached, err)
	}
	return &p, nil
}

// Set stores p; a zero TTL keeps it until evicted.
func (c *RedisPriceCache) Set(ctx context.Context, p *Price) error {
	if p == nil || p.ID == "" {
		return nil
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.db.Set(ctx, c.prefix+p.ID, raw, c.ttl).Err()
}
