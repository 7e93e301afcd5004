/*
Package cache provides a Redis read-through cache for rate configurations.

Rate configurations are read on every preview and change rarely. The cache
sits in front of the store for previews only; Commit always reads the
transaction's own view.

DEGRADATION:
  A nil client turns the cache into a pass-through. Redis errors are
  logged and the store is consulted, so Redis is never required.

KEYS:
  billing:rates:<tenantID>  factory JSON document, expires after TTL
*/
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/warp/condo-billing/billing"
	"github.com/warp/condo-billing/factory"
	"github.com/warp/condo-billing/generic"
	"go.uber.org/zap"
)

const keyPrefix = "billing:rates:"

// NewClient connects to Redis. An empty addr disables caching and returns
// a nil client.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	if addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

// RateCache implements billing.RateSource on top of another source.
type RateCache struct {
	client *redis.Client
	source billing.RateSource
	ttl    time.Duration
	logger *zap.Logger
}

var _ billing.RateSource = (*RateCache)(nil)

// NewRateCache wraps source. client may be nil.
func NewRateCache(client *redis.Client, source billing.RateSource, ttl time.Duration, logger *zap.Logger) *RateCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateCache{client: client, source: source, ttl: ttl, logger: logger}
}

func key(tenantID generic.TenantID) string { return keyPrefix + string(tenantID) }

// GetRateConfiguration returns the cached configuration or loads and
// caches it. A missing configuration is not cached.
func (c *RateCache) GetRateConfiguration(ctx context.Context, tenantID generic.TenantID) (*billing.RateConfiguration, error) {
	if c.client == nil {
		return c.source.GetRateConfiguration(ctx, tenantID)
	}

	data, err := c.client.Get(ctx, key(tenantID)).Bytes()
	switch {
	case err == nil:
		cfg, decodeErr := factory.DecodeRateConfiguration(data)
		if decodeErr == nil {
			cfg.TenantID = tenantID
			return &cfg, nil
		}
		c.logger.Warn("discarding undecodable cached rates", zap.String("tenant_id", string(tenantID)), zap.Error(decodeErr))
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("rate cache read failed", zap.String("tenant_id", string(tenantID)), zap.Error(err))
	}

	cfg, err := c.source.GetRateConfiguration(ctx, tenantID)
	if err != nil || cfg == nil {
		return cfg, err
	}

	encoded, err := factory.EncodeRateConfiguration(*cfg)
	if err != nil {
		return cfg, nil
	}
	if err := c.client.Set(ctx, key(tenantID), encoded, c.ttl).Err(); err != nil {
		c.logger.Warn("rate cache write failed", zap.String("tenant_id", string(tenantID)), zap.Error(err))
	}
	return cfg, nil
}

// Invalidate drops the tenant's cached configuration.
func (c *RateCache) Invalidate(ctx context.Context, tenantID generic.TenantID) {
	if c.client == nil {
		return
	}
	if err := c.client.Del(ctx, key(tenantID)).Err(); err != nil {
		c.logger.Warn("rate cache invalidation failed", zap.String("tenant_id", string(tenantID)), zap.Error(err))
	}
}
