package albums

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// filterOptionsKey is the Redis key holding the cached filter menus.
const filterOptionsKey = "gallery:filter-options"

// FilterOptionsCache stores the result of the filter-option aggregation.
// Lookups never fail: any cache error is logged and treated as a miss.
type FilterOptionsCache interface {
	Get(ctx context.Context) (*FilterOptions, bool)
	Set(ctx context.Context, opts *FilterOptions)
	Invalidate(ctx context.Context)
}

// redisFilterOptionsCache keeps filter options in Redis as JSON with a TTL.
type redisFilterOptionsCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisFilterOptionsCache creates a Redis-backed cache. Entries expire
// after ttl even without writes, bounding staleness from changes made by
// other instances.
func NewRedisFilterOptionsCache(client *redis.Client, ttl time.Duration) FilterOptionsCache {
	return &redisFilterOptionsCache{client: client, ttl: ttl}
}

func (c *redisFilterOptionsCache) Get(ctx context.Context) (*FilterOptions, bool) {
	data, err := c.client.Get(ctx, filterOptionsKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("filter options cache read failed", slog.Any("error", err))
		}
		return nil, false
	}

	var opts FilterOptions
	if err := json.Unmarshal(data, &opts); err != nil {
		slog.Warn("discarding undecodable filter options cache entry", slog.Any("error", err))
		return nil, false
	}
	return &opts, true
}

func (c *redisFilterOptionsCache) Set(ctx context.Context, opts *FilterOptions) {
	data, err := json.Marshal(opts)
	if err != nil {
		slog.Warn("encoding filter options for cache", slog.Any("error", err))
		return
	}
	if err := c.client.Set(ctx, filterOptionsKey, data, c.ttl).Err(); err != nil {
		slog.Warn("filter options cache write failed", slog.Any("error", err))
	}
}

func (c *redisFilterOptionsCache) Invalidate(ctx context.Context) {
	if err := c.client.Del(ctx, filterOptionsKey).Err(); err != nil {
		slog.Warn("filter options cache invalidation failed", slog.Any("error", err))
	}
}

// nopFilterOptionsCache always misses. Used when Redis is not configured.
type nopFilterOptionsCache struct{}

// NewNopFilterOptionsCache returns a cache that stores nothing.
func NewNopFilterOptionsCache() FilterOptionsCache {
	return nopFilterOptionsCache{}
}

func (nopFilterOptionsCache) Get(context.Context) (*FilterOptions, bool) { return nil, false }
func (nopFilterOptionsCache) Set(context.Context, *FilterOptions)         {}
func (nopFilterOptionsCache) Invalidate(context.Context)                  {}
