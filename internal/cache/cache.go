// Package cache provides an optional Redis-backed cache for computed
// insight reports. A nil *Cache is valid and disables caching, so
// callers never branch on whether Redis is configured.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/gomodule/redigo/redis"
	"github.com/rs/zerolog/log"

	"github.com/fluxtask/fluxtask/pkg/models"
)

const keyPrefix = "fluxtask:insights:"

// ErrMiss is returned when the key is absent or caching is disabled.
var ErrMiss = errors.New("cache: miss")

// Cache is a Redis-backed insights cache with a fixed TTL.
type Cache struct {
	pool *redis.Pool
	ttl  time.Duration
}

// New creates a cache against the given Redis address. An empty
// address returns nil, which disables caching.
func New(addr string, ttl time.Duration) *Cache {
	if addr == "" {
		return nil
	}
	pool := &redis.Pool{
		MaxIdle:     3,
		IdleTimeout: 240 * time.Second,
		DialContext: func(ctx context.Context) (redis.Conn, error) {
			return redis.DialContext(ctx, "tcp", addr)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
	return &Cache{pool: pool, ttl: ttl}
}

// GetInsights returns the cached report for a user, or ErrMiss.
func (c *Cache) GetInsights(ctx context.Context, userID string) (*models.InsightsReport, error) {
	if c == nil {
		return nil, ErrMiss
	}
	conn, err := c.pool.GetContext(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	data, err := redis.Bytes(conn.Do("GET", keyPrefix+userID))
	if errors.Is(err, redis.ErrNil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}
	var report models.InsightsReport
	if err := json.Unmarshal(data, &report); err != nil {
		// A corrupt entry behaves like a miss; the next Set replaces it.
		log.Warn().Err(err).Str("user", userID).Msg("Dropping corrupt cached insights")
		return nil, ErrMiss
	}
	return &report, nil
}

// SetInsights stores the report with the cache TTL. Errors are logged,
// not surfaced: the cache is an optimization only.
func (c *Cache) SetInsights(ctx context.Context, report *models.InsightsReport) {
	if c == nil {
		return
	}
	data, err := json.Marshal(report)
	if err != nil {
		log.Warn().Err(err).Msg("Marshal insights for cache failed")
		return
	}
	conn, err := c.pool.GetContext(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, skipping insights cache")
		return
	}
	defer conn.Close()

	if _, err := conn.Do("SET", keyPrefix+report.UserID, data, "EX", int(c.ttl.Seconds())); err != nil {
		log.Warn().Err(err).Str("user", report.UserID).Msg("Cache insights failed")
	}
}

// InvalidateInsights drops the cached report for a user. Called after
// any recorded outcome so stale insights never outlive new learning.
func (c *Cache) InvalidateInsights(ctx context.Context, userID string) {
	if c == nil {
		return
	}
	conn, err := c.pool.GetContext(ctx)
	if err != nil {
		return
	}
	defer conn.Close()
	if _, err := conn.Do("DEL", keyPrefix+userID); err != nil {
		log.Warn().Err(err).Str("user", userID).Msg("Cache invalidation failed")
	}
}

// Close releases the underlying connection pool.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.pool.Close()
}
