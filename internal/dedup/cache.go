// Package dedup provides a Redis fast-path in front of the durable dedup
// ledger. Hot duplicate deliveries (webhook retries, repeated pixel
// fetches) are answered from Redis without a database round-trip; the
// Postgres ledger stays the source of truth, so Redis outages only cost
// the shortcut, never correctness.
package dedup

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/lead-engagement/internal/pkg/logger"
)

const keyPrefix = "dedup:"

// Cache is a best-effort seen-set backed by Redis SET NX with TTL.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache creates a seen-cache. Entries expire after ttl; a zero ttl
// defaults to 24h, comfortably past any upstream retry window.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cache{client: client, ttl: ttl}
}

// Seen reports whether eventID was marked before. Errors degrade to false
// so the caller falls through to the ledger.
func (c *Cache) Seen(ctx context.Context, eventID string) bool {
	n, err := c.client.Exists(ctx, keyPrefix+eventID).Result()
	if err != nil {
		logger.Debug("dedup cache read failed", "error", err.Error())
		return false
	}
	return n > 0
}

// Mark records eventID. Only called after the ledger insert has committed,
// so a crash between the two can never hide an unprocessed event.
func (c *Cache) Mark(ctx context.Context, eventID string) {
	if err := c.client.SetNX(ctx, keyPrefix+eventID, 1, c.ttl).Err(); err != nil {
		logger.Debug("dedup cache write failed", "error", err.Error())
	}
}
