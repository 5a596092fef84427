package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/VaibhavPrasad23/PayRs/internal/client"
	"github.com/VaibhavPrasad23/PayRs/internal/util"
)

const (
	rateLimitPrefix = "rate_limit:"
	tempLockPrefix  = "temp_lock:"
)

// RateLimitCache implements fixed-window counters keyed by caller
// identity. The first increment in a window sets the expiry, so the
// window slides forward only when it empties.
type RateLimitCache struct {
	client *client.RedisClient
}

func NewRateLimitCache(client *client.RedisClient) *RateLimitCache {
	return &RateLimitCache{client: client}
}

// IncrementCounter bumps the counter for key and returns the new value.
func (c *RateLimitCache) IncrementCounter(key string, window time.Duration) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	count, err := c.client.IncrWithExpire(ctx, rateLimitPrefix+key, window)
	if err != nil {
		util.Error("Failed to increment rate limit counter", zap.String("key", key), zap.Error(err))
		return 0, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}
	return count, nil
}

// SetTemporaryLock blocks a key outright for the given duration,
// independent of the counter window.
func (c *RateLimitCache) SetTemporaryLock(key string, duration time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.client.Set(ctx, tempLockPrefix+key, "locked", duration); err != nil {
		util.Error("Failed to set temporary lock", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("failed to set temporary lock: %w", err)
	}
	return nil
}

// IsLocked reports whether a temporary lock is in effect for key.
func (c *RateLimitCache) IsLocked(key string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	locked, err := c.client.Exists(ctx, tempLockPrefix+key)
	if err != nil {
		return false, fmt.Errorf("failed to check temporary lock: %w", err)
	}
	return locked, nil
}
