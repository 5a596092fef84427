package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/VaibhavPrasad23/PayRs/internal/client"
	"github.com/VaibhavPrasad23/PayRs/internal/util"
)

const usedTokenPrefix = "otp_used:"

// TokenCache records consumed one-time token signatures so a captured
// token cannot be replayed inside its validity window. Keys expire with
// the token itself.
type TokenCache struct {
	client *client.RedisClient
}

func NewTokenCache(client *client.RedisClient) *TokenCache {
	return &TokenCache{client: client}
}

// MarkTokenUsed claims a token signature. Returns false when the
// signature was already consumed.
func (c *TokenCache) MarkTokenUsed(signature string, ttl time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if signature == "" {
		return false, fmt.Errorf("empty token signature")
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	key := usedTokenPrefix + signature
	claimed, err := c.client.SetNX(ctx, key, "1", ttl)
	if err != nil {
		util.Error("Failed to mark token as used", zap.Error(err))
		return false, fmt.Errorf("failed to mark token as used: %w", err)
	}
	if !claimed {
		util.Warn("Replayed one-time token rejected")
	}
	return claimed, nil
}
