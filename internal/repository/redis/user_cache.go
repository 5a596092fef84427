package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/VaibhavPrasad23/PayRs/internal/client"
	"github.com/VaibhavPrasad23/PayRs/internal/model"
	"github.com/VaibhavPrasad23/PayRs/internal/util"
)

const (
	accountKeyFormat = "user:%s"
	sessionKeyFormat = "user:session:%s"

	defaultAccountTTL = 15 * time.Minute
)

// UserCache keeps hot mentor accounts and their session data in Redis.
// Mutating flows evict here so the next guard pass reloads fresh state.
type UserCache struct {
	client *client.RedisClient
}

func NewUserCache(client *client.RedisClient) *UserCache {
	return &UserCache{client: client}
}

func (c *UserCache) SetAccount(mentor *model.Mentor, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if ttl <= 0 {
		ttl = defaultAccountTTL
	}

	data, err := json.Marshal(mentor)
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}

	key := fmt.Sprintf(accountKeyFormat, mentor.ID)
	if err := c.client.Set(ctx, key, string(data), ttl); err != nil {
		util.Error("Failed to cache account", zap.String("mentor_id", mentor.ID), zap.Error(err))
		return fmt.Errorf("failed to cache account: %w", err)
	}
	return nil
}

func (c *UserCache) GetAccount(mentorID string) (*model.Mentor, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	key := fmt.Sprintf(accountKeyFormat, mentorID)
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if strings.Contains(err.Error(), "key not found") {
			return nil, fmt.Errorf("account not cached: %s", mentorID)
		}
		util.Error("Failed to read cached account", zap.String("mentor_id", mentorID), zap.Error(err))
		return nil, fmt.Errorf("failed to read cached account: %w", err)
	}

	mentor := &model.Mentor{}
	if err := json.Unmarshal([]byte(data), mentor); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached account: %w", err)
	}
	return mentor, nil
}

func (c *UserCache) SetSessionData(mentorID string, data map[string]interface{}, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal session data: %w", err)
	}

	key := fmt.Sprintf(sessionKeyFormat, mentorID)
	if err := c.client.Set(ctx, key, string(encoded), ttl); err != nil {
		util.Error("Failed to cache session data", zap.String("mentor_id", mentorID), zap.Error(err))
		return fmt.Errorf("failed to cache session data: %w", err)
	}
	return nil
}

func (c *UserCache) GetSessionData(mentorID string) (map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	key := fmt.Sprintf(sessionKeyFormat, mentorID)
	encoded, err := c.client.Get(ctx, key)
	if err != nil {
		if strings.Contains(err.Error(), "key not found") {
			return nil, fmt.Errorf("no session data for mentor: %s", mentorID)
		}
		return nil, fmt.Errorf("failed to read session data: %w", err)
	}

	var data map[string]interface{}
	if err := json.Unmarshal([]byte(encoded), &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session data: %w", err)
	}
	return data, nil
}

// InvalidateAccount drops only the cached account row.
func (c *UserCache) InvalidateAccount(mentorID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	key := fmt.Sprintf(accountKeyFormat, mentorID)
	if err := c.client.Del(ctx, key); err != nil {
		util.Error("Failed to invalidate cached account", zap.String("mentor_id", mentorID), zap.Error(err))
		return fmt.Errorf("failed to invalidate cached account: %w", err)
	}
	return nil
}

// InvalidateSession drops the cached session data.
func (c *UserCache) InvalidateSession(mentorID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	key := fmt.Sprintf(sessionKeyFormat, mentorID)
	if err := c.client.Del(ctx, key); err != nil {
		util.Error("Failed to invalidate session data", zap.String("mentor_id", mentorID), zap.Error(err))
		return fmt.Errorf("failed to invalidate session data: %w", err)
	}
	return nil
}

// Invalidate drops both keys in one round trip. Used after any change
// that affects what the guard would load.
func (c *UserCache) Invalidate(mentorID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	keys := []string{
		fmt.Sprintf(accountKeyFormat, mentorID),
		fmt.Sprintf(sessionKeyFormat, mentorID),
	}
	if err := c.client.Del(ctx, keys...); err != nil {
		util.Error("Failed to invalidate user cache", zap.String("mentor_id", mentorID), zap.Error(err))
		return fmt.Errorf("failed to invalidate user cache: %w", err)
	}

	util.Debug("User cache invalidated", zap.String("mentor_id", mentorID))
	return nil
}
