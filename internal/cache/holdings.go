package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/openvest/brokerlink/internal/models"
)

// HoldingsCache keeps recent read-only holdings results so the display path
// does not hammer the provider. Entries are dropped on reconcile and
// disconnect.
type HoldingsCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewHoldingsCache(client *redis.Client, ttl time.Duration) *HoldingsCache {
	return &HoldingsCache{
		client: client,
		ttl:    ttl,
	}
}

func holdingsKey(userID uuid.UUID, accountID string) string {
	if accountID == "" {
		accountID = "all"
	}
	return fmt.Sprintf("broker:holdings:%s:%s", userID, accountID)
}

func (c *HoldingsCache) Get(ctx context.Context, userID uuid.UUID, accountID string) (*models.HoldingsResult, bool) {
	data, err := c.client.Get(ctx, holdingsKey(userID, accountID)).Bytes()
	if err != nil {
		return nil, false
	}

	var result models.HoldingsResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, false
	}

	return &result, true
}

func (c *HoldingsCache) Set(ctx context.Context, userID uuid.UUID, accountID string, result *models.HoldingsResult) {
	data, err := json.Marshal(result)
	if err != nil {
		return
	}

	c.client.Set(ctx, holdingsKey(userID, accountID), data, c.ttl)
}

// Invalidate drops every cached holdings entry for the user.
func (c *HoldingsCache) Invalidate(ctx context.Context, userID uuid.UUID) {
	pattern := fmt.Sprintf("broker:holdings:%s:*", userID)
	keys, err := c.client.Keys(ctx, pattern).Result()
	if err != nil || len(keys) == 0 {
		return
	}
	c.client.Del(ctx, keys...)
}
