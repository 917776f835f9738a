package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/quantleap/funnelsight/internal/models"
	"github.com/redis/go-redis/v9"
)

const dayCacheKeyPrefix = "daycache:"

// RedisDayCacheRepo implements DayCacheRepo on Redis. One JSON value
// per calendar day; SET gives the upsert semantics that make
// concurrent writers for the same day converge.
type RedisDayCacheRepo struct {
	client *redis.Client
}

func NewRedisDayCacheRepo(client *redis.Client) *RedisDayCacheRepo {
	return &RedisDayCacheRepo{client: client}
}

func (r *RedisDayCacheRepo) Get(ctx context.Context, key models.DayKey) (*models.DayCacheEntry, error) {
	raw, err := r.client.Get(ctx, dayCacheKeyPrefix+key.String()).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read day cache %s: %w", key, err)
	}

	var entry models.DayCacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, fmt.Errorf("failed to decode day cache %s: %w", key, err)
	}
	return &entry, nil
}

func (r *RedisDayCacheRepo) Upsert(ctx context.Context, entry *models.DayCacheEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode day cache %s: %w", entry.Key, err)
	}

	// No TTL: historical days are immutable and kept forever.
	if err := r.client.Set(ctx, dayCacheKeyPrefix+entry.Key.String(), raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to write day cache %s: %w", entry.Key, err)
	}
	return nil
}
