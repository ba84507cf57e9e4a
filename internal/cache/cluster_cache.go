package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
)

// ClusterCache stores rendered cluster responses in Redis. Keys carry the
// fit generation, so a refit never serves stale clusters.
type ClusterCache struct {
	client redisv9.Cmdable
	ttl    time.Duration
	prefix string
}

func NewClusterCache(client redisv9.Cmdable, ttl time.Duration) *ClusterCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ClusterCache{
		client: client,
		ttl:    ttl,
		prefix: "vnnews:clusters:",
	}
}

func (c *ClusterCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redisv9.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get clusters failed: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("unmarshal cached clusters failed: %w", err)
	}
	return true, nil
}

func (c *ClusterCache) Set(ctx context.Context, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal clusters cache failed: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+key, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set clusters failed: %w", err)
	}
	return nil
}
