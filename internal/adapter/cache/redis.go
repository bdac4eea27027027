// Package cache keeps documentation selections in Redis so repeated questions
// skip the ranking call.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

const keyPrefix = "mcp-proxy:docs:"

// RedisSelectionCache stores ranker output as JSON arrays under a hash of the
// normalized query.
type RedisSelectionCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSelectionCache connects to redisURL (redis://host:port/db) and
// verifies the connection.
func NewRedisSelectionCache(ctx context.Context, redisURL string, ttl time.Duration) (*RedisSelectionCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &RedisSelectionCache{client: client, ttl: ttl}, nil
}

func (c *RedisSelectionCache) Get(ctx context.Context, query string) ([]string, bool, error) {
	raw, err := c.client.Get(ctx, cacheKey(query)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading docs selection: %w", err)
	}

	var paths []string
	if err := json.Unmarshal(raw, &paths); err != nil {
		return nil, false, fmt.Errorf("decoding docs selection: %w", err)
	}
	return paths, true, nil
}

func (c *RedisSelectionCache) Set(ctx context.Context, query string, paths []string) error {
	raw, err := json.Marshal(paths)
	if err != nil {
		return fmt.Errorf("encoding docs selection: %w", err)
	}
	if err := c.client.Set(ctx, cacheKey(query), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("writing docs selection: %w", err)
	}
	return nil
}

func (c *RedisSelectionCache) Close() error {
	return c.client.Close()
}

func cacheKey(query string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(query))))
	return keyPrefix + hex.EncodeToString(sum[:])
}
