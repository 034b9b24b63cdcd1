// Package viewcache implements the tagged view cache from spec.md §4.5: a
// Redis-backed key-value cache where every entry carries a set of tags
// ("kind:id"), and invalidation targets tags rather than keys, so a mutation
// to one entity can wipe every aggregated view that happened to embed it.
//
// The design notes call out that the original carries two overlapping cache
// systems — an async Redis cache with a "keys:*" pattern scan, and this
// synchronous tagged cache — both invoked on the same mutations. Rather
// than dropping one, Cache folds both into a single Redis keyspace:
// InvalidateTags covers the tagged path, InvalidatePattern preserves the
// pattern-scan path for callers that still need it, and both are safe to
// call on the same mutation (P6 only requires their union holds).
package viewcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	viewKeyPrefix = "view:"
	tagKeyPrefix  = "tag:"
)

type Cache struct {
	redis *redis.Client
}

func New(redisClient *redis.Client) *Cache {
	return &Cache{redis: redisClient}
}

// Get looks up key and unmarshals it into dst. ok is false on a cache miss.
func (c *Cache) Get(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := c.redis.Get(ctx, viewKeyPrefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, fmt.Errorf("get view cache key %q: %w", key, err)
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("unmarshal view cache key %q: %w", key, err)
	}
	return true, nil
}

// Set stores value under key with ttl, and indexes it under every tag so a
// later InvalidateTags can find it.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration, tags ...string) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal view cache value for %q: %w", key, err)
	}

	pipe := c.redis.TxPipeline()
	pipe.Set(ctx, viewKeyPrefix+key, data, ttl)
	for _, tag := range tags {
		pipe.SAdd(ctx, tagKeyPrefix+tag, key)
		// The tag set itself should not outlive the longest-lived entry
		// referencing it by more than a little slack.
		pipe.Expire(ctx, tagKeyPrefix+tag, ttl+time.Minute)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store view cache entry %q: %w", key, err)
	}
	return nil
}

// InvalidateTags removes every entry whose tag set contains any of tags.
func (c *Cache) InvalidateTags(ctx context.Context, tags ...string) error {
	for _, tag := range tags {
		tagKey := tagKeyPrefix + tag

		keys, err := c.redis.SMembers(ctx, tagKey).Result()
		if err != nil {
			return fmt.Errorf("list keys for tag %q: %w", tag, err)
		}
		if len(keys) == 0 {
			continue
		}

		viewKeys := make([]string, len(keys))
		for i, k := range keys {
			viewKeys[i] = viewKeyPrefix + k
		}

		pipe := c.redis.TxPipeline()
		pipe.Del(ctx, viewKeys...)
		pipe.Del(ctx, tagKey)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("invalidate tag %q: %w", tag, err)
		}
	}
	return nil
}

// InvalidateUserViews removes every entry tagged user:{userID} — a full
// wipe for one user, used when precise entity tagging would be too risky
// to compute.
func (c *Cache) InvalidateUserViews(ctx context.Context, userID string) error {
	return c.InvalidateTags(ctx, "user:"+userID)
}

// InvalidatePattern deletes every raw key matching pattern, preserving the
// legacy "keys:*" scan-based invalidation path alongside the tagged one.
func (c *Cache) InvalidatePattern(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, next, err := c.redis.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("scan pattern %q: %w", pattern, err)
		}
		if len(keys) > 0 {
			if err := c.redis.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("delete scanned keys for pattern %q: %w", pattern, err)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return nil
}
