package redisstate

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RateLimiter 用 INCR + EXPIRE 做固定窗口计数。
type RateLimiter struct {
	client    *redis.Client
	keyPrefix string
}

// NewRateLimiter 创建 RateLimiter 实例
func NewRateLimiter(client *redis.Client, keyPrefix string) *RateLimiter {
	if client == nil {
		panic("redis client cannot be nil for RateLimiter")
	}
	if keyPrefix == "" {
		keyPrefix = "nb:"
	}
	return &RateLimiter{client: client, keyPrefix: keyPrefix}
}

// Allow 递增 key 在当前窗口内的计数，超过 limit 时返回 false。
func (l *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	fullKey := l.keyPrefix + "ratelimit:" + key
	pipe := l.client.Pipeline()
	incrCmd := pipe.Incr(ctx, fullKey)
	pipe.Expire(ctx, fullKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis: pipeline failed for rate limit check on key %s: %w", fullKey, err)
	}
	count, err := incrCmd.Result()
	if err != nil {
		return false, fmt.Errorf("redis: failed to get incr result for rate limit on key %s: %w", fullKey, err)
	}
	return count <= int64(limit), nil
}
