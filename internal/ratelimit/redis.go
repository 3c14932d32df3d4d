package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter shares counters between API instances through Redis.
type RedisLimiter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisLimiter(client redis.UniversalClient) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: "ratelimit:"}
}

// NewRedisLimiterFromURL connects to a single Redis node and verifies it is
// reachable.
func NewRedisLimiterFromURL(ctx context.Context, redisURL string) (*RedisLimiter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisLimiter(client), nil
}

func (l *RedisLimiter) Check(ctx context.Context, key string, maxRequests int, window time.Duration) (Decision, error) {
	redisKey := l.prefix + key

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttl := pipe.PTTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("increment rate counter: %w", err)
	}

	remaining := ttl.Val()
	if remaining < 0 {
		// First hit in this window, or a counter left without expiry.
		if err := l.client.PExpire(ctx, redisKey, window).Err(); err != nil {
			return Decision{}, fmt.Errorf("expire rate counter: %w", err)
		}
		remaining = window
	}

	count := int(incr.Val())
	if count > maxRequests {
		return Decision{Allowed: false, RetryAfterSeconds: retryAfter(remaining)}, nil
	}
	return Decision{Allowed: true, Remaining: maxRequests - count}, nil
}

func (l *RedisLimiter) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

func (l *RedisLimiter) Close() error {
	return l.client.Close()
}
