package services

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"task-notify/internal/database"

	"github.com/redis/go-redis/v9"
)

// RateLimiter is a sliding-window limiter backed by a Redis sorted set per key.
type RateLimiter struct {
	client *database.RedisClient
	now    func() time.Time
	seq    atomic.Uint64
}

func NewRateLimiter(client *database.RedisClient) *RateLimiter {
	return &RateLimiter{client: client, now: time.Now}
}

// Allow records one request under key and reports whether it fits within limit per window.
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := r.now()
	windowStart := now.Add(-window).UnixNano()

	pipe := r.client.GetClient().Pipeline()

	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowStart))
	count := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixNano()), Member: fmt.Sprintf("%d-%d", now.UnixNano(), r.seq.Add(1))})
	pipe.Expire(ctx, key, window)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}

	return count.Val() < int64(limit), nil
}
