package service

import (
	"context"
	"fmt"
	"time"

	"github.com/careloop/rpm-auth/pkg/database"
	"github.com/redis/go-redis/v9"
)

// RateLimiter throttles credential and OTP verification attempts per key
// (client IP) using a Redis sliding-window log. Failed and successful
// attempts count the same; there is no per-account lockout.
type RateLimiter struct {
	redis *database.Redis
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(redis *database.Redis) *RateLimiter {
	return &RateLimiter{redis: redis}
}

func rateLimitKey(key string) string {
	return fmt.Sprintf("ratelimit:%s", key)
}

// pruneAndCount drops entries older than the window and returns how many
// attempts remain inside it.
func (r *RateLimiter) pruneAndCount(ctx context.Context, redisKey string, window time.Duration) (int64, error) {
	windowStart := time.Now().Add(-window)

	err := r.redis.Client.ZRemRangeByScore(ctx, redisKey, "0", fmt.Sprintf("%d", windowStart.Unix())).Err()
	if err != nil {
		return 0, fmt.Errorf("failed to clean old entries: %w", err)
	}

	count, err := r.redis.Client.ZCard(ctx, redisKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}

	return count, nil
}

// Allow checks if a request is allowed based on rate limit.
// Returns true if request is allowed, false if rate limit exceeded.
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	redisKey := rateLimitKey(key)

	count, err := r.pruneAndCount(ctx, redisKey, window)
	if err != nil {
		return false, err
	}

	if count >= int64(limit) {
		// Report when the oldest entry falls out of the window.
		oldest, err := r.redis.Client.ZRangeWithScores(ctx, redisKey, 0, 0).Result()
		if err == nil && len(oldest) > 0 {
			oldestTime := time.Unix(int64(oldest[0].Score), 0)
			remaining := window - time.Since(oldestTime)
			return false, fmt.Errorf("rate limit exceeded, try again in %v", remaining.Round(time.Second))
		}
		return false, fmt.Errorf("rate limit exceeded")
	}

	now := time.Now()
	member := fmt.Sprintf("%d-%d", now.UnixNano(), now.Unix())
	err = r.redis.Client.ZAdd(ctx, redisKey, redis.Z{
		Score:  float64(now.Unix()),
		Member: member,
	}).Err()
	if err != nil {
		return false, fmt.Errorf("failed to add entry: %w", err)
	}

	// Window plus a buffer so the key reaps itself.
	_ = r.redis.Client.Expire(ctx, redisKey, window+time.Minute).Err()

	return true, nil
}

// GetRemainingRequests returns the number of remaining requests allowed
func (r *RateLimiter) GetRemainingRequests(ctx context.Context, key string, limit int, window time.Duration) (int, error) {
	count, err := r.pruneAndCount(ctx, rateLimitKey(key), window)
	if err != nil {
		return 0, err
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return remaining, nil
}
