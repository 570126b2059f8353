// Copyright 2025 AxonFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/outris-dev-user/outris-identity-mcp/shared/logger"
)

const keyPrefix = "guestlimit:"

// Connect parses a redis:// URL and verifies the connection
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// RedisLimiter is a sliding window limiter shared by every gateway
// instance. When Redis is unreachable it falls back to a process-local
// window rather than failing open.
type RedisLimiter struct {
	client   *redis.Client
	limit    int
	window   time.Duration
	fallback *MemoryLimiter
	logger   *logger.Logger
	now      func() time.Time
}

// NewRedisLimiter creates a Redis-backed limiter
func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	fallback := NewMemoryLimiter(limit, window)
	return &RedisLimiter{
		client:   client,
		limit:    fallback.limit,
		window:   fallback.window,
		fallback: fallback,
		logger:   logger.New("ratelimit"),
		now:      time.Now,
	}
}

// Allow records a call for origin if it is within the limit
func (r *RedisLimiter) Allow(ctx context.Context, origin string) Decision {
	if r.client == nil {
		return r.fallback.Allow(ctx, origin)
	}

	now := r.now()
	key := keyPrefix + OriginKey(origin)
	member := strconv.FormatInt(now.UnixNano(), 10)
	minScore := strconv.FormatInt(now.Add(-r.window).UnixMilli(), 10)

	pipe := r.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", minScore)
	card := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, &redis.Z{Score: float64(now.UnixMilli()), Member: member})
	oldest := pipe.ZRangeWithScores(ctx, key, 0, 0)
	pipe.Expire(ctx, key, r.window+time.Minute)

	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Warn("guest", "", "Redis rate limit check failed, using local window", map[string]interface{}{
			"error": err.Error(),
		})
		return r.fallback.Allow(ctx, origin)
	}

	d := Decision{Limit: r.limit, ResetAt: now.Add(r.window)}
	if zs := oldest.Val(); len(zs) > 0 {
		d.ResetAt = time.UnixMilli(int64(zs[0].Score)).Add(r.window)
	}

	count := int(card.Val())
	if count >= r.limit {
		// Rejected attempts do not extend the window.
		if err := r.client.ZRem(ctx, key, member).Err(); err != nil {
			r.logger.Warn("guest", "", "Failed to drop rejected attempt", map[string]interface{}{"error": err.Error()})
		}
		return d
	}

	d.Allowed = true
	d.Remaining = r.limit - count - 1
	return d
}

// Reset clears the window for an origin
func (r *RedisLimiter) Reset(ctx context.Context, origin string) error {
	if r.client == nil {
		return nil
	}
	if err := r.client.Del(ctx, keyPrefix+OriginKey(origin)).Err(); err != nil {
		return fmt.Errorf("failed to reset rate limit: %w", err)
	}
	return nil
}
