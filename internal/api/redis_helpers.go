package api

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type rateCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// overRateLimit 用 Redis 计数器做固定窗口限流。窗口由 key 首次出现时
// 的 TTL 划定，计数超过 limit 即判超限。
func overRateLimit(ctx context.Context, client rateCounter, key string, limit int64, window time.Duration) (bool, error) {
	count, err := client.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		if err := client.Expire(ctx, key, window).Err(); err != nil {
			return false, err
		}
	}
	return count > limit, nil
}
