package alert

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "arb:alert:dedup:"

// emitScript sets the key unless it already holds the same profit. The key
// expires after the window, so expiry is the "window elapsed" condition.
var emitScript = redis.NewScript(`
local prev = redis.call('GET', KEYS[1])
if prev == ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
return 1
`)

// RedisMemory keeps dedup records in Redis so they survive monitor restarts.
// Time is Redis server time; the now argument of ShouldEmit is ignored.
type RedisMemory struct {
	client *redis.Client
	window time.Duration
}

// NewRedisMemory creates a Redis-backed memory. A non-positive window uses DefaultWindow.
func NewRedisMemory(client *redis.Client, window time.Duration) *RedisMemory {
	if window <= 0 {
		window = DefaultWindow
	}
	return &RedisMemory{client: client, window: window}
}

func (m *RedisMemory) ShouldEmit(ctx context.Context, signature string, profit int64, _ time.Time) (bool, error) {
	res, err := emitScript.Run(ctx, m.client,
		[]string{redisKeyPrefix + signature},
		strconv.FormatInt(profit, 10), m.window.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("dedup check: %w", err)
	}
	return res == 1, nil
}

func (m *RedisMemory) Forget(ctx context.Context, signature string) error {
	if err := m.client.Del(ctx, redisKeyPrefix+signature).Err(); err != nil {
		return fmt.Errorf("forget dedup key: %w", err)
	}
	return nil
}

// Reset removes every dedup key under the prefix.
func (m *RedisMemory) Reset(ctx context.Context) error {
	iter := m.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan dedup keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := m.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete dedup keys: %w", err)
	}
	return nil
}
