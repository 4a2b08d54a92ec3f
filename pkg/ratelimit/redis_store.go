package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrScript increments the window counter and sets its TTL atomically.
// Returns the count and the remaining TTL in milliseconds.
const incrScript = `
local count = redis.call("INCR", KEYS[1])
if count == 1 then
    redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {count, ttl}
`

// RedisStore implements Store on a Redis client. Safe across processes since
// the count-and-expire runs as a single Lua script.
type RedisStore struct {
	client *redis.Client
	prefix string
	script *redis.Script
}

// NewRedisStore creates a Redis-backed rate limit store.
// Keys are namespaced with prefix to avoid clashing with other users of the
// same Redis database.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		script: redis.NewScript(incrScript),
	}
}

func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	res, err := s.script.Run(ctx, s.client, []string{s.prefix + ":" + key}, window.Milliseconds()).Slice()
	if err != nil {
		return 0, time.Time{}, err
	}

	count, _ := res[0].(int64)
	ttlMs, _ := res[1].(int64)
	if ttlMs < 0 {
		ttlMs = window.Milliseconds()
	}

	return count, time.Now().Add(time.Duration(ttlMs) * time.Millisecond), nil
}
