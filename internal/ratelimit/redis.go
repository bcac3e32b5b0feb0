package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrWindow counts a request and starts the window expiry on the first one.
// It returns the count and the remaining window in milliseconds.
var incrWindow = redis.NewScript(`
local c = redis.call('INCR', KEYS[1])
if c == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {c, ttl}
`)

// RedisCounter shares windows between API instances. The key's TTL is the
// window, so expired windows disappear without a sweep.
type RedisCounter struct {
	client redis.Scripter
	prefix string
}

// NewRedisCounter wraps a go-redis client.
func NewRedisCounter(client redis.Scripter, prefix string) *RedisCounter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisCounter{client: client, prefix: prefix}
}

// Increment implements Counter.
func (c *RedisCounter) Increment(ctx context.Context, key string, now time.Time, size time.Duration) (Window, error) {
	res, err := incrWindow.Run(ctx, c.client, []string{c.prefix + ":" + key}, size.Milliseconds()).Int64Slice()
	if err != nil {
		return Window{}, fmt.Errorf("ratelimit: redis increment: %w", err)
	}
	if len(res) != 2 {
		return Window{}, fmt.Errorf("ratelimit: unexpected script reply %v", res)
	}
	left := time.Duration(res[1]) * time.Millisecond
	return Window{Count: int(res[0]), Start: now.Add(left - size)}, nil
}
