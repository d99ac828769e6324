package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// slidingWindowScript trims the log, then admits the send if there is room.
// It returns 0 on admission, otherwise the wait in milliseconds.
const slidingWindowScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

local count = redis.call('ZCARD', key)
if count < limit then
	redis.call('ZADD', key, now, member)
	redis.call('PEXPIRE', key, window)
	return 0
end

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local wait = tonumber(oldest[2]) + window - now
if wait < 1 then
	wait = 1
end
return wait
`

type scripter interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// Redis is a sliding-window log kept in a sorted set, shared by every process
// that points at the same Redis.
type Redis struct {
	client scripter
	key    string
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewRedis creates a limiter stored under "ratelimit:<key>".
func NewRedis(client scripter, key string, limit int, window time.Duration) *Redis {
	return &Redis{
		client: client,
		key:    "ratelimit:" + key,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// RedisFactory builds Redis limiters over Window on client.
func RedisFactory(client scripter) Factory {
	return func(key string, limit int) Limiter {
		return NewRedis(client, key, limit, Window)
	}
}

func (r *Redis) Allow(ctx context.Context) (bool, time.Duration, error) {
	now := r.now().UnixMilli()

	res, err := r.client.Eval(
		ctx, slidingWindowScript, []string{r.key},
		now, r.window.Milliseconds(), r.limit, uuid.NewString(),
	).Int64()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit %s: %w", r.key, err)
	}

	if res == 0 {
		return true, 0, nil
	}

	return false, time.Duration(res) * time.Millisecond, nil
}
