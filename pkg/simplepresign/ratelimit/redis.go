package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/tendant/simple-presign/pkg/simplepresign/metrics"
)

// slidingWindowScript trims, counts and conditionally appends in one step.
// Scores are caller-supplied Unix milliseconds.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call("ZREMRANGEBYSCORE", key, "-inf", "(" .. (now - window))
local count = redis.call("ZCARD", key)
if count < limit then
  redis.call("ZADD", key, now, ARGV[4])
  redis.call("PEXPIRE", key, window)
  return {1, count + 1, 0}
end
local first = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
local oldest = now
if first[2] then
  oldest = tonumber(first[2])
end
return {0, count, oldest}
`)

// RedisStore shares windows across replicas through sorted sets. When Redis
// is unreachable it decides with Fallback instead.
type RedisStore struct {
	Client   redis.Scripter
	Prefix   string
	Window   time.Duration
	Timeout  time.Duration
	Fallback Store
}

// NewRedisStore creates a RedisStore backed by an in-process fallback
func NewRedisStore(client redis.Scripter) *RedisStore {
	return &RedisStore{
		Client:   client,
		Prefix:   "presign:rl:",
		Window:   Window,
		Timeout:  2 * time.Second,
		Fallback: NewMemoryStore(),
	}
}

func (s *RedisStore) Admit(ctx context.Context, key string, limit int, now time.Time) (Decision, error) {
	d, err := s.admit(ctx, key, limit, now)
	if err == nil {
		return d, nil
	}
	if s.Fallback == nil {
		return Decision{}, err
	}
	slog.Warn("Rate store unavailable, using in-process window", "key", key, "error", err)
	metrics.RateStoreFallbacks.Inc()
	return s.Fallback.Admit(ctx, key, limit, now)
}

func (s *RedisStore) admit(ctx context.Context, key string, limit int, now time.Time) (Decision, error) {
	if s.Client == nil {
		return Decision{}, fmt.Errorf("ratelimit: no redis client")
	}
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	nowMs := now.UnixMilli()
	res, err := slidingWindowScript.Run(ctx, s.Client, []string{s.Prefix + key},
		nowMs, s.Window.Milliseconds(), limit, uuid.NewString()).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: script failed: %w", err)
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) < 3 {
		return Decision{}, fmt.Errorf("ratelimit: unexpected script result %T", res)
	}
	admitted, _ := vals[0].(int64)
	count, _ := vals[1].(int64)
	oldestMs, _ := vals[2].(int64)

	d := Decision{Admitted: admitted == 1, Count: int(count), Limit: limit}
	if !d.Admitted {
		d.RetryAfter = retryAfter(time.UnixMilli(oldestMs), time.UnixMilli(nowMs), s.Window)
	}
	return d, nil
}
