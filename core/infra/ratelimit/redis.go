package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisLimiter struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

var takeScript = redis.NewScript(`
local cost = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
if current + cost > limit then
  return {current, redis.call("PTTL", KEYS[1]), 0}
end
current = redis.call("INCRBY", KEYS[1], cost)
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {current, ttl, 1}
`)

var releaseScript = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
if current <= 0 then
  return 0
end
local left = current - tonumber(ARGV[1])
if left < 0 then
  left = 0
end
redis.call("SET", KEYS[1], left, "KEEPTTL")
return left
`)

// NewRedisLimiter shares counters across gateway instances. prefix namespaces
// every key.
func NewRedisLimiter(client redis.UniversalClient, prefix string, now func() time.Time) (*RedisLimiter, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if now == nil {
		now = time.Now
	}
	return &RedisLimiter{client: client, prefix: prefix, now: now}, nil
}

func (r *RedisLimiter) Take(ctx context.Context, key string, cost, limit int64, window time.Duration) (Decision, error) {
	if limit <= 0 {
		return unlimited(limit), nil
	}
	windowMillis := window.Milliseconds()
	if windowMillis <= 0 {
		windowMillis = 1000
	}
	result, err := takeScript.Run(ctx, r.client, []string{r.prefix + key}, windowMillis, cost, limit).Result()
	if err != nil {
		return Decision{}, err
	}
	values, ok := result.([]any)
	if !ok || len(values) < 3 {
		return Decision{}, errors.New("unexpected redis rate limit response")
	}
	current, ok := values[0].(int64)
	if !ok {
		return Decision{}, errors.New("invalid redis counter response")
	}
	ttlMillis, _ := values[1].(int64)
	allowed, _ := values[2].(int64)
	resetAt := r.now()
	if ttlMillis > 0 {
		resetAt = resetAt.Add(time.Duration(ttlMillis) * time.Millisecond)
	}
	return Decision{
		Allowed:   allowed == 1,
		Limit:     limit,
		Remaining: remaining(limit, current),
		ResetAt:   resetAt,
	}, nil
}

func (r *RedisLimiter) Release(ctx context.Context, key string, cost int64) error {
	if cost <= 0 {
		return nil
	}
	return releaseScript.Run(ctx, r.client, []string{r.prefix + key}, cost).Err()
}
