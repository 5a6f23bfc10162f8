package locks

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore builds a lock store on an existing client.
func NewRedisStore(client redis.UniversalClient) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client required")
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Acquire(ctx context.Context, resource, owner string, ttl time.Duration) (bool, error) {
	resource, owner, err := normalize(resource, owner)
	if err != nil {
		return false, err
	}
	ttl = normalizeTTL(ttl)
	res, err := s.client.Eval(ctx, acquireScript, []string{lockKey(resource)}, owner, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", resource, err)
	}
	return res == 1, nil
}

func (s *RedisStore) Release(ctx context.Context, resource, owner string) error {
	resource, owner, err := normalize(resource, owner)
	if err != nil {
		return err
	}
	if err := s.client.Eval(ctx, releaseScript, []string{lockKey(resource)}, owner).Err(); err != nil {
		return fmt.Errorf("release lock %s: %w", resource, err)
	}
	return nil
}

func (s *RedisStore) Renew(ctx context.Context, resource, owner string, ttl time.Duration) (bool, error) {
	resource, owner, err := normalize(resource, owner)
	if err != nil {
		return false, err
	}
	ttl = normalizeTTL(ttl)
	res, err := s.client.Eval(ctx, renewScript, []string{lockKey(resource)}, owner, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("renew lock %s: %w", resource, err)
	}
	return res == 1, nil
}

// acquireScript is reentrant for the current owner.
const acquireScript = `
local key = KEYS[1]
local owner = ARGV[1]
local ttl = tonumber(ARGV[2])
local current = redis.call("GET", key)
if not current or current == owner then
  redis.call("SET", key, owner, "PX", ttl)
  return 1
end
return 0
`

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

const renewScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  redis.call("PEXPIRE", KEYS[1], tonumber(ARGV[2]))
  return 1
end
return 0
`
