package locks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cutty/cutty/core/infra/logging"
)

const (
	defaultTTL     = 30 * time.Second
	defaultWait    = 5 * time.Second
	retryInterval  = 50 * time.Millisecond
	releaseTimeout = 2 * time.Second
	lockKeyPrefix  = "lock:"
	logComponent   = "locks"
)

// ErrNotAcquired is returned by Hold when the lock stays busy past the wait.
var ErrNotAcquired = errors.New("lock not acquired")

// Store manages exclusive, expiring resource locks.
type Store interface {
	// Acquire takes the lock for owner. It reports false while another owner
	// holds it.
	Acquire(ctx context.Context, resource, owner string, ttl time.Duration) (bool, error)
	// Release drops the lock if owner still holds it.
	Release(ctx context.Context, resource, owner string) error
	// Renew extends the lock if owner still holds it.
	Renew(ctx context.Context, resource, owner string, ttl time.Duration) (bool, error)
}

// Hold acquires resource under a fresh owner id, retrying until wait elapses
// or ctx is done. The returned func releases the lock.
func Hold(ctx context.Context, s Store, resource string, ttl, wait time.Duration) (func(), error) {
	if s == nil {
		return nil, fmt.Errorf("lock store unavailable")
	}
	if wait <= 0 {
		wait = defaultWait
	}
	owner := uuid.NewString()
	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()
	for {
		ok, err := s.Acquire(waitCtx, resource, owner, ttl)
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				relCtx, relCancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
				defer relCancel()
				if err := s.Release(relCtx, resource, owner); err != nil {
					logging.Warn(logComponent, "lock release failed", "resource", resource, "error", err)
				}
			}, nil
		}
		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %s", ErrNotAcquired, resource)
		case <-ticker.C:
		}
	}
}

func normalize(resource, owner string) (string, string, error) {
	resource = strings.TrimSpace(resource)
	owner = strings.TrimSpace(owner)
	if resource == "" || owner == "" {
		return "", "", fmt.Errorf("resource and owner required")
	}
	return resource, owner, nil
}

func normalizeTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return defaultTTL
	}
	return ttl
}

func lockKey(resource string) string {
	return lockKeyPrefix + resource
}
