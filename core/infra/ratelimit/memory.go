package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

type MemoryLimiter struct {
	mu      sync.Mutex
	now     func() time.Time
	data    map[string]*memoryBucket
	maxKeys int
}

type memoryBucket struct {
	count     int64
	windowEnd time.Time
}

type MemoryLimiterConfig struct {
	Now     func() time.Time
	MaxKeys int
}

// NewMemoryLimiter keeps counters in process; used when Redis is not configured.
func NewMemoryLimiter(cfg MemoryLimiterConfig) *MemoryLimiter {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MaxKeys <= 0 {
		cfg.MaxKeys = 10000
	}
	return &MemoryLimiter{
		now:     cfg.Now,
		data:    make(map[string]*memoryBucket),
		maxKeys: cfg.MaxKeys,
	}
}

func (m *MemoryLimiter) Take(_ context.Context, key string, cost, limit int64, window time.Duration) (Decision, error) {
	if limit <= 0 {
		return unlimited(limit), nil
	}
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	bucket, ok := m.data[key]
	if ok && !now.Before(bucket.windowEnd) {
		delete(m.data, key)
		ok = false
	}
	if !ok {
		if len(m.data) >= m.maxKeys {
			m.gc(now)
		}
		if len(m.data) >= m.maxKeys {
			return Decision{}, errors.New("rate limiter capacity exceeded")
		}
		bucket = &memoryBucket{windowEnd: now.Add(window)}
		m.data[key] = bucket
	}

	if bucket.count+cost > limit {
		return Decision{
			Allowed:   false,
			Limit:     limit,
			Remaining: remaining(limit, bucket.count),
			ResetAt:   bucket.windowEnd,
		}, nil
	}
	bucket.count += cost
	return Decision{
		Allowed:   true,
		Limit:     limit,
		Remaining: remaining(limit, bucket.count),
		ResetAt:   bucket.windowEnd,
	}, nil
}

func (m *MemoryLimiter) Release(_ context.Context, key string, cost int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if bucket, ok := m.data[key]; ok {
		bucket.count -= cost
		if bucket.count < 0 {
			bucket.count = 0
		}
	}
	return nil
}

func (m *MemoryLimiter) gc(now time.Time) {
	for key, bucket := range m.data {
		if !now.Before(bucket.windowEnd) {
			delete(m.data, key)
		}
	}
}
