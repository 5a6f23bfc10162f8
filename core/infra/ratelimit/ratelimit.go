// Package ratelimit implements fixed-window counters shared by the request
// rate limiter and the hourly upload quotas.
package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of one reservation.
type Decision struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   time.Time
}

// Limiter reserves units in a fixed window. A denied reservation consumes
// nothing.
type Limiter interface {
	Take(ctx context.Context, key string, cost, limit int64, window time.Duration) (Decision, error)
	// Release returns units to the current window, never below zero.
	Release(ctx context.Context, key string, cost int64) error
}

// Allow reserves a single unit.
func Allow(ctx context.Context, l Limiter, key string, limit int64, window time.Duration) (Decision, error) {
	return l.Take(ctx, key, 1, limit, window)
}

func unlimited(limit int64) Decision {
	return Decision{Allowed: true, Limit: limit, Remaining: limit}
}

func remaining(limit, used int64) int64 {
	if r := limit - used; r > 0 {
		return r
	}
	return 0
}
