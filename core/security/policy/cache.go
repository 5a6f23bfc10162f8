package policy

import (
	"sync"
	"time"
)

// Cache is the single-slot policy snapshot shared by concurrent requests.
type Cache struct {
	mu        sync.RWMutex
	policy    SecurityPolicy
	fetchedAt time.Time
	filled    bool
	ttl       time.Duration
	now       func() time.Time
}

func NewCache(ttl time.Duration, now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{ttl: ttl, now: now}
}

// Get returns the snapshot while its age is below the expiry.
func (c *Cache) Get() (SecurityPolicy, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.filled || c.now().Sub(c.fetchedAt) >= c.ttl {
		return SecurityPolicy{}, false
	}
	return c.policy.Clone(), true
}

// Last returns the snapshot regardless of age.
func (c *Cache) Last() (SecurityPolicy, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.filled {
		return SecurityPolicy{}, false
	}
	return c.policy.Clone(), true
}

func (c *Cache) Set(p SecurityPolicy) {
	c.mu.Lock()
	c.policy = p.Clone()
	c.fetchedAt = c.now()
	c.filled = true
	c.mu.Unlock()
}

// Invalidate expires the snapshot but keeps it available to Last.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.fetchedAt = time.Time{}
	c.mu.Unlock()
}
