package locks

import (
	"context"
	"sync"
	"time"
)

type heldLock struct {
	owner     string
	expiresAt time.Time
}

// MemoryStore is the in-process lock store used when Redis is absent.
type MemoryStore struct {
	mu    sync.Mutex
	locks map[string]heldLock
	now   func() time.Time
}

func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{locks: make(map[string]heldLock), now: now}
}

func (s *MemoryStore) Acquire(_ context.Context, resource, owner string, ttl time.Duration) (bool, error) {
	resource, owner, err := normalize(resource, owner)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if cur, ok := s.locks[resource]; ok && cur.owner != owner && now.Before(cur.expiresAt) {
		return false, nil
	}
	s.locks[resource] = heldLock{owner: owner, expiresAt: now.Add(normalizeTTL(ttl))}
	return true, nil
}

func (s *MemoryStore) Release(_ context.Context, resource, owner string) error {
	resource, owner, err := normalize(resource, owner)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.locks[resource]; ok && cur.owner == owner {
		delete(s.locks, resource)
	}
	return nil
}

func (s *MemoryStore) Renew(_ context.Context, resource, owner string, ttl time.Duration) (bool, error) {
	resource, owner, err := normalize(resource, owner)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	cur, ok := s.locks[resource]
	if !ok || cur.owner != owner || !now.Before(cur.expiresAt) {
		return false, nil
	}
	cur.expiresAt = now.Add(normalizeTTL(ttl))
	s.locks[resource] = cur
	return true, nil
}
