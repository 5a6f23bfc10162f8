package files

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps files in process; used when Redis is not configured.
type MemoryStore struct {
	mu      sync.RWMutex
	content map[string][]byte
	meta    map[string]Metadata
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		content: make(map[string][]byte),
		meta:    make(map[string]Metadata),
		now:     time.Now,
	}
}

func (m *MemoryStore) Put(_ context.Context, content []byte, meta Metadata) (Metadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now().UTC()
	if meta.ID == "" {
		meta.ID = uuid.NewString()
	}
	if existing, ok := m.meta[meta.ID]; ok {
		meta.OwnerID = existing.OwnerID
		meta.CreatedAt = existing.CreatedAt
	} else {
		meta.CreatedAt = now
	}
	meta.UpdatedAt = now
	meta.SizeBytes = int64(len(content))
	m.content[meta.ID] = append([]byte(nil), content...)
	m.meta[meta.ID] = meta
	return meta, nil
}

func (m *MemoryStore) Get(_ context.Context, id string) ([]byte, Metadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	meta, ok := m.meta[id]
	if !ok {
		return nil, Metadata{}, ErrNotFound
	}
	return append([]byte(nil), m.content[id]...), meta, nil
}

func (m *MemoryStore) Stat(_ context.Context, id string) (Metadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	meta, ok := m.meta[id]
	if !ok {
		return Metadata{}, ErrNotFound
	}
	return meta, nil
}

func (m *MemoryStore) List(_ context.Context, ownerID string) ([]Metadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Metadata{}
	for _, meta := range m.meta {
		if meta.OwnerID == ownerID {
			out = append(out, meta)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.meta[id]; !ok {
		return ErrNotFound
	}
	delete(m.meta, id)
	delete(m.content, id)
	return nil
}
