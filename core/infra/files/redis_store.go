package files

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	envFileTTL     = "FILE_TTL"
	defaultFileTTL = 0
)

// RedisStore implements file storage using Redis. Content and metadata live
// under separate keys; each owner has a set of file ids.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisStore constructs a file store on an existing client. FILE_TTL sets an
// expiry for stored files; unset keeps them until deleted.
func NewRedisStore(client redis.UniversalClient) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("file store unavailable")
	}
	return &RedisStore{
		client: client,
		ttl:    parseDurationEnv(envFileTTL, defaultFileTTL),
		now:    time.Now,
	}, nil
}

func (s *RedisStore) Put(ctx context.Context, content []byte, meta Metadata) (Metadata, error) {
	if s == nil || s.client == nil {
		return Metadata{}, fmt.Errorf("file store unavailable")
	}
	now := s.now().UTC()
	if meta.ID == "" {
		meta.ID = uuid.NewString()
		meta.CreatedAt = now
	} else if existing, err := s.Stat(ctx, meta.ID); err == nil {
		meta.OwnerID = existing.OwnerID
		meta.CreatedAt = existing.CreatedAt
	} else if errors.Is(err, ErrNotFound) {
		meta.CreatedAt = now
	} else {
		return Metadata{}, err
	}
	meta.UpdatedAt = now
	meta.SizeBytes = int64(len(content))
	payload, err := json.Marshal(meta)
	if err != nil {
		return Metadata{}, fmt.Errorf("marshal metadata: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, contentKey(meta.ID), content, s.ttl)
	pipe.Set(ctx, metaKey(meta.ID), payload, s.ttl)
	if meta.OwnerID != "" {
		pipe.SAdd(ctx, ownerKey(meta.OwnerID), meta.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return Metadata{}, err
	}
	return meta, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) ([]byte, Metadata, error) {
	if s == nil || s.client == nil {
		return nil, Metadata{}, fmt.Errorf("file store unavailable")
	}
	pipe := s.client.Pipeline()
	contentCmd := pipe.Get(ctx, contentKey(id))
	metaCmd := pipe.Get(ctx, metaKey(id))
	_, _ = pipe.Exec(ctx)

	content, err := contentCmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, Metadata{}, ErrNotFound
	}
	if err != nil {
		return nil, Metadata{}, err
	}
	meta, err := decodeMeta(metaCmd)
	if err != nil {
		return nil, Metadata{}, err
	}
	return content, meta, nil
}

func (s *RedisStore) Stat(ctx context.Context, id string) (Metadata, error) {
	if s == nil || s.client == nil {
		return Metadata{}, fmt.Errorf("file store unavailable")
	}
	return decodeMeta(s.client.Get(ctx, metaKey(id)))
}

func (s *RedisStore) List(ctx context.Context, ownerID string) ([]Metadata, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("file store unavailable")
	}
	ids, err := s.client.SMembers(ctx, ownerKey(ownerID)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Metadata, 0, len(ids))
	for _, id := range ids {
		meta, err := s.Stat(ctx, id)
		if errors.Is(err, ErrNotFound) {
			// expired; drop the dangling index entry
			_ = s.client.SRem(ctx, ownerKey(ownerID), id).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, meta)
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("file store unavailable")
	}
	meta, err := s.Stat(ctx, id)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, contentKey(id), metaKey(id))
	if meta.OwnerID != "" {
		pipe.SRem(ctx, ownerKey(meta.OwnerID), id)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func decodeMeta(cmd *redis.StringCmd) (Metadata, error) {
	data, err := cmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return Metadata{}, ErrNotFound
	}
	if err != nil {
		return Metadata{}, err
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return Metadata{}, fmt.Errorf("decode file metadata: %w", err)
	}
	return meta, nil
}

func sortNewestFirst(list []Metadata) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}

func parseDurationEnv(key string, fallback time.Duration) time.Duration {
	if raw := strings.TrimSpace(os.Getenv(key)); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func contentKey(id string) string { return "file:" + id }

func metaKey(id string) string { return "file-meta:" + id }

func ownerKey(ownerID string) string { return "files-owner:" + ownerID }
