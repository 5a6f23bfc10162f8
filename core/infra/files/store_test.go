package files

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	srv, err := miniredis.Run()
	if err != nil {
		t.Skipf("miniredis unavailable: %v", err)
	}
	t.Cleanup(srv.Close)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store, err := NewRedisStore(client)
	if err != nil {
		t.Fatalf("create redis store: %v", err)
	}
	return store, srv
}

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	meta, err := store.Put(ctx, []byte("a,b\n1,2\n"), Metadata{OwnerID: "u1", Name: "data.csv", ContentType: "text/csv"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if meta.ID == "" || meta.SizeBytes != 8 || meta.CreatedAt.IsZero() {
		t.Fatalf("unexpected metadata %+v", meta)
	}

	content, got, err := store.Get(ctx, meta.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(content) != "a,b\n1,2\n" || got.OwnerID != "u1" || got.ContentType != "text/csv" {
		t.Fatalf("unexpected file %q %+v", content, got)
	}

	replaced, err := store.Put(ctx, []byte("x"), Metadata{ID: meta.ID, OwnerID: "intruder", Name: "data.csv"})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if replaced.OwnerID != "u1" || !replaced.CreatedAt.Equal(meta.CreatedAt) || replaced.SizeBytes != 1 {
		t.Fatalf("replacing must keep ownership, got %+v", replaced)
	}

	if owner, err := Owner(ctx, store, meta.ID); err != nil || owner != "u1" {
		t.Fatalf("owner: %q %v", owner, err)
	}
	if owner, err := Owner(ctx, store, "missing"); err != nil || owner != "" {
		t.Fatalf("missing owner: %q %v", owner, err)
	}
	if _, _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if _, err := store.Put(ctx, []byte("y"), Metadata{OwnerID: "u2", Name: "other.csv"}); err != nil {
		t.Fatalf("put other: %v", err)
	}
	list, err := store.List(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ID != meta.ID {
		t.Fatalf("expected only u1's file, got %+v", list)
	}

	if err := store.Delete(ctx, meta.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Stat(ctx, meta.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected deleted file to be gone, got %v", err)
	}
	if list, err := store.List(ctx, "u1"); err != nil || len(list) != 0 {
		t.Fatalf("expected empty list after delete, got %+v %v", list, err)
	}
	if err := store.Delete(ctx, meta.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestRedisStore(t *testing.T) {
	store, _ := newRedisStore(t)
	exerciseStore(t, store)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestRedisStoreExpiry(t *testing.T) {
	t.Setenv(envFileTTL, "1m")
	store, srv := newRedisStore(t)
	ctx := context.Background()
	meta, err := store.Put(ctx, []byte("z"), Metadata{OwnerID: "u1", Name: "z.csv"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	srv.FastForward(2 * time.Minute)
	if _, err := store.Stat(ctx, meta.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired file, got %v", err)
	}
	list, err := store.List(ctx, "u1")
	if err != nil || len(list) != 0 {
		t.Fatalf("expected empty list after expiry, got %+v %v", list, err)
	}
}

func TestRedisStoreDeleteDropsOwnerIndex(t *testing.T) {
	store, srv := newRedisStore(t)
	ctx := context.Background()
	meta, err := store.Put(ctx, []byte("z"), Metadata{OwnerID: "u1", Name: "z.csv"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Delete(ctx, meta.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	for _, key := range []string{contentKey(meta.ID), metaKey(meta.ID)} {
		if srv.Exists(key) {
			t.Fatalf("expected %s to be removed", key)
		}
	}
	if members, _ := srv.Members(ownerKey("u1")); len(members) != 0 {
		t.Fatalf("expected owner index to be empty, got %v", members)
	}
}

func TestParseDurationEnv(t *testing.T) {
	if got := parseDurationEnv("NOT_SET", 5*time.Second); got != 5*time.Second {
		t.Fatalf("unexpected fallback duration")
	}
	t.Setenv(envFileTTL, "bad")
	if got := parseDurationEnv(envFileTTL, 5*time.Second); got != 5*time.Second {
		t.Fatalf("expected fallback for invalid duration")
	}
}

func TestNewRedisStoreRequiresClient(t *testing.T) {
	if _, err := NewRedisStore(nil); err == nil {
		t.Fatalf("expected error")
	}
}
