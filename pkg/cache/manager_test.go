package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/htrc/data-api/pkg/volume"
)

// setupTestRedis connects to a local Redis on DB 15 and skips the test
// when none is running.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func TestNewManager(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	manager := NewManager(client, time.Minute)
	if manager.redis != client {
		t.Error("Manager redis client not set correctly")
	}
	if manager.TTL() != time.Minute {
		t.Errorf("TTL() = %v, want 1m", manager.TTL())
	}
}

func TestNewManager_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewManager should panic with nil redis client")
		}
	}()
	NewManager(nil, time.Minute)
}

func TestManager_PutAndLookup(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client, time.Minute)
	ctx := context.Background()

	info := volume.Info{VolumeID: "test.vol1", PageCount: 42, Copyright: volume.InCopyright}
	if err := manager.Put(ctx, info); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := manager.Lookup(ctx, "test.vol1")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if got != info {
		t.Errorf("Lookup() = %+v, want %+v", got, info)
	}

	ttl := client.TTL(ctx, CacheKey{VolumeID: "test.vol1"}.String()).Val()
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("Redis TTL = %v, want within (0, 1m]", ttl)
	}
}

func TestManager_Get_CacheMiss(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client, time.Minute)

	_, err := manager.Get(context.Background(), CacheKey{VolumeID: "test.none"})
	if err != ErrCacheMiss {
		t.Errorf("Expected ErrCacheMiss, got %v", err)
	}
}

func TestManager_Get_ExpiredEntry(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client, time.Minute)
	ctx := context.Background()

	key := CacheKey{VolumeID: "test.vol1"}
	raw := `{"info":{"volume_id":"test.vol1","page_count":1,"copyright":"public-domain"},"expires":"2000-01-01T00:00:00Z","cached_at":"2000-01-01T00:00:00Z"}`
	if err := client.Set(ctx, key.String(), raw, time.Minute).Err(); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}

	if _, err := manager.Get(ctx, key); err != ErrCacheMiss {
		t.Errorf("Expected ErrCacheMiss for expired entry, got %v", err)
	}
	if n := client.Exists(ctx, key.String()).Val(); n != 0 {
		t.Error("Expired entry should have been deleted")
	}
}

func TestManager_Delete(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client, time.Minute)
	ctx := context.Background()

	if err := manager.Put(ctx, volume.Info{VolumeID: "test.vol1", PageCount: 1}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := manager.Delete(ctx, CacheKey{VolumeID: "test.vol1"}); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := manager.Lookup(ctx, "test.vol1"); err != ErrCacheMiss {
		t.Errorf("Expected ErrCacheMiss after delete, got %v", err)
	}
}

func TestManager_Namespace(t *testing.T) {
	client := setupTestRedis(t)
	base := NewManager(client, time.Minute)
	staging := base.WithNamespace("staging")
	ctx := context.Background()

	if err := staging.Put(ctx, volume.Info{VolumeID: "test.vol1", PageCount: 3}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := base.Lookup(ctx, "test.vol1"); err != ErrCacheMiss {
		t.Errorf("Base manager should not see namespaced entry, got %v", err)
	}
	if _, err := staging.Lookup(ctx, "test.vol1"); err != nil {
		t.Errorf("Lookup in namespace failed: %v", err)
	}
}

func TestManager_Set_NilEntry(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	manager := NewManager(client, time.Minute)
	if err := manager.Set(context.Background(), nil); err == nil {
		t.Error("Expected error for nil entry")
	}
}

func TestManager_Set_ExpiredEntrySkipped(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	manager := NewManager(client, time.Minute)
	entry := &CacheEntry{Expires: time.Now().Add(-time.Second)}
	if err := manager.Set(context.Background(), entry); err != nil {
		t.Errorf("Set of expired entry should be a no-op, got %v", err)
	}
}
