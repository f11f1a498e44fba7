package settings

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestFileStore_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	st, err := NewFileStore("")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	if _, ok, _ := st.Get(ctx, "k"); ok {
		t.Fatalf("expected missing key")
	}
	if err := st.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := st.Get(ctx, "k")
	if err != nil || !ok || v != "v" {
		t.Fatalf("unexpected get: %q %v %v", v, ok, err)
	}
	if err := st.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := st.Get(ctx, "k"); ok {
		t.Fatalf("expected key deleted")
	}
}

func TestFileStore_TTLExpires(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	st, _ := NewFileStoreWithNow("", func() time.Time { return clock })

	if err := st.SetWithTTL(ctx, "cache", "x", time.Hour); err != nil {
		t.Fatalf("SetWithTTL: %v", err)
	}
	if _, ok, _ := st.Get(ctx, "cache"); !ok {
		t.Fatalf("expected fresh entry")
	}
	clock = clock.Add(time.Hour)
	if _, ok, _ := st.Get(ctx, "cache"); ok {
		t.Fatalf("expected entry to expire at ttl")
	}
	if err := st.SetWithTTL(ctx, "cache", "x", 0); err == nil {
		t.Fatalf("expected error for zero ttl")
	}
}

func TestFileStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "settings.json")

	st, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := st.Set(ctx, "wm_monitor_api_key", "wm_abc"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600, got %v", info.Mode().Perm())
	}

	reopened, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	v, ok, _ := reopened.Get(ctx, "wm_monitor_api_key")
	if !ok || v != "wm_abc" {
		t.Fatalf("expected persisted value, got %q %v", v, ok)
	}
}

func TestFileStore_RejectsUnknownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte(`{"version":2,"entries":{}}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := NewFileStore(path); err == nil {
		t.Fatalf("expected version error")
	}
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("WM_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("WM_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()
	st := NewRedisStore(rdb)
	if err := st.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	key := "test-" + time.Now().Format("150405.000000")
	defer st.Delete(ctx, key)

	if err := st.SetWithTTL(ctx, key, "v", time.Minute); err != nil {
		t.Fatalf("SetWithTTL: %v", err)
	}
	v, ok, err := st.Get(ctx, key)
	if err != nil || !ok || v != "v" {
		t.Fatalf("unexpected get: %q %v %v", v, ok, err)
	}
	if err := st.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := st.Get(ctx, key); ok {
		t.Fatalf("expected key deleted")
	}
}
