//go:build integration

package storage

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redis"
)

func setupRedisContainer(t *testing.T) string {
	t.Helper()

	ctx := context.Background()

	redisContainer, err := redis.Run(ctx,
		"redis:7-alpine",
		redis.WithLogLevel(redis.LogLevelVerbose),
	)
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}

	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(redisContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	endpoint, err := redisContainer.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get redis endpoint: %v", err)
	}

	return strings.TrimPrefix(endpoint, "redis://")
}

func TestRedisStore_NewRedisStore_Success(t *testing.T) {
	addr := setupRedisContainer(t)

	store, err := NewRedisStore(addr, "", 0, time.Minute)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer store.Close()

	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestRedisStore_NewRedisStore_InvalidArgs(t *testing.T) {
	if _, err := NewRedisStore("", "", 0, time.Minute); err == nil || err.Error() != "redis address cannot be empty" {
		t.Errorf("unexpected error for empty address: %v", err)
	}
	if _, err := NewRedisStore("localhost:6379", "", -1, time.Minute); err == nil || err.Error() != "redis database number must be >= 0" {
		t.Errorf("unexpected error for negative db: %v", err)
	}
	if _, err := NewRedisStore("invalid:99999", "", 0, time.Minute); err == nil {
		t.Error("expected error for invalid address, got nil")
	}
}

func TestRedisStore_PutGet_RoundTrip(t *testing.T) {
	addr := setupRedisContainer(t)

	store, err := NewRedisStore(addr, "", 0, time.Minute)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	want := Snapshot{
		Kind:        KindMultistep,
		Model:       "xgboost",
		GeneratedAt: time.Now().UTC().Truncate(time.Second),
		Start:       time.Date(2025, 11, 19, 14, 0, 0, 0, time.UTC),
		Horizons:    map[string]float64{"3h": 301.5, "6h": 298.25, "12h": 310, "24h": 320.75},
	}

	if err := store.Put(ctx, want); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	exists, err := store.client.Exists(ctx, "wattcast:snapshot:multistep").Result()
	if err != nil || exists != 1 {
		t.Fatalf("expected key to exist, got %d (%v)", exists, err)
	}

	got, found, err := store.GetLatest(ctx, KindMultistep)
	if err != nil || !found {
		t.Fatalf("GetLatest = found %v, err %v", found, err)
	}
	if !got.GeneratedAt.Equal(want.GeneratedAt) || !got.Start.Equal(want.Start) {
		t.Errorf("timestamps changed: got %v/%v, want %v/%v", got.GeneratedAt, got.Start, want.GeneratedAt, want.Start)
	}
	for k, v := range want.Horizons {
		if got.Horizons[k] != v {
			t.Errorf("Horizons[%s] = %v, want %v", k, got.Horizons[k], v)
		}
	}
}

func TestRedisStore_GetLatest_NotFound(t *testing.T) {
	addr := setupRedisContainer(t)

	store, err := NewRedisStore(addr, "", 0, time.Minute)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer store.Close()

	_, found, err := store.GetLatest(context.Background(), KindDayAhead)
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if found {
		t.Error("expected found=false")
	}

	if _, _, err := store.GetLatest(context.Background(), ""); err == nil {
		t.Error("expected error for empty kind")
	}
}

func TestRedisStore_Put_InvalidKind(t *testing.T) {
	addr := setupRedisContainer(t)

	store, err := NewRedisStore(addr, "", 0, time.Minute)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer store.Close()

	for _, kind := range []string{"", "a:b", "with space"} {
		if err := store.Put(context.Background(), Snapshot{Kind: kind}); err == nil {
			t.Errorf("expected error for kind %q", kind)
		}
	}
}

func TestRedisStore_TTL_Expiration(t *testing.T) {
	addr := setupRedisContainer(t)

	store, err := NewRedisStore(addr, "", 0, time.Second)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Put(ctx, Snapshot{Kind: KindDayAhead, Values: []float64{1}}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	time.Sleep(1500 * time.Millisecond)

	if _, found, _ := store.GetLatest(ctx, KindDayAhead); found {
		t.Error("snapshot should have expired")
	}
}

func TestRedisStore_Concurrency(t *testing.T) {
	addr := setupRedisContainer(t)

	store, err := NewRedisStore(addr, "", 0, time.Minute)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := store.Put(ctx, Snapshot{Kind: KindDayAhead, Values: []float64{float64(i)}}); err != nil {
				t.Errorf("Put failed: %v", err)
			}
			if _, _, err := store.GetLatest(ctx, KindDayAhead); err != nil {
				t.Errorf("GetLatest failed: %v", err)
			}
		}(i)
	}
	wg.Wait()
}

func TestRedisStore_Close_Idempotent(t *testing.T) {
	addr := setupRedisContainer(t)

	store, err := NewRedisStore(addr, "", 0, time.Minute)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Errorf("first Close failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	if err := store.Ping(context.Background()); err == nil {
		t.Error("Ping after Close should fail")
	}
}
