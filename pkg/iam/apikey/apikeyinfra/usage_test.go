package apikeyinfra_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/gridworks/gridcore/pkg/iam/apikey"
	"github.com/gridworks/gridcore/pkg/iam/apikey/apikeyinfra"
	"github.com/gridworks/gridcore/pkg/kernel"
)

const testKeyID = kernel.KeyID("key-1")

// --- MemoryUsageStore tests ---

func TestMemoryUsageStore_ConcurrentIncrementsNeverExceedLimit(t *testing.T) {
	store := apikeyinfra.NewMemoryUsageStore()
	ctx := context.Background()

	const (
		limit      = 500
		goroutines = 50
		perRoutine = 20
	)

	var accepted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perRoutine; j++ {
				if _, err := store.Increment(ctx, testKeyID, 1, limit, time.Hour); err == nil {
					accepted.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	// 1000 attempts against a limit of 500: exactly 500 land.
	if got := accepted.Load(); got != limit {
		t.Fatalf("accepted %d increments, want exactly %d", got, limit)
	}

	usage, err := store.Get(ctx, testKeyID, limit, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if usage.Count != limit {
		t.Fatalf("final count = %d, want %d", usage.Count, limit)
	}
}

func TestMemoryUsageStore_RejectedIncrementLeavesCounter(t *testing.T) {
	store := apikeyinfra.NewMemoryUsageStore()
	ctx := context.Background()

	if _, err := store.Increment(ctx, testKeyID, 8, 10, time.Hour); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Increment(ctx, testKeyID, 5, 10, time.Hour); err == nil {
		t.Fatal("expected over-limit rejection")
	}

	usage, _ := store.Get(ctx, testKeyID, 10, time.Hour)
	if usage.Count != 8 {
		t.Fatalf("count = %d after rejection, want 8", usage.Count)
	}

	// A smaller batch that fits still goes through.
	if _, err := store.Increment(ctx, testKeyID, 2, 10, time.Hour); err != nil {
		t.Fatalf("in-limit increment rejected: %v", err)
	}
}

func TestMemoryUsageStore_WindowReset(t *testing.T) {
	store := apikeyinfra.NewMemoryUsageStore()
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.SetNowFunc(func() time.Time { return now })

	if _, err := store.Increment(ctx, testKeyID, 10, 10, time.Hour); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Increment(ctx, testKeyID, 1, 10, time.Hour); err == nil {
		t.Fatal("expected exhaustion before window reset")
	}

	// Advance past the reset boundary; the counter starts over.
	now = now.Add(time.Hour + time.Second)
	usage, err := store.Increment(ctx, testKeyID, 1, 10, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if usage.Count != 1 {
		t.Fatalf("count after window reset = %d, want 1", usage.Count)
	}
	if !usage.WindowResetAt.After(now) {
		t.Fatalf("reset_at %v not advanced past %v", usage.WindowResetAt, now)
	}
}

// --- RedisUsageStore tests ---

func newRedisStore(t *testing.T) (*apikeyinfra.RedisUsageStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return apikeyinfra.NewRedisUsageStore(client), mr
}

func TestRedisUsageStore_IncrementAndLimit(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	usage, err := store.Increment(ctx, testKeyID, 3, 5, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if usage.Count != 3 || usage.Remaining() != 2 {
		t.Fatalf("usage = %+v", usage)
	}

	if _, err := store.Increment(ctx, testKeyID, 3, 5, time.Hour); err == nil {
		t.Fatal("expected over-limit rejection")
	}

	got, err := store.Get(ctx, testKeyID, 5, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if got.Count != 3 {
		t.Fatalf("rejection consumed quota: count = %d", got.Count)
	}
}

func TestRedisUsageStore_WindowReset(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	// One-second window so the reset boundary passes on the real clock.
	if _, err := store.Increment(ctx, testKeyID, 5, 5, time.Second); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Increment(ctx, testKeyID, 1, 5, time.Second); err == nil {
		t.Fatal("expected exhaustion")
	}

	time.Sleep(1500 * time.Millisecond)

	usage, err := store.Increment(ctx, testKeyID, 1, 5, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if usage.Count != 1 {
		t.Fatalf("count after window reset = %d, want 1", usage.Count)
	}
}

func TestRedisUsageStore_GetUntouchedKey(t *testing.T) {
	store, _ := newRedisStore(t)

	usage, err := store.Get(context.Background(), kernel.KeyID("never-used"), 100, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if usage.Count != 0 || usage.Limit != 100 {
		t.Fatalf("fresh key usage = %+v", usage)
	}
}

var _ apikey.UsageStore = (*apikeyinfra.MemoryUsageStore)(nil)
var _ apikey.UsageStore = (*apikeyinfra.RedisUsageStore)(nil)
