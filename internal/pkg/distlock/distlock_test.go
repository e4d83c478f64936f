package distlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisLock_MutualExclusion(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()

	first := New(client, nil, "automation:run-cycle", time.Minute)
	ok, err := first.TryAcquire(ctx)
	if err != nil {
		t.Fatalf("TryAcquire() error: %v", err)
	}
	if !ok {
		t.Fatal("first TryAcquire() should succeed")
	}

	// A second holder must be refused while the first is live.
	second := New(client, nil, "automation:run-cycle", time.Minute)
	ok, err = second.TryAcquire(ctx)
	if err != nil {
		t.Fatalf("TryAcquire() error: %v", err)
	}
	if ok {
		t.Error("second TryAcquire() should fail while lock is held")
	}

	if err := first.Release(ctx); err != nil {
		t.Fatalf("Release() error: %v", err)
	}

	ok, err = second.TryAcquire(ctx)
	if err != nil {
		t.Fatalf("TryAcquire() after release error: %v", err)
	}
	if !ok {
		t.Error("TryAcquire() should succeed after release")
	}
}

func TestRedisLock_ReleaseDoesNotStealExpiredLock(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()

	stale := New(client, nil, "cycle", 50*time.Millisecond)
	if ok, _ := stale.TryAcquire(ctx); !ok {
		t.Fatal("acquire failed")
	}

	// Let the TTL lapse and have a new holder take over.
	mr.FastForward(time.Second)

	fresh := New(client, nil, "cycle", time.Minute)
	if ok, _ := fresh.TryAcquire(ctx); !ok {
		t.Fatal("fresh acquire should succeed after expiry")
	}

	// The stale holder releasing must not delete the fresh holder's lock.
	if err := stale.Release(ctx); err != nil {
		t.Fatalf("stale Release() error: %v", err)
	}

	another := New(client, nil, "cycle", time.Minute)
	if ok, _ := another.TryAcquire(ctx); ok {
		t.Error("lock should still be held by the fresh holder")
	}
}

func TestDifferentKeysDoNotContend(t *testing.T) {
	mr, _ := miniredis.Run()
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()

	a := New(client, nil, "cycle-a", time.Minute)
	b := New(client, nil, "cycle-b", time.Minute)

	if ok, _ := a.TryAcquire(ctx); !ok {
		t.Fatal("acquire a failed")
	}
	if ok, _ := b.TryAcquire(ctx); !ok {
		t.Error("acquire b should not contend with a")
	}
}
