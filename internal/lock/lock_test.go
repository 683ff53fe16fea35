package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return client, mr
}

func TestAcquireAndRelease(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	ctx := context.Background()

	l, err := Acquire(ctx, client, "dispatch:tick", 10*time.Second)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if l == nil {
		t.Fatal("expected lock, got nil")
	}
	if l.Token() == "" {
		t.Error("expected non-empty lock token")
	}

	// Second acquire while held returns nil without error.
	other, err := Acquire(ctx, client, "dispatch:tick", 10*time.Second)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if other != nil {
		t.Fatal("lock acquired twice")
	}

	if err := l.Release(ctx); err != nil {
		t.Fatalf("Release: %v", err)
	}

	again, err := Acquire(ctx, client, "dispatch:tick", 10*time.Second)
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	if again == nil {
		t.Fatal("could not reacquire after release")
	}
}

func TestReleaseOnlyOwnLock(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	ctx := context.Background()

	l, err := Acquire(ctx, client, "dispatch:tick", time.Second)
	if err != nil || l == nil {
		t.Fatalf("Acquire: %v", err)
	}

	// Simulate expiry plus takeover by another instance.
	mr.FastForward(2 * time.Second)
	other, err := Acquire(ctx, client, "dispatch:tick", 10*time.Second)
	if err != nil || other == nil {
		t.Fatalf("takeover Acquire: %v", err)
	}

	// Releasing the stale lock must not free the new owner's lock.
	if err := l.Release(ctx); err != nil {
		t.Fatalf("stale Release: %v", err)
	}
	third, err := Acquire(ctx, client, "dispatch:tick", time.Second)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if third != nil {
		t.Fatal("stale release freed a lock owned by another instance")
	}
}
