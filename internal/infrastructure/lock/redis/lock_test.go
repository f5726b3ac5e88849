package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, client
}

func TestAcquireIsExclusiveAcrossProcesses(t *testing.T) {
	_, client := setupTestRedis(t)
	api := NewLock(client)
	worker := NewLock(client)
	ctx := context.Background()

	_, ok, err := worker.Acquire(ctx, "doc-1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first Acquire() = %v, %v", ok, err)
	}
	_, ok, err = api.Acquire(ctx, "doc-1", time.Minute)
	if err != nil || ok {
		t.Fatalf("second Acquire() should fail, got %v, %v", ok, err)
	}

	locked, err := api.IsLocked(ctx, "doc-1")
	if err != nil || !locked {
		t.Fatalf("IsLocked() = %v, %v", locked, err)
	}
}

func TestReleaseOnlyByHolder(t *testing.T) {
	_, client := setupTestRedis(t)
	holder := NewLock(client)
	other := NewLock(client)
	ctx := context.Background()

	token, ok, _ := holder.Acquire(ctx, "doc-1", time.Minute)
	if !ok {
		t.Fatalf("expected acquire")
	}
	if err := other.Release(ctx, "doc-1", "forged-token"); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if locked, _ := other.IsLocked(ctx, "doc-1"); !locked {
		t.Fatalf("lock released by non-holder")
	}

	if err := holder.Release(ctx, "doc-1", token); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if locked, _ := other.IsLocked(ctx, "doc-1"); locked {
		t.Fatalf("expected lock to be released")
	}
}

func TestLeaseExpires(t *testing.T) {
	mr, client := setupTestRedis(t)
	lock := NewLock(client)
	ctx := context.Background()

	stale, ok, _ := lock.Acquire(ctx, "doc-1", time.Second)
	if !ok {
		t.Fatalf("expected acquire")
	}
	mr.FastForward(2 * time.Second)

	if _, ok, err := NewLock(client).Acquire(ctx, "doc-1", time.Second); err != nil || !ok {
		t.Fatalf("expected expired lease to be reacquirable, got %v, %v", ok, err)
	}
	// the stale holder must not delete the new lease
	if err := lock.Release(ctx, "doc-1", stale); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if locked, _ := lock.IsLocked(ctx, "doc-1"); !locked {
		t.Fatalf("stale holder released a foreign lease")
	}
}

func TestSharedLockReleasesOnlyOwnAcquisition(t *testing.T) {
	mr, client := setupTestRedis(t)
	lock := NewLock(client)
	ctx := context.Background()

	first, ok, _ := lock.Acquire(ctx, "doc-1", time.Second)
	if !ok {
		t.Fatalf("expected acquire")
	}
	mr.FastForward(2 * time.Second)

	second, ok, _ := lock.Acquire(ctx, "doc-1", time.Minute)
	if !ok || second == first {
		t.Fatalf("expected a fresh token after expiry, got %q ok=%v", second, ok)
	}
	if err := lock.Release(ctx, "doc-1", first); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if got, _ := mr.Get(keyPrefix + "doc-1"); got != second {
		t.Fatalf("expected the second lease to survive, got %q", got)
	}

	if err := lock.Release(ctx, "doc-1", second); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if mr.Exists(keyPrefix + "doc-1") {
		t.Fatalf("expected lease to be released")
	}
}
