package cron

import (
	"context"
	"strings"
	"testing"
	"time"
)

type memoryLockStore struct {
	data map[string]string
}

func (m *memoryLockStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = value.(string)
	return true, nil
}

func (m *memoryLockStore) CompareAndDelete(_ context.Context, key, expected string) (bool, error) {
	if v, ok := m.data[key]; ok && v == expected {
		delete(m.data, key)
		return true, nil
	}
	return false, nil
}

func TestRedisLockExcludesSecondOwner(t *testing.T) {
	t.Setenv("STITCHPAY_INSTANCE_ID", "cron-a")
	ctx := context.Background()
	store := &memoryLockStore{data: map[string]string{}}
	first, _ := NewRedisLock(store, "sp:cron-worker:lock:test", time.Minute)
	second, _ := NewRedisLock(store, "sp:cron-worker:lock:test", time.Minute)

	if ok, err := first.Acquire(ctx); err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if !strings.HasPrefix(store.data["sp:cron-worker:lock:test"], "cron-a:") {
		t.Fatalf("lease should carry the instance id, got %q", store.data["sp:cron-worker:lock:test"])
	}
	if ok, _ := second.Acquire(ctx); ok {
		t.Fatal("second instance must not acquire a held lock")
	}
	if err := second.Release(ctx); err != nil {
		t.Fatalf("release by non-owner: %v", err)
	}
	if _, held := store.data["sp:cron-worker:lock:test"]; !held {
		t.Fatal("non-owner release must not free the lock")
	}
	if err := first.Release(ctx); err != nil {
		t.Fatalf("owner release: %v", err)
	}
	if ok, _ := second.Acquire(ctx); !ok {
		t.Fatal("expected lock available after release")
	}
}

func TestRedisLockLeavesTakenOverLease(t *testing.T) {
	ctx := context.Background()
	store := &memoryLockStore{data: map[string]string{}}
	lock, _ := NewRedisLock(store, "k", time.Minute)
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatal("expected acquire")
	}
	// simulate expiry followed by another instance taking the key
	store.data["k"] = "other:token"
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if store.data["k"] != "other:token" {
		t.Fatal("release must not delete another instance's lease")
	}
}

func TestNewRedisLockValidates(t *testing.T) {
	if _, err := NewRedisLock(nil, "k", time.Minute); err == nil {
		t.Fatal("expected error for nil store")
	}
	if _, err := NewRedisLock(&memoryLockStore{}, "", time.Minute); err == nil {
		t.Fatal("expected error for empty key")
	}
	lock, err := NewRedisLock(&memoryLockStore{}, "k", 0)
	if err != nil || lock.ttl != defaultLockTTL {
		t.Fatalf("expected default ttl, got %v err=%v", lock.ttl, err)
	}
}
