package redis

import (
	"context"
	"testing"
)

func TestRedisBlobRoundTrip(t *testing.T) {
	t.Parallel()

	rdb := newTestRedisClient(t)
	blob, err := NewRedisBlob(rdb, "test")
	if err != nil {
		t.Fatalf("NewRedisBlob() error = %v", err)
	}

	ctx := context.Background()

	_, found, err := blob.Get(ctx, "notifications")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if found {
		t.Fatal("missing key should report not found")
	}

	if err := blob.Set(ctx, "notifications", `[{"id":"a"}]`); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	value, found, err := blob.Get(ctx, "notifications")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !found {
		t.Fatal("key should be found after Set()")
	}
	if value != `[{"id":"a"}]` {
		t.Fatalf("value = %q", value)
	}

	// Set replaces the previous value wholesale.
	if err := blob.Set(ctx, "notifications", `[]`); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	value, _, _ = blob.Get(ctx, "notifications")
	if value != `[]` {
		t.Fatalf("value after overwrite = %q", value)
	}
}

func TestRedisBlobKeyNamespace(t *testing.T) {
	t.Parallel()

	rdb := newTestRedisClient(t)
	ctx := context.Background()

	first, err := NewRedisBlob(rdb, "agent-a")
	if err != nil {
		t.Fatalf("NewRedisBlob() error = %v", err)
	}
	second, err := NewRedisBlob(rdb, "agent-b")
	if err != nil {
		t.Fatalf("NewRedisBlob() error = %v", err)
	}

	if err := first.Set(ctx, "notifications", "a"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	_, found, err := second.Get(ctx, "notifications")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if found {
		t.Fatal("prefixes must isolate blob keys")
	}
}

func TestNewRedisBlobRequiresClient(t *testing.T) {
	t.Parallel()

	if _, err := NewRedisBlob(nil, ""); err == nil {
		t.Fatal("expected error for nil client")
	}
}
