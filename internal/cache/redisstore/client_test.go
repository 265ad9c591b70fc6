package redisstore

import (
	"context"
	"slices"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

// creates new client connected to miniredis for testing
func newMini(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	rc, err := New(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

func TestSetGetDel_HappyPath(t *testing.T) {
	rc, _ := newMini(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := rc.Set(ctx, "k1", []byte("v1"), 5*time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := rc.Get(ctx, "k1")
	if err != nil || !ok || string(got) != "v1" {
		t.Fatalf("Get: %q ok=%v err=%v", got, ok, err)
	}
	if _, ok, err := rc.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("missing key: ok=%v err=%v", ok, err)
	}

	n, err := rc.Del(ctx, "k1", "missing")
	if err != nil || n != 1 {
		t.Fatalf("Del: n=%d err=%v", n, err)
	}
	if n, err := rc.Del(ctx); err != nil || n != 0 {
		t.Fatalf("empty Del: n=%d err=%v", n, err)
	}
	if err := rc.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestTTLExpiry(t *testing.T) {
	rc, mr := newMini(t)
	ctx := context.Background()

	if err := rc.Set(ctx, "ttl-key", []byte("v"), 2*time.Second); err != nil {
		t.Fatalf("Set: %v", err)
	}
	mr.FastForward(3 * time.Second)
	if _, ok, err := rc.Get(ctx, "ttl-key"); err != nil || ok {
		t.Fatalf("expected ttl-key gone: ok=%v err=%v", ok, err)
	}
}

func TestSets_AddUnionRemove(t *testing.T) {
	rc, mr := newMini(t)
	ctx := context.Background()

	if err := rc.AddToSets(ctx, "r1", time.Minute, "s:a", "s:b"); err != nil {
		t.Fatalf("AddToSets: %v", err)
	}
	if err := rc.AddToSets(ctx, "r2", time.Minute, "s:b"); err != nil {
		t.Fatalf("AddToSets: %v", err)
	}
	if ttl := mr.TTL("s:a"); ttl != time.Minute {
		t.Fatalf("set ttl=%v want 1m", ttl)
	}

	got, err := rc.Union(ctx, "s:a", "s:b", "s:none")
	if err != nil {
		t.Fatalf("Union: %v", err)
	}
	slices.Sort(got)
	if !slices.Equal(got, []string{"r1", "r2"}) {
		t.Fatalf("Union=%v", got)
	}

	if err := rc.RemoveFromSets(ctx, []string{"r1"}, "s:a", "s:b"); err != nil {
		t.Fatalf("RemoveFromSets: %v", err)
	}
	members, err := rc.Members(ctx, "s:b")
	if err != nil {
		t.Fatalf("Members: %v", err)
	}
	if !slices.Equal(members, []string{"r2"}) {
		t.Fatalf("Members=%v", members)
	}
	if mr.Exists("s:a") {
		t.Fatalf("empty set must be gone")
	}
}

func TestContextCanceled_IsRespected(t *testing.T) {
	rc, _ := newMini(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := rc.Set(ctx, "k", []byte("v"), time.Second); err == nil {
		t.Fatalf("expected error on Set with canceled context")
	}
	if _, _, err := rc.Get(ctx, "k"); err == nil {
		t.Fatalf("expected error on Get with canceled context")
	}
	if _, err := rc.Del(ctx, "k"); err == nil {
		t.Fatalf("expected error on Del with canceled context")
	}
	if err := rc.AddToSets(ctx, "m", time.Second, "s"); err == nil {
		t.Fatalf("expected error on AddToSets with canceled context")
	}
}
