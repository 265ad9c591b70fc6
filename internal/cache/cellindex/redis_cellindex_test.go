package cellindex

import (
	"context"
	"slices"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/mohammed-shakir/raster-clip/internal/cache/keys"
	"github.com/mohammed-shakir/raster-clip/internal/cache/redisstore"
)

func newMini(t *testing.T) (*redisstore.Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	cli, err := redisstore.New(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("redisstore.New: %v", err)
	}
	t.Cleanup(func() { _ = cli.Close() })

	return cli, mr
}

func TestRedisCellIndex_AddLookupRemove(t *testing.T) {
	cli, mr := newMini(t)
	idx := NewRedisIndex(cli)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	const res = 7
	ttl := 2 * time.Minute
	if err := idx.Add(ctx, res, []string{"c1", "c2", "c1"}, "result:a", ttl); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := idx.Add(ctx, res, []string{"c2", "c3"}, "result:b", ttl); err != nil {
		t.Fatalf("Add: %v", err)
	}

	members, err := mr.Members(keys.Cell(res, "c1"))
	if err != nil {
		t.Fatalf("Members: %v", err)
	}
	if !slices.Equal(members, []string{"result:a"}) {
		t.Fatalf("c1 members=%v", members)
	}
	if got := mr.TTL(keys.Cell(res, "c2")); got != ttl {
		t.Fatalf("cell ttl=%v want %v", got, ttl)
	}

	got, err := idx.Lookup(ctx, res, []string{"c1", "c3"})
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	slices.Sort(got)
	if !slices.Equal(got, []string{"result:a", "result:b"}) {
		t.Fatalf("Lookup=%v", got)
	}

	if got, _ := idx.Lookup(ctx, res+1, []string{"c1"}); len(got) != 0 {
		t.Fatalf("resolution must scope cells, got %v", got)
	}

	if err := idx.Remove(ctx, res, []string{"c1", "c2"}, []string{"result:a"}); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	got, err = idx.Lookup(ctx, res, []string{"c1", "c2"})
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !slices.Equal(got, []string{"result:b"}) {
		t.Fatalf("after remove=%v", got)
	}
}

func TestRedisCellIndex_EmptyCellsNoop(t *testing.T) {
	cli, _ := newMini(t)
	idx := NewRedisIndex(cli)
	ctx := context.Background()

	if err := idx.Add(ctx, 7, nil, "r", time.Minute); err != nil {
		t.Fatalf("Add: %v", err)
	}
	got, err := idx.Lookup(ctx, 7, nil)
	if err != nil || len(got) != 0 {
		t.Fatalf("Lookup: %v %v", got, err)
	}
}
