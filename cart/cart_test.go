package cart

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/shopauth"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeCatalog map[int64]shopauth.Product

func (c fakeCatalog) GetProduct(_ context.Context, id int64) (*shopauth.Product, error) {
	p, ok := c[id]
	if !ok {
		return nil, shopauth.ErrProductNotFound
	}
	return &p, nil
}

func newCartTest(t *testing.T) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	catalog := fakeCatalog{
		1: {ID: 1, Name: "Mug", Price: 1299, IsActive: true},
		2: {ID: 2, Name: "Poster", Price: 500, IsActive: true},
		3: {ID: 3, Name: "Retired", Price: 100, IsActive: false},
	}
	s, err := New(rdb, catalog, Config{KeyPrefix: "test:cart", TTL: 30 * time.Minute, NodeID: 1}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return s, mr
}

func TestAddMergesByProduct(t *testing.T) {
	s, _ := newCartTest(t)
	ctx := context.Background()

	first, err := s.Add(ctx, "sid", 1, 1)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	second, err := s.Add(ctx, "sid", 1, 2)
	if err != nil {
		t.Fatalf("add again: %v", err)
	}
	if first.ID != second.ID || second.Quantity != 3 {
		t.Fatalf("merge failed: first=%+v second=%+v", first, second)
	}
	if _, err := s.Add(ctx, "sid", 2, 1); err != nil {
		t.Fatalf("add poster: %v", err)
	}

	items, _ := s.Items(ctx, "sid")
	if len(items) != 2 {
		t.Fatalf("items = %+v", items)
	}
	if total, _ := s.Total(ctx, "sid"); total != 3*1299+500 {
		t.Fatalf("total = %d", total)
	}
	if n, _ := s.Count(ctx, "sid"); n != 4 {
		t.Fatalf("count = %d", n)
	}
}

func TestAddRejections(t *testing.T) {
	s, _ := newCartTest(t)
	ctx := context.Background()

	if _, err := s.Add(ctx, "sid", 1, 0); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
	if _, err := s.Add(ctx, "sid", 3, 1); !errors.Is(err, ErrProductUnavailable) {
		t.Fatalf("expected ErrProductUnavailable, got %v", err)
	}
	if _, err := s.Add(ctx, "sid", 99, 1); !errors.Is(err, shopauth.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestQuantityIsCapped(t *testing.T) {
	s, _ := newCartTest(t)
	ctx := context.Background()

	if _, err := s.Add(ctx, "sid", 1, MaxQuantity+1); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
	mug, err := s.Add(ctx, "sid", 1, MaxQuantity)
	if err != nil {
		t.Fatalf("add max: %v", err)
	}
	if _, err := s.Add(ctx, "sid", 1, 1); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("merge past cap: expected ErrInvalidQuantity, got %v", err)
	}
	if n, _ := s.Count(ctx, "sid"); n != MaxQuantity {
		t.Fatalf("count = %d, want %d", n, MaxQuantity)
	}
	if err := s.UpdateQuantity(ctx, "sid", mug.ID, int(^uint(0)>>1)); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("update past cap: expected ErrInvalidQuantity, got %v", err)
	}
	if err := s.UpdateQuantity(ctx, "sid", mug.ID, 2); err != nil {
		t.Fatalf("update: %v", err)
	}
	if n, _ := s.Count(ctx, "sid"); n != 2 {
		t.Fatalf("count = %d, want 2", n)
	}
}

func TestUpdateRemoveClear(t *testing.T) {
	s, _ := newCartTest(t)
	ctx := context.Background()
	mug, _ := s.Add(ctx, "sid", 1, 1)
	poster, _ := s.Add(ctx, "sid", 2, 1)

	if err := s.UpdateQuantity(ctx, "sid", mug.ID, 5); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := s.UpdateQuantity(ctx, "sid", mug.ID, 0); err != nil {
		t.Fatalf("update zero: %v", err)
	}
	if n, _ := s.Count(ctx, "sid"); n != 6 {
		t.Fatalf("count = %d, want 6 (zero update ignored)", n)
	}

	if err := s.Remove(ctx, "sid", poster.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := s.Remove(ctx, "sid", 12345); err != nil {
		t.Fatalf("remove unknown: %v", err)
	}
	if items, _ := s.Items(ctx, "sid"); len(items) != 1 || items[0].ID != mug.ID {
		t.Fatalf("items = %+v", items)
	}

	if err := s.Clear(ctx, "sid"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if n, _ := s.Count(ctx, "sid"); n != 0 {
		t.Fatalf("count after clear = %d", n)
	}
}

func TestCartsAreSessionScopedAndExpire(t *testing.T) {
	s, mr := newCartTest(t)
	ctx := context.Background()
	_, _ = s.Add(ctx, "a", 1, 1)

	if n, _ := s.Count(ctx, "b"); n != 0 {
		t.Fatalf("other session sees %d items", n)
	}
	mr.FastForward(31 * time.Minute)
	if n, _ := s.Count(ctx, "a"); n != 0 {
		t.Fatalf("cart survived idle window: %d", n)
	}
}

func TestUnreadableCartIsEmpty(t *testing.T) {
	s, mr := newCartTest(t)
	if err := mr.Set("test:cart:sid", "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	items, err := s.Items(context.Background(), "sid")
	if err != nil || len(items) != 0 {
		t.Fatalf("items = %+v, %v", items, err)
	}
}
