package main

import (
	"context"
	"errors"
	"testing"

	"github.com/MrEthical07/shopauth"
	"github.com/MrEthical07/shopauth/store/memory"
)

func TestPutSampleCatalog(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		n, err := putSampleCatalog(ctx, s)
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if n != len(sampleProducts) {
			t.Fatalf("run %d: seeded %d products", i, n)
		}
	}

	p, err := s.GetProduct(ctx, 1)
	if err != nil || p.CategoryID == nil || *p.CategoryID != 2 {
		t.Fatalf("product = %+v, %v", p, err)
	}
	if err := s.DeleteCategory(ctx, 1); !errors.Is(err, shopauth.ErrCategoryInUse) {
		t.Fatalf("expected ErrCategoryInUse, got %v", err)
	}
}
