package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MrEthical07/shopauth"
)

var seedCatalog bool

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create the built-in roles, the bootstrap administrator and optionally a sample catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("config: %w", err)
		}
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
			defer cancel()
			if err := a.close(closeCtx); err != nil {
				log.Warn("shutdown", zap.Error(err))
			}
		}()

		if err := a.engine.EnsureRoles(ctx); err != nil {
			return err
		}
		if seedCatalog {
			w, ok := a.store.(catalogWriter)
			if !ok {
				return fmt.Errorf("store %T cannot write the catalog", a.store)
			}
			n, err := putSampleCatalog(ctx, w)
			if err != nil {
				return fmt.Errorf("seed catalog: %w", err)
			}
			log.Info("catalog seeded", zap.Int("products", n))
		}
		if cfg.Admin.Email == "" {
			log.Info("roles seeded; ADMIN_EMAIL not set, skipping admin")
			return nil
		}
		u, created, err := a.engine.BootstrapAdmin(ctx, cfg.Admin.Email, cfg.Admin.Password)
		if err != nil {
			return err
		}
		log.Info("seed complete", zap.String("admin_id", u.ID), zap.Bool("created", created))
		return nil
	},
}

// catalogWriter is implemented by both store backends.
type catalogWriter interface {
	PutCategory(ctx context.Context, c shopauth.Category) error
	PutProduct(ctx context.Context, p shopauth.Product) error
}

func int64Ptr(v int64) *int64 { return &v }

var (
	sampleCategories = []shopauth.Category{
		{ID: 1, Name: "Kitchen"},
		{ID: 2, Name: "Mugs", ParentID: int64Ptr(1)},
		{ID: 3, Name: "Wall Art"},
	}
	sampleProducts = []shopauth.Product{
		{ID: 1, Name: "Ceramic Mug", Price: 1299, StockQuantity: 40, IsActive: true, CategoryID: int64Ptr(2)},
		{ID: 2, Name: "Travel Mug", Price: 2450, StockQuantity: 15, IsActive: true, CategoryID: int64Ptr(2)},
		{ID: 3, Name: "Tea Towel", Price: 650, StockQuantity: 100, IsActive: true, CategoryID: int64Ptr(1)},
		{ID: 4, Name: "City Poster", Price: 1800, StockQuantity: 25, IsActive: true, CategoryID: int64Ptr(3)},
		{ID: 5, Name: "Retired Print", Price: 900, IsActive: false, CategoryID: int64Ptr(3)},
	}
)

// putSampleCatalog upserts the sample categories, parents first, then the
// products. Re-running it is harmless.
func putSampleCatalog(ctx context.Context, w catalogWriter) (int, error) {
	for _, c := range sampleCategories {
		if err := w.PutCategory(ctx, c); err != nil {
			return 0, fmt.Errorf("category %q: %w", c.Name, err)
		}
	}
	for _, p := range sampleProducts {
		if err := w.PutProduct(ctx, p); err != nil {
			return 0, fmt.Errorf("product %q: %w", p.Name, err)
		}
	}
	return len(sampleProducts), nil
}

func init() {
	seedCmd.Flags().BoolVar(&seedCatalog, "catalog", false, "also upsert a sample category tree and products")
	rootCmd.AddCommand(seedCmd)
}
