package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/MrEthical07/shopauth"
	"github.com/MrEthical07/shopauth/internal/db"
	"github.com/google/uuid"
)

// newTestStore needs a disposable database in SHOPAUTH_TEST_DATABASE_URL.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("SHOPAUTH_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("SHOPAUTH_TEST_DATABASE_URL not set")
	}
	if err := db.MigrateUp(dsn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	conn, err := db.OpenURL(context.Background(), dsn, shopauth.DatabaseConfig{MaxOpenConns: 4})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	if _, err := conn.Exec("UPDATE categories SET parent_id = NULL"); err != nil {
		t.Fatalf("detach categories: %v", err)
	}
	for _, table := range []string{"user_logins", "user_claims", "user_roles", "users", "roles", "products", "categories"} {
		if _, err := conn.Exec("DELETE FROM " + table); err != nil {
			t.Fatalf("truncate %s: %v", table, err)
		}
	}
	s := New(conn)
	for _, name := range []string{shopauth.RoleAdmin, shopauth.RoleUser} {
		if err := s.CreateRole(context.Background(), &shopauth.Role{ID: uuid.NewString(), Name: name, CreatedAt: time.Now()}); err != nil {
			t.Fatalf("role %s: %v", name, err)
		}
	}
	return s
}

func newUser(email string) *shopauth.User {
	return &shopauth.User{
		ID:             uuid.NewString(),
		Email:          email,
		UserName:       email,
		FirstName:      "Alice",
		LastName:       "Smith",
		LockoutEnabled: true,
		SecurityStamp:  "STAMP",
		Roles:          []string{shopauth.RoleUser},
		Claims:         []shopauth.Claim{{Type: "tier", Value: "gold"}},
		CreatedAt:      time.Now().UTC(),
	}
}

func TestPostgresCreateAndLookup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := newUser("alice@example.com")
	u.Logins = []shopauth.ExternalLogin{{Provider: "Google", ProviderKey: "g-1"}}
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.GetUserByEmail(ctx, "ALICE@example.com")
	if err != nil {
		t.Fatalf("by email: %v", err)
	}
	if !got.InRole(shopauth.RoleUser) || len(got.Claims) != 1 || len(got.Logins) != 1 {
		t.Fatalf("relations not loaded: %+v", got)
	}
	if got, err := s.GetUserByLogin(ctx, "google", "g-1"); err != nil || got.ID != u.ID {
		t.Fatalf("by login = %v, %v", got, err)
	}

	if err := s.CreateUser(ctx, newUser("alice@example.com")); !errors.Is(err, shopauth.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
	other := newUser("bob@example.com")
	other.Logins = u.Logins
	if err := s.CreateUser(ctx, other); !errors.Is(err, shopauth.ErrExternalLoginTaken) {
		t.Fatalf("expected ErrExternalLoginTaken, got %v", err)
	}
}

func TestPostgresUpdateUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := newUser("alice@example.com")
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatalf("create: %v", err)
	}

	boom := errors.New("boom")
	if _, err := s.UpdateUser(ctx, u.ID, func(cur *shopauth.User) error {
		cur.AccessFailedCount = 3
		return boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	end := time.Now().Add(time.Hour).UTC().Truncate(time.Microsecond)
	updated, err := s.UpdateUser(ctx, u.ID, func(cur *shopauth.User) error {
		cur.AccessFailedCount = 2
		cur.LockoutEnd = &end
		cur.RefreshTokenHash = []byte{1, 2, 3}
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.AccessFailedCount != 2 || updated.LastModifiedAt == nil {
		t.Fatalf("updated = %+v", updated)
	}
	got, _ := s.GetUserByID(ctx, u.ID)
	if got.LockoutEnd == nil || !got.LockoutEnd.Equal(end) || len(got.RefreshTokenHash) != 3 {
		t.Fatalf("persisted = %+v", got)
	}

	if _, err := s.UpdateUser(ctx, uuid.NewString(), func(*shopauth.User) error { return nil }); !errors.Is(err, shopauth.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestPostgresMalformedIDIsNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"not-a-uuid", "", "12345"} {
		if _, err := s.GetUserByID(ctx, id); !errors.Is(err, shopauth.ErrUserNotFound) {
			t.Fatalf("GetUserByID(%q): expected ErrUserNotFound, got %v", id, err)
		}
		if _, err := s.UpdateUser(ctx, id, func(*shopauth.User) error { return nil }); !errors.Is(err, shopauth.ErrUserNotFound) {
			t.Fatalf("UpdateUser(%q): expected ErrUserNotFound, got %v", id, err)
		}
		if err := s.AddUserToRole(ctx, id, shopauth.RoleUser); !errors.Is(err, shopauth.ErrUserNotFound) {
			t.Fatalf("AddUserToRole(%q): expected ErrUserNotFound, got %v", id, err)
		}
		if err := s.AddLogin(ctx, id, shopauth.ExternalLogin{Provider: "Google", ProviderKey: "g-1"}); !errors.Is(err, shopauth.ErrUserNotFound) {
			t.Fatalf("AddLogin(%q): expected ErrUserNotFound, got %v", id, err)
		}
	}
}

func TestPostgresRoles(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := newUser("alice@example.com")
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := s.CreateRole(ctx, &shopauth.Role{ID: uuid.NewString(), Name: "admin", CreatedAt: time.Now()}); !errors.Is(err, shopauth.ErrRoleExists) {
		t.Fatalf("expected ErrRoleExists, got %v", err)
	}
	if err := s.AddUserToRole(ctx, u.ID, shopauth.RoleAdmin); err != nil {
		t.Fatalf("add to role: %v", err)
	}
	if err := s.DeleteRole(ctx, shopauth.RoleAdmin); !errors.Is(err, shopauth.ErrRoleInUse) {
		t.Fatalf("expected ErrRoleInUse, got %v", err)
	}
	if err := s.DeleteRole(ctx, "Ghost"); !errors.Is(err, shopauth.ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound, got %v", err)
	}
	roles, err := s.ListRoles(ctx)
	if err != nil || len(roles) != 2 {
		t.Fatalf("roles = %v, %v", roles, err)
	}
}

func TestPostgresProducts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.PutProduct(ctx, shopauth.Product{ID: 42, Name: "Mug", Price: 1299, StockQuantity: 3, IsActive: true}); err != nil {
		t.Fatalf("put: %v", err)
	}
	p, err := s.GetProduct(ctx, 42)
	if err != nil || p.Price != 1299 {
		t.Fatalf("product = %v, %v", p, err)
	}
	if _, err := s.GetProduct(ctx, 43); !errors.Is(err, shopauth.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestPostgresCategoriesRestrictDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	root, child := int64(1), int64(2)

	if err := s.PutCategory(ctx, shopauth.Category{ID: root, Name: "Kitchen"}); err != nil {
		t.Fatalf("put root: %v", err)
	}
	if err := s.PutCategory(ctx, shopauth.Category{ID: child, Name: "Mugs", ParentID: &root}); err != nil {
		t.Fatalf("put child: %v", err)
	}
	missing := int64(99)
	if err := s.PutCategory(ctx, shopauth.Category{ID: 3, Name: "Orphan", ParentID: &missing}); !errors.Is(err, shopauth.ErrCategoryNotFound) {
		t.Fatalf("orphan category: expected ErrCategoryNotFound, got %v", err)
	}
	if err := s.PutProduct(ctx, shopauth.Product{ID: 42, Name: "Mug", Price: 1299, IsActive: true, CategoryID: &missing}); !errors.Is(err, shopauth.ErrCategoryNotFound) {
		t.Fatalf("orphan product: expected ErrCategoryNotFound, got %v", err)
	}
	if err := s.PutProduct(ctx, shopauth.Product{ID: 42, Name: "Mug", Price: 1299, IsActive: true, CategoryID: &child}); err != nil {
		t.Fatalf("put product: %v", err)
	}
	p, err := s.GetProduct(ctx, 42)
	if err != nil || p.CategoryID == nil || *p.CategoryID != child {
		t.Fatalf("product = %+v, %v", p, err)
	}

	if err := s.DeleteCategory(ctx, root); !errors.Is(err, shopauth.ErrCategoryInUse) {
		t.Fatalf("delete parent: expected ErrCategoryInUse, got %v", err)
	}
	if err := s.DeleteCategory(ctx, child); !errors.Is(err, shopauth.ErrCategoryInUse) {
		t.Fatalf("delete referenced: expected ErrCategoryInUse, got %v", err)
	}
	if err := s.PutProduct(ctx, shopauth.Product{ID: 42, Name: "Mug", Price: 1299, IsActive: true}); err != nil {
		t.Fatalf("uncategorize: %v", err)
	}
	if err := s.DeleteCategory(ctx, child); err != nil {
		t.Fatalf("delete child: %v", err)
	}
	if err := s.DeleteCategory(ctx, root); err != nil {
		t.Fatalf("delete root: %v", err)
	}
	if _, err := s.GetCategory(ctx, root); !errors.Is(err, shopauth.ErrCategoryNotFound) {
		t.Fatalf("expected ErrCategoryNotFound, got %v", err)
	}
}
