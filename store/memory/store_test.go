package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/MrEthical07/shopauth"
)

func seeded(t *testing.T) *Store {
	t.Helper()
	s := New()
	for _, name := range []string{shopauth.RoleAdmin, shopauth.RoleUser} {
		if err := s.CreateRole(context.Background(), &shopauth.Role{Name: name}); err != nil {
			t.Fatalf("create role %s: %v", name, err)
		}
	}
	return s
}

func TestCreateAndLookup(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	u := &shopauth.User{
		ID:     "u-1",
		Email:  "Alice@Example.com",
		Roles:  []string{"user"},
		Logins: []shopauth.ExternalLogin{{Provider: "Google", ProviderKey: "g-1"}},
	}
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.GetUserByEmail(ctx, "alice@example.COM")
	if err != nil || got.ID != "u-1" {
		t.Fatalf("by email = %v, %v", got, err)
	}
	if got.Roles[0] != shopauth.RoleUser {
		t.Fatalf("role name not canonicalised: %v", got.Roles)
	}
	if got, err := s.GetUserByLogin(ctx, "google", "g-1"); err != nil || got.ID != "u-1" {
		t.Fatalf("by login = %v, %v", got, err)
	}

	dup := &shopauth.User{ID: "u-2", Email: "alice@example.com"}
	if err := s.CreateUser(ctx, dup); !errors.Is(err, shopauth.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
	taken := &shopauth.User{ID: "u-3", Email: "c@example.com", Logins: u.Logins}
	if err := s.CreateUser(ctx, taken); !errors.Is(err, shopauth.ErrExternalLoginTaken) {
		t.Fatalf("expected ErrExternalLoginTaken, got %v", err)
	}
	bad := &shopauth.User{ID: "u-4", Email: "d@example.com", Roles: []string{"Ghost"}}
	if err := s.CreateUser(ctx, bad); !errors.Is(err, shopauth.ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound, got %v", err)
	}
}

func TestUpdateUserIsolation(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	if err := s.CreateUser(ctx, &shopauth.User{ID: "u-1", Email: "a@example.com"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	boom := errors.New("boom")
	if _, err := s.UpdateUser(ctx, "u-1", func(u *shopauth.User) error {
		u.AccessFailedCount = 9
		return boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected mutate error back, got %v", err)
	}
	if got, _ := s.GetUserByID(ctx, "u-1"); got.AccessFailedCount != 0 {
		t.Fatal("failed mutation was persisted")
	}

	updated, err := s.UpdateUser(ctx, "u-1", func(u *shopauth.User) error {
		u.AccessFailedCount = 2
		u.Email = "hijack@example.com"
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.AccessFailedCount != 2 || updated.Email != "a@example.com" || updated.LastModifiedAt == nil {
		t.Fatalf("updated = %+v", updated)
	}

	updated.AccessFailedCount = 100
	if got, _ := s.GetUserByID(ctx, "u-1"); got.AccessFailedCount != 2 {
		t.Fatal("returned user aliases stored row")
	}
}

func TestSoftDeletedUsersAreMissing(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	_ = s.CreateUser(ctx, &shopauth.User{ID: "u-1", Email: "a@example.com"})
	s.SoftDelete("u-1")

	if _, err := s.GetUserByID(ctx, "u-1"); !errors.Is(err, shopauth.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := s.GetUserByEmail(ctx, "a@example.com"); !errors.Is(err, shopauth.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestRolesAndProducts(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	_ = s.CreateUser(ctx, &shopauth.User{ID: "u-1", Email: "a@example.com"})

	if err := s.AddUserToRole(ctx, "u-1", "ADMIN"); err != nil {
		t.Fatalf("add to role: %v", err)
	}
	if err := s.DeleteRole(ctx, shopauth.RoleAdmin); !errors.Is(err, shopauth.ErrRoleInUse) {
		t.Fatalf("expected ErrRoleInUse, got %v", err)
	}
	if err := s.DeleteRole(ctx, "nope"); !errors.Is(err, shopauth.ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound, got %v", err)
	}

	_ = s.PutProduct(ctx, shopauth.Product{ID: 7, Name: "Mug", Price: 1299, IsActive: true})
	p, err := s.GetProduct(ctx, 7)
	if err != nil || p.Price != 1299 {
		t.Fatalf("product = %v, %v", p, err)
	}
	if _, err := s.GetProduct(ctx, 8); !errors.Is(err, shopauth.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestCategoriesRestrictDelete(t *testing.T) {
	s := New()
	ctx := context.Background()
	root, child, missing := int64(1), int64(2), int64(99)

	if err := s.PutCategory(ctx, shopauth.Category{ID: root, Name: "Kitchen"}); err != nil {
		t.Fatalf("put root: %v", err)
	}
	if err := s.PutCategory(ctx, shopauth.Category{ID: child, Name: "Mugs", ParentID: &root}); err != nil {
		t.Fatalf("put child: %v", err)
	}
	if err := s.PutCategory(ctx, shopauth.Category{ID: 3, Name: "Orphan", ParentID: &missing}); !errors.Is(err, shopauth.ErrCategoryNotFound) {
		t.Fatalf("orphan category: expected ErrCategoryNotFound, got %v", err)
	}
	if err := s.PutProduct(ctx, shopauth.Product{ID: 7, Name: "Mug", CategoryID: &missing}); !errors.Is(err, shopauth.ErrCategoryNotFound) {
		t.Fatalf("orphan product: expected ErrCategoryNotFound, got %v", err)
	}
	if err := s.PutProduct(ctx, shopauth.Product{ID: 7, Name: "Mug", CategoryID: &child}); err != nil {
		t.Fatalf("put product: %v", err)
	}

	if err := s.DeleteCategory(ctx, root); !errors.Is(err, shopauth.ErrCategoryInUse) {
		t.Fatalf("delete parent: expected ErrCategoryInUse, got %v", err)
	}
	if err := s.DeleteCategory(ctx, child); !errors.Is(err, shopauth.ErrCategoryInUse) {
		t.Fatalf("delete referenced: expected ErrCategoryInUse, got %v", err)
	}
	_ = s.PutProduct(ctx, shopauth.Product{ID: 7, Name: "Mug"})
	if err := s.DeleteCategory(ctx, child); err != nil {
		t.Fatalf("delete child: %v", err)
	}
	if err := s.DeleteCategory(ctx, root); err != nil {
		t.Fatalf("delete root: %v", err)
	}
	if err := s.DeleteCategory(ctx, root); !errors.Is(err, shopauth.ErrCategoryNotFound) {
		t.Fatalf("expected ErrCategoryNotFound, got %v", err)
	}
}
