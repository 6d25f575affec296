package shopauth

import "context"

// Store is the persistence collaborator. Lookups return ErrUserNotFound,
// ErrRoleNotFound or ErrProductNotFound for missing rows; soft-deleted users
// count as missing.
type Store interface {
	// CreateUser inserts u together with its role memberships and external
	// logins in one transaction. A taken email yields ErrDuplicateEmail and a
	// taken provider key ErrExternalLoginTaken.
	CreateUser(ctx context.Context, u *User) error

	GetUserByID(ctx context.Context, id string) (*User, error)
	// GetUserByEmail matches case-insensitively.
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByLogin(ctx context.Context, provider, providerKey string) (*User, error)

	// UpdateUser runs mutate against the current row under a per-row lock and
	// persists the result. If mutate returns an error nothing is written and
	// that error is returned unchanged. Scalar columns are written; roles,
	// claims and logins are not.
	UpdateUser(ctx context.Context, id string, mutate func(*User) error) (*User, error)

	AddLogin(ctx context.Context, userID string, login ExternalLogin) error

	CreateRole(ctx context.Context, role *Role) error
	GetRole(ctx context.Context, name string) (*Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	// DeleteRole fails with ErrRoleInUse while any user holds the role.
	DeleteRole(ctx context.Context, name string) error
	AddUserToRole(ctx context.Context, userID, roleName string) error

	GetProduct(ctx context.Context, id int64) (*Product, error)
}
