// Package postgres is the relational shopauth.Store on sqlx and lib/pq.
// The schema lives in internal/db/migrations.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/shopauth"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// Store implements shopauth.Store.
type Store struct {
	db *sqlx.DB
}

var _ shopauth.Store = (*Store)(nil)

// New wraps an open pool.
func New(db *sqlx.DB) *Store { return &Store{db: db} }

type userRow struct {
	ID                 string     `db:"id"`
	Email              string     `db:"email"`
	UserName           string     `db:"user_name"`
	PasswordHash       string     `db:"password_hash"`
	FirstName          string     `db:"first_name"`
	LastName           string     `db:"last_name"`
	DateOfBirth        *time.Time `db:"date_of_birth"`
	ProfilePicture     string     `db:"profile_picture"`
	EmailConfirmed     bool       `db:"email_confirmed"`
	TwoFactorEnabled   bool       `db:"two_factor_enabled"`
	AuthenticatorKey   string     `db:"authenticator_key"`
	LockoutEnabled     bool       `db:"lockout_enabled"`
	LockoutEnd         *time.Time `db:"lockout_end"`
	AccessFailedCount  int        `db:"access_failed_count"`
	SecurityStamp      string     `db:"security_stamp"`
	RefreshTokenHash   []byte     `db:"refresh_token_hash"`
	RefreshTokenExpiry *time.Time `db:"refresh_token_expiry"`
	CreatedAt          time.Time  `db:"created_at"`
	LastModifiedAt     *time.Time `db:"last_modified_at"`
	IsDeleted          bool       `db:"is_deleted"`
}

const userColumns = `id, email, user_name, password_hash, first_name, last_name, date_of_birth,
	profile_picture, email_confirmed, two_factor_enabled, authenticator_key, lockout_enabled,
	lockout_end, access_failed_count, security_stamp, refresh_token_hash, refresh_token_expiry,
	created_at, last_modified_at, is_deleted`

func rowFromUser(u *shopauth.User) userRow {
	return userRow{
		ID:                 u.ID,
		Email:              u.Email,
		UserName:           u.UserName,
		PasswordHash:       u.PasswordHash,
		FirstName:          u.FirstName,
		LastName:           u.LastName,
		DateOfBirth:        u.DateOfBirth,
		ProfilePicture:     u.ProfilePicture,
		EmailConfirmed:     u.EmailConfirmed,
		TwoFactorEnabled:   u.TwoFactorEnabled,
		AuthenticatorKey:   u.AuthenticatorKey,
		LockoutEnabled:     u.LockoutEnabled,
		LockoutEnd:         u.LockoutEnd,
		AccessFailedCount:  u.AccessFailedCount,
		SecurityStamp:      u.SecurityStamp,
		RefreshTokenHash:   u.RefreshTokenHash,
		RefreshTokenExpiry: u.RefreshTokenExpiry,
		CreatedAt:          u.CreatedAt,
		LastModifiedAt:     u.LastModifiedAt,
		IsDeleted:          u.IsDeleted,
	}
}

func (r userRow) user() *shopauth.User {
	return &shopauth.User{
		ID:                 r.ID,
		Email:              r.Email,
		UserName:           r.UserName,
		PasswordHash:       r.PasswordHash,
		FirstName:          r.FirstName,
		LastName:           r.LastName,
		DateOfBirth:        r.DateOfBirth,
		ProfilePicture:     r.ProfilePicture,
		EmailConfirmed:     r.EmailConfirmed,
		TwoFactorEnabled:   r.TwoFactorEnabled,
		AuthenticatorKey:   r.AuthenticatorKey,
		LockoutEnabled:     r.LockoutEnabled,
		LockoutEnd:         r.LockoutEnd,
		AccessFailedCount:  r.AccessFailedCount,
		SecurityStamp:      r.SecurityStamp,
		RefreshTokenHash:   r.RefreshTokenHash,
		RefreshTokenExpiry: r.RefreshTokenExpiry,
		CreatedAt:          r.CreatedAt,
		LastModifiedAt:     r.LastModifiedAt,
		IsDeleted:          r.IsDeleted,
	}
}

func isPQ(err error, code string) (*pq.Error, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == code {
		return pqErr, true
	}
	return nil, false
}

// validID reports whether id can be compared against a UUID column. Other
// strings would fail the cast server side with 22P02.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

/*
====================================
USERS
====================================
*/

// CreateUser inserts the row, its role memberships, claims and logins in
// one transaction.
func (s *Store) CreateUser(ctx context.Context, u *shopauth.User) error {
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		const q = `INSERT INTO users (` + userColumns + `)
			VALUES (:id, :email, :user_name, :password_hash, :first_name, :last_name, :date_of_birth,
				:profile_picture, :email_confirmed, :two_factor_enabled, :authenticator_key, :lockout_enabled,
				:lockout_end, :access_failed_count, :security_stamp, :refresh_token_hash, :refresh_token_expiry,
				:created_at, :last_modified_at, :is_deleted)`
		if _, err := tx.NamedExecContext(ctx, q, rowFromUser(u)); err != nil {
			return err
		}

		for _, name := range u.Roles {
			var roleID string
			if err := tx.GetContext(ctx, &roleID, `SELECT id FROM roles WHERE name = $1`, name); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return shopauth.ErrRoleNotFound
				}
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				u.ID, roleID); err != nil {
				return err
			}
		}
		for _, c := range u.Claims {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO user_claims (user_id, claim_type, claim_value) VALUES ($1, $2, $3)`,
				u.ID, c.Type, c.Value); err != nil {
				return err
			}
		}
		for _, l := range u.Logins {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO user_logins (provider, provider_key, display_name, user_id) VALUES ($1, $2, $3, $4)`,
				l.Provider, l.ProviderKey, l.DisplayName, u.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if pqErr, ok := isPQ(err, pqUniqueViolation); ok {
		if pqErr.Table == "user_logins" {
			return shopauth.ErrExternalLoginTaken
		}
		return shopauth.ErrDuplicateEmail
	}
	return err
}

func (s *Store) getUser(ctx context.Context, q sqlx.QueryerContext, where string, args ...any) (*shopauth.User, error) {
	var row userRow
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where + ` AND NOT is_deleted`
	if err := sqlx.GetContext(ctx, q, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shopauth.ErrUserNotFound
		}
		return nil, err
	}
	u := row.user()
	if err := loadRelations(ctx, q, u); err != nil {
		return nil, err
	}
	return u, nil
}

func loadRelations(ctx context.Context, q sqlx.QueryerContext, u *shopauth.User) error {
	if err := sqlx.SelectContext(ctx, q, &u.Roles,
		`SELECT r.name FROM roles r JOIN user_roles ur ON ur.role_id = r.id WHERE ur.user_id = $1 ORDER BY r.name`,
		u.ID); err != nil {
		return fmt.Errorf("load roles: %w", err)
	}

	var claims []struct {
		Type  string `db:"claim_type"`
		Value string `db:"claim_value"`
	}
	if err := sqlx.SelectContext(ctx, q, &claims,
		`SELECT claim_type, claim_value FROM user_claims WHERE user_id = $1 ORDER BY id`, u.ID); err != nil {
		return fmt.Errorf("load claims: %w", err)
	}
	u.Claims = u.Claims[:0]
	for _, c := range claims {
		u.Claims = append(u.Claims, shopauth.Claim{Type: c.Type, Value: c.Value})
	}

	var logins []struct {
		Provider    string `db:"provider"`
		ProviderKey string `db:"provider_key"`
		DisplayName string `db:"display_name"`
	}
	if err := sqlx.SelectContext(ctx, q, &logins,
		`SELECT provider, provider_key, display_name FROM user_logins WHERE user_id = $1 ORDER BY provider`, u.ID); err != nil {
		return fmt.Errorf("load logins: %w", err)
	}
	u.Logins = u.Logins[:0]
	for _, l := range logins {
		u.Logins = append(u.Logins, shopauth.ExternalLogin{
			Provider:    l.Provider,
			ProviderKey: l.ProviderKey,
			DisplayName: l.DisplayName,
		})
	}
	return nil
}

// GetUserByID treats ids that are not UUIDs as unknown.
func (s *Store) GetUserByID(ctx context.Context, id string) (*shopauth.User, error) {
	if !validID(id) {
		return nil, shopauth.ErrUserNotFound
	}
	return s.getUser(ctx, s.db, `id = $1`, id)
}

// GetUserByEmail relies on the CITEXT column for case-insensitive matching.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*shopauth.User, error) {
	return s.getUser(ctx, s.db, `email = $1`, email)
}

func (s *Store) GetUserByLogin(ctx context.Context, provider, providerKey string) (*shopauth.User, error) {
	return s.getUser(ctx, s.db,
		`id = (SELECT user_id FROM user_logins WHERE lower(provider) = lower($1) AND provider_key = $2)`,
		provider, providerKey)
}

// UpdateUser locks the row with SELECT ... FOR UPDATE for the duration of
// mutate.
func (s *Store) UpdateUser(ctx context.Context, id string, mutate func(*shopauth.User) error) (*shopauth.User, error) {
	if !validID(id) {
		return nil, shopauth.ErrUserNotFound
	}
	var out *shopauth.User
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var row userRow
		q := `SELECT ` + userColumns + ` FROM users WHERE id = $1 AND NOT is_deleted FOR UPDATE`
		if err := tx.GetContext(ctx, &row, q, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return shopauth.ErrUserNotFound
			}
			return err
		}
		u := row.user()
		if err := loadRelations(ctx, tx, u); err != nil {
			return err
		}

		roles, claims, logins := u.Roles, u.Claims, u.Logins
		if err := mutate(u); err != nil {
			return err
		}

		now := time.Now().UTC()
		u.LastModifiedAt = &now
		next := rowFromUser(u)
		next.ID = row.ID
		const upd = `UPDATE users SET
			user_name = :user_name, password_hash = :password_hash, first_name = :first_name,
			last_name = :last_name, date_of_birth = :date_of_birth, profile_picture = :profile_picture,
			email_confirmed = :email_confirmed, two_factor_enabled = :two_factor_enabled,
			authenticator_key = :authenticator_key, lockout_enabled = :lockout_enabled,
			lockout_end = :lockout_end, access_failed_count = :access_failed_count,
			security_stamp = :security_stamp, refresh_token_hash = :refresh_token_hash,
			refresh_token_expiry = :refresh_token_expiry, last_modified_at = :last_modified_at
			WHERE id = :id`
		if _, err := tx.NamedExecContext(ctx, upd, next); err != nil {
			return err
		}

		// email, roles, claims and logins are not writable here
		u.Email = row.Email
		u.CreatedAt = row.CreatedAt
		u.Roles, u.Claims, u.Logins = roles, claims, logins
		out = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) AddLogin(ctx context.Context, userID string, login shopauth.ExternalLogin) error {
	if !validID(userID) {
		return shopauth.ErrUserNotFound
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_logins (provider, provider_key, display_name, user_id) VALUES ($1, $2, $3, $4)`,
		login.Provider, login.ProviderKey, login.DisplayName, userID)
	if _, ok := isPQ(err, pqUniqueViolation); ok {
		var owner string
		if gerr := s.db.GetContext(ctx, &owner,
			`SELECT user_id FROM user_logins WHERE provider = $1 AND provider_key = $2`,
			login.Provider, login.ProviderKey); gerr == nil && owner == userID {
			return nil
		}
		return shopauth.ErrExternalLoginTaken
	}
	if _, ok := isPQ(err, pqForeignKeyViolation); ok {
		return shopauth.ErrUserNotFound
	}
	return err
}

/*
====================================
ROLES
====================================
*/

type roleRow struct {
	ID             string     `db:"id"`
	Name           string     `db:"name"`
	Description    string     `db:"description"`
	CreatedAt      time.Time  `db:"created_at"`
	LastModifiedAt *time.Time `db:"last_modified_at"`
}

func (r roleRow) role() shopauth.Role {
	return shopauth.Role{
		ID:             r.ID,
		Name:           r.Name,
		Description:    r.Description,
		CreatedAt:      r.CreatedAt,
		LastModifiedAt: r.LastModifiedAt,
	}
}

func (s *Store) CreateRole(ctx context.Context, role *shopauth.Role) error {
	const q = `INSERT INTO roles (id, name, description, created_at)
		VALUES (:id, :name, :description, :created_at)`
	_, err := s.db.NamedExecContext(ctx, q, roleRow{
		ID:          role.ID,
		Name:        role.Name,
		Description: role.Description,
		CreatedAt:   role.CreatedAt,
	})
	if _, ok := isPQ(err, pqUniqueViolation); ok {
		return shopauth.ErrRoleExists
	}
	return err
}

func (s *Store) GetRole(ctx context.Context, name string) (*shopauth.Role, error) {
	var row roleRow
	err := s.db.GetContext(ctx, &row,
		`SELECT id, name, description, created_at, last_modified_at FROM roles WHERE name = $1`, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shopauth.ErrRoleNotFound
		}
		return nil, err
	}
	r := row.role()
	return &r, nil
}

func (s *Store) ListRoles(ctx context.Context) ([]shopauth.Role, error) {
	var rows []roleRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT id, name, description, created_at, last_modified_at FROM roles ORDER BY name`); err != nil {
		return nil, err
	}
	out := make([]shopauth.Role, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.role())
	}
	return out, nil
}

// DeleteRole relies on the RESTRICT foreign key from user_roles.
func (s *Store) DeleteRole(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM roles WHERE name = $1`, name)
	if err != nil {
		if _, ok := isPQ(err, pqForeignKeyViolation); ok {
			return shopauth.ErrRoleInUse
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return shopauth.ErrRoleNotFound
	}
	return nil
}

func (s *Store) AddUserToRole(ctx context.Context, userID, roleName string) error {
	if !validID(userID) {
		return shopauth.ErrUserNotFound
	}
	role, err := s.GetRole(ctx, roleName)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		userID, role.ID)
	if _, ok := isPQ(err, pqForeignKeyViolation); ok {
		return shopauth.ErrUserNotFound
	}
	return err
}

/*
====================================
CATALOG
====================================
*/

type productRow struct {
	ID            int64  `db:"id"`
	Name          string `db:"name"`
	Price         int64  `db:"price"`
	StockQuantity int    `db:"stock_quantity"`
	IsActive      bool   `db:"is_active"`
	CategoryID    *int64 `db:"category_id"`
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*shopauth.Product, error) {
	var row productRow
	err := s.db.GetContext(ctx, &row,
		`SELECT id, name, price, stock_quantity, is_active, category_id FROM products WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shopauth.ErrProductNotFound
		}
		return nil, err
	}
	return &shopauth.Product{
		ID:            row.ID,
		Name:          row.Name,
		Price:         row.Price,
		StockQuantity: row.StockQuantity,
		IsActive:      row.IsActive,
		CategoryID:    row.CategoryID,
	}, nil
}

// PutProduct inserts or replaces a catalog entry. An unknown CategoryID
// yields ErrCategoryNotFound.
func (s *Store) PutProduct(ctx context.Context, p shopauth.Product) error {
	const q = `INSERT INTO products (id, name, price, stock_quantity, is_active, category_id)
		VALUES (:id, :name, :price, :stock_quantity, :is_active, :category_id)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price,
			stock_quantity = EXCLUDED.stock_quantity, is_active = EXCLUDED.is_active,
			category_id = EXCLUDED.category_id`
	_, err := s.db.NamedExecContext(ctx, q, productRow{
		ID:            p.ID,
		Name:          p.Name,
		Price:         p.Price,
		StockQuantity: p.StockQuantity,
		IsActive:      p.IsActive,
		CategoryID:    p.CategoryID,
	})
	if _, ok := isPQ(err, pqForeignKeyViolation); ok {
		return shopauth.ErrCategoryNotFound
	}
	return err
}

type categoryRow struct {
	ID       int64  `db:"id"`
	Name     string `db:"name"`
	ParentID *int64 `db:"parent_id"`
}

// PutCategory inserts or renames a category. An unknown ParentID yields
// ErrCategoryNotFound.
func (s *Store) PutCategory(ctx context.Context, c shopauth.Category) error {
	const q = `INSERT INTO categories (id, name, parent_id) VALUES (:id, :name, :parent_id)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, parent_id = EXCLUDED.parent_id`
	_, err := s.db.NamedExecContext(ctx, q, categoryRow{ID: c.ID, Name: c.Name, ParentID: c.ParentID})
	if _, ok := isPQ(err, pqForeignKeyViolation); ok {
		return shopauth.ErrCategoryNotFound
	}
	return err
}

func (s *Store) GetCategory(ctx context.Context, id int64) (*shopauth.Category, error) {
	var row categoryRow
	if err := s.db.GetContext(ctx, &row, `SELECT id, name, parent_id FROM categories WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shopauth.ErrCategoryNotFound
		}
		return nil, err
	}
	return &shopauth.Category{ID: row.ID, Name: row.Name, ParentID: row.ParentID}, nil
}

// DeleteCategory relies on the RESTRICT foreign keys from products and
// child categories.
func (s *Store) DeleteCategory(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		if _, ok := isPQ(err, pqForeignKeyViolation); ok {
			return shopauth.ErrCategoryInUse
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return shopauth.ErrCategoryNotFound
	}
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
