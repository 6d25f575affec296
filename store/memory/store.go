// Package memory is an in-process shopauth.Store for tests and local runs
// without Postgres. All data is lost on exit.
package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/shopauth"
	"github.com/google/uuid"
)

// Store keeps users, roles and products in maps behind one mutex, which
// also gives UpdateUser its per-row atomicity.
type Store struct {
	mu       sync.Mutex
	users    map[string]*shopauth.User
	byEmail  map[string]string
	byLogin  map[string]string
	roles    map[string]*shopauth.Role
	products   map[int64]*shopauth.Product
	categories map[int64]*shopauth.Category
	now        func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		users:    make(map[string]*shopauth.User),
		byEmail:  make(map[string]string),
		byLogin:  make(map[string]string),
		roles:    make(map[string]*shopauth.Role),
		products:   make(map[int64]*shopauth.Product),
		categories: make(map[int64]*shopauth.Category),
		now:        time.Now,
	}
}

var _ shopauth.Store = (*Store)(nil)

func emailKey(email string) string {
	return strings.ToUpper(strings.TrimSpace(email))
}

func loginKey(provider, key string) string {
	return strings.ToLower(provider) + "|" + key
}

func roleKey(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

func (s *Store) CreateUser(_ context.Context, u *shopauth.User) error {
	if u == nil || u.ID == "" {
		return errors.New("user id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[emailKey(u.Email)]; ok {
		return shopauth.ErrDuplicateEmail
	}
	for _, l := range u.Logins {
		if _, ok := s.byLogin[loginKey(l.Provider, l.ProviderKey)]; ok {
			return shopauth.ErrExternalLoginTaken
		}
	}
	roles := make([]string, 0, len(u.Roles))
	for _, name := range u.Roles {
		r, ok := s.roles[roleKey(name)]
		if !ok {
			return shopauth.ErrRoleNotFound
		}
		roles = append(roles, r.Name)
	}

	stored := u.Clone()
	stored.Roles = roles
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now().UTC()
	}
	s.users[u.ID] = stored
	s.byEmail[emailKey(u.Email)] = u.ID
	for _, l := range u.Logins {
		s.byLogin[loginKey(l.Provider, l.ProviderKey)] = u.ID
	}
	return nil
}

func (s *Store) live(id string) (*shopauth.User, error) {
	u, ok := s.users[id]
	if !ok || u.IsDeleted {
		return nil, shopauth.ErrUserNotFound
	}
	return u, nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (*shopauth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.live(id)
	if err != nil {
		return nil, err
	}
	return u.Clone(), nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*shopauth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[emailKey(email)]
	if !ok {
		return nil, shopauth.ErrUserNotFound
	}
	u, err := s.live(id)
	if err != nil {
		return nil, err
	}
	return u.Clone(), nil
}

func (s *Store) GetUserByLogin(_ context.Context, provider, providerKey string) (*shopauth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byLogin[loginKey(provider, providerKey)]
	if !ok {
		return nil, shopauth.ErrUserNotFound
	}
	u, err := s.live(id)
	if err != nil {
		return nil, err
	}
	return u.Clone(), nil
}

func (s *Store) UpdateUser(_ context.Context, id string, mutate func(*shopauth.User) error) (*shopauth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.live(id)
	if err != nil {
		return nil, err
	}
	working := current.Clone()
	if err := mutate(working); err != nil {
		return nil, err
	}

	// identity and relations are not writable through UpdateUser
	working.ID = current.ID
	working.Email = current.Email
	working.Roles = current.Roles
	working.Claims = current.Claims
	working.Logins = current.Logins
	working.CreatedAt = current.CreatedAt
	now := s.now().UTC()
	working.LastModifiedAt = &now

	s.users[id] = working
	return working.Clone(), nil
}

func (s *Store) AddLogin(_ context.Context, userID string, login shopauth.ExternalLogin) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.live(userID)
	if err != nil {
		return err
	}
	key := loginKey(login.Provider, login.ProviderKey)
	if owner, ok := s.byLogin[key]; ok {
		if owner == userID {
			return nil
		}
		return shopauth.ErrExternalLoginTaken
	}
	u.Logins = append(u.Logins, login)
	s.byLogin[key] = userID
	return nil
}

func (s *Store) CreateRole(_ context.Context, role *shopauth.Role) error {
	if role == nil || strings.TrimSpace(role.Name) == "" {
		return errors.New("role name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := roleKey(role.Name)
	if _, ok := s.roles[key]; ok {
		return shopauth.ErrRoleExists
	}
	stored := *role
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now().UTC()
	}
	s.roles[key] = &stored
	role.ID = stored.ID
	return nil
}

func (s *Store) GetRole(_ context.Context, name string) (*shopauth.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.roles[roleKey(name)]
	if !ok {
		return nil, shopauth.ErrRoleNotFound
	}
	out := *r
	return &out, nil
}

func (s *Store) ListRoles(context.Context) ([]shopauth.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]shopauth.Role, 0, len(s.roles))
	for _, r := range s.roles {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) DeleteRole(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := roleKey(name)
	if _, ok := s.roles[key]; !ok {
		return shopauth.ErrRoleNotFound
	}
	for _, u := range s.users {
		if u.InRole(name) {
			return shopauth.ErrRoleInUse
		}
	}
	delete(s.roles, key)
	return nil
}

func (s *Store) AddUserToRole(_ context.Context, userID, roleName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.live(userID)
	if err != nil {
		return err
	}
	r, ok := s.roles[roleKey(roleName)]
	if !ok {
		return shopauth.ErrRoleNotFound
	}
	if !u.InRole(r.Name) {
		u.Roles = append(u.Roles, r.Name)
	}
	return nil
}

func (s *Store) GetProduct(_ context.Context, id int64) (*shopauth.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return nil, shopauth.ErrProductNotFound
	}
	out := *p
	return &out, nil
}

// PutProduct adds or replaces a catalog entry. CategoryID must name an
// existing category.
func (s *Store) PutProduct(_ context.Context, p shopauth.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.CategoryID != nil {
		if _, ok := s.categories[*p.CategoryID]; !ok {
			return shopauth.ErrCategoryNotFound
		}
	}
	s.products[p.ID] = &p
	return nil
}

// PutCategory adds or renames a category. ParentID must name another
// existing category.
func (s *Store) PutCategory(_ context.Context, c shopauth.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ParentID != nil {
		if _, ok := s.categories[*c.ParentID]; !ok || *c.ParentID == c.ID {
			return shopauth.ErrCategoryNotFound
		}
	}
	s.categories[c.ID] = &c
	return nil
}

func (s *Store) GetCategory(_ context.Context, id int64) (*shopauth.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.categories[id]
	if !ok {
		return nil, shopauth.ErrCategoryNotFound
	}
	out := *c
	return &out, nil
}

// DeleteCategory refuses while products or child categories reference id.
func (s *Store) DeleteCategory(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.categories[id]; !ok {
		return shopauth.ErrCategoryNotFound
	}
	for _, p := range s.products {
		if p.CategoryID != nil && *p.CategoryID == id {
			return shopauth.ErrCategoryInUse
		}
	}
	for _, c := range s.categories {
		if c.ParentID != nil && *c.ParentID == id {
			return shopauth.ErrCategoryInUse
		}
	}
	delete(s.categories, id)
	return nil
}

// SoftDelete flags a user as deleted.
func (s *Store) SoftDelete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		u.IsDeleted = true
	}
}
