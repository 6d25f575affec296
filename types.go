package shopauth

import (
	"strings"
	"time"
)

// Role names seeded at startup.
const (
	RoleAdmin     = "Admin"
	RoleManager   = "Manager"
	RoleModerator = "Moderator"
	RoleUser      = "User"
)

// User is the credential record. Structured attributes are typed fields;
// Claims only carries free-form (type, value) pairs added by administrators.
type User struct {
	ID             string
	Email          string
	UserName       string
	PasswordHash   string
	FirstName      string
	LastName       string
	DateOfBirth    *time.Time
	ProfilePicture string

	EmailConfirmed   bool
	TwoFactorEnabled bool
	// AuthenticatorKey is the base32 TOTP secret. It may be set while
	// TwoFactorEnabled is still false, during setup.
	AuthenticatorKey string

	LockoutEnabled    bool
	LockoutEnd        *time.Time
	AccessFailedCount int

	// SecurityStamp changes whenever credentials or two-factor state change.
	SecurityStamp string

	RefreshTokenHash   []byte
	RefreshTokenExpiry *time.Time

	Roles  []string
	Claims []Claim
	Logins []ExternalLogin

	CreatedAt      time.Time
	LastModifiedAt *time.Time
	IsDeleted      bool
}

// FullName joins the display names.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// HasPassword is false for accounts created through an external provider.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// InRole reports role membership, case-insensitively.
func (u *User) InRole(role string) bool {
	for _, r := range u.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so stores never share slices with callers.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	out := *u
	out.DateOfBirth = cloneTime(u.DateOfBirth)
	out.LockoutEnd = cloneTime(u.LockoutEnd)
	out.RefreshTokenExpiry = cloneTime(u.RefreshTokenExpiry)
	out.LastModifiedAt = cloneTime(u.LastModifiedAt)
	out.RefreshTokenHash = cloneBytes(u.RefreshTokenHash)
	out.Roles = append([]string(nil), u.Roles...)
	out.Claims = append([]Claim(nil), u.Claims...)
	out.Logins = append([]ExternalLogin(nil), u.Logins...)
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Claim is a free-form (type, value) pair included in bearer tokens.
type Claim struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// ExternalLogin links a provider identity to a local user.
type ExternalLogin struct {
	Provider    string `json:"provider"`
	ProviderKey string `json:"providerKey"`
	DisplayName string `json:"displayName,omitempty"`
}

// Role is a named group of users.
type Role struct {
	ID             string
	Name           string
	Description    string
	CreatedAt      time.Time
	LastModifiedAt *time.Time
}

// Product is the catalog snapshot needed by the cart. Price is in minor
// currency units.
type Product struct {
	ID            int64
	Name          string
	Price         int64
	StockQuantity int
	IsActive      bool
	// CategoryID is nil for uncategorized products.
	CategoryID *int64
}

// Category groups products. Categories nest through ParentID; a category
// cannot be removed while products or child categories reference it.
type Category struct {
	ID       int64
	Name     string
	ParentID *int64
}

// Profile is the user-supplied part of a new account.
type Profile struct {
	FirstName   string
	LastName    string
	Email       string
	DateOfBirth *time.Time
}

// RegisterRequest is a self-service sign-up.
type RegisterRequest struct {
	Profile
	Password        string
	ConfirmPassword string
}

// RegisterResult describes a created, still unconfirmed account.
type RegisterResult struct {
	UserID string
	Email  string
}

// SignInStatus is the outcome of the password step.
type SignInStatus int

const (
	SignInFailed SignInStatus = iota
	SignInSucceeded
	SignInLockedOut
	SignInNotAllowed
	SignInRequiresTwoFactor
)

func (s SignInStatus) String() string {
	switch s {
	case SignInSucceeded:
		return "succeeded"
	case SignInLockedOut:
		return "locked_out"
	case SignInNotAllowed:
		return "not_allowed"
	case SignInRequiresTwoFactor:
		return "requires_two_factor"
	default:
		return "failed"
	}
}

// SignInResult carries the outcome and, for success or a pending second
// factor, the user.
type SignInResult struct {
	Status SignInStatus
	User   *User
}

// Err maps a non-success status onto the error taxonomy.
func (r *SignInResult) Err() error {
	switch r.Status {
	case SignInSucceeded:
		return nil
	case SignInLockedOut:
		return ErrLockedOut
	case SignInNotAllowed:
		return ErrNotAllowed
	case SignInRequiresTwoFactor:
		return ErrTwoFactorRequired
	default:
		return ErrInvalidCredentials
	}
}

// TokenPair is the bearer-mode credential handed to API clients.
type TokenPair struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	Expiration   time.Time `json:"expiration"`
	TokenType    string    `json:"tokenType"`
}

// Principal is the authenticated identity of a request in either mode.
type Principal struct {
	UserID         string
	Email          string
	UserName       string
	Roles          []string
	EmailConfirmed bool
	DateOfBirth    *time.Time
	SessionID      string
	Claims         []Claim
}

// InRole reports role membership, case-insensitively.
func (p *Principal) InRole(role string) bool {
	for _, r := range p.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

func principalFromUser(u *User) *Principal {
	return &Principal{
		UserID:         u.ID,
		Email:          u.Email,
		UserName:       u.UserName,
		Roles:          append([]string(nil), u.Roles...),
		EmailConfirmed: u.EmailConfirmed,
		DateOfBirth:    cloneTime(u.DateOfBirth),
		Claims:         append([]Claim(nil), u.Claims...),
	}
}
