package jwt

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const minSecretBytes = 32

// ErrInvalidToken wraps every parse or validation failure. The underlying
// jwt library error stays reachable through errors.Is.
var ErrInvalidToken = errors.New("invalid access token")

// Config holds signing and validation settings.
type Config struct {
	Secret    []byte
	Issuer    string
	Audience  string
	AccessTTL time.Duration

	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

// Subject is the identity embedded in a minted access token.
type Subject struct {
	UserID        string
	Email         string
	UserName      string
	Roles         []string
	EmailVerified bool
	Birthdate     *time.Time
	Custom        map[string]string
}

// AccessClaims is the JWT payload. Standard claims carry sub, jti, iss, aud,
// iat and exp.
type AccessClaims struct {
	UID           string            `json:"uid"`
	Email         string            `json:"email"`
	Name          string            `json:"name"`
	Roles         []string          `json:"roles,omitempty"`
	EmailVerified bool              `json:"email_verified"`
	Birthdate     string            `json:"birthdate,omitempty"`
	Custom        map[string]string `json:"ext,omitempty"`
	jwt.RegisteredClaims
}

// Manager issues and parses access tokens.
type Manager struct {
	config Config
}

// NewManager validates cfg. The secret must be at least 32 bytes.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) < minSecretBytes {
		return nil, errors.New("jwt secret must be at least 32 bytes")
	}
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid access TTL")
	}
	if cfg.Issuer == "" || cfg.Audience == "" {
		return nil, errors.New("jwt issuer and audience are required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{config: cfg}, nil
}

// Mint signs a new access token for s and returns it with its expiry.
func (m *Manager) Mint(s Subject) (string, time.Time, error) {
	now := m.config.Now()
	expires := now.Add(m.config.AccessTTL)

	claims := AccessClaims{
		UID:           s.UserID,
		Email:         s.Email,
		Name:          s.UserName,
		Roles:         s.Roles,
		EmailVerified: s.EmailVerified,
		Custom:        s.Custom,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.Email,
			ID:        uuid.NewString(),
			Issuer:    m.config.Issuer,
			Audience:  jwt.ClaimStrings{m.config.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	if s.Birthdate != nil {
		claims.Birthdate = s.Birthdate.Format(time.DateOnly)
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, expires, nil
}

// Parse fully validates token, including expiry.
func (m *Manager) Parse(token string) (*AccessClaims, error) {
	return m.parse(token,
		jwt.WithIssuer(m.config.Issuer),
		jwt.WithAudience(m.config.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.config.Now),
	)
}

// ParseExpired validates signature, algorithm, issuer and audience but
// accepts a token whose lifetime has passed.
func (m *Manager) ParseExpired(token string) (*AccessClaims, error) {
	claims, err := m.parse(token, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, err
	}
	if claims.Issuer != m.config.Issuer {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, jwt.ErrTokenInvalidIssuer)
	}
	if !slices.Contains(claims.Audience, m.config.Audience) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, jwt.ErrTokenInvalidAudience)
	}
	return claims, nil
}

func (m *Manager) parse(token string, opts ...jwt.ParserOption) (*AccessClaims, error) {
	opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	parsed, err := jwt.NewParser(opts...).ParseWithClaims(token, &AccessClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.config.Secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, jwt.ErrTokenInvalidClaims)
	}
	if claims.UID == "" {
		return nil, fmt.Errorf("%w: missing uid", ErrInvalidToken)
	}
	return claims, nil
}
