package shopauth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/MrEthical07/shopauth/internal"
	"github.com/MrEthical07/shopauth/jwt"
)

const tokenTypeBearer = "Bearer"

// IssueTokens mints an access token for user and replaces the stored refresh
// token with a fresh one. Any earlier refresh token stops working.
func (e *Engine) IssueTokens(ctx context.Context, user *User) (*TokenPair, error) {
	if e == nil || e.jwt == nil {
		return nil, ErrEngineNotReady
	}
	refresh, err := internal.NewRefreshToken()
	if err != nil {
		return nil, err
	}
	expiry := e.now().Add(e.config.Refresh.TTL).UTC()

	current, err := e.store.UpdateUser(ctx, user.ID, func(u *User) error {
		u.RefreshTokenHash = internal.HashToken(refresh)
		u.RefreshTokenExpiry = &expiry
		return nil
	})
	if err != nil {
		return nil, storeErr(err)
	}

	access, expiresAt, err := e.jwt.Mint(subjectOf(current))
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		Expiration:   expiresAt.UTC(),
		TokenType:    tokenTypeBearer,
	}, nil
}

// Refresh exchanges a possibly expired access token plus the current refresh
// token for a new pair. The access token must still carry a valid signature,
// issuer and audience. The refresh token must match the stored one exactly
// and be unexpired; the swap happens under the user's row lock so a refresh
// token can be redeemed at most once.
func (e *Engine) Refresh(ctx context.Context, accessToken, refreshToken string) (*TokenPair, error) {
	if e == nil || e.jwt == nil {
		return nil, ErrEngineNotReady
	}
	claims, err := e.jwt.ParseExpired(accessToken)
	if err != nil || claims.UID == "" || refreshToken == "" {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", ErrTokenInvalid, reason("access_token"))
		return nil, ErrTokenInvalid
	}

	next, err := internal.NewRefreshToken()
	if err != nil {
		return nil, err
	}
	now := e.now()
	expiry := now.Add(e.config.Refresh.TTL).UTC()

	user, err := e.store.UpdateUser(ctx, claims.UID, func(u *User) error {
		if u.RefreshTokenExpiry == nil || !now.Before(*u.RefreshTokenExpiry) {
			return ErrTokenInvalid
		}
		if !internal.TokenMatches(refreshToken, u.RefreshTokenHash) {
			return ErrTokenInvalid
		}
		if isLockedOut(u, now) {
			return ErrLockedOut
		}
		u.RefreshTokenHash = internal.HashToken(next)
		u.RefreshTokenExpiry = &expiry
		return nil
	})
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		if isNotFound(err) {
			err = ErrTokenInvalid
		}
		e.emitAudit(ctx, auditEventRefreshInvalid, false, claims.UID, "", err, reason("refresh_token"))
		return nil, storeErr(err)
	}

	access, expiresAt, err := e.jwt.Mint(subjectOf(user))
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, user.ID, "", nil, nil)
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: next,
		Expiration:   expiresAt.UTC(),
		TokenType:    tokenTypeBearer,
	}, nil
}

// RevokeRefresh clears the stored refresh token. Access tokens already
// handed out stay valid until they expire.
func (e *Engine) RevokeRefresh(ctx context.Context, userID string) error {
	_, err := e.store.UpdateUser(ctx, userID, func(u *User) error {
		u.RefreshTokenHash = nil
		u.RefreshTokenExpiry = nil
		return nil
	})
	if err != nil {
		return storeErr(err)
	}
	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventRefreshRevoked, true, userID, "", nil, nil)
	return nil
}

// ValidateAccess verifies signature, issuer, audience and expiry of a bearer
// token and returns the identity it carries. It does not touch the store.
func (e *Engine) ValidateAccess(ctx context.Context, token string) (*Principal, error) {
	if e == nil || e.jwt == nil {
		return nil, ErrEngineNotReady
	}
	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricValidateLatency, time.Since(start)) }()
	}

	claims, err := e.jwt.Parse(token)
	if err != nil {
		if errors.Is(err, jwt.ErrInvalidToken) {
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	return principalFromClaims(claims), nil
}

func subjectOf(u *User) jwt.Subject {
	s := jwt.Subject{
		UserID:        u.ID,
		Email:         u.Email,
		UserName:      u.UserName,
		Roles:         append([]string(nil), u.Roles...),
		EmailVerified: u.EmailConfirmed,
		Birthdate:     cloneTime(u.DateOfBirth),
	}
	if len(u.Claims) > 0 {
		s.Custom = make(map[string]string, len(u.Claims))
		for _, c := range u.Claims {
			s.Custom[c.Type] = c.Value
		}
	}
	return s
}

func principalFromClaims(c *jwt.AccessClaims) *Principal {
	p := &Principal{
		UserID:         c.UID,
		Email:          c.Email,
		UserName:       c.Name,
		Roles:          append([]string(nil), c.Roles...),
		EmailConfirmed: c.EmailVerified,
	}
	if c.Birthdate != "" {
		if dob, err := time.Parse(time.DateOnly, c.Birthdate); err == nil {
			p.DateOfBirth = &dob
		}
	}
	for k, v := range c.Custom {
		p.Claims = append(p.Claims, Claim{Type: k, Value: v})
	}
	sort.Slice(p.Claims, func(i, j int) bool { return p.Claims[i].Type < p.Claims[j].Type })
	return p
}
