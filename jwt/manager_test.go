package jwt

import (
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newTestManager(t *testing.T, clock *fakeClock) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		Secret:    testSecret,
		Issuer:    "shopauth",
		Audience:  "shopauth-api",
		AccessTTL: time.Hour,
		Now:       clock.Now,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestMintAndParse(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	m := newTestManager(t, clock)
	dob := time.Date(1990, 4, 2, 0, 0, 0, 0, time.UTC)

	token, expires, err := m.Mint(Subject{
		UserID:        "u1",
		Email:         "alice@example.com",
		UserName:      "alice@example.com",
		Roles:         []string{"User"},
		EmailVerified: true,
		Birthdate:     &dob,
		Custom:        map[string]string{"Department": "Sales"},
	})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if !expires.Equal(clock.now.Add(time.Hour)) {
		t.Fatalf("unexpected expiry %v", expires)
	}

	claims, err := m.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UID != "u1" || claims.Subject != "alice@example.com" || claims.Name != "alice@example.com" {
		t.Fatalf("unexpected identity claims: %+v", claims)
	}
	if claims.ID == "" {
		t.Fatal("expected jti")
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != "User" {
		t.Fatalf("unexpected roles: %v", claims.Roles)
	}
	if !claims.EmailVerified || claims.Birthdate != "1990-04-02" {
		t.Fatalf("unexpected typed claims: %+v", claims)
	}
	if claims.Custom["Department"] != "Sales" {
		t.Fatalf("unexpected custom claims: %v", claims.Custom)
	}
}

func TestMintUniqueTokenIDs(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	m := newTestManager(t, clock)

	a, _, _ := m.Mint(Subject{UserID: "u1"})
	b, _, _ := m.Mint(Subject{UserID: "u1"})
	ca, _ := m.Parse(a)
	cb, _ := m.Parse(b)
	if ca.ID == cb.ID {
		t.Fatal("expected distinct jti values")
	}
}

func TestParseRejectsExpiredWithoutSkew(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	m := newTestManager(t, clock)

	token, _, err := m.Mint(Subject{UserID: "u1"})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	clock.now = clock.now.Add(time.Hour + time.Second)
	_, err = m.Parse(token)
	if !errors.Is(err, ErrInvalidToken) || !errors.Is(err, gjwt.ErrTokenExpired) {
		t.Fatalf("expected expired token error, got %v", err)
	}

	claims, err := m.ParseExpired(token)
	if err != nil {
		t.Fatalf("ParseExpired: %v", err)
	}
	if claims.UID != "u1" {
		t.Fatalf("unexpected uid %q", claims.UID)
	}
}

func TestParseExpiredStillChecksSignatureIssuerAudience(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	m := newTestManager(t, clock)

	other, err := NewManager(Config{
		Secret:    []byte("ffffffffffffffffffffffffffffffff"),
		Issuer:    "shopauth",
		Audience:  "shopauth-api",
		AccessTTL: time.Hour,
		Now:       clock.Now,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	forged, _, _ := other.Mint(Subject{UserID: "u1"})
	if _, err := m.ParseExpired(forged); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected forged token rejection, got %v", err)
	}

	wrongIssuer, err := NewManager(Config{
		Secret:    testSecret,
		Issuer:    "someone-else",
		Audience:  "shopauth-api",
		AccessTTL: time.Hour,
		Now:       clock.Now,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	token, _, _ := wrongIssuer.Mint(Subject{UserID: "u1"})
	if _, err := m.ParseExpired(token); !errors.Is(err, gjwt.ErrTokenInvalidIssuer) {
		t.Fatalf("expected issuer rejection, got %v", err)
	}

	wrongAudience, err := NewManager(Config{
		Secret:    testSecret,
		Issuer:    "shopauth",
		Audience:  "other-api",
		AccessTTL: time.Hour,
		Now:       clock.Now,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	token, _, _ = wrongAudience.Mint(Subject{UserID: "u1"})
	if _, err := m.ParseExpired(token); !errors.Is(err, gjwt.ErrTokenInvalidAudience) {
		t.Fatalf("expected audience rejection, got %v", err)
	}
	if _, err := m.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected Parse to reject wrong audience, got %v", err)
	}
}

func TestParseRejectsOtherAlgorithms(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	m := newTestManager(t, clock)

	claims := AccessClaims{
		UID: "u1",
		RegisteredClaims: gjwt.RegisteredClaims{
			Issuer:    "shopauth",
			Audience:  gjwt.ClaimStrings{"shopauth-api"},
			ExpiresAt: gjwt.NewNumericDate(clock.now.Add(time.Minute)),
		},
	}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS512, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := m.Parse(token); err == nil {
		t.Fatal("expected HS512 token to be rejected")
	}
	if _, err := m.ParseExpired(token); err == nil {
		t.Fatal("expected HS512 token to be rejected by ParseExpired")
	}
}

func TestNewManagerValidation(t *testing.T) {
	if _, err := NewManager(Config{Secret: []byte("short"), Issuer: "i", Audience: "a", AccessTTL: time.Minute}); err == nil {
		t.Fatal("expected short secret to be rejected")
	}
	if _, err := NewManager(Config{Secret: testSecret, Issuer: "i", Audience: "a"}); err == nil {
		t.Fatal("expected zero TTL to be rejected")
	}
	if _, err := NewManager(Config{Secret: testSecret, AccessTTL: time.Minute}); err == nil {
		t.Fatal("expected missing issuer/audience to be rejected")
	}
}
