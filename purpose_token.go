package shopauth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"time"
)

// Token purposes. A token minted for one purpose never validates for another.
const (
	PurposeEmailConfirmation = "EmailConfirmation"
	PurposeResetPassword     = "ResetPassword"
)

const purposeCounterSize = 8

// purposeTokens mints stateless single-use tokens:
//
//	base64url(counter || HMAC-SHA256(secret, purpose 0 userID 0 stamp 0 counter))
//
// where counter is the issue time in whole Steps. Tokens die when the
// user's security stamp rotates, which every successful consume does.
type purposeTokens struct {
	secret   []byte
	step     time.Duration
	lifetime time.Duration
}

func newPurposeTokens(cfg PurposeTokenConfig) *purposeTokens {
	return &purposeTokens{
		secret:   cloneBytes(cfg.Secret),
		step:     cfg.Step,
		lifetime: cfg.Lifetime,
	}
}

func (p *purposeTokens) counter(t time.Time) uint64 {
	return uint64(t.Unix() / int64(p.step/time.Second))
}

func (p *purposeTokens) mac(purpose string, u *User, counter uint64) []byte {
	m := hmac.New(sha256.New, p.secret)
	m.Write([]byte(purpose))
	m.Write([]byte{0})
	m.Write([]byte(u.ID))
	m.Write([]byte{0})
	m.Write([]byte(u.SecurityStamp))
	m.Write([]byte{0})
	var c [purposeCounterSize]byte
	binary.BigEndian.PutUint64(c[:], counter)
	m.Write(c[:])
	return m.Sum(nil)
}

func (p *purposeTokens) issue(u *User, purpose string, now time.Time) string {
	counter := p.counter(now)
	raw := make([]byte, purposeCounterSize, purposeCounterSize+sha256.Size)
	binary.BigEndian.PutUint64(raw, counter)
	raw = append(raw, p.mac(purpose, u, counter)...)
	return base64.RawURLEncoding.EncodeToString(raw)
}

func (p *purposeTokens) validate(u *User, purpose, token string, now time.Time) bool {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) != purposeCounterSize+sha256.Size {
		return false
	}
	counter := binary.BigEndian.Uint64(raw[:purposeCounterSize])

	current := p.counter(now)
	if counter > current {
		return false
	}
	if current-counter >= uint64(p.lifetime/p.step) {
		return false
	}
	return hmac.Equal(raw[purposeCounterSize:], p.mac(purpose, u, counter))
}
