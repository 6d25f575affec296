package shopauth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const totpSecretBytes = 20

var totpEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// totpManager implements RFC 6238 with HMAC-SHA1, the variant every
// authenticator app supports.
type totpManager struct {
	config TOTPConfig
}

func newTOTPManager(cfg TOTPConfig) *totpManager {
	return &totpManager{config: cfg}
}

// GenerateKey returns a fresh base32 authenticator key.
func (m *totpManager) GenerateKey() (string, error) {
	raw := make([]byte, totpSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return totpEncoding.EncodeToString(raw), nil
}

// ProvisionURI builds the otpauth:// URI rendered as a QR code.
func (m *totpManager) ProvisionURI(key, account string) string {
	issuer := m.config.Issuer
	label := url.PathEscape(issuer) + ":" + url.PathEscape(account)

	v := url.Values{}
	v.Set("secret", key)
	v.Set("issuer", issuer)
	v.Set("digits", strconv.Itoa(m.config.Digits))
	v.Set("period", strconv.Itoa(m.config.Period))

	return "otpauth://totp/" + label + "?" + v.Encode()
}

// formatSharedKey renders key in lowercase groups of four for manual entry.
func formatSharedKey(key string) string {
	key = strings.ToLower(key)
	var b strings.Builder
	for i := 0; i < len(key); i += 4 {
		if i > 0 {
			b.WriteByte(' ')
		}
		end := i + 4
		if end > len(key) {
			end = len(key)
		}
		b.WriteString(key[i:end])
	}
	return b.String()
}

// normalizeTOTPCode drops the spaces and dashes users type or paste.
func normalizeTOTPCode(code string) string {
	return strings.Map(func(r rune) rune {
		if r == '-' || r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			return -1
		}
		return r
	}, code)
}

// VerifyCode checks code against key within ±Skew periods of now.
func (m *totpManager) VerifyCode(key, code string, now time.Time) (bool, error) {
	code = normalizeTOTPCode(code)
	if len(code) != m.config.Digits || !isNumericString(code) {
		return false, nil
	}

	secret, err := totpEncoding.DecodeString(strings.ToUpper(strings.TrimRight(key, "=")))
	if err != nil || len(secret) == 0 {
		return false, errors.New("invalid authenticator key")
	}

	baseCounter := now.Unix() / int64(m.config.Period)
	for step := -m.config.Skew; step <= m.config.Skew; step++ {
		counter := baseCounter + int64(step)
		if counter < 0 {
			continue
		}
		generated := hotpCode(secret, counter, m.config.Digits)
		if subtle.ConstantTimeCompare([]byte(generated), []byte(code)) == 1 {
			return true, nil
		}
	}
	return false, nil
}

// codeAt returns the code for the period containing t.
func (m *totpManager) codeAt(key string, t time.Time) (string, error) {
	secret, err := totpEncoding.DecodeString(strings.ToUpper(key))
	if err != nil {
		return "", err
	}
	return hotpCode(secret, t.Unix()/int64(m.config.Period), m.config.Digits), nil
}

func hotpCode(secret []byte, counter int64, digits int) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	mac := hmac.New(sha1.New, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	mod := 1
	for i := 0; i < digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", digits, bin%mod)
}

func isNumericString(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
