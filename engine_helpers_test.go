package shopauth_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/shopauth"
	"github.com/MrEthical07/shopauth/store/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testPassword = "Str0ng!Pass"

type sentMail struct {
	To   string
	Name string
	Link string
}

type fakeMailer struct {
	mu            sync.Mutex
	confirmations []sentMail
	resets        []sentMail
	fail          error
}

func (m *fakeMailer) SendConfirmationEmail(_ context.Context, to, name, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.confirmations = append(m.confirmations, sentMail{To: to, Name: name, Link: link})
	return nil
}

func (m *fakeMailer) SendPasswordResetEmail(_ context.Context, to, name, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.resets = append(m.resets, sentMail{To: to, Name: name, Link: link})
	return nil
}

func (m *fakeMailer) lastConfirmation(t *testing.T) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.confirmations) == 0 {
		t.Fatal("no confirmation mail sent")
	}
	return m.confirmations[len(m.confirmations)-1]
}

func (m *fakeMailer) lastReset(t *testing.T) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.resets) == 0 {
		t.Fatal("no reset mail sent")
	}
	return m.resets[len(m.resets)-1]
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	engine *shopauth.Engine
	store  *memory.Store
	mailer *fakeMailer
	clock  *testClock
	redis  *miniredis.Miniredis
}

func testConfig() shopauth.Config {
	cfg := shopauth.DefaultConfig()
	cfg.JWT.Secret = []byte("0123456789abcdef0123456789abcdef")
	cfg.PurposeTokens.Secret = []byte("fedcba9876543210fedcba9876543210")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Audit.Enabled = false
	return cfg
}

func newTestEnv(t *testing.T, mutate ...func(*shopauth.Config)) *testEnv {
	t.Helper()
	cfg := testConfig()
	for _, m := range mutate {
		m(&cfg)
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	env := &testEnv{
		store:  memory.New(),
		mailer: &fakeMailer{},
		clock:  &testClock{now: time.Now().UTC().Truncate(time.Second)},
		redis:  mr,
	}
	engine, err := shopauth.New().
		WithConfig(cfg).
		WithStore(env.store).
		WithRedis(rdb).
		WithMailer(env.mailer).
		WithClock(env.clock.Now).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)
	env.engine = engine

	if err := engine.EnsureRoles(context.Background()); err != nil {
		t.Fatalf("ensure roles: %v", err)
	}
	return env
}

func (env *testEnv) register(t *testing.T, email string) *shopauth.RegisterResult {
	t.Helper()
	res, err := env.engine.Register(context.Background(), shopauth.RegisterRequest{
		Profile: shopauth.Profile{
			FirstName: "Alice",
			LastName:  "Smith",
			Email:     email,
		},
		Password:        testPassword,
		ConfirmPassword: testPassword,
	})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return res
}

// registerConfirmed registers email and follows the mailed confirmation link.
func (env *testEnv) registerConfirmed(t *testing.T, email string) *shopauth.User {
	t.Helper()
	res := env.register(t, email)
	q := linkQuery(t, env.mailer.lastConfirmation(t).Link)
	if err := env.engine.ConfirmEmail(context.Background(), q.Get("userId"), q.Get("code")); err != nil {
		t.Fatalf("confirm %s: %v", email, err)
	}
	return env.user(t, res.UserID)
}

func (env *testEnv) user(t *testing.T, id string) *shopauth.User {
	t.Helper()
	u, err := env.store.GetUserByID(context.Background(), id)
	if err != nil {
		t.Fatalf("load user %s: %v", id, err)
	}
	return u
}

func linkQuery(t *testing.T, link string) url.Values {
	t.Helper()
	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("parse link %q: %v", link, err)
	}
	return u.Query()
}

// totpCode computes the six-digit RFC 6238 code for key at now.
func totpCode(t *testing.T, key string, now time.Time) string {
	t.Helper()
	secret, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.ToUpper(key))
	if err != nil {
		t.Fatalf("decode key: %v", err)
	}
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(now.Unix()/30))
	m := hmac.New(sha1.New, secret)
	m.Write(msg[:])
	sum := m.Sum(nil)
	off := sum[len(sum)-1] & 0x0f
	bin := binary.BigEndian.Uint32(sum[off:off+4]) & 0x7fffffff
	return fmt.Sprintf("%06d", bin%1_000_000)
}

func expectStatus(t *testing.T, res *shopauth.SignInResult, err error, want shopauth.SignInStatus) {
	t.Helper()
	if err != nil {
		t.Fatalf("sign-in error: %v", err)
	}
	if res.Status != want {
		t.Fatalf("status = %v, want %v", res.Status, want)
	}
}

var errSMTPDown = errors.New("smtp: connection refused")
