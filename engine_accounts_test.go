package shopauth_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/shopauth"
)

func TestRegisterPendsConfirmationAndMailsLink(t *testing.T) {
	env := newTestEnv(t)
	res := env.register(t, "alice@example.com")

	u := env.user(t, res.UserID)
	if u.EmailConfirmed {
		t.Fatal("new account must start unconfirmed")
	}
	if !u.InRole(shopauth.RoleUser) {
		t.Fatalf("roles = %v, want User", u.Roles)
	}

	mail := env.mailer.lastConfirmation(t)
	if mail.To != "alice@example.com" {
		t.Fatalf("mail to = %q", mail.To)
	}
	if !strings.HasPrefix(mail.Link, "http://localhost:8080/Account/ConfirmEmail?userId=") {
		t.Fatalf("unexpected link %q", mail.Link)
	}
	q := linkQuery(t, mail.Link)
	if q.Get("userId") != res.UserID || q.Get("code") == "" {
		t.Fatalf("link query = %v", q)
	}

	// no session: signing in is refused until confirmed
	r, err := env.engine.PasswordSignIn(context.Background(), "alice@example.com", testPassword)
	expectStatus(t, r, err, shopauth.SignInNotAllowed)
}

func TestRegisterReportsEveryProblem(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "taken@example.com")

	_, err := env.engine.Register(context.Background(), shopauth.RegisterRequest{
		Profile:         shopauth.Profile{Email: "taken@example.com"},
		Password:        "short",
		ConfirmPassword: "other",
	})
	var verr *shopauth.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	fields := map[string]bool{}
	for _, fe := range verr.Errors {
		fields[fe.Field] = true
	}
	for _, f := range []string{"FirstName", "LastName", "Password", "ConfirmPassword", "Email"} {
		if !fields[f] {
			t.Errorf("missing problem for %s in %+v", f, verr.Errors)
		}
	}
}

func TestRegisterKeepsUserWhenMailFails(t *testing.T) {
	env := newTestEnv(t)
	env.mailer.fail = errSMTPDown

	res, err := env.engine.Register(context.Background(), shopauth.RegisterRequest{
		Profile:         shopauth.Profile{FirstName: "Alice", LastName: "Smith", Email: "alice@example.com"},
		Password:        testPassword,
		ConfirmPassword: testPassword,
	})
	if !errors.Is(err, shopauth.ErrDeliveryFailure) {
		t.Fatalf("expected ErrDeliveryFailure, got %v", err)
	}
	if res == nil {
		t.Fatal("result must be returned with a delivery failure")
	}
	env.user(t, res.UserID)

	env.mailer.fail = nil
	if err := env.engine.ResendConfirmation(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("resend: %v", err)
	}
	env.mailer.lastConfirmation(t)
}

func TestConfirmEmailWorksOnce(t *testing.T) {
	env := newTestEnv(t)
	res := env.register(t, "alice@example.com")
	q := linkQuery(t, env.mailer.lastConfirmation(t).Link)
	ctx := context.Background()

	if err := env.engine.ConfirmEmail(ctx, res.UserID, "garbage"); !errors.Is(err, shopauth.ErrTokenInvalid) {
		t.Fatalf("bad code: expected ErrTokenInvalid, got %v", err)
	}
	if err := env.engine.ConfirmEmail(ctx, "no-such-user", q.Get("code")); !errors.Is(err, shopauth.ErrUserNotFound) {
		t.Fatalf("unknown user: expected ErrUserNotFound, got %v", err)
	}
	if err := env.engine.ConfirmEmail(ctx, res.UserID, q.Get("code")); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !env.user(t, res.UserID).EmailConfirmed {
		t.Fatal("email not confirmed")
	}
	if err := env.engine.ConfirmEmail(ctx, res.UserID, q.Get("code")); !errors.Is(err, shopauth.ErrTokenInvalid) {
		t.Fatalf("second use: expected ErrTokenInvalid, got %v", err)
	}
}

func TestResetTokenIsSingleUse(t *testing.T) {
	env := newTestEnv(t)
	u := env.registerConfirmed(t, "alice@example.com")
	ctx := context.Background()

	if err := env.engine.ForgotPassword(ctx, "alice@example.com"); err != nil {
		t.Fatalf("forgot: %v", err)
	}
	mail := env.mailer.lastReset(t)
	if !strings.HasPrefix(mail.Link, "http://localhost:8080/Account/ResetPassword?code=") {
		t.Fatalf("unexpected link %q", mail.Link)
	}
	code := linkQuery(t, mail.Link).Get("code")

	sess, err := env.engine.SignIn(ctx, u, false)
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}

	if err := env.engine.ResetPassword(ctx, "alice@example.com", code, "N3w!Password"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := env.engine.ResetPassword(ctx, "alice@example.com", code, "An0ther!Pass"); !errors.Is(err, shopauth.ErrTokenInvalid) {
		t.Fatalf("second use: expected ErrTokenInvalid, got %v", err)
	}

	r, err := env.engine.PasswordSignIn(ctx, "alice@example.com", "N3w!Password")
	expectStatus(t, r, err, shopauth.SignInSucceeded)
	if _, err := env.engine.Authenticate(ctx, sess.SessionID); !errors.Is(err, shopauth.ErrSessionInvalid) {
		t.Fatalf("old session: expected ErrSessionInvalid, got %v", err)
	}
}

func TestResetPasswordPolicyAndUnknownEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var verr *shopauth.ValidationError
	if err := env.engine.ResetPassword(ctx, "ghost@example.com", "x", "weak"); !errors.As(err, &verr) {
		t.Fatalf("weak password: expected *ValidationError, got %v", err)
	}
	if err := env.engine.ResetPassword(ctx, "ghost@example.com", "x", "N3w!Password"); err != nil {
		t.Fatalf("unknown email must succeed silently, got %v", err)
	}
}

func TestForgotPasswordSilentForUnknownAndUnconfirmed(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "pending@example.com")
	ctx := context.Background()

	for _, email := range []string{"ghost@example.com", "pending@example.com"} {
		if err := env.engine.ForgotPassword(ctx, email); err != nil {
			t.Fatalf("%s: %v", email, err)
		}
	}
	if len(env.mailer.resets) != 0 {
		t.Fatalf("sent %d reset mails, want 0", len(env.mailer.resets))
	}
}

func TestMailFlowsSurfaceDeliveryFailure(t *testing.T) {
	env := newTestEnv(t)
	env.registerConfirmed(t, "alice@example.com")
	env.register(t, "pending@example.com")
	ctx := context.Background()
	env.mailer.fail = errSMTPDown

	if err := env.engine.ForgotPassword(ctx, "alice@example.com"); !errors.Is(err, shopauth.ErrDeliveryFailure) {
		t.Fatalf("forgot: expected ErrDeliveryFailure, got %v", err)
	}
	if err := env.engine.ResendConfirmation(ctx, "pending@example.com"); !errors.Is(err, shopauth.ErrDeliveryFailure) {
		t.Fatalf("resend: expected ErrDeliveryFailure, got %v", err)
	}

	// paths that never reach the mailer stay silent
	if err := env.engine.ForgotPassword(ctx, "ghost@example.com"); err != nil {
		t.Fatalf("unknown email: %v", err)
	}
	if err := env.engine.ForgotPassword(ctx, "pending@example.com"); err != nil {
		t.Fatalf("unconfirmed email: %v", err)
	}
	if err := env.engine.ResendConfirmation(ctx, "alice@example.com"); err != nil {
		t.Fatalf("confirmed email: %v", err)
	}
}

func TestChangePasswordItemizesProblems(t *testing.T) {
	env := newTestEnv(t)
	u := env.registerConfirmed(t, "alice@example.com")

	err := env.engine.ChangePassword(context.Background(), u.ID, "wrong", "weak")
	var verr *shopauth.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	var sawOld, sawNew bool
	for _, fe := range verr.Errors {
		switch fe.Field {
		case "OldPassword":
			sawOld = fe.Message == "Incorrect password."
		case "NewPassword":
			sawNew = true
		}
	}
	if !sawOld || !sawNew {
		t.Fatalf("errors = %+v", verr.Errors)
	}
}

func TestRolesAndBootstrapAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	admin, created, err := env.engine.BootstrapAdmin(ctx, "admin@example.com", "Adm1n!Secret")
	if err != nil || !created {
		t.Fatalf("bootstrap: created=%v err=%v", created, err)
	}
	if !admin.EmailConfirmed || !admin.InRole(shopauth.RoleAdmin) {
		t.Fatalf("admin = %+v", admin)
	}
	if _, created, err := env.engine.BootstrapAdmin(ctx, "admin@example.com", "Adm1n!Secret"); err != nil || created {
		t.Fatalf("second bootstrap: created=%v err=%v", created, err)
	}

	if _, err := env.engine.CreateRole(ctx, "Auditor", "Read-only"); err != nil {
		t.Fatalf("create role: %v", err)
	}
	if _, err := env.engine.CreateRole(ctx, "auditor", ""); !errors.Is(err, shopauth.ErrRoleExists) {
		t.Fatalf("duplicate role: expected ErrRoleExists, got %v", err)
	}
	if err := env.engine.DeleteRole(ctx, shopauth.RoleAdmin); !errors.Is(err, shopauth.ErrRoleInUse) {
		t.Fatalf("delete held role: expected ErrRoleInUse, got %v", err)
	}
	if err := env.engine.DeleteRole(ctx, "Auditor"); err != nil {
		t.Fatalf("delete role: %v", err)
	}
	roles, err := env.engine.Roles(ctx)
	if err != nil {
		t.Fatalf("roles: %v", err)
	}
	if len(roles) != 4 {
		t.Fatalf("roles = %v, want the four built-ins", roles)
	}
}

func TestProfileView(t *testing.T) {
	env := newTestEnv(t)
	u := env.registerConfirmed(t, "alice@example.com")

	p, err := env.engine.Profile(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if p.FullName != "Alice Smith" || !p.HasPassword || p.TwoFactorEnabled {
		t.Fatalf("profile = %+v", p)
	}
	if _, err := env.engine.Profile(context.Background(), "missing"); !errors.Is(err, shopauth.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestMailFlowsAreThrottledSilently(t *testing.T) {
	env := newTestEnv(t, func(c *shopauth.Config) {
		c.FlowThrottle.MaxPerEmail = 2
	})
	env.registerConfirmed(t, "alice@example.com")
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if err := env.engine.ForgotPassword(ctx, "alice@example.com"); err != nil {
			t.Fatalf("forgot %d: %v", i, err)
		}
	}
	if len(env.mailer.resets) != 2 {
		t.Fatalf("sent %d reset mails, want 2", len(env.mailer.resets))
	}

	env.redis.FastForward(shopauth.DefaultConfig().FlowThrottle.Window + time.Second)
	if err := env.engine.ForgotPassword(ctx, "alice@example.com"); err != nil {
		t.Fatal(err)
	}
	if len(env.mailer.resets) != 3 {
		t.Fatalf("window did not reset: %d mails", len(env.mailer.resets))
	}
}

func TestRegisterThrottledPerIP(t *testing.T) {
	env := newTestEnv(t, func(c *shopauth.Config) {
		c.FlowThrottle.MaxPerIP = 1
	})
	ctx := shopauth.WithClientIP(context.Background(), "10.0.0.9")

	req := func(email string) shopauth.RegisterRequest {
		return shopauth.RegisterRequest{
			Profile: shopauth.Profile{
				Email:     email,
				FirstName: "Test",
				LastName:  "User",
			},
			Password:        testPassword,
			ConfirmPassword: testPassword,
		}
	}
	if _, err := env.engine.Register(ctx, req("one@example.com")); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, err := env.engine.Register(ctx, req("two@example.com")); !errors.Is(err, shopauth.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}
