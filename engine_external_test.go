package shopauth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrEthical07/shopauth"
)

func googleIdentity() shopauth.ExternalIdentity {
	return shopauth.ExternalIdentity{
		Provider:    "Google",
		ProviderKey: "g-1001",
		Email:       "bob@example.com",
		GivenName:   "Bob",
		FamilyName:  "Jones",
	}
}

func TestExternalCallbackThenConfirmation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := googleIdentity()

	res, err := env.engine.ExternalSignIn(ctx, id)
	if err != nil {
		t.Fatalf("external sign-in: %v", err)
	}
	if !res.NeedsRegistration || res.Identity.Email != "bob@example.com" {
		t.Fatalf("result = %+v", res)
	}

	cid, err := env.engine.BeginExternalRegistration(ctx, res.Identity)
	if err != nil {
		t.Fatalf("park identity: %v", err)
	}
	pending, err := env.engine.PendingExternalLogin(ctx, cid)
	if err != nil || pending.ProviderKey != "g-1001" {
		t.Fatalf("pending = %+v, %v", pending, err)
	}

	user, err := env.engine.CompleteExternalRegistrationChallenge(ctx, cid, shopauth.Profile{
		FirstName: "Bob",
		LastName:  "Jones",
		Email:     "bob@example.com",
	})
	if err != nil {
		t.Fatalf("complete registration: %v", err)
	}
	if !user.EmailConfirmed || user.HasPassword() || !user.InRole(shopauth.RoleUser) {
		t.Fatalf("user = %+v", user)
	}

	sess, err := env.engine.SignIn(ctx, user, false)
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	p, err := env.engine.Authenticate(ctx, sess.SessionID)
	if err != nil || p.Email != "bob@example.com" {
		t.Fatalf("principal = %+v, %v", p, err)
	}

	again, err := env.engine.ExternalSignIn(ctx, id)
	if err != nil || again.Status != shopauth.SignInSucceeded || again.User.ID != user.ID {
		t.Fatalf("linked sign-in = %+v, %v", again, err)
	}
	if _, err := env.engine.PendingExternalLogin(ctx, cid); !errors.Is(err, shopauth.ErrSessionInvalid) {
		t.Fatalf("consumed challenge: expected ErrSessionInvalid, got %v", err)
	}
}

func TestExternalRegistrationValidationKeepsChallenge(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cid, err := env.engine.BeginExternalRegistration(ctx, googleIdentity())
	if err != nil {
		t.Fatalf("park identity: %v", err)
	}
	_, err = env.engine.CompleteExternalRegistrationChallenge(ctx, cid, shopauth.Profile{Email: "bob@example.com"})
	var verr *shopauth.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if _, err := env.engine.CompleteExternalRegistration(ctx, shopauth.Profile{
		FirstName: "Bob", LastName: "Jones", Email: "bob@example.com",
	}, googleIdentity()); err != nil {
		t.Fatalf("direct registration: %v", err)
	}
	_, err = env.engine.CompleteExternalRegistration(ctx, shopauth.Profile{
		FirstName: "Rob", LastName: "Jones", Email: "rob@example.com",
	}, googleIdentity())
	if !errors.Is(err, shopauth.ErrExternalLoginTaken) {
		t.Fatalf("relinking: expected ErrExternalLoginTaken, got %v", err)
	}
}

func TestExternalSignInSkipsTwoFactorButHonoursLockout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user, err := env.engine.CompleteExternalRegistration(ctx, shopauth.Profile{
		FirstName: "Bob", LastName: "Jones", Email: "bob@example.com",
	}, googleIdentity())
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	enableTwoFactor(t, env, user)

	res, err := env.engine.ExternalSignIn(ctx, googleIdentity())
	if err != nil || res.Status != shopauth.SignInSucceeded {
		t.Fatalf("2fa user external sign-in = %+v, %v", res, err)
	}

	for i := 0; i < 5; i++ {
		_, _ = env.engine.TwoFactorSignIn(ctx, user.ID, "000000")
	}
	res, err = env.engine.ExternalSignIn(ctx, googleIdentity())
	if err != nil || res.Status != shopauth.SignInLockedOut {
		t.Fatalf("locked user external sign-in = %+v, %v", res, err)
	}
}

func TestOAuthStateVerifiesOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	state, err := env.engine.BeginOAuth(ctx, "Google", "/Cart")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := env.engine.VerifyOAuthState(ctx, "Facebook", state); !errors.Is(err, shopauth.ErrTokenInvalid) {
		t.Fatalf("wrong provider: expected ErrTokenInvalid, got %v", err)
	}

	state, _ = env.engine.BeginOAuth(ctx, "Google", "/Cart")
	ret, err := env.engine.VerifyOAuthState(ctx, "google", state)
	if err != nil || ret != "/Cart" {
		t.Fatalf("verify = %q, %v", ret, err)
	}
	if _, err := env.engine.VerifyOAuthState(ctx, "Google", state); !errors.Is(err, shopauth.ErrSessionInvalid) {
		t.Fatalf("replay: expected ErrSessionInvalid, got %v", err)
	}
}
