package shopauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/shopauth/session"
	"go.uber.org/zap"
)

// PendingExternalTTL bounds how long an unlinked identity waits for the
// registration form.
const PendingExternalTTL = 15 * time.Minute

const oauthStateTTL = 10 * time.Minute

// ExternalIdentity is what a provider callback tells us about the user.
// Email, GivenName and FamilyName are hints for the registration form.
type ExternalIdentity struct {
	Provider    string
	ProviderKey string
	Email       string
	GivenName   string
	FamilyName  string
}

// ExternalSignInResult is the outcome of ExternalSignIn. When
// NeedsRegistration is set, Status is SignInFailed and Identity carries the
// provider's hints.
type ExternalSignInResult struct {
	Status            SignInStatus
	User              *User
	NeedsRegistration bool
	Identity          ExternalIdentity
}

// ExternalSignIn signs in the user linked to id. Two-factor is not asked
// for; lockout, email confirmation and soft deletion still apply.
func (e *Engine) ExternalSignIn(ctx context.Context, id ExternalIdentity) (*ExternalSignInResult, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if id.Provider == "" || id.ProviderKey == "" {
		return nil, fmt.Errorf("%w: missing provider identity", ErrTokenInvalid)
	}

	user, err := e.store.GetUserByLogin(ctx, id.Provider, id.ProviderKey)
	if err != nil {
		if isNotFound(err) {
			return &ExternalSignInResult{Status: SignInFailed, NeedsRegistration: true, Identity: id}, nil
		}
		return nil, storeErr(err)
	}

	if isLockedOut(user, e.now()) {
		e.metricInc(MetricLoginLockedOut)
		e.emitAudit(ctx, auditEventLoginLockedOut, false, user.ID, "", ErrLockedOut, reason("external"))
		return &ExternalSignInResult{Status: SignInLockedOut, Identity: id}, nil
	}
	if e.config.SignIn.RequireConfirmedEmail && !user.EmailConfirmed {
		e.metricInc(MetricLoginNotAllowed)
		e.emitAudit(ctx, auditEventLoginNotAllowed, false, user.ID, "", ErrNotAllowed, reason("email_unconfirmed"))
		return &ExternalSignInResult{Status: SignInNotAllowed, Identity: id}, nil
	}

	res, err := e.completeSignIn(ctx, user, user.Email)
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricExternalLoginSuccess)
	e.emitAudit(ctx, auditEventExternalLoginSuccess, true, user.ID, "", nil, func() map[string]string {
		return map[string]string{"provider": id.Provider}
	})
	return &ExternalSignInResult{Status: res.Status, User: res.User, Identity: id}, nil
}

// CompleteExternalRegistration creates a confirmed, password-less user in
// the User role and links id to it. The caller signs the user in.
func (e *Engine) CompleteExternalRegistration(ctx context.Context, profile Profile, id ExternalIdentity) (*User, error) {
	if id.Provider == "" || id.ProviderKey == "" {
		return nil, fmt.Errorf("%w: missing provider identity", ErrTokenInvalid)
	}
	displayName := strings.TrimSpace(id.GivenName + " " + id.FamilyName)
	user, err := e.createUser(ctx, profile, "", createOptions{
		confirmed: true,
		roles:     []string{RoleUser},
		logins: []ExternalLogin{{
			Provider:    id.Provider,
			ProviderKey: id.ProviderKey,
			DisplayName: displayName,
		}},
	})
	if err != nil {
		if errors.Is(err, ErrExternalLoginTaken) {
			e.emitAudit(ctx, auditEventExternalLoginUnlinked, false, "", "", err, nil)
		}
		return nil, err
	}

	e.metricInc(MetricExternalLoginRegistration)
	e.emitAudit(ctx, auditEventExternalRegistration, true, user.ID, "", nil, func() map[string]string {
		return map[string]string{"provider": id.Provider}
	})
	return user, nil
}

// BeginExternalRegistration parks an unlinked identity while the user fills
// in the confirmation form. The returned id goes into the external cookie.
func (e *Engine) BeginExternalRegistration(ctx context.Context, id ExternalIdentity) (string, error) {
	cid, err := e.challenges.Create(ctx, &session.Challenge{
		Kind:        session.ChallengeExternalLogin,
		Provider:    id.Provider,
		ProviderKey: id.ProviderKey,
		Email:       id.Email,
		GivenName:   id.GivenName,
		FamilyName:  id.FamilyName,
	}, PendingExternalTTL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return cid, nil
}

// PendingExternalLogin returns the identity parked under challengeID.
func (e *Engine) PendingExternalLogin(ctx context.Context, challengeID string) (*ExternalIdentity, error) {
	ch, err := e.challenges.Get(ctx, session.ChallengeExternalLogin, challengeID)
	if err != nil {
		return nil, challengeErr(err)
	}
	return identityFromChallenge(ch), nil
}

// CompleteExternalRegistrationChallenge consumes the parked identity and
// registers it with profile. A validation failure puts the identity back
// so the form can be resubmitted.
func (e *Engine) CompleteExternalRegistrationChallenge(ctx context.Context, challengeID string, profile Profile) (*User, error) {
	ch, err := e.challenges.Take(ctx, session.ChallengeExternalLogin, challengeID)
	if err != nil {
		return nil, challengeErr(err)
	}
	id := identityFromChallenge(ch)

	user, err := e.CompleteExternalRegistration(ctx, profile, *id)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			if _, perr := e.BeginExternalRegistration(ctx, *id); perr != nil {
				e.logger.Warn("external login re-park failed", zap.Error(perr))
			}
		}
		return nil, err
	}
	return user, nil
}

// BeginOAuth stores a state value binding provider and returnURL to the
// coming callback.
func (e *Engine) BeginOAuth(ctx context.Context, provider, returnURL string) (string, error) {
	state, err := e.challenges.Create(ctx, &session.Challenge{
		Kind:      session.ChallengeOAuthState,
		Provider:  provider,
		ReturnURL: returnURL,
	}, oauthStateTTL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return state, nil
}

// VerifyOAuthState consumes state and returns the return URL it was issued
// with. Each state verifies once.
func (e *Engine) VerifyOAuthState(ctx context.Context, provider, state string) (string, error) {
	ch, err := e.challenges.Take(ctx, session.ChallengeOAuthState, state)
	if err != nil {
		return "", challengeErr(err)
	}
	if !strings.EqualFold(ch.Provider, provider) {
		return "", fmt.Errorf("%w: oauth state issued for another provider", ErrTokenInvalid)
	}
	return ch.ReturnURL, nil
}

func identityFromChallenge(ch *session.Challenge) *ExternalIdentity {
	return &ExternalIdentity{
		Provider:    ch.Provider,
		ProviderKey: ch.ProviderKey,
		Email:       ch.Email,
		GivenName:   ch.GivenName,
		FamilyName:  ch.FamilyName,
	}
}

func challengeErr(err error) error {
	if errors.Is(err, session.ErrNotFound) {
		return ErrSessionInvalid
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
