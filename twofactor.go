package shopauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/shopauth/internal"
	"github.com/MrEthical07/shopauth/session"
	"go.uber.org/zap"
)

// TwoFactorSetup is what the enable-authenticator page renders.
type TwoFactorSetup struct {
	// SharedKey is the key in lowercase groups of four, for manual entry.
	SharedKey string
	// AuthenticatorURI is the otpauth:// URI to encode as a QR code.
	AuthenticatorURI string
}

// BeginTwoFactorSetup returns the user's authenticator key, creating one on
// first use. Two-factor stays disabled until EnableTwoFactor sees a valid
// code.
func (e *Engine) BeginTwoFactorSetup(ctx context.Context, userID string) (*TwoFactorSetup, error) {
	user, err := e.userByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if user.AuthenticatorKey == "" {
		key, err := e.totp.GenerateKey()
		if err != nil {
			return nil, err
		}
		user, err = e.store.UpdateUser(ctx, userID, func(u *User) error {
			if u.AuthenticatorKey == "" {
				u.AuthenticatorKey = key
			}
			return nil
		})
		if err != nil {
			return nil, storeErr(err)
		}
	}

	e.emitAudit(ctx, auditEventTwoFactorSetup, true, userID, "", nil, nil)
	return &TwoFactorSetup{
		SharedKey:        formatSharedKey(user.AuthenticatorKey),
		AuthenticatorURI: e.totp.ProvisionURI(user.AuthenticatorKey, user.Email),
	}, nil
}

// VerifyTwoFactorCode checks raw against the user's authenticator key.
// Spaces and dashes in raw are ignored.
func (e *Engine) VerifyTwoFactorCode(user *User, raw string) bool {
	if user == nil || user.AuthenticatorKey == "" {
		return false
	}
	ok, err := e.totp.VerifyCode(user.AuthenticatorKey, raw, e.now())
	if err != nil {
		e.logger.Error("authenticator key unreadable", zapUserID(user.ID), zap.Error(err))
		return false
	}
	return ok
}

// EnableTwoFactor turns two-factor on after one valid code. The security
// stamp rotates.
func (e *Engine) EnableTwoFactor(ctx context.Context, userID, code string) error {
	user, err := e.userByID(ctx, userID)
	if err != nil {
		return err
	}
	if !e.VerifyTwoFactorCode(user, code) {
		e.metricInc(MetricTwoFactorFailure)
		e.emitAudit(ctx, auditEventTwoFactorFailure, false, userID, "", ErrTokenInvalid, reason("enable"))
		return fmt.Errorf("%w: verification code is invalid", ErrTokenInvalid)
	}

	stamp, err := internal.NewSecurityStamp()
	if err != nil {
		return err
	}
	_, err = e.store.UpdateUser(ctx, userID, func(u *User) error {
		if u.AuthenticatorKey != user.AuthenticatorKey {
			return ErrTokenInvalid
		}
		u.TwoFactorEnabled = true
		u.SecurityStamp = stamp
		return nil
	})
	if err != nil {
		return storeErr(err)
	}
	e.metricInc(MetricTwoFactorEnabled)
	e.emitAudit(ctx, auditEventTwoFactorEnabled, true, userID, "", nil, nil)
	return nil
}

// DisableTwoFactor turns two-factor off for a signed-in user without asking
// for a code. The authenticator key is kept so re-enabling does not need a
// new QR scan. The security stamp rotates.
func (e *Engine) DisableTwoFactor(ctx context.Context, userID string) error {
	stamp, err := internal.NewSecurityStamp()
	if err != nil {
		return err
	}
	_, err = e.store.UpdateUser(ctx, userID, func(u *User) error {
		if !u.TwoFactorEnabled {
			return ErrTwoFactorNotEnabled
		}
		u.TwoFactorEnabled = false
		u.SecurityStamp = stamp
		return nil
	})
	if err != nil {
		return storeErr(err)
	}
	e.metricInc(MetricTwoFactorDisabled)
	e.emitAudit(ctx, auditEventTwoFactorDisabled, true, userID, "", nil, nil)
	return nil
}

// TwoFactorSignIn is the second step after PasswordSignIn reported
// RequiresTwoFactor. A wrong code counts toward lockout exactly like a
// wrong password.
func (e *Engine) TwoFactorSignIn(ctx context.Context, userID, code string) (*SignInResult, error) {
	user, err := e.userByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.TwoFactorEnabled {
		return nil, ErrTwoFactorNotEnabled
	}
	if isLockedOut(user, e.now()) {
		e.metricInc(MetricLoginLockedOut)
		e.emitAudit(ctx, auditEventLoginLockedOut, false, user.ID, "", ErrLockedOut, reason("two_factor"))
		return &SignInResult{Status: SignInLockedOut}, nil
	}

	if !e.VerifyTwoFactorCode(user, code) {
		locked, err := e.registerFailure(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		e.metricInc(MetricTwoFactorFailure)
		e.emitAudit(ctx, auditEventTwoFactorFailure, false, user.ID, "", ErrTokenInvalid, nil)
		if locked {
			return &SignInResult{Status: SignInLockedOut}, nil
		}
		return &SignInResult{Status: SignInFailed}, nil
	}

	e.metricInc(MetricTwoFactorSuccess)
	e.emitAudit(ctx, auditEventTwoFactorSuccess, true, user.ID, "", nil, nil)
	return e.completeSignIn(ctx, user, user.Email)
}

// BeginTwoFactorChallenge records that userID passed the password step and
// returns the challenge id for the two-factor cookie.
func (e *Engine) BeginTwoFactorChallenge(ctx context.Context, userID string, rememberMe bool) (string, error) {
	id, err := e.challenges.Create(ctx, &session.Challenge{
		Kind:       session.ChallengeTwoFactor,
		UserID:     userID,
		RememberMe: rememberMe,
	}, e.config.TOTP.ChallengeTTL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return id, nil
}

// CompleteTwoFactorChallenge runs TwoFactorSignIn for the user behind
// challengeID. The challenge is consumed on success and after too many bad
// codes. rememberMe echoes the choice made on the password step.
func (e *Engine) CompleteTwoFactorChallenge(ctx context.Context, challengeID, code string) (result *SignInResult, rememberMe bool, err error) {
	ch, err := e.challenges.Get(ctx, session.ChallengeTwoFactor, challengeID)
	if err != nil {
		return nil, false, challengeErr(err)
	}

	result, err = e.TwoFactorSignIn(ctx, ch.UserID, code)
	if err != nil {
		return nil, false, err
	}

	switch result.Status {
	case SignInSucceeded, SignInLockedOut:
		if err := e.challenges.Delete(ctx, session.ChallengeTwoFactor, challengeID); err != nil {
			e.logger.Warn("two-factor challenge delete failed", zap.Error(err))
		}
	default:
		if _, err := e.challenges.RecordFailure(ctx, session.ChallengeTwoFactor, challengeID, e.config.Lockout.MaxFailedAttempts); err != nil &&
			!errors.Is(err, session.ErrNotFound) {
			e.logger.Warn("two-factor challenge update failed", zap.Error(err))
		}
	}
	return result, ch.RememberMe, nil
}

// PendingTwoFactorUser returns the user behind a live two-factor challenge.
func (e *Engine) PendingTwoFactorUser(ctx context.Context, challengeID string) (*User, error) {
	ch, err := e.challenges.Get(ctx, session.ChallengeTwoFactor, challengeID)
	if err != nil {
		return nil, challengeErr(err)
	}
	return e.userByID(ctx, ch.UserID)
}
