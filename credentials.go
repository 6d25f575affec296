package shopauth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/MrEthical07/shopauth/internal"
	"github.com/MrEthical07/shopauth/internal/rate"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func normalizeEmail(email string) string {
	return strings.TrimSpace(email)
}

// PasswordSignIn checks email and password. The returned status is one of
// Succeeded, Failed, LockedOut, NotAllowed or RequiresTwoFactor; only
// infrastructure problems and throttling come back as errors.
//
// Unknown emails and wrong passwords both yield Failed. Wrong passwords
// count toward lockout. The confirmed-email check runs after the password
// check so it cannot reveal which accounts exist.
func (e *Engine) PasswordSignIn(ctx context.Context, email, plain string) (*SignInResult, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	email = normalizeEmail(email)
	ip := clientIPFromContext(ctx)

	if err := e.limiter.Check(ctx, email, ip); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.metricInc(MetricLoginRateLimited)
			e.emitAudit(ctx, auditEventLoginRateLimited, false, "", "", ErrRateLimited, func() map[string]string {
				return map[string]string{"identifier": email}
			})
			return nil, ErrRateLimited
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	user, err := e.userByEmail(ctx, email)
	if err != nil {
		if !isNotFound(err) {
			return nil, err
		}
		_, _ = e.hasher.Verify(plain, e.dummyHash)
		e.recordThrottle(ctx, email, ip)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"identifier": email, "reason": "unknown_user"}
		})
		return &SignInResult{Status: SignInFailed}, nil
	}

	if isLockedOut(user, e.now()) {
		e.metricInc(MetricLoginLockedOut)
		e.emitAudit(ctx, auditEventLoginLockedOut, false, user.ID, "", ErrLockedOut, nil)
		return &SignInResult{Status: SignInLockedOut}, nil
	}

	ok := false
	if user.HasPassword() {
		ok, err = e.hasher.Verify(plain, user.PasswordHash)
		if err != nil {
			e.logger.Error("stored password hash unreadable", zapUserID(user.ID), zap.Error(err))
			ok = false
		}
	}
	if !ok {
		e.recordThrottle(ctx, email, ip)
		locked, err := e.registerFailure(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, "", ErrInvalidCredentials, reason("bad_password"))
		if locked {
			return &SignInResult{Status: SignInLockedOut}, nil
		}
		return &SignInResult{Status: SignInFailed}, nil
	}

	if e.config.SignIn.RequireConfirmedEmail && !user.EmailConfirmed {
		e.metricInc(MetricLoginNotAllowed)
		e.emitAudit(ctx, auditEventLoginNotAllowed, false, user.ID, "", ErrNotAllowed, reason("email_unconfirmed"))
		return &SignInResult{Status: SignInNotAllowed}, nil
	}

	e.maybeUpgradeHash(ctx, user, plain)

	if user.TwoFactorEnabled {
		e.metricInc(MetricTwoFactorRequired)
		e.emitAudit(ctx, auditEventTwoFactorRequired, true, user.ID, "", nil, nil)
		return &SignInResult{Status: SignInRequiresTwoFactor, User: user}, nil
	}

	return e.completeSignIn(ctx, user, email)
}

// completeSignIn clears failure state after every factor has passed.
func (e *Engine) completeSignIn(ctx context.Context, user *User, email string) (*SignInResult, error) {
	if err := e.resetFailures(ctx, user); err != nil {
		return nil, err
	}
	user.AccessFailedCount = 0
	if err := e.limiter.Reset(ctx, email); err != nil {
		e.logger.Warn("sign-in throttle reset failed", zap.Error(err))
	}
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.ID, "", nil, nil)
	return &SignInResult{Status: SignInSucceeded, User: user}, nil
}

func (e *Engine) recordThrottle(ctx context.Context, email, ip string) {
	if err := e.limiter.Record(ctx, email, ip); err != nil {
		e.logger.Warn("sign-in throttle record failed", zap.Error(err))
	}
}

func (e *Engine) maybeUpgradeHash(ctx context.Context, user *User, plain string) {
	if !e.config.Password.UpgradeOnLogin {
		return
	}
	needs, err := e.hasher.NeedsUpgrade(user.PasswordHash)
	if err != nil || !needs {
		return
	}
	newHash, err := e.hasher.Hash(plain)
	if err != nil {
		return
	}
	// the stamp stays: a rehash does not change the credential
	if _, err := e.store.UpdateUser(ctx, user.ID, func(u *User) error {
		if u.PasswordHash == user.PasswordHash {
			u.PasswordHash = newHash
		}
		return nil
	}); err != nil {
		e.logger.Warn("password hash upgrade failed", zapUserID(user.ID), zap.Error(err))
		return
	}
	user.PasswordHash = newHash
}

type createOptions struct {
	confirmed       bool
	roles           []string
	logins          []ExternalLogin
	requirePassword bool
	confirmPassword *string
}

// CreateUser validates profile and password and stores a new unconfirmed
// user in the User role. Every problem found is reported at once in a
// *ValidationError.
func (e *Engine) CreateUser(ctx context.Context, profile Profile, plain string) (*User, error) {
	return e.createUser(ctx, profile, plain, createOptions{
		roles:           []string{RoleUser},
		requirePassword: true,
	})
}

func (e *Engine) createUser(ctx context.Context, profile Profile, plain string, opts createOptions) (*User, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	profile.Email = normalizeEmail(profile.Email)
	profile.FirstName = strings.TrimSpace(profile.FirstName)
	profile.LastName = strings.TrimSpace(profile.LastName)

	verr := e.validateProfile(profile)
	if opts.requirePassword {
		for _, msg := range e.passwordProblems(plain) {
			verr.add("Password", msg)
		}
		if opts.confirmPassword != nil && *opts.confirmPassword != plain {
			verr.add("ConfirmPassword", "The password and confirmation password do not match.")
		}
	}
	if profile.Email != "" {
		if _, err := e.userByEmail(ctx, profile.Email); err == nil {
			verr.add("Email", fmt.Sprintf("Email '%s' is already taken.", profile.Email))
		} else if !isNotFound(err) {
			return nil, err
		}
	}
	if err := verr.errOrNil(); err != nil {
		e.emitAudit(ctx, auditEventAccountCreationFailure, false, "", "", err, nil)
		return nil, err
	}

	stamp, err := internal.NewSecurityStamp()
	if err != nil {
		return nil, err
	}
	user := &User{
		ID:             uuid.NewString(),
		Email:          profile.Email,
		UserName:       profile.Email,
		FirstName:      profile.FirstName,
		LastName:       profile.LastName,
		DateOfBirth:    cloneTime(profile.DateOfBirth),
		EmailConfirmed: opts.confirmed,
		LockoutEnabled: e.config.Lockout.EnabledForNewUsers,
		SecurityStamp:  stamp,
		Roles:          append([]string(nil), opts.roles...),
		Logins:         append([]ExternalLogin(nil), opts.logins...),
		CreatedAt:      e.now().UTC(),
	}
	if plain != "" {
		if user.PasswordHash, err = e.hasher.Hash(plain); err != nil {
			return nil, err
		}
	}

	if err := e.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			e.metricInc(MetricAccountCreationDuplicate)
			dup := &ValidationError{}
			dup.add("Email", fmt.Sprintf("Email '%s' is already taken.", profile.Email))
			e.emitAudit(ctx, auditEventAccountCreationFailure, false, "", "", ErrDuplicateEmail, nil)
			return nil, dup
		}
		e.emitAudit(ctx, auditEventAccountCreationFailure, false, "", "", err, nil)
		return nil, storeErr(err)
	}

	e.metricInc(MetricAccountCreationSuccess)
	e.emitAudit(ctx, auditEventAccountCreationSuccess, true, user.ID, "", nil, nil)
	e.logger.Info("user created", zapUserID(user.ID), zap.Bool("email_confirmed", user.EmailConfirmed))
	return user, nil
}

func (e *Engine) validateProfile(p Profile) *ValidationError {
	verr := &ValidationError{}
	if p.FirstName == "" {
		verr.add("FirstName", "The First Name field is required.")
	}
	if p.LastName == "" {
		verr.add("LastName", "The Last Name field is required.")
	}
	switch {
	case p.Email == "":
		verr.add("Email", "The Email field is required.")
	case !validEmail(p.Email):
		verr.add("Email", "The Email field is not a valid e-mail address.")
	case !e.validUserName(p.Email):
		verr.add("Email", fmt.Sprintf("User name '%s' is invalid, can only contain letters or digits.", p.Email))
	}
	if p.DateOfBirth != nil && p.DateOfBirth.After(e.now()) {
		verr.add("DateOfBirth", "Date of birth cannot be in the future.")
	}
	return verr
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email && strings.Contains(email, "@")
}

func (e *Engine) validUserName(name string) bool {
	allowed := e.config.SignIn.AllowedUserNameCharacters
	for _, r := range name {
		if !strings.ContainsRune(allowed, r) {
			return false
		}
	}
	return true
}

func (e *Engine) passwordProblems(plain string) []string {
	if plain == "" {
		return []string{"The Password field is required."}
	}
	return e.policy.Check(plain)
}

// SetPassword replaces a user's password without checking the old one.
// The security stamp rotates, which signs out cookie sessions and kills
// outstanding purpose tokens, and the refresh token is revoked.
func (e *Engine) SetPassword(ctx context.Context, userID, newPassword string) error {
	if msgs := e.passwordProblems(newPassword); len(msgs) > 0 {
		verr := &ValidationError{}
		for _, m := range msgs {
			verr.add("NewPassword", m)
		}
		return verr
	}
	newHash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	stamp, err := internal.NewSecurityStamp()
	if err != nil {
		return err
	}
	_, err = e.store.UpdateUser(ctx, userID, func(u *User) error {
		applyCredentialChange(u, newHash, stamp)
		return nil
	})
	return storeErr(err)
}

// ChangePassword verifies current before setting newPassword. A wrong
// current password is reported as a validation problem on that field.
func (e *Engine) ChangePassword(ctx context.Context, userID, current, newPassword string) error {
	user, err := e.userByID(ctx, userID)
	if err != nil {
		return err
	}

	verr := &ValidationError{}
	ok := false
	if user.HasPassword() {
		ok, _ = e.hasher.Verify(current, user.PasswordHash)
	}
	if !ok {
		e.metricInc(MetricPasswordChangeInvalidOld)
		verr.add("OldPassword", "Incorrect password.")
	}
	for _, msg := range e.passwordProblems(newPassword) {
		verr.add("NewPassword", msg)
	}
	if err := verr.errOrNil(); err != nil {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, userID, "", err, nil)
		return err
	}

	newHash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	stamp, err := internal.NewSecurityStamp()
	if err != nil {
		return err
	}
	_, err = e.store.UpdateUser(ctx, userID, func(u *User) error {
		if u.PasswordHash != user.PasswordHash {
			// changed concurrently; the verified password is stale
			return ErrInvalidCredentials
		}
		applyCredentialChange(u, newHash, stamp)
		return nil
	})
	if err != nil {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, userID, "", err, nil)
		return storeErr(err)
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, userID, "", nil, nil)
	return nil
}

func applyCredentialChange(u *User, newHash, stamp string) {
	u.PasswordHash = newHash
	u.SecurityStamp = stamp
	u.RefreshTokenHash = nil
	u.RefreshTokenExpiry = nil
}
