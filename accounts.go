package shopauth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/shopauth/internal"
	"github.com/MrEthical07/shopauth/internal/limiters"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Register creates an unconfirmed account in the User role and mails the
// confirmation link. No session is started. If the mail cannot be sent the
// account is kept, the result is still returned and the error wraps
// ErrDeliveryFailure.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	if limited, err := e.throttleFlow(ctx, limiters.ActionRegister, ""); err != nil {
		return nil, err
	} else if limited {
		e.emitAudit(ctx, auditEventAccountCreationFailure, false, "", "", ErrRateLimited, nil)
		return nil, ErrRateLimited
	}

	confirm := req.ConfirmPassword
	user, err := e.createUser(ctx, req.Profile, req.Password, createOptions{
		roles:           []string{RoleUser},
		requirePassword: true,
		confirmPassword: &confirm,
	})
	if err != nil {
		return nil, err
	}

	res := &RegisterResult{UserID: user.ID, Email: user.Email}
	if err := e.sendConfirmation(ctx, user); err != nil {
		return res, err
	}
	return res, nil
}

// ResendConfirmation mails a fresh confirmation link. Unknown and already
// confirmed emails are ignored so the response never reveals which
// accounts exist. A failed send wraps ErrDeliveryFailure.
func (e *Engine) ResendConfirmation(ctx context.Context, email string) error {
	if limited, err := e.throttleFlow(ctx, limiters.ActionConfirmation, email); err != nil || limited {
		return err
	}
	user, err := e.userByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return err
	}
	if user.EmailConfirmed {
		return nil
	}
	return e.sendConfirmation(ctx, user)
}

func (e *Engine) sendConfirmation(ctx context.Context, user *User) error {
	token := e.tokens.issue(user, PurposeEmailConfirmation, e.now())
	link := e.callbackURL("/Account/ConfirmEmail", "userId", user.ID, "code", token)

	e.metricInc(MetricEmailConfirmationRequest)
	e.emitAudit(ctx, auditEventEmailConfirmationRequest, true, user.ID, "", nil, nil)
	return e.deliver(ctx, user, "confirmation", func() error {
		return e.mailer.SendConfirmationEmail(ctx, user.Email, user.FullName(), link)
	})
}

// ConfirmEmail consumes an EmailConfirmation token. The stamp rotates, so
// the same link cannot be used twice.
func (e *Engine) ConfirmEmail(ctx context.Context, userID, code string) error {
	if _, err := e.userByID(ctx, userID); err != nil {
		return err
	}
	stamp, err := internal.NewSecurityStamp()
	if err != nil {
		return err
	}
	now := e.now()
	_, err = e.store.UpdateUser(ctx, userID, func(u *User) error {
		if !e.tokens.validate(u, PurposeEmailConfirmation, code, now) {
			return ErrTokenInvalid
		}
		u.EmailConfirmed = true
		u.SecurityStamp = stamp
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrTokenInvalid) {
			e.metricInc(MetricEmailConfirmationFailure)
			e.emitAudit(ctx, auditEventEmailConfirmationConfirm, false, userID, "", err, nil)
		}
		return storeErr(err)
	}

	e.metricInc(MetricEmailConfirmationSuccess)
	e.emitAudit(ctx, auditEventEmailConfirmationConfirm, true, userID, "", nil, nil)
	return nil
}

// ForgotPassword mails a reset link to a confirmed account. Unknown and
// unconfirmed emails get the same nil result and no mail. A failed send
// wraps ErrDeliveryFailure.
func (e *Engine) ForgotPassword(ctx context.Context, email string) error {
	e.metricInc(MetricPasswordResetRequest)
	if limited, err := e.throttleFlow(ctx, limiters.ActionPasswordReset, email); err != nil {
		return err
	} else if limited {
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, "", "", ErrRateLimited, nil)
		return nil
	}
	user, err := e.userByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			e.emitAudit(ctx, auditEventPasswordResetRequest, false, "", "", nil, reason("unknown_user"))
			return nil
		}
		return err
	}
	if !user.EmailConfirmed {
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, user.ID, "", nil, reason("email_unconfirmed"))
		return nil
	}

	token := e.tokens.issue(user, PurposeResetPassword, e.now())
	link := e.callbackURL("/Account/ResetPassword", "code", token)
	e.emitAudit(ctx, auditEventPasswordResetRequest, true, user.ID, "", nil, nil)
	return e.deliver(ctx, user, "password_reset", func() error {
		return e.mailer.SendPasswordResetEmail(ctx, user.Email, user.FullName(), link)
	})
}

// ResetPassword sets newPassword when code is a live ResetPassword token
// for email. Unknown emails succeed silently. The stamp rotates, the
// refresh token is cleared and every cookie session of the user ends.
func (e *Engine) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if msgs := e.passwordProblems(newPassword); len(msgs) > 0 {
		verr := &ValidationError{}
		for _, m := range msgs {
			verr.add("Password", m)
		}
		return verr
	}

	user, err := e.userByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
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
	now := e.now()
	_, err = e.store.UpdateUser(ctx, user.ID, func(u *User) error {
		if !e.tokens.validate(u, PurposeResetPassword, code, now) {
			return ErrTokenInvalid
		}
		applyCredentialChange(u, newHash, stamp)
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrTokenInvalid) {
			e.metricInc(MetricPasswordResetConfirmFailure)
			e.emitAudit(ctx, auditEventPasswordResetConfirm, false, user.ID, "", err, nil)
		}
		return storeErr(err)
	}

	if err := e.SignOutEverywhere(ctx, user.ID); err != nil {
		e.logger.Warn("session cleanup after reset failed", zapUserID(user.ID), zap.Error(err))
	}
	e.metricInc(MetricPasswordResetConfirmSuccess)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, user.ID, "", nil, nil)
	return nil
}

// throttleFlow reports whether action is over its budget for email and the
// caller's IP. Mail flows treat a limited request like an unknown email.
func (e *Engine) throttleFlow(ctx context.Context, action limiters.Action, email string) (bool, error) {
	err := e.flows.Enforce(ctx, action, normalizeEmail(email), clientIPFromContext(ctx))
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, limiters.ErrRateLimited):
		e.logger.Info("account flow throttled", zap.String("action", string(action)))
		return true, nil
	default:
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

func (e *Engine) callbackURL(path string, kv ...string) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(e.config.App.BaseURL, "/"))
	b.WriteString(path)
	for i := 0; i+1 < len(kv); i += 2 {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(kv[i])
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(kv[i+1]))
	}
	return b.String()
}

func (e *Engine) deliver(ctx context.Context, user *User, kind string, send func() error) error {
	if err := send(); err != nil {
		e.metricInc(MetricMailDeliveryFailure)
		e.emitAudit(ctx, auditEventMailDeliveryFailure, false, user.ID, "", ErrDeliveryFailure, reason(kind))
		e.logger.Error("mail delivery failed", zapUserID(user.ID), zap.String("kind", kind), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrDeliveryFailure, err)
	}
	e.logger.Info("mail sent", zapUserID(user.ID), zap.String("kind", kind))
	return nil
}

/*
====================================
ROLES
====================================
*/

var builtinRoles = []struct{ name, description string }{
	{RoleAdmin, "Full access to the back office"},
	{RoleManager, "Manages catalog and orders"},
	{RoleModerator, "Moderates customer content"},
	{RoleUser, "Registered customer"},
}

// EnsureRoles creates the built-in roles that do not exist yet.
func (e *Engine) EnsureRoles(ctx context.Context) error {
	for _, r := range builtinRoles {
		_, err := e.store.GetRole(ctx, r.name)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrRoleNotFound) {
			return storeErr(err)
		}
		if _, err := e.CreateRole(ctx, r.name, r.description); err != nil && !errors.Is(err, ErrRoleExists) {
			return err
		}
	}
	return nil
}

// CreateRole adds a role. Names are unique case-insensitively.
func (e *Engine) CreateRole(ctx context.Context, name, description string) (*Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		verr := &ValidationError{}
		verr.add("Name", "The Name field is required.")
		return nil, verr
	}
	role := &Role{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		CreatedAt:   e.now().UTC(),
	}
	if err := e.store.CreateRole(ctx, role); err != nil {
		return nil, storeErr(err)
	}
	e.emitAudit(ctx, auditEventRoleCreated, true, "", "", nil, func() map[string]string {
		return map[string]string{"role": name}
	})
	return role, nil
}

// DeleteRole removes a role nobody holds. It fails with ErrRoleInUse
// otherwise.
func (e *Engine) DeleteRole(ctx context.Context, name string) error {
	if err := e.store.DeleteRole(ctx, name); err != nil {
		return storeErr(err)
	}
	e.emitAudit(ctx, auditEventRoleDeleted, true, "", "", nil, func() map[string]string {
		return map[string]string{"role": name}
	})
	return nil
}

// Roles lists every role.
func (e *Engine) Roles(ctx context.Context) ([]Role, error) {
	roles, err := e.store.ListRoles(ctx)
	return roles, storeErr(err)
}

// AddToRole grants role to a user. Granting a held role is a no-op.
func (e *Engine) AddToRole(ctx context.Context, userID, role string) error {
	user, err := e.userByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.InRole(role) {
		return nil
	}
	return storeErr(e.store.AddUserToRole(ctx, userID, role))
}

// BootstrapAdmin makes sure an administrator account exists for email. A
// missing account is created confirmed in the Admin role; an existing one
// is added to the Admin role. created reports which happened.
func (e *Engine) BootstrapAdmin(ctx context.Context, email, password string) (user *User, created bool, err error) {
	if err := e.EnsureRoles(ctx); err != nil {
		return nil, false, err
	}

	user, err = e.userByEmail(ctx, email)
	switch {
	case err == nil:
		if err := e.AddToRole(ctx, user.ID, RoleAdmin); err != nil {
			return nil, false, err
		}
		return user, false, nil
	case !isNotFound(err):
		return nil, false, err
	}

	name := email
	if at := strings.IndexByte(email, '@'); at > 0 {
		name = email[:at]
	}
	user, err = e.createUser(ctx, Profile{
		FirstName: name,
		LastName:  RoleAdmin,
		Email:     email,
	}, password, createOptions{
		confirmed:       true,
		roles:           []string{RoleAdmin},
		requirePassword: true,
	})
	if err != nil {
		return nil, false, err
	}
	e.emitAudit(ctx, auditEventAdminBootstrapped, true, user.ID, "", nil, nil)
	e.logger.Info("administrator bootstrapped", zapUserID(user.ID))
	return user, true, nil
}

/*
====================================
PROFILE
====================================
*/

// AccountProfile is the manage-account view of a user.
type AccountProfile struct {
	UserID           string          `json:"userId"`
	Email            string          `json:"email"`
	FirstName        string          `json:"firstName"`
	LastName         string          `json:"lastName"`
	FullName         string          `json:"fullName"`
	DateOfBirth      *time.Time      `json:"dateOfBirth,omitempty"`
	EmailConfirmed   bool            `json:"emailConfirmed"`
	TwoFactorEnabled bool            `json:"twoFactorEnabled"`
	HasPassword      bool            `json:"hasPassword"`
	Roles            []string        `json:"roles"`
	Claims           []Claim         `json:"claims"`
	Logins           []ExternalLogin `json:"logins"`
}

// Profile loads the manage-account view for userID.
func (e *Engine) Profile(ctx context.Context, userID string) (*AccountProfile, error) {
	u, err := e.userByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	p := &AccountProfile{
		UserID:           u.ID,
		Email:            u.Email,
		FirstName:        u.FirstName,
		LastName:         u.LastName,
		FullName:         u.FullName(),
		DateOfBirth:      cloneTime(u.DateOfBirth),
		EmailConfirmed:   u.EmailConfirmed,
		TwoFactorEnabled: u.TwoFactorEnabled,
		HasPassword:      u.HasPassword(),
		Roles:            append([]string{}, u.Roles...),
		Claims:           append([]Claim{}, u.Claims...),
		Logins:           append([]ExternalLogin{}, u.Logins...),
	}
	return p, nil
}
