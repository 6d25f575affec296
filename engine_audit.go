package shopauth

import (
	"context"
	"errors"

	"github.com/MrEthical07/shopauth/internal/audit"
)

const (
	auditEventLoginSuccess              = "login_success"
	auditEventLoginFailure              = "login_failure"
	auditEventLoginLockedOut            = "login_locked_out"
	auditEventLoginNotAllowed           = "login_not_allowed"
	auditEventLoginRateLimited          = "login_rate_limited"
	auditEventAccountLocked             = "account_locked"
	auditEventTwoFactorRequired         = "two_factor_required"
	auditEventTwoFactorSuccess          = "two_factor_success"
	auditEventTwoFactorFailure          = "two_factor_failure"
	auditEventTwoFactorSetup            = "two_factor_setup_requested"
	auditEventTwoFactorEnabled          = "two_factor_enabled"
	auditEventTwoFactorDisabled         = "two_factor_disabled"
	auditEventExternalLoginSuccess      = "external_login_success"
	auditEventExternalLoginUnlinked     = "external_login_unlinked"
	auditEventExternalRegistration      = "external_registration"
	auditEventRefreshSuccess            = "refresh_success"
	auditEventRefreshInvalid            = "refresh_invalid"
	auditEventRefreshRevoked            = "refresh_revoked"
	auditEventSessionCreated            = "session_created"
	auditEventSessionRejected           = "session_rejected"
	auditEventLogoutSession             = "logout_session"
	auditEventAccountCreationSuccess    = "account_creation_success"
	auditEventAccountCreationFailure    = "account_creation_failure"
	auditEventPasswordChangeSuccess     = "password_change_success"
	auditEventPasswordChangeFailure     = "password_change_failure"
	auditEventPasswordResetRequest      = "password_reset_request"
	auditEventPasswordResetConfirm      = "password_reset_confirm"
	auditEventEmailConfirmationRequest  = "email_confirmation_request"
	auditEventEmailConfirmationConfirm  = "email_confirmation_confirm"
	auditEventMailDeliveryFailure       = "mail_delivery_failure"
	auditEventRoleCreated               = "role_created"
	auditEventRoleDeleted               = "role_deleted"
	auditEventAdminBootstrapped         = "admin_bootstrapped"
)

// AuditErrorCode is the stable, machine-readable reason attached to failed
// audit events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrLockedOut          AuditErrorCode = "locked_out"
	auditErrNotAllowed         AuditErrorCode = "not_allowed"
	auditErrTwoFactorRequired  AuditErrorCode = "two_factor_required"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrSessionInvalid     AuditErrorCode = "session_invalid"
	auditErrUserNotFound       AuditErrorCode = "user_not_found"
	auditErrValidation         AuditErrorCode = "validation"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrDelivery           AuditErrorCode = "delivery_failure"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	event := audit.NewEvent(eventType, success)
	event.UserID = userID
	event.SessionID = sessionID
	event.IP = clientIPFromContext(ctx)
	if metadataBuilder != nil {
		event.Metadata = metadataBuilder()
	}
	if ua := userAgentFromContext(ctx); ua != "" {
		if event.Metadata == nil {
			event.Metadata = make(map[string]string, 1)
		}
		event.Metadata["user_agent"] = ua
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func reason(r string) func() map[string]string {
	return func() map[string]string {
		return map[string]string{"reason": r}
	}
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return auditErrValidation
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrLockedOut):
		return auditErrLockedOut
	case errors.Is(err, ErrNotAllowed):
		return auditErrNotAllowed
	case errors.Is(err, ErrTwoFactorRequired):
		return auditErrTwoFactorRequired
	case errors.Is(err, ErrTokenInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrSessionInvalid):
		return auditErrSessionInvalid
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrDuplicateEmail),
		errors.Is(err, ErrExternalLoginTaken),
		errors.Is(err, ErrRoleExists):
		return auditErrDuplicate
	case errors.Is(err, ErrDeliveryFailure):
		return auditErrDelivery
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
