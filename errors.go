package shopauth

import (
	"errors"
	"strings"
)

var (
	// ErrInvalidCredentials is the generic sign-in failure. It never reveals
	// whether the email exists.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrLockedOut is returned while the account's lockout window is open.
	ErrLockedOut = errors.New("account is locked out")
	// ErrNotAllowed is returned when the account may not sign in yet, for
	// example before the email is confirmed.
	ErrNotAllowed = errors.New("account is not allowed to sign in")
	// ErrTwoFactorRequired signals that the password step passed and a
	// second factor is pending.
	ErrTwoFactorRequired = errors.New("two-factor authentication required")
	// ErrTokenInvalid covers expired, forged or mismatched access, refresh
	// and purpose tokens, as well as bad two-factor codes.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrUserNotFound is returned by lookups by id.
	ErrUserNotFound = errors.New("user not found")
	// ErrRoleNotFound is returned when a role name is unknown.
	ErrRoleNotFound = errors.New("role not found")
	// ErrRoleInUse is returned when deleting a role still held by a user.
	ErrRoleInUse = errors.New("role is assigned to users")
	// ErrRoleExists is returned when creating a duplicate role name.
	ErrRoleExists = errors.New("role already exists")
	// ErrDuplicateEmail is returned by the store on a unique email conflict.
	ErrDuplicateEmail = errors.New("email is already taken")
	// ErrExternalLoginTaken is returned when a provider key is linked to another user.
	ErrExternalLoginTaken = errors.New("external login already linked")
	// ErrProductNotFound is returned by catalog lookups.
	ErrProductNotFound = errors.New("product not found")
	// ErrCategoryNotFound is returned when a product names an unknown category.
	ErrCategoryNotFound = errors.New("category not found")
	// ErrCategoryInUse is returned when deleting a category that still has
	// products or child categories.
	ErrCategoryInUse = errors.New("category is in use")
	// ErrDeliveryFailure wraps a failed confirmation or reset mail send.
	ErrDeliveryFailure = errors.New("email delivery failed")
	// ErrTwoFactorNotEnabled is returned by two-factor sign-in for users without 2FA.
	ErrTwoFactorNotEnabled = errors.New("two-factor authentication is not enabled")
	// ErrSessionInvalid is returned for unknown, expired or stamp-stale cookie sessions.
	ErrSessionInvalid = errors.New("session invalid")
	// ErrRateLimited is returned when sign-in or registration throttling
	// rejects the attempt.
	ErrRateLimited = errors.New("too many attempts")
	// ErrStoreUnavailable wraps persistence failures.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrEngineNotReady is returned by a nil or unbuilt engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// FieldError is one itemized validation problem. Field is empty for
// model-level problems such as a duplicate email.
type FieldError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// ValidationError reports every problem found in a request at once.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		msgs = append(msgs, fe.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) add(field, message string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: message})
}

func (e *ValidationError) empty() bool {
	return len(e.Errors) == 0
}

func (e *ValidationError) errOrNil() error {
	if e.empty() {
		return nil
	}
	return e
}

// Kind classifies errors for transport mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthentication
	KindLockedOut
	KindNotAllowed
	KindTokenInvalid
	KindNotFound
	KindConflict
	KindDelivery
	KindRateLimited
)

// KindOf maps err onto the error taxonomy. Unknown errors are internal.
func KindOf(err error) Kind {
	var ve *ValidationError
	switch {
	case err == nil:
		return KindInternal
	case errors.As(err, &ve):
		return KindValidation
	case errors.Is(err, ErrLockedOut):
		return KindLockedOut
	case errors.Is(err, ErrNotAllowed):
		return KindNotAllowed
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrTwoFactorRequired):
		return KindAuthentication
	case errors.Is(err, ErrTokenInvalid), errors.Is(err, ErrSessionInvalid):
		return KindTokenInvalid
	case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrRoleNotFound), errors.Is(err, ErrProductNotFound),
		errors.Is(err, ErrCategoryNotFound):
		return KindNotFound
	case errors.Is(err, ErrRoleInUse), errors.Is(err, ErrRoleExists), errors.Is(err, ErrCategoryInUse),
		errors.Is(err, ErrDuplicateEmail), errors.Is(err, ErrExternalLoginTaken):
		return KindConflict
	case errors.Is(err, ErrDeliveryFailure):
		return KindDelivery
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	}
	return KindInternal
}
