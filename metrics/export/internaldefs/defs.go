package internaldefs

import (
	"github.com/MrEthical07/shopauth"
)

// CounterDef names one engine counter.
type CounterDef struct {
	ID   shopauth.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram.
type HistogramDef struct {
	ID   shopauth.MetricID
	Name string
	Help string
}

// AuditDroppedName is published next to the engine counters.
const AuditDroppedName = "shopauth_audit_dropped_total"

// CounterDefs lists every exported counter in exposition order.
var CounterDefs = []CounterDef{
	{ID: shopauth.MetricLoginSuccess, Name: "shopauth_login_success_total", Help: "Successful password sign-ins."},
	{ID: shopauth.MetricLoginFailure, Name: "shopauth_login_failure_total", Help: "Failed password sign-ins."},
	{ID: shopauth.MetricLoginLockedOut, Name: "shopauth_login_locked_out_total", Help: "Sign-ins rejected because the account is locked out."},
	{ID: shopauth.MetricLoginNotAllowed, Name: "shopauth_login_not_allowed_total", Help: "Sign-ins rejected before email confirmation."},
	{ID: shopauth.MetricLoginRateLimited, Name: "shopauth_login_rate_limited_total", Help: "Throttled sign-in attempts."},
	{ID: shopauth.MetricAccountLocked, Name: "shopauth_account_locked_total", Help: "Accounts locked after repeated failures."},
	{ID: shopauth.MetricTwoFactorRequired, Name: "shopauth_two_factor_required_total", Help: "Sign-ins that stopped at the second factor."},
	{ID: shopauth.MetricTwoFactorSuccess, Name: "shopauth_two_factor_success_total", Help: "Accepted authenticator codes."},
	{ID: shopauth.MetricTwoFactorFailure, Name: "shopauth_two_factor_failure_total", Help: "Rejected authenticator codes."},
	{ID: shopauth.MetricTwoFactorEnabled, Name: "shopauth_two_factor_enabled_total", Help: "Two-factor enable operations."},
	{ID: shopauth.MetricTwoFactorDisabled, Name: "shopauth_two_factor_disabled_total", Help: "Two-factor disable operations."},
	{ID: shopauth.MetricExternalLoginSuccess, Name: "shopauth_external_login_success_total", Help: "Sign-ins through a linked external provider."},
	{ID: shopauth.MetricExternalLoginRegistration, Name: "shopauth_external_login_registration_total", Help: "Accounts created from an external provider."},
	{ID: shopauth.MetricRefreshSuccess, Name: "shopauth_refresh_success_total", Help: "Successful refresh token exchanges."},
	{ID: shopauth.MetricRefreshFailure, Name: "shopauth_refresh_failure_total", Help: "Rejected refresh token exchanges."},
	{ID: shopauth.MetricSessionCreated, Name: "shopauth_session_created_total", Help: "Created cookie sessions."},
	{ID: shopauth.MetricSessionInvalidated, Name: "shopauth_session_invalidated_total", Help: "Cookie sessions rejected or revoked."},
	{ID: shopauth.MetricLogout, Name: "shopauth_logout_total", Help: "Logouts in either mode."},
	{ID: shopauth.MetricAccountCreationSuccess, Name: "shopauth_account_creation_success_total", Help: "Created accounts."},
	{ID: shopauth.MetricAccountCreationDuplicate, Name: "shopauth_account_creation_duplicate_total", Help: "Account creations rejected for a taken email."},
	{ID: shopauth.MetricPasswordChangeSuccess, Name: "shopauth_password_change_success_total", Help: "Successful password changes."},
	{ID: shopauth.MetricPasswordChangeInvalidOld, Name: "shopauth_password_change_invalid_old_total", Help: "Password changes with a wrong current password."},
	{ID: shopauth.MetricPasswordResetRequest, Name: "shopauth_password_reset_request_total", Help: "Forgot-password requests."},
	{ID: shopauth.MetricPasswordResetConfirmSuccess, Name: "shopauth_password_reset_confirm_success_total", Help: "Completed password resets."},
	{ID: shopauth.MetricPasswordResetConfirmFailure, Name: "shopauth_password_reset_confirm_failure_total", Help: "Rejected password reset tokens."},
	{ID: shopauth.MetricEmailConfirmationRequest, Name: "shopauth_email_confirmation_request_total", Help: "Confirmation mails requested."},
	{ID: shopauth.MetricEmailConfirmationSuccess, Name: "shopauth_email_confirmation_success_total", Help: "Confirmed email addresses."},
	{ID: shopauth.MetricEmailConfirmationFailure, Name: "shopauth_email_confirmation_failure_total", Help: "Rejected confirmation tokens."},
	{ID: shopauth.MetricMailDeliveryFailure, Name: "shopauth_mail_delivery_failure_total", Help: "Failed confirmation or reset mail sends."},
}

// HistogramDefs lists the exported histograms.
var HistogramDefs = []HistogramDef{
	{ID: shopauth.MetricValidateLatency, Name: "shopauth_validate_latency_seconds", Help: "Access token validation latency."},
}

// HistogramBounds are the upper bounds of the engine's latency buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix spells HistogramBounds as instrument name suffixes.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// CumulativeBuckets converts raw per-bucket counts to cumulative counts.
// Missing buckets count as zero.
func CumulativeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(out); i++ {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}
