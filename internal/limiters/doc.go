// Package limiters provides fixed-window Redis throttles for the account
// flows that create users or send mail.
//
// # Actions
//
//   - [ActionRegister]: per-IP cap on new accounts.
//   - [ActionConfirmation]: per-email and per-IP cap on confirmation mails.
//   - [ActionPasswordReset]: per-email and per-IP cap on reset mails.
//
// Each action owns its own key namespace so one flow cannot exhaust
// another's budget. A nil [FlowLimiter] never limits.
//
// Sign-in throttling lives in internal/rate; per-account lockout lives on
// the user record.
package limiters
