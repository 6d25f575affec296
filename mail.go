package shopauth

import "context"

// Mailer delivers account flow emails. Implementations must not retain the
// callback URL beyond the send since it carries a live token.
type Mailer interface {
	SendConfirmationEmail(ctx context.Context, to, name, callbackURL string) error
	SendPasswordResetEmail(ctx context.Context, to, name, callbackURL string) error
}
