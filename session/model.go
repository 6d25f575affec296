package session

import "time"

// Session is a server-side cookie session. The cookie carries only SessionID.
type Session struct {
	SessionID string
	UserID    string

	// SecurityStamp is the user's stamp at sign-in. The Engine rejects the
	// session once the user's current stamp differs.
	SecurityStamp string

	// Persistent sessions come from "remember me" and use the long lifetime.
	Persistent bool
	// Lifetime is the sliding window re-applied on every successful read.
	Lifetime time.Duration

	CreatedAt int64
}

// ChallengeKind separates the challenge namespaces.
type ChallengeKind uint8

const (
	// ChallengeTwoFactor tracks a password-verified user awaiting a code.
	ChallengeTwoFactor ChallengeKind = iota + 1
	// ChallengeExternalLogin holds a provider identity awaiting registration.
	ChallengeExternalLogin
	// ChallengeOAuthState binds an OAuth redirect to its callback.
	ChallengeOAuthState
)

func (k ChallengeKind) String() string {
	switch k {
	case ChallengeTwoFactor:
		return "2fa"
	case ChallengeExternalLogin:
		return "ext"
	case ChallengeOAuthState:
		return "state"
	default:
		return "unknown"
	}
}

// Challenge is a pending step of a sign-in flow. Which fields are set
// depends on Kind.
type Challenge struct {
	ID         string
	Kind       ChallengeKind
	UserID     string
	RememberMe bool
	Attempts   uint16
	ExpiresAt  int64

	Provider    string
	ProviderKey string
	Email       string
	GivenName   string
	FamilyName  string
	ReturnURL   string
}
