package shopauth

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Config is the single immutable configuration object for the engine and the
// services around it. Build one with [DefaultConfig] or [LoadConfig], adjust
// it, then hand it to the [Builder]; the engine keeps its own copy.
type Config struct {
	App           AppConfig
	JWT           JWTConfig
	Refresh       RefreshConfig
	Password      PasswordConfig
	Lockout       LockoutConfig
	SignIn        SignInConfig
	FlowThrottle  FlowThrottleConfig
	TOTP          TOTPConfig
	PurposeTokens PurposeTokenConfig
	Session       SessionConfig
	Mail          MailConfig
	External      ExternalConfig
	Admin         AdminConfig
	CORS          CORSConfig
	HTTP          HTTPConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
	Log           LogConfig
}

/*
====================================
APP / TOKEN CONFIG
====================================
*/

// AppConfig identifies the deployment. BaseURL prefixes mailed callback links.
type AppConfig struct {
	Name    string
	BaseURL string
}

// JWTConfig holds the HS256 signing settings for bearer tokens.
type JWTConfig struct {
	Secret            []byte
	Issuer            string
	Audience          string
	ExpirationMinutes int
}

// AccessTTL converts ExpirationMinutes to a duration.
func (c JWTConfig) AccessTTL() time.Duration {
	return time.Duration(c.ExpirationMinutes) * time.Minute
}

// RefreshConfig controls refresh token lifetime.
type RefreshConfig struct {
	TTL time.Duration
}

// PurposeTokenConfig controls email confirmation and password reset tokens.
// Tokens are valid for Lifetime, measured in whole Steps.
type PurposeTokenConfig struct {
	Secret   []byte
	Step     time.Duration
	Lifetime time.Duration
}

/*
====================================
CREDENTIAL CONFIG
====================================
*/

// PasswordConfig holds Argon2id costs and the composition policy.
type PasswordConfig struct {
	Memory         uint32 // KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool

	MinLength              int
	RequireDigit           bool
	RequireUppercase       bool
	RequireLowercase       bool
	RequireNonAlphanumeric bool
}

// LockoutConfig controls the per-account failure counter.
type LockoutConfig struct {
	EnabledForNewUsers bool
	MaxFailedAttempts  int
	Duration           time.Duration
}

// SignInConfig holds sign-in preconditions and the per-IP/per-email throttle.
type SignInConfig struct {
	RequireConfirmedEmail     bool
	AllowedUserNameCharacters string
	ThrottleMaxAttempts       int
	ThrottleWindow            time.Duration
}

// FlowThrottleConfig caps registrations and the account flows that send
// mail. Counts are per fixed Window; zero disables a counter.
type FlowThrottleConfig struct {
	MaxPerEmail int
	MaxPerIP    int
	Window      time.Duration
}

// TOTPConfig controls authenticator codes.
type TOTPConfig struct {
	Issuer       string
	Digits       int
	Period       int
	Skew         int
	ChallengeTTL time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls cookie-mode sessions, the anonymous cart cookie and
// the short-lived challenges (pending second factor, pending external login,
// OAuth state).
type SessionConfig struct {
	RedisPrefix         string
	CookieName          string
	TwoFactorCookieName string
	ExternalCookieName  string
	CartCookieName      string
	IdleTimeout         time.Duration
	RememberMeLifetime  time.Duration
	SecureCookies       bool
	SameSite            http.SameSite
}

/*
====================================
COLLABORATOR CONFIG
====================================
*/

// MailConfig holds SMTP settings.
type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// OAuthProviderConfig holds client credentials for one external provider.
type OAuthProviderConfig struct {
	ClientID     string
	ClientSecret string
}

// Enabled reports whether both credentials are present.
func (c OAuthProviderConfig) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// ExternalConfig lists the supported external login providers.
type ExternalConfig struct {
	Google   OAuthProviderConfig
	Facebook OAuthProviderConfig
}

// AdminConfig seeds the bootstrap administrator.
type AdminConfig struct {
	Email    string
	Password string
}

// CORSConfig is the browser origin allow-list for the JSON API.
type CORSConfig struct {
	AllowedOrigins []string
}

// HTTPConfig controls the listener.
type HTTPConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig selects and tunes the relational store. Driver "memory"
// runs without Postgres for local development.
type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	UseSSL          bool
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig addresses the Redis instance used for sessions, challenges,
// carts and throttling.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AuditConfig selects the audit sink. Sink is one of "log", "json", "amqp".
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	Sink       string
	AMQPURL    string
	AMQPQueue  string
}

// MetricsConfig toggles in-process counters and the access-token
// validation latency histogram. OTelLogInterval, when positive, also pushes
// the counters through an OpenTelemetry periodic reader into the log.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
	OTelLogInterval         time.Duration
}

// LogConfig configures the zap logger. File enables a rotating log file.
type LogConfig struct {
	Level string
	Dev   bool
	File  string
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the baseline policy: 5 failures lock an account for
// 15 minutes, access tokens live 60 minutes, refresh tokens 7 days, cookie
// sessions idle out after 30 minutes.
func DefaultConfig() Config {
	return Config{
		App: AppConfig{
			Name:    "shopauth",
			BaseURL: "http://localhost:8080",
		},
		JWT: JWTConfig{
			Issuer:            "shopauth",
			Audience:          "shopauth-api",
			ExpirationMinutes: 60,
		},
		Refresh: RefreshConfig{
			TTL: 7 * 24 * time.Hour,
		},
		Password: PasswordConfig{
			Memory:                 64 * 1024,
			Time:                   3,
			Parallelism:            2,
			SaltLength:             16,
			KeyLength:              32,
			UpgradeOnLogin:         true,
			MinLength:              8,
			RequireDigit:           true,
			RequireUppercase:       true,
			RequireLowercase:       true,
			RequireNonAlphanumeric: true,
		},
		Lockout: LockoutConfig{
			EnabledForNewUsers: true,
			MaxFailedAttempts:  5,
			Duration:           15 * time.Minute,
		},
		SignIn: SignInConfig{
			RequireConfirmedEmail:     true,
			AllowedUserNameCharacters: "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-._@+",
			ThrottleMaxAttempts:       50,
			ThrottleWindow:            5 * time.Minute,
		},
		FlowThrottle: FlowThrottleConfig{
			MaxPerEmail: 3,
			MaxPerIP:    20,
			Window:      15 * time.Minute,
		},
		TOTP: TOTPConfig{
			Issuer:       "shopauth",
			Digits:       6,
			Period:       30,
			Skew:         1,
			ChallengeTTL: 5 * time.Minute,
		},
		PurposeTokens: PurposeTokenConfig{
			Step:     time.Hour,
			Lifetime: 24 * time.Hour,
		},
		Session: SessionConfig{
			RedisPrefix:         "shopauth",
			CookieName:          ".ShopAuth.Session",
			TwoFactorCookieName: ".ShopAuth.TwoFactor",
			ExternalCookieName:  ".ShopAuth.External",
			CartCookieName:      ".ShopAuth.Cart",
			IdleTimeout:         30 * time.Minute,
			RememberMeLifetime:  14 * 24 * time.Hour,
			SecureCookies:       true,
			SameSite:            http.SameSiteStrictMode,
		},
		Mail: MailConfig{
			Port:     587,
			FromName: "Shop Back Office",
		},
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			Host:            "localhost",
			Port:            5432,
			User:            "postgres",
			Name:            "shopauth",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
			Sink:       "log",
			AMQPQueue:  "shopauth.audit",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.Secret = cloneBytes(cfg.JWT.Secret)
	out.PurposeTokens.Secret = cloneBytes(cfg.PurposeTokens.Secret)
	out.CORS.AllowedOrigins = append([]string(nil), cfg.CORS.AllowedOrigins...)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks the settings the engine depends on. Collaborator sections
// (SMTP, OAuth, database) are validated by the components that use them.
func (c *Config) Validate() error {
	// JWT
	if len(c.JWT.Secret) < 32 {
		return errors.New("JWT Secret must be at least 32 bytes")
	}
	if c.JWT.Issuer == "" || c.JWT.Audience == "" {
		return errors.New("JWT Issuer and Audience are required")
	}
	if c.JWT.ExpirationMinutes <= 0 {
		return errors.New("JWT ExpirationMinutes must be > 0")
	}
	if c.Refresh.TTL <= 0 {
		return errors.New("Refresh TTL must be > 0")
	}

	// Purpose tokens
	if len(c.PurposeTokens.Secret) < 32 {
		return errors.New("PurposeTokens Secret must be at least 32 bytes")
	}
	if c.PurposeTokens.Step < time.Second || c.PurposeTokens.Lifetime < c.PurposeTokens.Step {
		return errors.New("PurposeTokens Lifetime must be >= Step >= 1s")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 || c.Password.Parallelism < 1 {
		return errors.New("Password Time and Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 || c.Password.KeyLength < 16 {
		return errors.New("Password SaltLength and KeyLength must be >= 16")
	}
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}

	// Lockout
	if c.Lockout.MaxFailedAttempts <= 0 {
		return errors.New("Lockout MaxFailedAttempts must be > 0")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("Lockout Duration must be > 0")
	}

	// Sign-in
	if c.SignIn.ThrottleMaxAttempts < 0 {
		return errors.New("SignIn ThrottleMaxAttempts must be >= 0")
	}
	if c.SignIn.ThrottleMaxAttempts > 0 && c.SignIn.ThrottleWindow < time.Second {
		return errors.New("SignIn ThrottleWindow must be >= 1s when throttling is enabled")
	}
	if c.SignIn.AllowedUserNameCharacters == "" {
		return errors.New("SignIn AllowedUserNameCharacters is required")
	}

	if c.FlowThrottle.MaxPerEmail < 0 || c.FlowThrottle.MaxPerIP < 0 {
		return errors.New("FlowThrottle limits must be >= 0")
	}
	if (c.FlowThrottle.MaxPerEmail > 0 || c.FlowThrottle.MaxPerIP > 0) && c.FlowThrottle.Window < time.Second {
		return errors.New("FlowThrottle Window must be >= 1s when throttling is enabled")
	}

	// TOTP
	if c.TOTP.Digits != 6 && c.TOTP.Digits != 8 {
		return errors.New("TOTP Digits must be 6 or 8")
	}
	if c.TOTP.Period <= 0 {
		return errors.New("TOTP Period must be > 0")
	}
	if c.TOTP.Skew < 0 || c.TOTP.Skew > 3 {
		return errors.New("TOTP Skew must be between 0 and 3")
	}
	if c.TOTP.ChallengeTTL <= 0 {
		return errors.New("TOTP ChallengeTTL must be > 0")
	}

	// Session
	if c.Session.IdleTimeout <= 0 {
		return errors.New("Session IdleTimeout must be > 0")
	}
	if c.Session.RememberMeLifetime < c.Session.IdleTimeout {
		return errors.New("Session RememberMeLifetime must be >= IdleTimeout")
	}
	if c.Session.RedisPrefix == "" {
		return errors.New("Session RedisPrefix is required")
	}
	if c.Session.CookieName == "" || c.Session.TwoFactorCookieName == "" || c.Session.ExternalCookieName == "" || c.Session.CartCookieName == "" {
		return errors.New("Session cookie names are required")
	}

	// App
	if _, err := url.ParseRequestURI(c.App.BaseURL); err != nil {
		return fmt.Errorf("App BaseURL is invalid: %w", err)
	}

	if c.Metrics.OTelLogInterval < 0 {
		return errors.New("Metrics OTelLogInterval must be >= 0")
	}
	if c.Metrics.OTelLogInterval > 0 && !c.Metrics.Enabled {
		return errors.New("Metrics OTelLogInterval requires Metrics Enabled")
	}

	// Audit
	if c.Audit.Enabled {
		if c.Audit.BufferSize <= 0 {
			return errors.New("Audit BufferSize must be > 0")
		}
		switch c.Audit.Sink {
		case "log", "json":
		case "amqp":
			if c.Audit.AMQPURL == "" || c.Audit.AMQPQueue == "" {
				return errors.New("Audit amqp sink requires AMQPURL and AMQPQueue")
			}
		default:
			return errors.New("Audit Sink must be one of log, json, amqp")
		}
	}

	return nil
}
