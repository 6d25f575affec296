package shopauth

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoadConfig overlays environment variables on [DefaultConfig]. Files named
// in envFiles are loaded first with godotenv; a missing file is not an error
// and real environment variables always win.
func LoadConfig(envFiles ...string) (Config, error) {
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", file, err)
		}
	}

	cfg := DefaultConfig()
	var errs []error
	env := envReader{errs: &errs}

	cfg.App.Name = env.str("APP_NAME", cfg.App.Name)
	cfg.App.BaseURL = env.str("APP_BASE_URL", cfg.App.BaseURL)

	cfg.JWT.Secret = []byte(env.str("JWT_SECRET", ""))
	cfg.JWT.Issuer = env.str("JWT_ISSUER", cfg.JWT.Issuer)
	cfg.JWT.Audience = env.str("JWT_AUDIENCE", cfg.JWT.Audience)
	cfg.JWT.ExpirationMinutes = env.int("JWT_EXPIRATION_MINUTES", cfg.JWT.ExpirationMinutes)
	cfg.Refresh.TTL = env.duration("REFRESH_TOKEN_TTL", cfg.Refresh.TTL)
	cfg.PurposeTokens.Secret = []byte(env.str("PURPOSE_TOKEN_SECRET", ""))
	cfg.PurposeTokens.Lifetime = env.duration("PURPOSE_TOKEN_LIFETIME", cfg.PurposeTokens.Lifetime)

	cfg.Lockout.MaxFailedAttempts = env.int("LOCKOUT_MAX_FAILED_ATTEMPTS", cfg.Lockout.MaxFailedAttempts)
	cfg.Lockout.Duration = env.duration("LOCKOUT_DURATION", cfg.Lockout.Duration)
	cfg.SignIn.RequireConfirmedEmail = env.bool("SIGNIN_REQUIRE_CONFIRMED_EMAIL", cfg.SignIn.RequireConfirmedEmail)

	cfg.FlowThrottle.MaxPerEmail = env.int("FLOW_THROTTLE_MAX_PER_EMAIL", cfg.FlowThrottle.MaxPerEmail)
	cfg.FlowThrottle.MaxPerIP = env.int("FLOW_THROTTLE_MAX_PER_IP", cfg.FlowThrottle.MaxPerIP)
	cfg.FlowThrottle.Window = env.duration("FLOW_THROTTLE_WINDOW", cfg.FlowThrottle.Window)

	cfg.Session.SecureCookies = env.bool("SESSION_SECURE_COOKIES", cfg.Session.SecureCookies)
	cfg.Session.IdleTimeout = env.duration("SESSION_IDLE_TIMEOUT", cfg.Session.IdleTimeout)

	cfg.Mail.Host = env.str("SMTP_HOST", cfg.Mail.Host)
	cfg.Mail.Port = env.int("SMTP_PORT", cfg.Mail.Port)
	cfg.Mail.Username = env.str("SMTP_USERNAME", cfg.Mail.Username)
	cfg.Mail.Password = env.str("SMTP_PASSWORD", cfg.Mail.Password)
	cfg.Mail.From = env.str("SMTP_FROM", cfg.Mail.From)
	cfg.Mail.FromName = env.str("SMTP_FROM_NAME", cfg.Mail.FromName)

	cfg.External.Google.ClientID = env.str("GOOGLE_CLIENT_ID", "")
	cfg.External.Google.ClientSecret = env.str("GOOGLE_CLIENT_SECRET", "")
	cfg.External.Facebook.ClientID = env.str("FACEBOOK_APP_ID", "")
	cfg.External.Facebook.ClientSecret = env.str("FACEBOOK_APP_SECRET", "")

	cfg.Admin.Email = env.str("ADMIN_EMAIL", "")
	cfg.Admin.Password = env.str("ADMIN_PASSWORD", "")
	cfg.CORS.AllowedOrigins = env.list("CORS_ALLOWED_ORIGINS")

	cfg.HTTP.Addr = env.str("HTTP_ADDR", cfg.HTTP.Addr)

	cfg.Database.Driver = env.str("DB_DRIVER", cfg.Database.Driver)
	cfg.Database.Host = env.str("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = env.int("DB_PORT", cfg.Database.Port)
	cfg.Database.User = env.str("DB_USER", cfg.Database.User)
	cfg.Database.Password = env.str("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.Name = env.str("DB_NAME", cfg.Database.Name)
	cfg.Database.UseSSL = env.bool("DB_USE_SSL", cfg.Database.UseSSL)

	cfg.Redis.Addr = env.str("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = env.str("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = env.int("REDIS_DB", cfg.Redis.DB)

	cfg.Audit.Enabled = env.bool("AUDIT_ENABLED", cfg.Audit.Enabled)
	cfg.Audit.Sink = env.str("AUDIT_SINK", cfg.Audit.Sink)
	cfg.Audit.AMQPURL = env.str("AUDIT_AMQP_URL", cfg.Audit.AMQPURL)
	cfg.Audit.AMQPQueue = env.str("AUDIT_AMQP_QUEUE", cfg.Audit.AMQPQueue)
	cfg.Metrics.Enabled = env.bool("METRICS_ENABLED", cfg.Metrics.Enabled)
	cfg.Metrics.EnableLatencyHistograms = env.bool("METRICS_LATENCY_HISTOGRAMS", cfg.Metrics.EnableLatencyHistograms)
	cfg.Metrics.OTelLogInterval = env.duration("METRICS_OTEL_LOG_INTERVAL", cfg.Metrics.OTelLogInterval)

	cfg.Log.Level = env.str("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Dev = env.bool("LOG_DEV", cfg.Log.Dev)
	cfg.Log.File = env.str("LOG_FILE", cfg.Log.File)

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type envReader struct {
	errs *[]error
}

func (r envReader) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(v)
	}
	return def
}

func (r envReader) int(key string, def int) int {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		*r.errs = append(*r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}

func (r envReader) bool(key string, def bool) bool {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		*r.errs = append(*r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}

func (r envReader) duration(key string, def time.Duration) time.Duration {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		*r.errs = append(*r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}

// list splits a comma-separated value, dropping empty entries.
func (r envReader) list(key string) []string {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
