package shopauth

import (
	"errors"
	"time"

	"github.com/MrEthical07/shopauth/internal/audit"
	"github.com/MrEthical07/shopauth/internal/limiters"
	"github.com/MrEthical07/shopauth/internal/rate"
	"github.com/MrEthical07/shopauth/jwt"
	"github.com/MrEthical07/shopauth/password"
	"github.com/MrEthical07/shopauth/session"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// dummyPassword is hashed once at build time so sign-in for an unknown email
// spends the same Argon2id work as a real verification.
const dummyPassword = "shopauth-timing-equalizer"

// Builder collects the engine's collaborators. Configure it once during
// startup, call Build, then discard it.
type Builder struct {
	config    Config
	store     Store
	redis     redis.UniversalClient
	mailer    Mailer
	logger    *zap.Logger
	auditSink AuditSink
	now       func() time.Time

	built bool
}

// New starts a Builder from DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration. The builder keeps a copy.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the persistence collaborator.
func (b *Builder) WithStore(store Store) *Builder {
	b.store = store
	return b
}

// WithRedis sets the client used for sessions, challenges and throttling.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithMailer sets the confirmation and reset mail sender.
func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

// WithLogger sets the structured logger. Defaults to a no-op logger.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets where audit events go. Defaults to the logger.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock overrides time.Now for lockout windows, token expiry and
// purpose tokens. Tests use it to step past lockout windows.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and wires the engine. A Builder can
// only be built once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.store == nil {
		return nil, errors.New("store required")
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.mailer == nil {
		return nil, errors.New("mailer required")
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	hasher, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	dummyHash, err := hasher.Hash(dummyPassword)
	if err != nil {
		return nil, err
	}

	jm, err := jwt.NewManager(jwt.Config{
		Secret:    cloneBytes(cfg.JWT.Secret),
		Issuer:    cfg.JWT.Issuer,
		Audience:  cfg.JWT.Audience,
		AccessTTL: cfg.JWT.AccessTTL(),
		Now:       now,
	})
	if err != nil {
		return nil, err
	}

	sink := b.auditSink
	if sink == nil {
		sink = audit.NewZapSink(logger)
	}

	engine := &Engine{
		config:     cfg,
		store:      b.store,
		sessions:   session.NewStore(b.redis, cfg.Session.RedisPrefix, cfg.Session.RememberMeLifetime),
		challenges: session.NewChallengeStore(b.redis, cfg.Session.RedisPrefix),
		limiter: rate.New(b.redis, rate.Config{
			MaxAttempts: cfg.SignIn.ThrottleMaxAttempts,
			Window:      cfg.SignIn.ThrottleWindow,
			KeyPrefix:   cfg.Session.RedisPrefix + ":rl",
		}),
		flows: limiters.NewFlowLimiter(b.redis, limiters.Config{
			MaxPerEmail: cfg.FlowThrottle.MaxPerEmail,
			MaxPerIP:    cfg.FlowThrottle.MaxPerIP,
			Window:      cfg.FlowThrottle.Window,
			KeyPrefix:   cfg.Session.RedisPrefix + ":fl",
		}),
		hasher:    hasher,
		dummyHash: dummyHash,
		policy: password.Policy{
			MinLength:              cfg.Password.MinLength,
			RequireDigit:           cfg.Password.RequireDigit,
			RequireUppercase:       cfg.Password.RequireUppercase,
			RequireLowercase:       cfg.Password.RequireLowercase,
			RequireNonAlphanumeric: cfg.Password.RequireNonAlphanumeric,
		},
		jwt:    jm,
		totp:   newTOTPManager(cfg.TOTP),
		tokens: newPurposeTokens(cfg.PurposeTokens),
		mailer: b.mailer,
		audit: audit.NewDispatcher(audit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, sink),
		metrics: NewMetrics(cfg.Metrics),
		logger:  logger.Named("shopauth"),
		now:     now,
	}

	b.built = true
	return engine, nil
}
