package shopauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/shopauth/internal/audit"
	"github.com/MrEthical07/shopauth/internal/limiters"
	"github.com/MrEthical07/shopauth/internal/rate"
	"github.com/MrEthical07/shopauth/jwt"
	"github.com/MrEthical07/shopauth/password"
	"github.com/MrEthical07/shopauth/session"
	"go.uber.org/zap"
)

// Engine is the authentication core: credential checks with lockout,
// cookie sessions, bearer tokens with refresh rotation, two-factor codes,
// external logins and the email confirmation and reset flows.
//
// An Engine is immutable after Build and safe for concurrent use.
type Engine struct {
	config     Config
	store      Store
	sessions   *session.Store
	challenges *session.ChallengeStore
	limiter    *rate.Limiter
	flows      *limiters.FlowLimiter
	hasher     *password.Hasher
	dummyHash  string
	policy     password.Policy
	jwt        *jwt.Manager
	totp       *totpManager
	tokens     *purposeTokens
	mailer     Mailer
	audit      *audit.Dispatcher
	metrics    *Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// Shutdown flushes pending audit events within ctx. It does not close the
// store, Redis client or mailer, which belong to the caller. Events still
// buffered when ctx ends are counted in AuditDropped.
func (e *Engine) Shutdown(ctx context.Context) error {
	if e == nil {
		return nil
	}
	return e.audit.Shutdown(ctx)
}

// Close is Shutdown without a deadline.
func (e *Engine) Close() {
	_ = e.Shutdown(context.Background())
}

// Config returns a copy of the engine's configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// AuditDropped reports audit events discarded under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot copies the in-process counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Ping checks the Redis dependency.
func (e *Engine) Ping(ctx context.Context) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}
	_, err := e.sessions.Ping(ctx)
	return err
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// storeErr passes taxonomy errors through and wraps everything else as
// ErrStoreUnavailable.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != KindInternal {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

func (e *Engine) userByID(ctx context.Context, id string) (*User, error) {
	if id == "" {
		return nil, ErrUserNotFound
	}
	u, err := e.store.GetUserByID(ctx, id)
	return u, storeErr(err)
}

func (e *Engine) userByEmail(ctx context.Context, email string) (*User, error) {
	u, err := e.store.GetUserByEmail(ctx, normalizeEmail(email))
	return u, storeErr(err)
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound)
}

func zapUserID(id string) zap.Field {
	return zap.String("user_id", id)
}
