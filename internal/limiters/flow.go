package limiters

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrRateLimited      = errors.New("flow rate limited")
	ErrRedisUnavailable = errors.New("flow limiter redis unavailable")
)

// Action names a throttled account flow.
type Action string

const (
	ActionRegister      Action = "reg"
	ActionConfirmation  Action = "conf"
	ActionPasswordReset Action = "reset"
)

// Config holds per-window budgets. A zero budget disables that counter.
type Config struct {
	MaxPerEmail int
	MaxPerIP    int
	Window      time.Duration
	KeyPrefix   string
}

// FlowLimiter counts flow requests per email and per client IP.
type FlowLimiter struct {
	redis  redis.UniversalClient
	config Config
}

func NewFlowLimiter(redisClient redis.UniversalClient, cfg Config) *FlowLimiter {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "shopauth:fl"
	}
	return &FlowLimiter{redis: redisClient, config: cfg}
}

// Enforce counts one request for action and returns ErrRateLimited once
// either counter is over budget. Empty email or ip skip their counter.
func (l *FlowLimiter) Enforce(ctx context.Context, action Action, email, ip string) error {
	if l == nil || l.redis == nil || l.config.Window <= 0 {
		return nil
	}
	email = strings.ToLower(strings.TrimSpace(email))

	if l.config.MaxPerEmail > 0 && email != "" {
		if err := l.enforceKey(ctx, l.key(action, "e", email), l.config.MaxPerEmail); err != nil {
			return err
		}
	}
	if l.config.MaxPerIP > 0 && ip != "" {
		if err := l.enforceKey(ctx, l.key(action, "ip", ip), l.config.MaxPerIP); err != nil {
			return err
		}
	}
	return nil
}

func (l *FlowLimiter) enforceKey(ctx context.Context, key string, limit int) error {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	if count > int64(limit) {
		return ErrRateLimited
	}
	return nil
}

func (l *FlowLimiter) key(action Action, scope, value string) string {
	return l.config.KeyPrefix + ":" + string(action) + ":" + scope + ":" + value
}
