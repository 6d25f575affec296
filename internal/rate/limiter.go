package rate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds sign-in throttle parameters. A zero MaxAttempts disables the
// limiter.
type Config struct {
	MaxAttempts int
	Window      time.Duration
	KeyPrefix   string
}

// Limiter throttles sign-in attempts per client IP and per submitted email
// with Redis fixed-window counters. It sits in front of the password check;
// per-account lockout lives on the user record.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "shopauth:rl"
	}
	return &Limiter{redis: redisClient, config: cfg}
}

func (l *Limiter) enabled() bool {
	return l != nil && l.redis != nil && l.config.MaxAttempts > 0
}

func (l *Limiter) ipKey(ip string) string {
	return l.config.KeyPrefix + ":ip:" + ip
}

func (l *Limiter) emailKey(email string) string {
	return l.config.KeyPrefix + ":email:" + strings.ToLower(strings.TrimSpace(email))
}

// Check returns ErrRateLimited when either counter is over budget.
func (l *Limiter) Check(ctx context.Context, email, ip string) error {
	if !l.enabled() {
		return nil
	}
	for _, key := range l.keys(email, ip) {
		count, err := l.redis.Get(ctx, key).Int64()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if count >= int64(l.config.MaxAttempts) {
			return ErrRateLimited
		}
	}
	return nil
}

// Record counts a failed attempt against both counters.
func (l *Limiter) Record(ctx context.Context, email, ip string) error {
	if !l.enabled() {
		return nil
	}
	for _, key := range l.keys(email, ip) {
		if _, err := l.incrementWithTTL(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// Reset clears the email counter after a successful sign-in. The IP
// counter keeps running so one good account cannot launder a spray.
func (l *Limiter) Reset(ctx context.Context, email string) error {
	if !l.enabled() || email == "" {
		return nil
	}
	if err := l.redis.Del(ctx, l.emailKey(email)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) keys(email, ip string) []string {
	keys := make([]string, 0, 2)
	if ip != "" {
		keys = append(keys, l.ipKey(ip))
	}
	if email != "" {
		keys = append(keys, l.emailKey(email))
	}
	return keys
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed window: the TTL is set by the first hit only.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return count, nil
}
