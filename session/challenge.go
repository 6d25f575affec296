package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/shopauth/internal"
	"github.com/redis/go-redis/v9"
)

// ErrChallengeExceeded is returned once a challenge has used up its attempts.
var ErrChallengeExceeded = errors.New("challenge attempts exceeded")

// ChallengeStore keeps short-lived sign-in challenges under
// prefix:c:<kind>:<id>. A challenge id is looked up only within its kind.
type ChallengeStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewChallengeStore creates a ChallengeStore.
func NewChallengeStore(redisClient redis.UniversalClient, prefix string) *ChallengeStore {
	if prefix == "" {
		prefix = "shopauth"
	}
	return &ChallengeStore{redis: redisClient, prefix: prefix, now: time.Now}
}

func (s *ChallengeStore) key(kind ChallengeKind, id string) string {
	return s.prefix + ":c:" + kind.String() + ":" + id
}

// Create stores c under a fresh random id and returns the id.
func (s *ChallengeStore) Create(ctx context.Context, c *Challenge, ttl time.Duration) (string, error) {
	if ttl < time.Second {
		return "", errors.New("challenge ttl must be at least one second")
	}
	id, err := internal.NewState()
	if err != nil {
		return "", err
	}
	c.ID = id
	c.ExpiresAt = s.now().Add(ttl).Unix()

	data, err := encodeChallenge(c)
	if err != nil {
		return "", err
	}
	if err := s.redis.Set(ctx, s.key(c.Kind, id), data, ttl).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return id, nil
}

// Get loads a challenge without consuming it.
func (s *ChallengeStore) Get(ctx context.Context, kind ChallengeKind, id string) (*Challenge, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	data, err := s.redis.Get(ctx, s.key(kind, id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return s.decodeLive(ctx, kind, id, data)
}

// Take loads and deletes a challenge in one transaction, so concurrent
// callers cannot both consume it.
func (s *ChallengeStore) Take(ctx context.Context, kind ChallengeKind, id string) (*Challenge, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	key := s.key(kind, id)

	var get *redis.StringCmd
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.Get(ctx, key)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	data, err := get.Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return s.decodeLive(ctx, kind, id, data)
}

// Delete removes a challenge. Missing challenges are ignored.
func (s *ChallengeStore) Delete(ctx context.Context, kind ChallengeKind, id string) error {
	if err := s.redis.Del(ctx, s.key(kind, id)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// RecordFailure bumps the attempt counter. When maxAttempts is reached the
// challenge is deleted and exceeded is true.
func (s *ChallengeStore) RecordFailure(ctx context.Context, kind ChallengeKind, id string, maxAttempts int) (bool, error) {
	const maxRetries = 4
	key := s.key(kind, id)

	for i := 0; i < maxRetries; i++ {
		var exceeded bool
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}
			c, err := decodeChallenge(data)
			if err != nil {
				return err
			}

			c.Attempts++
			ttl := time.Until(time.Unix(c.ExpiresAt, 0))
			if int(c.Attempts) >= maxAttempts || ttl < time.Second {
				exceeded = true
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				return err
			}

			updated, err := encodeChallenge(c)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttl)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return false, ErrNotFound
			}
			return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		return exceeded, nil
	}
	return false, ErrNotFound
}

func (s *ChallengeStore) decodeLive(ctx context.Context, kind ChallengeKind, id string, data []byte) (*Challenge, error) {
	c, err := decodeChallenge(data)
	if err != nil {
		return nil, err
	}
	if c.Kind != kind {
		return nil, ErrNotFound
	}
	if s.now().Unix() > c.ExpiresAt {
		_ = s.Delete(ctx, kind, id)
		return nil, ErrNotFound
	}
	c.ID = id
	return c, nil
}
