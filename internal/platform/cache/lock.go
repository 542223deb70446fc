package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/rs/zerolog"
)

// ErrLockHeld is returned when the lock could not be obtained before the
// retry budget ran out.
var ErrLockHeld = errors.New("lock is held by another process")

// Locker hands out Redis locks with bsm/redislock.
type Locker struct {
	client  *redislock.Client
	ttl     time.Duration
	backoff time.Duration
	retries int
	logger  zerolog.Logger
}

// NewLocker creates a Locker. Locks expire after ttl unless released; Lock
// retries every backoff up to retries times.
func NewLocker(rdb redislock.RedisClient, ttl, backoff time.Duration, retries int, logger zerolog.Logger) *Locker {
	return &Locker{
		client:  redislock.New(rdb),
		ttl:     ttl,
		backoff: backoff,
		retries: retries,
		logger:  logger,
	}
}

// Lock obtains key and returns the function that releases it.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	lock, err := l.client.Obtain(ctx, key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(l.backoff), l.retries),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%s: %w", key, ErrLockHeld)
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}

	l.logger.Debug().Str("key", key).Msg("lock obtained")
	return func() {
		// Release with a fresh context: ctx may already be cancelled.
		relCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lock.Release(relCtx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.logger.Warn().Err(err).Str("key", key).Msg("release lock")
		}
	}, nil
}
