// Package limits throttles callers with Redis counters shared by every replica.
package limits

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ncecere/insights_dashboard/internal/apperr"
	"github.com/ncecere/insights_dashboard/internal/config"
)

var ErrLimitExceeded = apperr.New(apperr.KindRateLimit, "rate_limited", "rate limit exceeded")

// semaphoreTTL bounds how long a slot leaked by a crashed request stays held.
const semaphoreTTL = 5 * time.Minute

type Limits struct {
	RequestsPerMinute int
	ParallelQueries   int
}

func FromConfig(cfg config.RateLimitConfig) Limits {
	return Limits{RequestsPerMinute: cfg.RequestsPerMinute, ParallelQueries: cfg.ParallelQueries}
}

// Enabled reports whether any limit applies.
func (l Limits) Enabled() bool {
	return l.RequestsPerMinute > 0 || l.ParallelQueries > 0
}

type RateLimiter struct {
	client *redis.Client
	limits Limits
	now    func() time.Time
}

func NewRateLimiter(client *redis.Client, limits Limits) *RateLimiter {
	return &RateLimiter{client: client, limits: limits, now: time.Now}
}

// Acquire admits one request for key. The returned release func must be
// called when the request finishes; it is a no-op when no slot was taken.
func (l *RateLimiter) Acquire(ctx context.Context, key string) (func(), error) {
	noop := func() {}
	if l == nil || l.client == nil || !l.limits.Enabled() {
		return noop, nil
	}
	if l.limits.RequestsPerMinute > 0 {
		if err := l.countCheck(ctx, "rpm:"+key, time.Minute, l.limits.RequestsPerMinute); err != nil {
			return noop, err
		}
	}
	if l.limits.ParallelQueries <= 0 {
		return noop, nil
	}
	semKey := "sem:" + key
	if err := l.semaphoreAcquire(ctx, semKey, l.limits.ParallelQueries); err != nil {
		return noop, err
	}
	return func() {
		l.client.Decr(context.WithoutCancel(ctx), semKey)
	}, nil
}

func (l *RateLimiter) countCheck(ctx context.Context, key string, window time.Duration, limit int) error {
	slot := l.now().UTC().Unix() / int64(window.Seconds())
	redisKey := fmt.Sprintf("%s:%d", key, slot)

	cnt, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return fmt.Errorf("rate limit counter: %w", err)
	}
	if cnt == 1 {
		l.client.Expire(ctx, redisKey, window)
	}
	if int(cnt) > limit {
		return ErrLimitExceeded
	}
	return nil
}

func (l *RateLimiter) semaphoreAcquire(ctx context.Context, key string, max int) error {
	cnt, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("rate limit semaphore: %w", err)
	}
	if cnt == 1 {
		l.client.Expire(ctx, key, semaphoreTTL)
	}
	if int(cnt) > max {
		l.client.Decr(ctx, key)
		return ErrLimitExceeded
	}
	return nil
}
