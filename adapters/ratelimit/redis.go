package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/layer-3/sigil/core"
	"github.com/layer-3/sigil/ports"
)

// WindowLimit is a fixed-window budget for one endpoint class.
type WindowLimit struct {
	Window time.Duration
	Max    int64
}

// WindowLimits maps endpoint classes to their fixed-window budgets.
type WindowLimits map[ports.LimitClass]WindowLimit

// DefaultWindowLimits mirrors DefaultLimits for the distributed backend.
func DefaultWindowLimits() WindowLimits {
	return WindowLimits{
		ports.LimitChallenge: {Window: time.Minute, Max: 30},
		ports.LimitVerify:    {Window: time.Minute, Max: 60},
		ports.LimitRefresh:   {Window: time.Minute, Max: 60},
	}
}

// RedisLimiter is a fixed-window counter shared across instances. The
// counter resets only on window rollover (key expiry), never early.
type RedisLimiter struct {
	client *redis.Client
	limits WindowLimits
}

// NewRedisLimiter creates a limiter on an existing client.
func NewRedisLimiter(client *redis.Client, limits WindowLimits) *RedisLimiter {
	return &RedisLimiter{client: client, limits: limits}
}

// Allow increments the window counter for (class, key). The INCR+EXPIRE
// pipeline keeps the count atomic across instances.
func (l *RedisLimiter) Allow(ctx context.Context, class ports.LimitClass, key string) (bool, error) {
	limit, ok := l.limits[class]
	if !ok {
		return true, nil
	}

	rkey := fmt.Sprintf("sigil:rl:%s:%s", class, key)
	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, rkey)
	pipe.ExpireNX(ctx, rkey, limit.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit: %v: %w", err, core.ErrStoreUnavailable)
	}
	return incr.Val() <= limit.Max, nil
}

// RedisFailureTracker is the distributed FailureTracker.
type RedisFailureTracker struct {
	client *redis.Client
	policy LockoutPolicy
}

// NewRedisFailureTracker creates a tracker on an existing client.
func NewRedisFailureTracker(client *redis.Client, policy LockoutPolicy) *RedisFailureTracker {
	if policy.Threshold <= 0 {
		policy = DefaultLockoutPolicy()
	}
	return &RedisFailureTracker{client: client, policy: policy}
}

func (t *RedisFailureTracker) failKey(subject string) string { return "sigil:fail:" + subject }
func (t *RedisFailureTracker) lockKey(subject string) string { return "sigil:lock:" + subject }

// RecordFailure increments the failure counter; tripping the threshold sets
// the lock key for the cooldown and clears the counter.
func (t *RedisFailureTracker) RecordFailure(ctx context.Context, subject string) (bool, error) {
	pipe := t.client.TxPipeline()
	incr := pipe.Incr(ctx, t.failKey(subject))
	pipe.ExpireNX(ctx, t.failKey(subject), t.policy.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("record failure: %v: %w", err, core.ErrStoreUnavailable)
	}

	if incr.Val() < int64(t.policy.Threshold) {
		return false, nil
	}

	pipe = t.client.TxPipeline()
	pipe.Set(ctx, t.lockKey(subject), "1", t.policy.Cooldown)
	pipe.Del(ctx, t.failKey(subject))
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("set lockout: %v: %w", err, core.ErrStoreUnavailable)
	}
	return true, nil
}

// RecordSuccess clears the failure counter. An active lockout stays.
func (t *RedisFailureTracker) RecordSuccess(ctx context.Context, subject string) error {
	if err := t.client.Del(ctx, t.failKey(subject)).Err(); err != nil {
		return fmt.Errorf("clear failures: %v: %w", err, core.ErrStoreUnavailable)
	}
	return nil
}

// IsLocked reports whether the lock key is live.
func (t *RedisFailureTracker) IsLocked(ctx context.Context, subject string) (bool, error) {
	n, err := t.client.Exists(ctx, t.lockKey(subject)).Result()
	if err != nil {
		return false, fmt.Errorf("check lockout: %v: %w", err, core.ErrStoreUnavailable)
	}
	return n > 0, nil
}

var (
	_ ports.RateLimiter    = (*RedisLimiter)(nil)
	_ ports.FailureTracker = (*RedisFailureTracker)(nil)
)
