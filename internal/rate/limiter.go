package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds rate limiter tuning parameters. Zero attempt budgets
// disable the corresponding throttle.
type Config struct {
	MaxLoginFailures int
	LoginWindow      time.Duration
	ThrottleByIP     bool
	MaxRefreshCalls  int
	RefreshWindow    time.Duration
}

// Limiter enforces per-identifier and per-IP budgets for failed logins and
// a per-session budget for refresh calls, using fixed-window Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a [Limiter] backed by the given Redis client.
func New(rdb redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{redis: rdb, config: cfg}
}

func loginKey(identifier string) string  { return "login_fail:" + identifier }
func loginIPKey(ip string) string        { return "login_fail_ip:" + ip }
func refreshKey(sessionID string) string { return "refresh_rate:" + sessionID }

// CheckLogin reports whether the identifier and source IP are still within
// the failed-login budget. Counters are read, not charged; charging happens
// in RecordLoginFailure so a correct password never consumes budget.
func (l *Limiter) CheckLogin(ctx context.Context, identifier, ip string) error {
	if l.config.MaxLoginFailures <= 0 {
		return nil
	}

	if err := l.checkCounter(ctx, loginKey(identifier), l.config.MaxLoginFailures); err != nil {
		return err
	}
	if l.config.ThrottleByIP && ip != "" {
		if err := l.checkCounter(ctx, loginIPKey(ip), l.config.MaxLoginFailures); err != nil {
			return err
		}
	}
	return nil
}

// RecordLoginFailure charges one failed attempt against the identifier and,
// when IP throttling is on, the source IP.
func (l *Limiter) RecordLoginFailure(ctx context.Context, identifier, ip string) error {
	if l.config.MaxLoginFailures <= 0 {
		return nil
	}

	if _, err := l.incrementWithTTL(ctx, loginKey(identifier), l.config.LoginWindow); err != nil {
		return err
	}
	if l.config.ThrottleByIP && ip != "" {
		if _, err := l.incrementWithTTL(ctx, loginIPKey(ip), l.config.LoginWindow); err != nil {
			return err
		}
	}
	return nil
}

// ResetLogin clears the failed-login counters after a successful sign-in or
// password change.
func (l *Limiter) ResetLogin(ctx context.Context, identifier, ip string) error {
	keys := []string{loginKey(identifier)}
	if l.config.ThrottleByIP && ip != "" {
		keys = append(keys, loginIPKey(ip))
	}
	if err := l.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// CheckRefresh charges one refresh call for the session and fails with
// ErrRateLimited when the window budget is exhausted. Unlike login, check
// and charge are one step: every refresh call counts.
func (l *Limiter) CheckRefresh(ctx context.Context, sessionID string) error {
	if l.config.MaxRefreshCalls <= 0 {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, refreshKey(sessionID), l.config.RefreshWindow)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxRefreshCalls) {
		return ErrRateLimited
	}
	return nil
}

// LoginFailures returns the current failed-attempt count for an identifier.
// Missing keys return zero and do not reveal account existence.
func (l *Limiter) LoginFailures(ctx context.Context, identifier string) (int, error) {
	count, err := l.redis.Get(ctx, loginKey(identifier)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (l *Limiter) checkCounter(ctx context.Context, key string, budget int) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count >= int64(budget) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return count, nil
}
