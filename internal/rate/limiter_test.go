package rate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, cfg), mr
}

func TestLoginBudget(t *testing.T) {
	l, _ := newTestLimiter(t, Config{MaxLoginFailures: 3, LoginWindow: 10 * time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, l.CheckLogin(ctx, "alice", "203.0.113.9"))
		require.NoError(t, l.RecordLoginFailure(ctx, "alice", "203.0.113.9"))
	}

	err := l.CheckLogin(ctx, "alice", "203.0.113.9")
	require.ErrorIs(t, err, ErrRateLimited)

	// a different identifier is unaffected
	require.NoError(t, l.CheckLogin(ctx, "bob", "203.0.113.9"))

	count, err := l.LoginFailures(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 3, count)
}

func TestLoginWindowExpires(t *testing.T) {
	l, mr := newTestLimiter(t, Config{MaxLoginFailures: 1, LoginWindow: 10 * time.Minute})
	ctx := context.Background()

	require.NoError(t, l.RecordLoginFailure(ctx, "alice", ""))
	require.ErrorIs(t, l.CheckLogin(ctx, "alice", ""), ErrRateLimited)

	mr.FastForward(11 * time.Minute)
	require.NoError(t, l.CheckLogin(ctx, "alice", ""))
}

func TestIPThrottle(t *testing.T) {
	l, _ := newTestLimiter(t, Config{MaxLoginFailures: 2, LoginWindow: 10 * time.Minute, ThrottleByIP: true})
	ctx := context.Background()

	require.NoError(t, l.RecordLoginFailure(ctx, "alice", "203.0.113.9"))
	require.NoError(t, l.RecordLoginFailure(ctx, "bob", "203.0.113.9"))

	// same IP is over budget even for a fresh identifier
	err := l.CheckLogin(ctx, "carol", "203.0.113.9")
	require.ErrorIs(t, err, ErrRateLimited)

	require.NoError(t, l.CheckLogin(ctx, "carol", "198.51.100.1"))
}

func TestResetLogin(t *testing.T) {
	l, _ := newTestLimiter(t, Config{MaxLoginFailures: 1, LoginWindow: 10 * time.Minute, ThrottleByIP: true})
	ctx := context.Background()

	require.NoError(t, l.RecordLoginFailure(ctx, "alice", "203.0.113.9"))
	require.ErrorIs(t, l.CheckLogin(ctx, "alice", "203.0.113.9"), ErrRateLimited)

	require.NoError(t, l.ResetLogin(ctx, "alice", "203.0.113.9"))
	require.NoError(t, l.CheckLogin(ctx, "alice", "203.0.113.9"))
}

func TestRefreshBudget(t *testing.T) {
	l, _ := newTestLimiter(t, Config{MaxRefreshCalls: 2, RefreshWindow: time.Minute})
	ctx := context.Background()

	require.NoError(t, l.CheckRefresh(ctx, "sid-1"))
	require.NoError(t, l.CheckRefresh(ctx, "sid-1"))
	require.ErrorIs(t, l.CheckRefresh(ctx, "sid-1"), ErrRateLimited)
	require.NoError(t, l.CheckRefresh(ctx, "sid-2"))
}

func TestDisabledThrottles(t *testing.T) {
	l, _ := newTestLimiter(t, Config{})
	ctx := context.Background()

	require.NoError(t, l.CheckLogin(ctx, "alice", "ip"))
	require.NoError(t, l.RecordLoginFailure(ctx, "alice", "ip"))
	require.NoError(t, l.CheckRefresh(ctx, "sid-1"))
}

func TestLimiterStoreDown(t *testing.T) {
	l, mr := newTestLimiter(t, Config{MaxLoginFailures: 1, LoginWindow: time.Minute})
	mr.Close()

	err := l.RecordLoginFailure(context.Background(), "alice", "")
	require.ErrorIs(t, err, ErrRedisUnavailable)
}
