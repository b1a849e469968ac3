package confirm

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestChallenge(t *testing.T) (*Challenge, *miniredis.Miniredis, *time.Time) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	c, err := NewChallenge(rdb, Params{Purpose: PurposeEmailConfirm})
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return now }
	return c, mr, &now
}

func TestGenerateVerifyConsume(t *testing.T) {
	c, mr, _ := newTestChallenge(t)
	ctx := context.Background()

	code, err := c.Generate(ctx, "a@example.com")
	require.NoError(t, err)
	require.Len(t, code, 6)

	require.NoError(t, c.Verify(ctx, "a@example.com", code, true))
	require.False(t, mr.Exists("email_confirm:a@example.com"))

	err = c.Verify(ctx, "a@example.com", code, true)
	require.ErrorIs(t, err, ErrNotGenerated)
}

func TestVerifyWithoutGenerate(t *testing.T) {
	c, _, _ := newTestChallenge(t)

	err := c.Verify(context.Background(), "a@example.com", "123456", true)
	require.ErrorIs(t, err, ErrNotGenerated)
}

func TestResendThrottle(t *testing.T) {
	c, _, now := newTestChallenge(t)
	ctx := context.Background()

	_, err := c.Generate(ctx, "a@example.com")
	require.NoError(t, err)

	_, err = c.Generate(ctx, "a@example.com")
	require.ErrorIs(t, err, ErrAlreadySent)

	*now = now.Add(121 * time.Second)
	_, err = c.Generate(ctx, "a@example.com")
	require.NoError(t, err)
}

func TestGenerationCap(t *testing.T) {
	c, _, now := newTestChallenge(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := c.Generate(ctx, "a@example.com")
		require.NoError(t, err)
		*now = now.Add(3 * time.Minute)
	}

	_, err := c.Generate(ctx, "a@example.com")
	require.ErrorIs(t, err, ErrTooManyGenerations)

	// once the oldest codes age out, generation opens up again
	*now = now.Add(30 * time.Minute)
	_, err = c.Generate(ctx, "a@example.com")
	require.NoError(t, err)
}

func TestNewestCodeIsAuthoritative(t *testing.T) {
	c, _, now := newTestChallenge(t)
	ctx := context.Background()

	first, err := c.Generate(ctx, "a@example.com")
	require.NoError(t, err)

	*now = now.Add(3 * time.Minute)
	second, err := c.Generate(ctx, "a@example.com")
	require.NoError(t, err)

	if first != second {
		err = c.Verify(ctx, "a@example.com", first, true)
		require.ErrorIs(t, err, ErrInvalidCode)
	}
	require.NoError(t, c.Verify(ctx, "a@example.com", second, true))
}

func TestAttemptBudget(t *testing.T) {
	c, _, _ := newTestChallenge(t)
	ctx := context.Background()

	code, err := c.Generate(ctx, "a@example.com")
	require.NoError(t, err)

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	for i := 0; i < 3; i++ {
		err = c.Verify(ctx, "a@example.com", wrong, true)
		require.ErrorIs(t, err, ErrInvalidCode)
	}

	// budget burned: even the right code is rejected now
	err = c.Verify(ctx, "a@example.com", code, true)
	require.ErrorIs(t, err, ErrTooManyAttempts)
}

func TestCodeExpiry(t *testing.T) {
	c, _, now := newTestChallenge(t)
	ctx := context.Background()

	code, err := c.Generate(ctx, "a@example.com")
	require.NoError(t, err)

	*now = now.Add(31 * time.Minute)
	err = c.Verify(ctx, "a@example.com", code, true)
	require.ErrorIs(t, err, ErrExpired)
}

func TestWrongGuessOnExpiredCode(t *testing.T) {
	c, _, now := newTestChallenge(t)
	ctx := context.Background()

	code, err := c.Generate(ctx, "a@example.com")
	require.NoError(t, err)

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	// a mismatch is reported as a mismatch even after the window lapsed,
	// and it still charges the attempt budget
	*now = now.Add(31 * time.Minute)
	for i := 0; i < 3; i++ {
		err = c.Verify(ctx, "a@example.com", wrong, true)
		require.ErrorIs(t, err, ErrInvalidCode)
	}

	// a burned budget likewise takes precedence over expiry
	err = c.Verify(ctx, "a@example.com", code, true)
	require.ErrorIs(t, err, ErrTooManyAttempts)
}

func TestExpiryBoundary(t *testing.T) {
	c, _, now := newTestChallenge(t)
	ctx := context.Background()

	code, err := c.Generate(ctx, "a@example.com")
	require.NoError(t, err)

	// the code stays valid through the full window; only strictly after
	// it does the window close
	*now = now.Add(30 * time.Minute)
	require.NoError(t, c.Verify(ctx, "a@example.com", code, true))
}

func TestVerifyWithoutConsume(t *testing.T) {
	c, mr, _ := newTestChallenge(t)
	ctx := context.Background()

	code, err := c.Generate(ctx, "a@example.com")
	require.NoError(t, err)

	require.NoError(t, c.Verify(ctx, "a@example.com", code, false))
	require.True(t, mr.Exists("email_confirm:a@example.com"))

	// still consumable until the caller deletes it explicitly
	require.NoError(t, c.Verify(ctx, "a@example.com", code, false))
	require.NoError(t, c.Delete(ctx, "a@example.com"))

	err = c.Verify(ctx, "a@example.com", code, false)
	require.ErrorIs(t, err, ErrNotGenerated)
}

func TestChallengeStoreDown(t *testing.T) {
	c, mr, _ := newTestChallenge(t)
	mr.Close()

	_, err := c.Generate(context.Background(), "a@example.com")
	require.ErrorIs(t, err, ErrRedisUnavailable)

	err = c.Verify(context.Background(), "a@example.com", "123456", true)
	require.ErrorIs(t, err, ErrRedisUnavailable)
}

func TestNewChallengeRequiresPurpose(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	_, err := NewChallenge(rdb, Params{})
	require.Error(t, err)
}
