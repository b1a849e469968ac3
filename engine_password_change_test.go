package authengine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChangePasswordRotatesCredential(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result := env.signUpActive(t, "alice", "alice@example.com", "correct horse battery")
	auth := env.authed(t, result)

	require.NoError(t, env.engine.ChangePassword(ctx, auth, "correct horse battery", "staple gun overdrive"))

	// the old password stops working, the new one signs in
	_, err := env.engine.SignIn(ctx, guest(), "alice", "correct horse battery")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = env.engine.SignIn(ctx, guest(), "alice", "staple gun overdrive")
	require.NoError(t, err)

	// existing device sessions stay signed in
	_, ok := env.resolve(result).(Authenticated)
	require.True(t, ok)

	// the owner is notified
	require.Equal(t, "alice@example.com", env.mailer.last().To)
	require.Equal(t, "Your password was changed", env.mailer.last().Subject)
}

func TestChangePasswordRejectsWrongCurrent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result := env.signUpActive(t, "alice", "alice@example.com", "correct horse battery")
	auth := env.authed(t, result)

	err := env.engine.ChangePassword(ctx, auth, "not the password!!", "staple gun overdrive")
	require.ErrorIs(t, err, ErrBadRequest)

	// the stored hash is untouched
	_, err = env.engine.SignIn(ctx, guest(), "alice", "correct horse battery")
	require.NoError(t, err)
}

func TestChangePasswordValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result := env.signUpActive(t, "alice", "alice@example.com", "correct horse battery")
	auth := env.authed(t, result)

	// reusing the current password is rejected before anything is touched
	err := env.engine.ChangePassword(ctx, auth, "correct horse battery", "correct horse battery")
	require.ErrorIs(t, err, ErrBadRequest)

	// the replacement must pass the acceptance policy
	err = env.engine.ChangePassword(ctx, auth, "correct horse battery", "short")
	require.ErrorIs(t, err, ErrBadRequest)

	_, err = env.engine.SignIn(ctx, guest(), "alice", "correct horse battery")
	require.NoError(t, err)
}

func TestChangePasswordRequiresFreshToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result := env.signUpActive(t, "alice", "alice@example.com", "correct horse battery")

	err := env.engine.ChangePassword(ctx, guest(), "correct horse battery", "staple gun overdrive")
	require.ErrorIs(t, err, ErrUnauthorized)

	// refresh credentials alone may rotate tokens but not change the password
	p := env.engine.ResolvePrincipal(ctx, "", result.Tokens.RefreshToken, result.SessionID, "203.0.113.9", "engine-test/1.0")
	auth, ok := p.(Authenticated)
	require.True(t, ok)
	require.False(t, auth.AccessTokenValid)

	err = env.engine.ChangePassword(ctx, auth, "correct horse battery", "staple gun overdrive")
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestChangePasswordRequiresActiveState(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result := env.signUpActive(t, "alice", "alice@example.com", "correct horse battery")
	auth := env.authed(t, result)
	auth.State = StateBlocked

	err := env.engine.ChangePassword(ctx, auth, "correct horse battery", "staple gun overdrive")
	require.ErrorIs(t, err, ErrForbidden)
}
