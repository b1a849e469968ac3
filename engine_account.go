package authengine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	internalaudit "github.com/sessionlab/authengine/internal/audit"
	"github.com/sessionlab/authengine/internal/rate"
	"github.com/sessionlab/authengine/permission"
)

// SignUp registers a new account. Username and email collisions are
// case-insensitive and fail with [ErrAlreadyExists]. The account starts in
// [StateNotConfirmed] with the default user grants; it cannot sign in until
// the email is verified.
func (e *Engine) SignUp(ctx context.Context, p Principal, req SignUpRequest) (*UserView, error) {
	if err := requireTags(p, []permission.Tag{permission.CreateUser}); err != nil {
		return nil, err
	}

	username := strings.TrimSpace(req.Username)
	email := strings.TrimSpace(req.Email)
	switch {
	case username == "" || strings.Contains(username, "@"):
		return nil, fmt.Errorf("%w: invalid username", ErrBadRequest)
	case !strings.Contains(email, "@"):
		return nil, fmt.Errorf("%w: invalid email", ErrBadRequest)
	}
	if err := e.checkPasswordPolicy(req.Password); err != nil {
		return nil, err
	}

	// Pre-checks give a clean error before hashing; the repository's unique
	// constraints still hold under races.
	if _, err := e.users.GetByUsername(ctx, username); err == nil {
		return nil, fmt.Errorf("%w: username taken", ErrAlreadyExists)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if _, err := e.users.GetByEmail(ctx, email); err == nil {
		return nil, fmt.Errorf("%w: email taken", ErrAlreadyExists)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	hash, err := e.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	created, err := e.users.Create(ctx, CreateUserInput{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		State:        StateNotConfirmed,
		Permissions:  permission.DefaultUser().Strings(),
	})
	if err != nil {
		return nil, err
	}

	e.emit(ctx, AuditEvent{
		EventType: internalaudit.TypeSignUp,
		UserID:    created.ID,
		IP:        p.ClientIP(),
		UserAgent: p.ClientUserAgent(),
		Success:   true,
	})
	e.log.InfoContext(ctx, "account created", "user_id", created.ID)

	view := viewOf(created)
	return &view, nil
}

// SignIn authenticates by username or email plus password, mints a token
// pair, and opens a new device session. Unknown accounts and wrong
// passwords are indistinguishable: both fail with [ErrNotFound].
func (e *Engine) SignIn(ctx context.Context, p Principal, identifier, pw string) (*SignInResult, error) {
	if err := requireTags(p, []permission.Tag{permission.Authenticate}); err != nil {
		return nil, err
	}

	identifier = strings.TrimSpace(identifier)
	if identifier == "" || pw == "" {
		return nil, fmt.Errorf("%w: identifier and password are required", ErrBadRequest)
	}

	ip := p.ClientIP()
	if err := e.limiter.CheckLogin(ctx, strings.ToLower(identifier), ip); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.emit(ctx, AuditEvent{
				EventType: internalaudit.TypeSignInFailed,
				IP:        ip,
				UserAgent: p.ClientUserAgent(),
				Error:     "rate limited",
			})
			return nil, fmt.Errorf("%w: sign-in attempts", ErrRateLimited)
		}
		return nil, err
	}

	user, err := e.lookupByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, e.failSignIn(ctx, p, identifier, "", "unknown identifier")
		}
		return nil, err
	}

	ok, err := e.hasher.Verify(pw, user.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, e.failSignIn(ctx, p, identifier, user.ID, "wrong password")
	}

	if user.State != StateActive {
		e.emit(ctx, AuditEvent{
			EventType: internalaudit.TypeSignInFailed,
			UserID:    user.ID,
			IP:        ip,
			UserAgent: p.ClientUserAgent(),
			Error:     "account state",
		})
		switch user.State {
		case StateNotConfirmed:
			return nil, fmt.Errorf("%w: email not verified", ErrForbidden)
		default:
			return nil, fmt.Errorf("%w: account unavailable", ErrForbidden)
		}
	}

	if err := e.limiter.ResetLogin(ctx, strings.ToLower(identifier), ip); err != nil {
		e.log.WarnContext(ctx, "failed-login counter reset failed", "err", err)
	}

	tokens, err := e.issueTokens(user)
	if err != nil {
		return nil, err
	}
	sessionID, err := e.sessions.CreateOrRotate(ctx, user.ID, tokens.RefreshToken, ip, p.ClientUserAgent(), "")
	if err != nil {
		return nil, err
	}

	e.emit(ctx, AuditEvent{
		EventType: internalaudit.TypeSignIn,
		UserID:    user.ID,
		SessionID: sessionID,
		IP:        ip,
		UserAgent: p.ClientUserAgent(),
		Success:   true,
	})
	e.log.InfoContext(ctx, "sign-in", "user_id", user.ID, "session_id", sessionID)

	return &SignInResult{User: viewOf(user), Tokens: tokens, SessionID: sessionID}, nil
}

// Logout closes the caller's current session. Logging out an already-closed
// session succeeds; the operation is idempotent.
func (e *Engine) Logout(ctx context.Context, p Principal) error {
	if err := requireTags(p, []permission.Tag{permission.Logout}); err != nil {
		return err
	}

	auth, err := requireFresh(p)
	if err != nil {
		return err
	}
	if auth.SessionID == "" {
		return fmt.Errorf("%w: no session to close", ErrUnauthorized)
	}

	if err := e.sessions.Delete(ctx, auth.UserID, auth.SessionID); err != nil {
		return err
	}
	// park the still-valid refresh token for the remaining access window
	if auth.RefreshToken != "" {
		if err := e.guard.Blacklist(ctx, auth.SessionID, auth.RefreshToken, e.cfg.JWT.AccessTTL); err != nil {
			return err
		}
	}

	e.emit(ctx, AuditEvent{
		EventType: internalaudit.TypeLogout,
		UserID:    auth.UserID,
		SessionID: auth.SessionID,
		IP:        auth.IP,
		UserAgent: auth.UserAgent,
		Success:   true,
	})
	return nil
}

func (e *Engine) lookupByIdentifier(ctx context.Context, identifier string) (*UserRecord, error) {
	if strings.Contains(identifier, "@") {
		return e.users.GetByEmail(ctx, identifier)
	}
	return e.users.GetByUsername(ctx, identifier)
}

// failSignIn charges the rate counters, audits, and returns the uniform
// credential failure.
func (e *Engine) failSignIn(ctx context.Context, p Principal, identifier, userID, reason string) error {
	if err := e.limiter.RecordLoginFailure(ctx, strings.ToLower(identifier), p.ClientIP()); err != nil {
		e.log.WarnContext(ctx, "failed-login counter charge failed", "err", err)
	}
	e.emit(ctx, AuditEvent{
		EventType: internalaudit.TypeSignInFailed,
		UserID:    userID,
		IP:        p.ClientIP(),
		UserAgent: p.ClientUserAgent(),
		Error:     reason,
	})
	return fmt.Errorf("%w: invalid credentials", ErrNotFound)
}
