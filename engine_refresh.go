package authengine

import (
	"context"
	"errors"
	"fmt"

	internalaudit "github.com/sessionlab/authengine/internal/audit"
	"github.com/sessionlab/authengine/internal/rate"
	"github.com/sessionlab/authengine/permission"
)

// Refresh rotates the caller's token pair in place: the session keeps its
// id, its stored refresh token is replaced by the new one, and the token
// just superseded is blacklisted for one access-token lifetime so a replay
// of it marks the bearer as compromised.
//
// The caller must have resolved with a valid session and refresh token; an
// expired access token alone does not block refreshing.
func (e *Engine) Refresh(ctx context.Context, p Principal) (*SignInResult, error) {
	if err := requireTags(p, []permission.Tag{permission.RefreshTokens}); err != nil {
		return nil, err
	}

	auth, ok := p.(Authenticated)
	if !ok {
		return nil, fmt.Errorf("%w: refresh requires credentials", ErrUnauthorized)
	}
	if !auth.SessionValid || !auth.RefreshTokenValid {
		return nil, fmt.Errorf("%w: session or refresh token not valid", ErrUnauthorized)
	}

	if err := e.limiter.CheckRefresh(ctx, auth.SessionID); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			return nil, fmt.Errorf("%w: refresh calls", ErrRateLimited)
		}
		return nil, err
	}

	// Reload the account so rotated tokens carry current permissions and
	// state, not the snapshot from the old token.
	user, err := e.users.GetByID(ctx, auth.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: account no longer exists", ErrUnauthorized)
		}
		return nil, err
	}
	if user.State == StateBlocked || user.State == StateDeleted {
		return nil, fmt.Errorf("%w: account unavailable", ErrForbidden)
	}

	tokens, err := e.issueTokens(user)
	if err != nil {
		return nil, err
	}

	if _, err := e.sessions.CreateOrRotate(ctx, user.ID, tokens.RefreshToken, auth.IP, auth.UserAgent, auth.SessionID); err != nil {
		return nil, err
	}
	if err := e.guard.Blacklist(ctx, auth.SessionID, auth.RefreshToken, e.cfg.JWT.AccessTTL); err != nil {
		return nil, err
	}

	e.emit(ctx, AuditEvent{
		EventType: internalaudit.TypeRefresh,
		UserID:    user.ID,
		SessionID: auth.SessionID,
		IP:        auth.IP,
		UserAgent: auth.UserAgent,
		Success:   true,
	})
	e.log.DebugContext(ctx, "tokens rotated", "user_id", user.ID, "session_id", auth.SessionID)

	return &SignInResult{User: viewOf(user), Tokens: tokens, SessionID: auth.SessionID}, nil
}
