package authengine

import (
	"context"
	"time"

	internalaudit "github.com/sessionlab/authengine/internal/audit"
	"github.com/sessionlab/authengine/permission"
)

// ResolvePrincipal turns the credentials a request carried (access token,
// refresh token, and session id, typically from cookies) into a
// [Principal]. The chain is: validate the access token, validate the
// refresh token, check the session store, check the replay blacklist.
//
// Resolution fails closed: any stage that cannot be positively verified,
// including store timeouts and transport errors, degrades the caller to
// [Unauthenticated]. A refresh token found on the blacklist additionally
// revokes the session, since someone is holding credentials that were
// already rotated away.
func (e *Engine) ResolvePrincipal(ctx context.Context, accessToken, refreshToken, sessionID, ip, userAgent string) Principal {
	guest := Unauthenticated{IP: ip, UserAgent: userAgent}

	accessClaims, accessErr := e.tokens.Validate(accessToken)
	refreshClaims, refreshErr := e.tokens.Validate(refreshToken)

	claims := accessClaims
	if accessErr != nil {
		claims = refreshClaims
	}
	if claims == nil {
		return guest
	}
	// both tokens present but issued for different accounts: reject outright
	if accessErr == nil && refreshErr == nil && accessClaims.ID != refreshClaims.ID {
		return guest
	}

	if sessionID == "" || refreshErr != nil {
		return guest
	}

	sessionValid, err := e.sessions.IsValid(ctx, claims.ID, sessionID, refreshToken)
	if err != nil {
		e.log.WarnContext(ctx, "session check unavailable, failing closed", "err", err)
		return guest
	}

	replayed, err := e.guard.IsReplayed(ctx, sessionID, refreshToken)
	if err != nil {
		e.log.WarnContext(ctx, "replay check unavailable, failing closed", "err", err)
		return guest
	}
	if replayed {
		// stale rotated token presented again: revoke the whole session
		if err := e.sessions.Delete(ctx, claims.ID, sessionID); err != nil {
			e.log.WarnContext(ctx, "session revocation after replay failed", "err", err)
		}
		e.emit(ctx, AuditEvent{
			EventType: internalaudit.TypeReplayRejected,
			UserID:    claims.ID,
			SessionID: sessionID,
			IP:        ip,
			UserAgent: userAgent,
			Error:     "blacklisted refresh token presented",
		})
		e.log.WarnContext(ctx, "refresh token replay rejected", "user_id", claims.ID, "session_id", sessionID)
		return guest
	}

	if !sessionValid {
		return guest
	}

	var expiry time.Time
	if claims.ExpiresAt != nil {
		expiry = claims.ExpiresAt.Time
	}

	return Authenticated{
		UserID:            claims.ID,
		Username:          claims.Username,
		Permissions:       permission.FromStrings(claims.Permissions),
		State:             UserState(claims.State),
		TokenExpiry:       expiry,
		SessionID:         sessionID,
		RefreshToken:      refreshToken,
		IP:                ip,
		UserAgent:         userAgent,
		AccessTokenValid:  accessErr == nil,
		RefreshTokenValid: refreshErr == nil,
		SessionValid:      sessionValid,
	}
}
