package authengine

import (
	"context"
	"errors"
	"fmt"
	"time"

	internalaudit "github.com/sessionlab/authengine/internal/audit"
	"github.com/sessionlab/authengine/permission"
	"github.com/sessionlab/authengine/session"
)

// Sessions lists the caller's own device sessions, oldest first. The entry
// belonging to the current request is flagged.
func (e *Engine) Sessions(ctx context.Context, p Principal) ([]SessionInfo, error) {
	if err := requireTags(p, []permission.Tag{permission.GetSelfSessions}); err != nil {
		return nil, err
	}
	auth, err := requireFresh(p)
	if err != nil {
		return nil, err
	}
	if err := requireStates(p, StateActive); err != nil {
		return nil, err
	}

	return e.listSessions(ctx, auth.UserID, auth.SessionID)
}

// UserSessions lists another user's device sessions. Administrative; gated
// by the GET_USER_SESSIONS tag.
func (e *Engine) UserSessions(ctx context.Context, p Principal, userID string) ([]SessionInfo, error) {
	if err := requireTags(p, []permission.Tag{permission.GetUserSessions}); err != nil {
		return nil, err
	}
	if _, err := requireFresh(p); err != nil {
		return nil, err
	}
	if err := requireStates(p, StateActive); err != nil {
		return nil, err
	}

	if _, err := e.users.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	return e.listSessions(ctx, userID, "")
}

// RevokeSession closes one of the caller's own sessions by id. The revoked
// session's refresh token is blacklisted for an access-token lifetime so
// the evicted device cannot quietly rotate its way back in.
func (e *Engine) RevokeSession(ctx context.Context, p Principal, sessionID string) error {
	if err := requireTags(p, []permission.Tag{permission.DeleteSelfSession}); err != nil {
		return err
	}
	auth, err := requireFresh(p)
	if err != nil {
		return err
	}
	if err := requireStates(p, StateActive); err != nil {
		return err
	}

	return e.revokeSession(ctx, auth, auth.UserID, sessionID)
}

// RevokeUserSession closes one session of another user. Administrative;
// gated by the DELETE_USER_SESSION tag.
func (e *Engine) RevokeUserSession(ctx context.Context, p Principal, userID, sessionID string) error {
	if err := requireTags(p, []permission.Tag{permission.DeleteUserSession}); err != nil {
		return err
	}
	auth, err := requireFresh(p)
	if err != nil {
		return err
	}
	if err := requireStates(p, StateActive); err != nil {
		return err
	}

	if _, err := e.users.GetByID(ctx, userID); err != nil {
		return err
	}
	return e.revokeSession(ctx, auth, userID, sessionID)
}

// ReauthEntries enumerates the replay blacklist. Administrative; gated by
// the GET_USER_SESSIONS tag since it exposes other users' session ids.
func (e *Engine) ReauthEntries(ctx context.Context, p Principal) ([]ReauthEntry, error) {
	if err := requireTags(p, []permission.Tag{permission.GetUserSessions}); err != nil {
		return nil, err
	}
	if _, err := requireFresh(p); err != nil {
		return nil, err
	}
	if err := requireStates(p, StateActive); err != nil {
		return nil, err
	}

	entries, err := e.guard.Entries(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]ReauthEntry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, ReauthEntry{
			SessionID:    entry.SessionID,
			RefreshToken: entry.RefreshToken,
			TTL:          entry.TTL,
		})
	}
	return out, nil
}

func (e *Engine) listSessions(ctx context.Context, userID, currentSessionID string) ([]SessionInfo, error) {
	records, err := e.sessions.List(ctx, userID)
	if err != nil {
		return nil, err
	}

	infos := make([]SessionInfo, 0, len(records))
	for _, r := range records {
		infos = append(infos, SessionInfo{
			SessionID: r.SessionID,
			IP:        r.IP,
			UserAgent: r.UserAgent,
			CreatedAt: time.Unix(r.CreatedAt, 0).UTC(),
			Current:   r.SessionID == currentSessionID,
		})
	}
	return infos, nil
}

// revokeSession deletes the record and parks its refresh token on the
// blacklist. Revoking an unknown session is [ErrNotFound].
func (e *Engine) revokeSession(ctx context.Context, actor Authenticated, userID, sessionID string) error {
	record, err := e.sessions.Get(ctx, userID, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrRecordCorrupt) {
			return fmt.Errorf("%w: session", ErrNotFound)
		}
		return err
	}

	if err := e.sessions.Delete(ctx, userID, sessionID); err != nil {
		return err
	}
	if err := e.guard.Blacklist(ctx, sessionID, record.RefreshToken, e.cfg.JWT.AccessTTL); err != nil {
		return err
	}

	e.emit(ctx, AuditEvent{
		EventType: internalaudit.TypeSessionRevoked,
		UserID:    userID,
		SessionID: sessionID,
		IP:        actor.IP,
		UserAgent: actor.UserAgent,
		Success:   true,
		Metadata:  map[string]string{"revoked_by": actor.UserID},
	})
	e.log.InfoContext(ctx, "session revoked", "user_id", userID, "session_id", sessionID, "revoked_by", actor.UserID)
	return nil
}
