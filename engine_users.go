package authengine

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	internalaudit "github.com/sessionlab/authengine/internal/audit"
	"github.com/sessionlab/authengine/permission"
)

// GetUser looks up a public account profile by username. Deleted accounts
// are hidden behind [ErrNotFound].
func (e *Engine) GetUser(ctx context.Context, p Principal, username string) (*UserView, error) {
	if err := requireTags(p, []permission.Tag{permission.GetUser}); err != nil {
		return nil, err
	}

	user, err := e.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, err
	}
	if user.State == StateDeleted {
		return nil, fmt.Errorf("%w: user", ErrNotFound)
	}

	view := viewOf(user)
	return &view, nil
}

// Self returns the caller's own account, reloaded from the repository so
// the view reflects state changes made after the token was issued.
func (e *Engine) Self(ctx context.Context, p Principal) (*UserView, error) {
	if err := requireTags(p, []permission.Tag{permission.GetSelf}); err != nil {
		return nil, err
	}
	auth, err := requireFresh(p)
	if err != nil {
		return nil, err
	}

	user, err := e.users.GetByID(ctx, auth.UserID)
	if err != nil {
		return nil, err
	}

	view := viewOf(user)
	return &view, nil
}

// DeleteSelf soft-deletes the caller's account and closes every device
// session, blacklisting each session's refresh token for the remaining
// access window.
func (e *Engine) DeleteSelf(ctx context.Context, p Principal) error {
	if err := requireTags(p, []permission.Tag{permission.DeleteSelf}); err != nil {
		return err
	}
	auth, err := requireFresh(p)
	if err != nil {
		return err
	}
	if err := requireStates(p, StateActive); err != nil {
		return err
	}

	if err := e.users.UpdateState(ctx, auth.UserID, StateDeleted); err != nil {
		return err
	}

	records, err := e.sessions.List(ctx, auth.UserID)
	if err != nil {
		return err
	}
	for _, r := range records {
		if err := e.sessions.Delete(ctx, auth.UserID, r.SessionID); err != nil {
			return err
		}
		if err := e.guard.Blacklist(ctx, r.SessionID, r.RefreshToken, e.cfg.JWT.AccessTTL); err != nil {
			return err
		}
	}

	e.emit(ctx, AuditEvent{
		EventType: internalaudit.TypeSessionRevoked,
		UserID:    auth.UserID,
		IP:        auth.IP,
		UserAgent: auth.UserAgent,
		Success:   true,
		Metadata:  map[string]string{"reason": "account deleted"},
	})
	e.log.InfoContext(ctx, "account deleted", "user_id", auth.UserID)
	return nil
}

// SetUserState is the administrative state transition: block, unblock, or
// soft-delete another account. On an actual change every refresh token the
// target holds is blacklisted for the remaining access window, so the
// target's devices fall back to guest the next time they present
// credentials. Session records are left in place for inspection.
func (e *Engine) SetUserState(ctx context.Context, p Principal, userID string, state UserState) error {
	if err := requireTags(p, []permission.Tag{permission.UpdateUser}); err != nil {
		return err
	}
	auth, err := requireFresh(p)
	if err != nil {
		return err
	}
	if err := requireStates(p, StateActive); err != nil {
		return err
	}

	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.State == state {
		return nil
	}

	if err := e.users.UpdateState(ctx, user.ID, state); err != nil {
		return err
	}

	records, err := e.sessions.List(ctx, user.ID)
	if err != nil {
		return err
	}
	for _, r := range records {
		if err := e.guard.Blacklist(ctx, r.SessionID, r.RefreshToken, e.cfg.JWT.AccessTTL); err != nil {
			return err
		}
	}

	e.emit(ctx, AuditEvent{
		EventType: internalaudit.TypeUserStateChanged,
		UserID:    user.ID,
		IP:        auth.IP,
		UserAgent: auth.UserAgent,
		Success:   true,
		Metadata: map[string]string{
			"actor_id":  auth.UserID,
			"old_state": strconv.Itoa(int(user.State)),
			"new_state": strconv.Itoa(int(state)),
		},
	})
	e.log.InfoContext(ctx, "user state changed", "user_id", user.ID, "state", int(state), "actor_id", auth.UserID)
	return nil
}
