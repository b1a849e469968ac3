package authengine

import (
	"context"
	"fmt"
	"strings"

	internalaudit "github.com/sessionlab/authengine/internal/audit"
	"github.com/sessionlab/authengine/permission"
)

// ChangePassword replaces the caller's password after re-verifying the
// current one. Unlike a reset, the caller is already signed in, so the old
// password stands in for the emailed code. Existing device sessions stay
// signed in; the account owner is notified by email.
func (e *Engine) ChangePassword(ctx context.Context, p Principal, oldPassword, newPassword string) error {
	if err := requireTags(p, []permission.Tag{permission.UpdateSelf}); err != nil {
		return err
	}
	auth, err := requireFresh(p)
	if err != nil {
		return err
	}
	if err := requireStates(p, StateActive); err != nil {
		return err
	}

	if oldPassword == newPassword {
		return fmt.Errorf("%w: new password must differ from the current one", ErrBadRequest)
	}

	user, err := e.users.GetByID(ctx, auth.UserID)
	if err != nil {
		return err
	}

	ok, err := e.hasher.Verify(oldPassword, user.PasswordHash)
	if err != nil {
		return err
	}
	if !ok {
		e.emit(ctx, AuditEvent{
			EventType: internalaudit.TypePasswordChanged,
			UserID:    user.ID,
			SessionID: auth.SessionID,
			IP:        auth.IP,
			UserAgent: auth.UserAgent,
			Error:     "current password mismatch",
		})
		return fmt.Errorf("%w: current password is incorrect", ErrBadRequest)
	}

	if err := e.checkPasswordPolicy(newPassword); err != nil {
		return err
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := e.users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		return err
	}
	if err := e.limiter.ResetLogin(ctx, strings.ToLower(user.Username), auth.IP); err != nil {
		e.log.WarnContext(ctx, "failed-login counter reset failed", "err", err)
	}

	e.emit(ctx, AuditEvent{
		EventType: internalaudit.TypePasswordChanged,
		UserID:    user.ID,
		SessionID: auth.SessionID,
		IP:        auth.IP,
		UserAgent: auth.UserAgent,
		Success:   true,
	})
	e.log.InfoContext(ctx, "password changed", "user_id", user.ID)

	e.send(ctx, Email{
		To:          user.Email,
		Subject:     "Your password was changed",
		Body:        "The password for your account was just changed. If this was not you, reset it immediately.",
		ContentType: "text/plain",
		Priority:    1,
	})
	return nil
}
