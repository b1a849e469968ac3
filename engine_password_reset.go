package authengine

import (
	"context"
	"fmt"
	"strings"

	internalaudit "github.com/sessionlab/authengine/internal/audit"
	"github.com/sessionlab/authengine/permission"
)

// SendResetCode generates a password-reset code for the account registered
// under email and mails it out. Blocked and deleted accounts cannot start a
// reset. Generation is throttled per address by the confirmation challenge.
func (e *Engine) SendResetCode(ctx context.Context, p Principal, email string) error {
	if err := requireTags(p, []permission.Tag{permission.ResetPassword}); err != nil {
		return err
	}

	email = strings.ToLower(strings.TrimSpace(email))
	user, err := e.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user.State == StateBlocked || user.State == StateDeleted {
		return fmt.Errorf("%w: account unavailable", ErrForbidden)
	}

	code, err := e.passwordReset.Generate(ctx, email)
	if err != nil {
		return mapConfirmErr(err)
	}

	e.send(ctx, Email{
		To:          email,
		Subject:     "Password reset code",
		Body:        fmt.Sprintf("Your password reset code is %s. It expires in %s. If you did not request this, ignore this message.", code, e.cfg.Confirm.CodeTTL),
		ContentType: "text/plain",
		Priority:    1,
		TTL:         e.cfg.Confirm.CodeTTL,
	})
	e.log.InfoContext(ctx, "password reset code sent", "user_id", user.ID)
	return nil
}

// ResetPassword verifies a reset code and replaces the account's password
// hash. The code is verified without being consumed first, so a new
// password that fails policy leaves the challenge usable for another try;
// the challenge is deleted explicitly only after the hash is replaced.
func (e *Engine) ResetPassword(ctx context.Context, p Principal, email, code, newPassword string) error {
	if err := requireTags(p, []permission.Tag{permission.ResetPassword}); err != nil {
		return err
	}

	email = strings.ToLower(strings.TrimSpace(email))
	user, err := e.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user.State == StateBlocked || user.State == StateDeleted {
		return fmt.Errorf("%w: account unavailable", ErrForbidden)
	}

	if err := e.passwordReset.Verify(ctx, email, code, false); err != nil {
		mapped := mapConfirmErr(err)
		e.emit(ctx, AuditEvent{
			EventType: internalaudit.TypePasswordReset,
			UserID:    user.ID,
			IP:        p.ClientIP(),
			UserAgent: p.ClientUserAgent(),
			Error:     err.Error(),
		})
		return mapped
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
	if err := e.passwordReset.Delete(ctx, email); err != nil {
		e.log.WarnContext(ctx, "reset challenge cleanup failed", "user_id", user.ID, "err", err)
	}
	if err := e.limiter.ResetLogin(ctx, strings.ToLower(user.Username), p.ClientIP()); err != nil {
		e.log.WarnContext(ctx, "failed-login counter reset failed", "err", err)
	}

	e.emit(ctx, AuditEvent{
		EventType: internalaudit.TypePasswordReset,
		UserID:    user.ID,
		IP:        p.ClientIP(),
		UserAgent: p.ClientUserAgent(),
		Success:   true,
	})
	e.log.InfoContext(ctx, "password reset", "user_id", user.ID)

	e.send(ctx, Email{
		To:          email,
		Subject:     "Your password was changed",
		Body:        "The password for your account was just changed. If this was not you, reset it again immediately.",
		ContentType: "text/plain",
		Priority:    1,
	})
	return nil
}
