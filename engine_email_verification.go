package authengine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	internalaudit "github.com/sessionlab/authengine/internal/audit"
	"github.com/sessionlab/authengine/permission"
)

// SendVerifyCode generates an email-verification code for the account
// registered under email and mails it out. Only accounts still in
// [StateNotConfirmed] may be verified; anything else is [ErrForbidden].
// Generation is throttled per address by the confirmation challenge.
func (e *Engine) SendVerifyCode(ctx context.Context, p Principal, email string) error {
	if err := requireTags(p, []permission.Tag{permission.VerifyEmail}); err != nil {
		return err
	}

	email = strings.ToLower(strings.TrimSpace(email))
	user, err := e.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user.State != StateNotConfirmed {
		return fmt.Errorf("%w: account is not awaiting verification", ErrForbidden)
	}

	code, err := e.emailConfirm.Generate(ctx, email)
	if err != nil {
		return mapConfirmErr(err)
	}

	e.send(ctx, Email{
		To:          email,
		Subject:     "Confirm your email address",
		Body:        fmt.Sprintf("Your confirmation code is %s. It expires in %s.", code, e.cfg.Confirm.CodeTTL),
		ContentType: "text/plain",
		TTL:         e.cfg.Confirm.CodeTTL,
	})
	e.log.InfoContext(ctx, "verification code sent", "user_id", user.ID)
	return nil
}

// VerifyEmail consumes a verification code and flips the account to
// [StateActive]. Wrong codes charge the challenge's attempt budget; a
// successful match consumes the whole challenge.
func (e *Engine) VerifyEmail(ctx context.Context, p Principal, email, code string) error {
	if err := requireTags(p, []permission.Tag{permission.VerifyEmail}); err != nil {
		return err
	}

	email = strings.ToLower(strings.TrimSpace(email))
	user, err := e.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user.State != StateNotConfirmed {
		return fmt.Errorf("%w: account is not awaiting verification", ErrForbidden)
	}

	if err := e.emailConfirm.Verify(ctx, email, code, true); err != nil {
		mapped := mapConfirmErr(err)
		if !errors.Is(mapped, ErrRateLimited) && !errors.Is(mapped, ErrBadRequest) {
			return mapped
		}
		e.emit(ctx, AuditEvent{
			EventType: internalaudit.TypeEmailVerified,
			UserID:    user.ID,
			IP:        p.ClientIP(),
			UserAgent: p.ClientUserAgent(),
			Error:     err.Error(),
		})
		return mapped
	}

	if err := e.users.UpdateState(ctx, user.ID, StateActive); err != nil {
		return err
	}

	e.emit(ctx, AuditEvent{
		EventType: internalaudit.TypeEmailVerified,
		UserID:    user.ID,
		IP:        p.ClientIP(),
		UserAgent: p.ClientUserAgent(),
		Success:   true,
	})
	e.log.InfoContext(ctx, "email verified", "user_id", user.ID)

	e.send(ctx, Email{
		To:          email,
		Subject:     "Email confirmed",
		Body:        "Your email address has been confirmed. Welcome aboard.",
		ContentType: "text/plain",
	})
	return nil
}
