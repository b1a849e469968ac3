package authengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sessionlab/authengine/confirm"
	internalaudit "github.com/sessionlab/authengine/internal/audit"
	"github.com/sessionlab/authengine/internal/rate"
	"github.com/sessionlab/authengine/jwt"
	"github.com/sessionlab/authengine/password"
	"github.com/sessionlab/authengine/reauth"
	"github.com/sessionlab/authengine/session"
)

// Dependencies are the collaborators an [Engine] is wired with. Redis and
// Users are required; the rest have working defaults.
type Dependencies struct {
	// Redis backs sessions, the reauth blacklist, confirmation codes, and
	// rate counters.
	Redis redis.UniversalClient
	// Users is the durable account store.
	Users UserRepository
	// Mailer delivers confirmation and notification emails. Nil disables
	// outbound mail; codes are still generated and logged at debug level.
	Mailer Sender
	// Hasher defaults to argon2id with [password.DefaultParams].
	Hasher Hasher
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// AuditSink receives security events when auditing is enabled.
	AuditSink AuditSink
}

// Engine orchestrates every account and session operation. Construct with
// [New]; safe for concurrent use.
type Engine struct {
	cfg    Config
	users  UserRepository
	mailer Sender
	hasher Hasher
	log    *slog.Logger

	tokens        *jwt.Processor
	sessions      *session.Store
	guard         *reauth.Guard
	emailConfirm  *confirm.Challenge
	passwordReset *confirm.Challenge
	limiter       *rate.Limiter
	audit         *internalaudit.Dispatcher
}

// New validates cfg, applies dependency defaults, and wires the engine.
func New(cfg Config, deps Dependencies) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Redis == nil {
		return nil, errors.New("authengine: a Redis client is required")
	}
	if deps.Users == nil {
		return nil, errors.New("authengine: a UserRepository is required")
	}

	hasher := deps.Hasher
	if hasher == nil {
		h, err := password.NewHasher(password.DefaultParams())
		if err != nil {
			return nil, err
		}
		hasher = h
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tokens, err := jwt.NewProcessor(jwt.Config{
		SigningMethod: jwt.SigningMethod(cfg.JWT.Method),
		Secret:        []byte(cfg.JWT.Secret),
		PrivateKeyPEM: []byte(cfg.JWT.PrivateKeyPEM),
		PublicKeyPEM:  []byte(cfg.JWT.PublicKeyPEM),
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
	})
	if err != nil {
		return nil, err
	}

	confirmParams := func(purpose string) confirm.Params {
		return confirm.Params{
			Purpose:        purpose,
			KeyLifetime:    cfg.Confirm.KeyLifetime,
			GenInterval:    cfg.Confirm.GenInterval,
			MaxGenerations: cfg.Confirm.MaxGenerations,
			MaxAttempts:    cfg.Confirm.MaxAttempts,
			CodeTTL:        cfg.Confirm.CodeTTL,
		}
	}
	emailConfirm, err := confirm.NewChallenge(deps.Redis, confirmParams(confirm.PurposeEmailConfirm))
	if err != nil {
		return nil, err
	}
	passwordReset, err := confirm.NewChallenge(deps.Redis, confirmParams(confirm.PurposePasswordReset))
	if err != nil {
		return nil, err
	}

	// auditing is enabled by handing the dispatcher a sink
	var auditSink AuditSink
	if cfg.Audit.Enabled {
		auditSink = deps.AuditSink
		if auditSink == nil {
			auditSink = NoOpSink{}
		}
	}

	return &Engine{
		cfg:           cfg,
		users:         deps.Users,
		mailer:        deps.Mailer,
		hasher:        hasher,
		log:           logger,
		tokens:        tokens,
		sessions:      session.NewStore(deps.Redis, cfg.Session.Prefix, cfg.Session.TTL),
		guard:         reauth.NewGuard(deps.Redis, ""),
		emailConfirm:  emailConfirm,
		passwordReset: passwordReset,
		limiter: rate.New(deps.Redis, rate.Config{
			MaxLoginFailures: cfg.Rate.MaxLoginFailures,
			LoginWindow:      cfg.Rate.LoginWindow,
			ThrottleByIP:     cfg.Rate.ThrottleByIP,
			MaxRefreshCalls:  cfg.Rate.MaxRefreshCalls,
			RefreshWindow:    cfg.Rate.RefreshWindow,
		}),
		audit: internalaudit.NewDispatcher(auditSink, cfg.Audit.BufferSize, cfg.Audit.DropIfFull),
	}, nil
}

// Close flushes the audit dispatcher. The engine must not be used after.
func (e *Engine) Close() {
	e.audit.Close()
}

// issueTokens mints a matched access/refresh pair from a current account
// snapshot.
func (e *Engine) issueTokens(u *UserRecord) (TokenPair, error) {
	access, err := e.tokens.Create(u.ID, u.Username, u.Permissions, int(u.State), jwt.KindAccess)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := e.tokens.Create(u.ID, u.Username, u.Permissions, int(u.State), jwt.KindRefresh)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// send dispatches a notification email without blocking the caller's
// outcome on delivery.
func (e *Engine) send(ctx context.Context, email Email) {
	if e.mailer == nil {
		e.log.DebugContext(ctx, "mailer disabled, dropping email", "to", email.To, "subject", email.Subject)
		return
	}
	if err := e.mailer.Send(ctx, email); err != nil {
		e.log.WarnContext(ctx, "email delivery failed", "to", email.To, "subject", email.Subject, "err", err)
	}
}

func (e *Engine) emit(ctx context.Context, event AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	e.audit.Emit(ctx, event)
}

// mapConfirmErr translates confirmation-challenge failures into the engine
// error taxonomy.
func mapConfirmErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, confirm.ErrAlreadySent),
		errors.Is(err, confirm.ErrTooManyGenerations),
		errors.Is(err, confirm.ErrTooManyAttempts):
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	case errors.Is(err, confirm.ErrNotGenerated),
		errors.Is(err, confirm.ErrInvalidCode),
		errors.Is(err, confirm.ErrExpired):
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	default:
		return err
	}
}

// checkPasswordPolicy enforces the acceptance policy shared by sign-up and
// password reset.
func (e *Engine) checkPasswordPolicy(pw string) error {
	if len(pw) < e.cfg.Password.MinLength {
		return fmt.Errorf("%w: password must be at least %d bytes", ErrBadRequest, e.cfg.Password.MinLength)
	}
	if len(pw) > e.cfg.Password.MaxLength {
		return fmt.Errorf("%w: password must be at most %d bytes", ErrBadRequest, e.cfg.Password.MaxLength)
	}
	return nil
}
