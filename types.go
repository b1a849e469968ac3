package authengine

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/sessionlab/authengine/internal/audit"
)

// UserState is the lifecycle state of an account. The numeric values are
// embedded in issued tokens and must stay stable.
type UserState int

const (
	// StateNotConfirmed: created but the email is not verified yet.
	StateNotConfirmed UserState = 0
	// StateActive: fully usable account.
	StateActive UserState = 1
	// StateBlocked: administratively suspended.
	StateBlocked UserState = 2
	// StateDeleted: soft-deleted, kept for audit trails.
	StateDeleted UserState = 3
)

// UserRecord is the durable account record exchanged with the
// [UserRepository].
type UserRecord struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	State        UserState
	Permissions  []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserView is the caller-facing projection of an account: everything in
// [UserRecord] except the credential hash.
type UserView struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	State     UserState `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

func viewOf(u *UserRecord) UserView {
	return UserView{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		State:     u.State,
		CreatedAt: u.CreatedAt,
	}
}

// TokenPair is one matched set of freshly issued tokens.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// SignUpRequest is the input for [Engine.SignUp].
type SignUpRequest struct {
	Username string
	Email    string
	Password string
}

// SignInResult is returned by [Engine.SignIn] and [Engine.Refresh]. The
// transport layer writes the tokens and session id into cookies.
type SignInResult struct {
	User      UserView
	Tokens    TokenPair
	SessionID string
}

// SessionInfo is the caller-facing projection of one device session.
type SessionInfo struct {
	SessionID string    `json:"session_id"`
	IP        string    `json:"ip"`
	UserAgent string    `json:"user_agent"`
	CreatedAt time.Time `json:"created_at"`
	Current   bool      `json:"current"`
}

// ReauthEntry is one blacklisted refresh token, exposed for administrative
// inspection.
type ReauthEntry struct {
	SessionID    string        `json:"session_id"`
	RefreshToken string        `json:"refresh_token"`
	TTL          time.Duration `json:"ttl"`
}

// CreateUserInput is the input for [UserRepository.Create].
type CreateUserInput struct {
	Username     string
	Email        string
	PasswordHash string
	State        UserState
	Permissions  []string
}

// UserRepository is the durable account store the caller must implement.
// Username and email lookups are case-insensitive. Implementations signal
// misses with [ErrNotFound] and unique-constraint violations with
// [ErrAlreadyExists].
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*UserRecord, error)
	GetByUsername(ctx context.Context, username string) (*UserRecord, error)
	GetByEmail(ctx context.Context, email string) (*UserRecord, error)
	Create(ctx context.Context, input CreateUserInput) (*UserRecord, error)
	UpdateState(ctx context.Context, id string, state UserState) error
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error
}

// Email is one outbound message handed to the [Sender].
type Email struct {
	To          string
	Subject     string
	Body        string
	ContentType string
	Priority    uint8
	TTL         time.Duration
}

// Sender delivers notification emails. The engine treats delivery as
// fire-and-forget: a failed send is logged, never surfaced to the caller.
type Sender interface {
	Send(ctx context.Context, email Email) error
}

// Hasher derives and verifies password hashes. The default implementation
// is the argon2id hasher from the password package.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) (bool, error)
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
