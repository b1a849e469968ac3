package authengine

import (
	"time"

	"github.com/sessionlab/authengine/permission"
)

// Principal is the caller identity attached to every engine operation. It
// is a sealed two-case union: [Authenticated] or [Unauthenticated].
// [Engine.ResolvePrincipal] constructs exactly one per request; principals
// are immutable after construction.
type Principal interface {
	// PermissionSet returns the tags the caller may exercise.
	PermissionSet() permission.Set
	// ClientIP and ClientUserAgent describe the request origin.
	ClientIP() string
	ClientUserAgent() string

	sealed()
}

// Authenticated is a caller whose access token, refresh token, and session
// all checked out during resolution. The three validity flags record which
// stages passed; operations like Refresh require specific combinations.
type Authenticated struct {
	UserID      string
	Username    string
	Permissions permission.Set
	State       UserState
	TokenExpiry time.Time

	// SessionID and RefreshToken echo the credentials the request carried,
	// so token rotation can work from the principal alone.
	SessionID    string
	RefreshToken string

	IP        string
	UserAgent string

	AccessTokenValid  bool
	RefreshTokenValid bool
	SessionValid      bool
}

func (a Authenticated) PermissionSet() permission.Set { return a.Permissions }
func (a Authenticated) ClientIP() string              { return a.IP }
func (a Authenticated) ClientUserAgent() string       { return a.UserAgent }
func (Authenticated) sealed()                         {}

// Unauthenticated is a caller with no acceptable credentials. It still
// holds a permission set (the fixed guest grants), so the same tag gate
// covers public and private operations uniformly.
type Unauthenticated struct {
	IP        string
	UserAgent string
}

func (Unauthenticated) PermissionSet() permission.Set { return permission.Unauthenticated() }
func (u Unauthenticated) ClientIP() string            { return u.IP }
func (u Unauthenticated) ClientUserAgent() string     { return u.UserAgent }
func (Unauthenticated) sealed()                       {}
