package permission

// Tag names one allowed action. A principal's authority is the set of tags
// it holds; tags are opaque strings denormalized into issued tokens so that
// authorization never needs a database round trip.
type Tag string

const (
	// Authentication lifecycle.
	Authenticate  Tag = "AUTHENTICATE"
	VerifyEmail   Tag = "VERIFY_EMAIL"
	ResetPassword Tag = "RESET_PASSWORD"
	Logout        Tag = "LOGOUT"
	RefreshTokens Tag = "REFRESH_TOKENS"

	// User management.
	GetUser    Tag = "GET_USER"
	CreateUser Tag = "CREATE_USER"
	UpdateUser Tag = "UPDATE_USER"

	// Self service.
	GetSelf    Tag = "GET_SELF"
	UpdateSelf Tag = "UPDATE_SELF"
	DeleteSelf Tag = "DELETE_SELF"

	// Session management.
	GetSelfSessions   Tag = "GET_SELF_SESSIONS"
	DeleteSelfSession Tag = "DELETE_SELF_SESSION"
	GetUserSessions   Tag = "GET_USER_SESSIONS"
	DeleteUserSession Tag = "DELETE_USER_SESSION"
)

// Unauthenticated returns the fixed permission set granted to requests that
// carry no valid credentials. It covers exactly the operations a guest must
// be able to reach: account creation, login, email verification, password
// reset, token refresh, and public user lookup.
func Unauthenticated() Set {
	return NewSet(
		Authenticate,
		CreateUser,
		VerifyEmail,
		ResetPassword,
		RefreshTokens,
		GetUser,
	)
}

// DefaultUser returns the permission set assigned to freshly created
// accounts until a role manager overrides it.
func DefaultUser() Set {
	return NewSet(
		Authenticate,
		Logout,
		RefreshTokens,
		GetUser,
		GetSelf,
		UpdateSelf,
		DeleteSelf,
		VerifyEmail,
		ResetPassword,
		GetSelfSessions,
		DeleteSelfSession,
	)
}
