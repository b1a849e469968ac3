package authengine

import (
	"errors"
	"fmt"
)

// The engine collapses every failure into one of five categories so the
// transport layer can map them to status codes without inspecting internals.
var (
	// ErrNotFound: the referenced entity does not exist. Sign-in also
	// returns it for a wrong password, so responses never reveal whether
	// an account exists.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists: a unique constraint (username or email,
	// case-insensitive) would be violated.
	ErrAlreadyExists = errors.New("already exists")
	// ErrUnauthorized: the caller carries no acceptable credentials for
	// the operation.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden: the caller is authenticated but its permissions or
	// account state do not allow the operation.
	ErrForbidden = errors.New("forbidden")
	// ErrBadRequest: the input is structurally or semantically invalid.
	ErrBadRequest = errors.New("bad request")
)

// ErrRateLimited is a [ErrBadRequest]-class failure for throttled
// operations: errors.Is matches both sentinels.
var ErrRateLimited = fmt.Errorf("%w: rate limited", ErrBadRequest)
