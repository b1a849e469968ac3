package authengine

import (
	"fmt"

	"github.com/sessionlab/authengine/permission"
)

// requireTags gates an operation on the caller's permission set: every tag
// must be held, and at least one tag from each or-group. A missing grant is
// ErrUnauthorized for guests and ErrForbidden for authenticated callers, so
// the transport layer can distinguish "sign in first" from "not allowed".
func requireTags(p Principal, tags []permission.Tag, groups ...permission.AnyOf) error {
	held := p.PermissionSet()

	denied := !held.HasAll(tags...)
	if !denied {
		for _, group := range groups {
			if !held.Intersects(permission.Set(group)) {
				denied = true
				break
			}
		}
	}
	if !denied {
		return nil
	}

	if _, ok := p.(Authenticated); ok {
		return fmt.Errorf("%w: missing permission", ErrForbidden)
	}
	return fmt.Errorf("%w: authentication required", ErrUnauthorized)
}

// requireFresh gates an operation on a currently valid access token. A
// principal resolved from refresh credentials alone may rotate tokens but
// not exercise identity-bearing operations.
func requireFresh(p Principal) (Authenticated, error) {
	auth, ok := p.(Authenticated)
	if !ok || !auth.AccessTokenValid {
		return Authenticated{}, fmt.Errorf("%w: a valid access token is required", ErrUnauthorized)
	}
	return auth, nil
}

// requireStates gates an operation on account state, after the permission
// check has passed. Guests have no state and fail with ErrUnauthorized.
func requireStates(p Principal, states ...UserState) error {
	auth, ok := p.(Authenticated)
	if !ok {
		return fmt.Errorf("%w: authentication required", ErrUnauthorized)
	}

	for _, s := range states {
		if auth.State == s {
			return nil
		}
	}
	return fmt.Errorf("%w: account state does not permit this operation", ErrForbidden)
}
