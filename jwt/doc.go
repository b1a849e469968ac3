// Package jwt issues and verifies the access and refresh tokens used by the
// authentication engine. Tokens are self-sufficient: the claim set carries the
// user id, username, permission names, and account state, so authorization on
// the hot path never needs a database round trip.
package jwt
