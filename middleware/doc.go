// Package middleware connects the engine to net/http: it reads the three
// auth cookies, resolves the caller's principal once per request, stashes
// it in the request context, and writes or clears the cookies after
// sign-in, refresh, and logout.
package middleware
