package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	authengine "github.com/sessionlab/authengine"
)

// Cookie names shared with the cookie writers below.
const (
	CookieAccessToken  = "access_token"
	CookieRefreshToken = "refresh_token"
	CookieSessionID    = "session_id"
)

type principalContextKey struct{}

// PrincipalFromContext returns the principal resolved by [Resolve]. When
// the middleware did not run, the caller is treated as an anonymous guest.
func PrincipalFromContext(ctx context.Context) authengine.Principal {
	if p, ok := ctx.Value(principalContextKey{}).(authengine.Principal); ok {
		return p
	}
	return authengine.Unauthenticated{}
}

// Resolve reads the auth cookies, resolves the principal through the
// engine, and attaches it to the request context. It never rejects a
// request itself; handlers decide what an unauthenticated caller may do.
func Resolve(engine *authengine.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := engine.ResolvePrincipal(
				r.Context(),
				cookieValue(r, CookieAccessToken),
				cookieValue(r, CookieRefreshToken),
				cookieValue(r, CookieSessionID),
				ClientIP(r),
				r.UserAgent(),
			)

			ctx := context.WithValue(r.Context(), principalContextKey{}, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientIP extracts the originating address: the first X-Forwarded-For hop
// when present, otherwise the connection's remote address.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first, _, ok := strings.Cut(fwd, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(fwd)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
