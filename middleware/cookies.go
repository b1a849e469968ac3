package middleware

import (
	"net/http"
	"time"

	authengine "github.com/sessionlab/authengine"
)

// CookieConfig controls the attributes of the three auth cookies. Lifetimes
// should mirror the token TTLs the engine was configured with.
type CookieConfig struct {
	// Domain and Path scope the cookies; empty values use the browser
	// defaults.
	Domain string
	Path   string
	// Secure should only be disabled for local development over plain HTTP.
	Secure     bool
	SameSite   http.SameSite
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// SessionTTL covers the session_id cookie; it should match the session
	// collection TTL so the id outlives individual token pairs.
	SessionTTL time.Duration
}

// DefaultCookieConfig matches the engine defaults: 15m access, 7d refresh,
// strict same-site, secure.
func DefaultCookieConfig() CookieConfig {
	return CookieConfig{
		Path:       "/",
		Secure:     true,
		SameSite:   http.SameSiteStrictMode,
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
		SessionTTL: 15_638_400 * time.Second,
	}
}

// SetAuthCookies writes the access token, refresh token, and session id as
// HttpOnly cookies after a successful sign-in or refresh.
func SetAuthCookies(w http.ResponseWriter, cfg CookieConfig, result *authengine.SignInResult) {
	set(w, cfg, CookieAccessToken, result.Tokens.AccessToken, cfg.AccessTTL)
	set(w, cfg, CookieRefreshToken, result.Tokens.RefreshToken, cfg.RefreshTTL)
	set(w, cfg, CookieSessionID, result.SessionID, cfg.SessionTTL)
}

// ClearAuthCookies expires all three cookies after logout.
func ClearAuthCookies(w http.ResponseWriter, cfg CookieConfig) {
	set(w, cfg, CookieAccessToken, "", -time.Second)
	set(w, cfg, CookieRefreshToken, "", -time.Second)
	set(w, cfg, CookieSessionID, "", -time.Second)
}

func set(w http.ResponseWriter, cfg CookieConfig, name, value string, ttl time.Duration) {
	path := cfg.Path
	if path == "" {
		path = "/"
	}

	maxAge := int(ttl / time.Second)
	if ttl < 0 {
		maxAge = -1
	}

	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Domain:   cfg.Domain,
		Path:     path,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: cfg.SameSite,
	})
}
