// Package reauth keeps the short-lived blacklist of superseded refresh
// tokens that backs replay detection. When a refresh token is rotated or a
// session is revoked, the old token is parked here for one access-token
// lifetime; a presented token found in the blacklist marks the bearer as
// replaying stale credentials.
package reauth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps transport-level Redis failures.
var ErrRedisUnavailable = errors.New("redis unavailable")

// DefaultPrefix is the Redis key namespace for blacklist entries.
const DefaultPrefix = "reauth"

// Entry is one blacklisted refresh token with its remaining lifetime,
// as returned by the administrative enumeration.
type Entry struct {
	SessionID    string
	RefreshToken string
	TTL          time.Duration
}

// Guard is a Redis-backed blacklist of stale refresh tokens, keyed by
// session id. Safe for concurrent use.
type Guard struct {
	redis  redis.UniversalClient
	prefix string
}

// NewGuard creates a [Guard] on the given Redis client. An empty prefix
// selects [DefaultPrefix].
func NewGuard(rdb redis.UniversalClient, prefix string) *Guard {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Guard{redis: rdb, prefix: prefix}
}

func (g *Guard) key(sessionID string) string {
	return g.prefix + ":" + sessionID
}

// Blacklist parks staleToken under the session's key for ttl. A second call
// for the same session overwrites the previous entry; only the most recently
// superseded token is tracked, which is all replay detection needs.
func (g *Guard) Blacklist(ctx context.Context, sessionID, staleToken string, ttl time.Duration) error {
	if err := g.redis.Set(ctx, g.key(sessionID), staleToken, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Lookup returns the blacklisted token for the session, if any. The second
// return value reports whether an entry exists.
func (g *Guard) Lookup(ctx context.Context, sessionID string) (string, bool, error) {
	token, err := g.redis.Get(ctx, g.key(sessionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return token, true, nil
}

// IsReplayed reports whether token is the blacklisted token for the session.
// A missing entry is not a replay; a transport failure is an error so the
// caller can fail closed.
func (g *Guard) IsReplayed(ctx context.Context, sessionID, token string) (bool, error) {
	stale, found, err := g.Lookup(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(stale), []byte(token)) == 1, nil
}

// Clear removes the session's blacklist entry. Clearing a missing entry is
// not an error.
func (g *Guard) Clear(ctx context.Context, sessionID string) error {
	if err := g.redis.Del(ctx, g.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Entries enumerates every live blacklist entry. This is an admin-only O(n)
// SCAN over the keyspace and must not be used in request hot paths.
func (g *Guard) Entries(ctx context.Context) ([]Entry, error) {
	pattern := g.prefix + ":*"
	var (
		cursor  uint64
		entries []Entry
	)

	for {
		keys, next, err := g.redis.Scan(ctx, cursor, pattern, 1000).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}

		for _, key := range keys {
			token, err := g.redis.Get(ctx, key).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					// expired between SCAN and GET
					continue
				}
				return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
			}
			ttl, err := g.redis.TTL(ctx, key).Result()
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
			}
			entries = append(entries, Entry{
				SessionID:    strings.TrimPrefix(key, g.prefix+":"),
				RefreshToken: token,
				TTL:          ttl,
			})
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return entries, nil
}
