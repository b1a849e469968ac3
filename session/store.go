package session

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps transport-level Redis failures so callers can
// distinguish an unavailable store from a definitive miss.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrNotFound is returned by Get when the user has no session with the
// given id.
var ErrNotFound = errors.New("session not found")

// DefaultCollectionTTL is the lifetime of a user's whole session hash,
// refreshed on every write. Roughly 181 days.
const DefaultCollectionTTL = 15_638_400 * time.Second

// DefaultPrefix is the Redis key namespace for session hashes.
const DefaultPrefix = "session_mapping"

// Store is a Redis-backed session store. One hash per user, one field per
// device session. Safe for concurrent use.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewStore creates a session [Store] backed by the given Redis client.
// Zero values for prefix and ttl select [DefaultPrefix] and
// [DefaultCollectionTTL].
func NewStore(rdb redis.UniversalClient, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if ttl <= 0 {
		ttl = DefaultCollectionTTL
	}
	return &Store{redis: rdb, prefix: prefix, ttl: ttl, now: time.Now}
}

func (s *Store) key(userID string) string {
	return s.prefix + ":" + userID
}

// newSessionID returns 128 random bits as 32 lowercase hex characters.
func newSessionID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

// CreateOrRotate writes a session record under the user's hash and refreshes
// the collection TTL. An empty sessionID mints a fresh one (new device
// login); a non-empty sessionID overwrites that field in place (refresh
// rotation keeps the device's session id stable). Returns the session id
// the record was stored under.
func (s *Store) CreateOrRotate(ctx context.Context, userID, refreshToken, ip, userAgent, sessionID string) (string, error) {
	if sessionID == "" {
		sessionID = newSessionID()
	}

	value, err := encodeRecord(Record{
		RefreshToken: refreshToken,
		IP:           ip,
		CreatedAt:    s.now().Unix(),
		UserAgent:    userAgent,
	})
	if err != nil {
		return "", err
	}

	key := s.key(userID)
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, sessionID, value)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return sessionID, nil
}

// List returns every decodable session record for the user, ordered by
// creation time, oldest first. Corrupt fields are skipped rather than
// failing the whole listing.
func (s *Store) List(ctx context.Context, userID string) ([]Record, error) {
	fields, err := s.redis.HGetAll(ctx, s.key(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	records := make([]Record, 0, len(fields))
	for sid, raw := range fields {
		r, decErr := decodeRecord(sid, raw)
		if decErr != nil {
			continue
		}
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt != records[j].CreatedAt {
			return records[i].CreatedAt < records[j].CreatedAt
		}
		return records[i].SessionID < records[j].SessionID
	})
	return records, nil
}

// Get returns the user's session with the given id, or [ErrNotFound].
func (s *Store) Get(ctx context.Context, userID, sessionID string) (*Record, error) {
	raw, err := s.redis.HGet(ctx, s.key(userID), sessionID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	r, err := decodeRecord(sessionID, raw)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Delete removes one session from the user's hash. Deleting a session that
// does not exist is not an error.
func (s *Store) Delete(ctx context.Context, userID, sessionID string) error {
	if err := s.redis.HDel(ctx, s.key(userID), sessionID).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// IsValid reports whether the user holds a session with the given id whose
// stored refresh token matches refreshToken. A missing or corrupt record is
// false, not an error; transport failures are errors so the caller can fail
// closed.
func (s *Store) IsValid(ctx context.Context, userID, sessionID, refreshToken string) (bool, error) {
	raw, err := s.redis.HGet(ctx, s.key(userID), sessionID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	r, err := decodeRecord(sessionID, raw)
	if err != nil {
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(r.RefreshToken), []byte(refreshToken)) == 1, nil
}
