// Package confirm implements rate-limited one-time confirmation codes for
// email verification and password reset. Codes for one address live in a
// single Redis hash under the challenge's purpose namespace; the newest
// code is the authoritative one. Generation and verification each run as a
// single Lua script so the generation cap and the attempt counter are
// atomic read-modify-writes even under concurrent requests.
package confirm

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"
)

// Purpose namespaces carried over from the account flows.
const (
	PurposeEmailConfirm  = "email_confirm"
	PurposePasswordReset = "password_reset"
)

var (
	// ErrTooManyGenerations: the address already holds the maximum number
	// of outstanding codes.
	ErrTooManyGenerations = errors.New("too many generated codes")
	// ErrAlreadySent: the previous code was sent too recently.
	ErrAlreadySent = errors.New("code already sent")
	// ErrTooManyAttempts: the current code has burned all verify attempts.
	ErrTooManyAttempts = errors.New("too many verification attempts")
	// ErrNotGenerated: no challenge exists for the address.
	ErrNotGenerated = errors.New("code not generated")
	// ErrInvalidCode: the submitted code does not match the current one.
	ErrInvalidCode = errors.New("invalid code")
	// ErrExpired: the current code has outlived its validity window.
	ErrExpired = errors.New("code expired")
	// ErrRedisUnavailable wraps transport-level Redis failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

// Params tunes one challenge namespace. Zero values select the defaults
// used by the account flows.
type Params struct {
	// Purpose prefixes every Redis key, e.g. "email_confirm".
	Purpose string
	// KeyLifetime is the TTL of the whole per-address hash. Default 30m.
	KeyLifetime time.Duration
	// GenInterval is the minimum gap between two generations. Default 120s.
	GenInterval time.Duration
	// MaxGenerations caps outstanding codes per address. Default 3.
	MaxGenerations int
	// MaxAttempts caps wrong guesses against the current code. Default 3.
	MaxAttempts int
	// CodeTTL is the validity window of an individual code. Default 30m.
	CodeTTL time.Duration
}

func (p Params) withDefaults() Params {
	if p.KeyLifetime <= 0 {
		p.KeyLifetime = 30 * time.Minute
	}
	if p.GenInterval <= 0 {
		p.GenInterval = 120 * time.Second
	}
	if p.MaxGenerations <= 0 {
		p.MaxGenerations = 3
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.CodeTTL <= 0 {
		p.CodeTTL = 30 * time.Minute
	}
	return p
}

// generateLua atomically enforces the generation cap and resend interval,
// prunes expired codes, and records the new one.
// KEYS[1] = challenge key
// ARGV[1] = new code
// ARGV[2] = current unix timestamp
// ARGV[3] = code TTL seconds
// ARGV[4] = generation interval seconds
// ARGV[5] = max outstanding generations
// ARGV[6] = key lifetime seconds
//
// Returns 1 on success or an error string: "too_many_generations",
// "already_sent".
var generateLua = redis.NewScript(`
local key = KEYS[1]
local code = ARGV[1]
local now = tonumber(ARGV[2])
local codeTTL = tonumber(ARGV[3])
local genInterval = tonumber(ARGV[4])
local maxGen = tonumber(ARGV[5])
local keyLifetime = tonumber(ARGV[6])

local fields = redis.call('HGETALL', key)
local live = 0
local newestSentAt = -1

for i = 1, #fields, 2 do
  local field = fields[i]
  local ok, record = pcall(cjson.decode, fields[i + 1])
  if not ok or type(record) ~= 'table' or not record.sent_at then
    redis.call('HDEL', key, field)
  elseif now - record.sent_at > codeTTL then
    redis.call('HDEL', key, field)
  else
    live = live + 1
    if record.sent_at > newestSentAt then
      newestSentAt = record.sent_at
    end
  end
end

if live >= maxGen then
  return {err='too_many_generations'}
end

if newestSentAt >= 0 and now - newestSentAt < genInterval then
  return {err='already_sent'}
end

redis.call('HSET', key, code, cjson.encode({sent_at=now, attempts=0}))
redis.call('EXPIRE', key, keyLifetime)
return 1
`)

// verifyLua atomically checks a submitted code against the newest
// outstanding one, charging a verify attempt on mismatch.
// KEYS[1] = challenge key
// ARGV[1] = submitted code
// ARGV[2] = current unix timestamp
// ARGV[3] = code TTL seconds
// ARGV[4] = max verify attempts
// ARGV[5] = delete key on success ("1"/"0")
//
// Failure checks run in order: not_generated, too_many_attempts,
// invalid_code (charging an attempt), expired. A wrong guess charges the
// attempt budget even when the code has already lapsed.
//
// Returns 1 on success or an error string: "not_generated",
// "too_many_attempts", "invalid_code", "expired".
var verifyLua = redis.NewScript(`
local key = KEYS[1]
local submitted = ARGV[1]
local now = tonumber(ARGV[2])
local codeTTL = tonumber(ARGV[3])
local maxAttempts = tonumber(ARGV[4])
local deleteOnSuccess = ARGV[5] == '1'

local fields = redis.call('HGETALL', key)
if #fields == 0 then
  return {err='not_generated'}
end

local newestCode = nil
local newestRecord = nil

for i = 1, #fields, 2 do
  local ok, record = pcall(cjson.decode, fields[i + 1])
  if ok and type(record) == 'table' and record.sent_at then
    if newestRecord == nil or record.sent_at > newestRecord.sent_at then
      newestCode = fields[i]
      newestRecord = record
    end
  end
end

if newestRecord == nil then
  return {err='not_generated'}
end

if newestRecord.attempts >= maxAttempts then
  return {err='too_many_attempts'}
end

if submitted ~= newestCode then
  newestRecord.attempts = newestRecord.attempts + 1
  redis.call('HSET', key, newestCode, cjson.encode(newestRecord))
  return {err='invalid_code'}
end

if now - newestRecord.sent_at > codeTTL then
  return {err='expired'}
end

if deleteOnSuccess then
  redis.call('DEL', key)
end
return 1
`)

// Challenge manages one-time codes for a single purpose namespace. Safe for
// concurrent use.
type Challenge struct {
	redis  redis.UniversalClient
	params Params
	now    func() time.Time
}

// NewChallenge creates a [Challenge] on the given Redis client. The
// purpose must be non-empty; other params default per [Params].
func NewChallenge(rdb redis.UniversalClient, params Params) (*Challenge, error) {
	if params.Purpose == "" {
		return nil, errors.New("confirm: purpose is required")
	}
	return &Challenge{redis: rdb, params: params.withDefaults(), now: time.Now}, nil
}

func (c *Challenge) key(email string) string {
	return c.params.Purpose + ":" + email
}

// newCode draws a uniform 6-digit code from 100000 to 999999.
func newCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100_000), nil
}

// Generate mints a new code for the address and records it, subject to the
// generation cap and resend interval. The caller delivers the returned code
// out of band.
func (c *Challenge) Generate(ctx context.Context, email string) (string, error) {
	code, err := newCode()
	if err != nil {
		return "", err
	}

	_, err = generateLua.Run(ctx, c.redis,
		[]string{c.key(email)},
		code,
		c.now().Unix(),
		int(c.params.CodeTTL/time.Second),
		int(c.params.GenInterval/time.Second),
		c.params.MaxGenerations,
		int(c.params.KeyLifetime/time.Second),
	).Result()
	if err != nil {
		switch err.Error() {
		case "too_many_generations":
			return "", ErrTooManyGenerations
		case "already_sent":
			return "", ErrAlreadySent
		default:
			return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return code, nil
}

// Verify checks a submitted code against the newest outstanding one. A
// mismatch charges one verify attempt. With deleteOnSuccess the whole
// challenge is consumed on a match; password reset suppresses the delete so
// the code stays valid until the new password passes policy, then calls
// [Challenge.Delete] explicitly.
func (c *Challenge) Verify(ctx context.Context, email, code string, deleteOnSuccess bool) error {
	del := "0"
	if deleteOnSuccess {
		del = "1"
	}

	_, err := verifyLua.Run(ctx, c.redis,
		[]string{c.key(email)},
		code,
		c.now().Unix(),
		int(c.params.CodeTTL/time.Second),
		c.params.MaxAttempts,
		del,
	).Result()
	if err != nil {
		switch err.Error() {
		case "not_generated":
			return ErrNotGenerated
		case "expired":
			return ErrExpired
		case "too_many_attempts":
			return ErrTooManyAttempts
		case "invalid_code":
			return ErrInvalidCode
		default:
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return nil
}

// Delete drops the address's challenge outright. Deleting a missing
// challenge is not an error.
func (c *Challenge) Delete(ctx context.Context, email string) error {
	if err := c.redis.Del(ctx, c.key(email)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
