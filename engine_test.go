package authengine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/sessionlab/authengine/password"
)

// memoryUsers is an in-memory UserRepository for engine tests.
type memoryUsers struct {
	mu      sync.Mutex
	records map[string]*UserRecord
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{records: map[string]*UserRecord{}}
}

func (m *memoryUsers) GetByID(_ context.Context, id string) (*UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.records[id]; ok {
		clone := *u
		return &clone, nil
	}
	return nil, fmt.Errorf("%w: user", ErrNotFound)
}

func (m *memoryUsers) GetByUsername(_ context.Context, username string) (*UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.records {
		if strings.EqualFold(u.Username, username) {
			clone := *u
			return &clone, nil
		}
	}
	return nil, fmt.Errorf("%w: user", ErrNotFound)
}

func (m *memoryUsers) GetByEmail(_ context.Context, email string) (*UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.records {
		if strings.EqualFold(u.Email, email) {
			clone := *u
			return &clone, nil
		}
	}
	return nil, fmt.Errorf("%w: user", ErrNotFound)
}

func (m *memoryUsers) Create(_ context.Context, input CreateUserInput) (*UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.records {
		if strings.EqualFold(u.Username, input.Username) || strings.EqualFold(u.Email, input.Email) {
			return nil, fmt.Errorf("%w: username or email", ErrAlreadyExists)
		}
	}

	now := time.Now().UTC()
	u := &UserRecord{
		ID:           uuid.NewString(),
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: input.PasswordHash,
		State:        input.State,
		Permissions:  input.Permissions,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.records[u.ID] = u
	clone := *u
	return &clone, nil
}

func (m *memoryUsers) UpdateState(_ context.Context, id string, state UserState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.records[id]
	if !ok {
		return fmt.Errorf("%w: user", ErrNotFound)
	}
	u.State = state
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memoryUsers) UpdatePasswordHash(_ context.Context, id, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.records[id]
	if !ok {
		return fmt.Errorf("%w: user", ErrNotFound)
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memoryUsers) setState(t *testing.T, id string, state UserState) {
	t.Helper()
	require.NoError(t, m.UpdateState(context.Background(), id, state))
}

// capturingMailer records outbound emails.
type capturingMailer struct {
	mu   sync.Mutex
	sent []Email
}

func (c *capturingMailer) Send(_ context.Context, email Email) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, email)
	return nil
}

func (c *capturingMailer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func (c *capturingMailer) last() Email {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sent[len(c.sent)-1]
}

type testEnv struct {
	engine *Engine
	users  *memoryUsers
	mailer *capturingMailer
	redis  *miniredis.Miniredis
}

func testConfig() Config {
	return Config{
		JWT: JWTConfig{
			Method:     "hs256",
			Secret:     "0123456789abcdef0123456789abcdef",
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 168 * time.Hour,
		},
		Session: SessionConfig{TTL: 4344 * time.Hour},
		Confirm: ConfirmConfig{
			KeyLifetime:    30 * time.Minute,
			GenInterval:    120 * time.Second,
			MaxGenerations: 3,
			MaxAttempts:    3,
			CodeTTL:        30 * time.Minute,
		},
		Rate: RateConfig{
			MaxLoginFailures: 5,
			LoginWindow:      15 * time.Minute,
			ThrottleByIP:     true,
			MaxRefreshCalls:  10,
			RefreshWindow:    time.Minute,
		},
		Password: PasswordConfig{MinLength: 10, MaxLength: 128},
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithConfig(t, testConfig())
}

func newTestEnvWithConfig(t *testing.T, cfg Config) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	users := newMemoryUsers()
	mailer := &capturingMailer{}
	hasher, err := password.NewHasher(password.Params{
		MemoryKB: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32,
	})
	require.NoError(t, err)

	engine, err := New(cfg, Dependencies{
		Redis:  rdb,
		Users:  users,
		Mailer: mailer,
		Hasher: hasher,
	})
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	return &testEnv{engine: engine, users: users, mailer: mailer, redis: mr}
}

func guest() Unauthenticated {
	return Unauthenticated{IP: "203.0.113.9", UserAgent: "engine-test/1.0"}
}

// signUpActive registers an account, activates it directly, and signs in.
func (env *testEnv) signUpActive(t *testing.T, username, email, pw string) *SignInResult {
	t.Helper()
	ctx := context.Background()

	view, err := env.engine.SignUp(ctx, guest(), SignUpRequest{Username: username, Email: email, Password: pw})
	require.NoError(t, err)
	env.users.setState(t, view.ID, StateActive)

	result, err := env.engine.SignIn(ctx, guest(), username, pw)
	require.NoError(t, err)
	return result
}

// resolve builds the principal a request carrying these credentials gets.
func (env *testEnv) resolve(result *SignInResult) Principal {
	return env.engine.ResolvePrincipal(
		context.Background(),
		result.Tokens.AccessToken,
		result.Tokens.RefreshToken,
		result.SessionID,
		"203.0.113.9",
		"engine-test/1.0",
	)
}

// seedActiveSignIn plants an active account with explicit permission grants
// and signs it in. Used for operations the default grants do not cover.
func (env *testEnv) seedActiveSignIn(t *testing.T, username, email, pw string, perms []string) *SignInResult {
	t.Helper()
	ctx := context.Background()

	hasher, err := password.NewHasher(password.Params{
		MemoryKB: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32,
	})
	require.NoError(t, err)
	hash, err := hasher.Hash(pw)
	require.NoError(t, err)

	_, err = env.users.Create(ctx, CreateUserInput{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		State:        StateActive,
		Permissions:  perms,
	})
	require.NoError(t, err)

	result, err := env.engine.SignIn(ctx, guest(), username, pw)
	require.NoError(t, err)
	return result
}

// authed resolves and asserts the caller came out authenticated.
func (env *testEnv) authed(t *testing.T, result *SignInResult) Authenticated {
	t.Helper()
	p := env.resolve(result)
	auth, ok := p.(Authenticated)
	require.True(t, ok, "expected an authenticated principal")
	return auth
}
